// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the URI scheme of every provider URI.
const Scheme = "content"

const (
	segmentTree     = "tree"
	segmentDocument = "document"
	segmentChildren = "children"
)

// Contract implements the URI navigation half of Provider for a fixed
// set of provider authorities. URIs have one of these shapes, with
// each ID path-escaped into a single segment:
//
//	content://<authority>/document/<id>
//	content://<authority>/tree/<tree-id>
//	content://<authority>/tree/<tree-id>/document/<id>
//	content://<authority>/tree/<tree-id>/document/<id>/children
//
// Only the second and third shapes are document URIs. A bare tree URI
// is a permission grant, not a document.
type Contract struct {
	authorities map[string]bool
}

// NewContract returns a Contract recognizing the given authorities.
func NewContract(authorities ...string) Contract {
	set := make(map[string]bool, len(authorities))
	for _, authority := range authorities {
		set[authority] = true
	}
	return Contract{authorities: set}
}

// Authorities returns the recognized authorities in no particular
// order.
func (c Contract) Authorities() []string {
	authorities := make([]string, 0, len(c.authorities))
	for authority := range c.authorities {
		authorities = append(authorities, authority)
	}
	return authorities
}

// IsDocumentURI reports whether uri is a document URI for one of the
// contract's authorities.
func (c Contract) IsDocumentURI(uri string) bool {
	parsed, err := ParseURI(uri)
	if err != nil || !c.authorities[parsed.Authority] {
		return false
	}
	return parsed.Kind == KindDocument || parsed.Kind == KindTreeDocument
}

// DocumentID returns the document ID of a document URI.
func (c Contract) DocumentID(uri string) (string, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	switch parsed.Kind {
	case KindDocument, KindTreeDocument, KindChildren:
		return parsed.DocumentID, nil
	default:
		return "", fmt.Errorf("%w: not a document URI: %s", ErrIllegalArgument, uri)
	}
}

// BuildDocumentURIUsingTree returns the tree-scoped URI of documentID.
func (c Contract) BuildDocumentURIUsingTree(treeURI, documentID string) (string, error) {
	parsed, err := ParseURI(treeURI)
	if err != nil {
		return "", err
	}
	if parsed.TreeID == "" {
		return "", fmt.Errorf("%w: not a tree URI: %s", ErrIllegalArgument, treeURI)
	}
	return TreeDocumentURI(parsed.Authority, parsed.TreeID, documentID), nil
}

// BuildChildDocumentsURIUsingTree returns the URI listing the children
// of documentID within treeURI.
func (c Contract) BuildChildDocumentsURIUsingTree(treeURI, documentID string) (string, error) {
	documentURI, err := c.BuildDocumentURIUsingTree(treeURI, documentID)
	if err != nil {
		return "", err
	}
	return documentURI + "/" + segmentChildren, nil
}

// URIKind classifies a parsed provider URI.
type URIKind int

const (
	KindUnknown URIKind = iota
	KindDocument
	KindTree
	KindTreeDocument
	KindChildren
)

// URI is a parsed provider URI.
type URI struct {
	Authority  string
	Kind       URIKind
	TreeID     string
	DocumentID string
}

// ParseURI parses a provider URI. It fails for a scheme other than
// content or a path that is not one of the Contract shapes.
func ParseURI(raw string) (URI, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %v", ErrIllegalArgument, err)
	}
	if parsed.Scheme != Scheme || parsed.Host == "" {
		return URI{}, fmt.Errorf("%w: not a %s URI: %s", ErrIllegalArgument, Scheme, raw)
	}

	escaped := strings.TrimPrefix(parsed.EscapedPath(), "/")
	var segments []string
	if escaped != "" {
		for _, segment := range strings.Split(escaped, "/") {
			unescaped, err := url.PathUnescape(segment)
			if err != nil {
				return URI{}, fmt.Errorf("%w: bad segment %q: %v", ErrIllegalArgument, segment, err)
			}
			segments = append(segments, unescaped)
		}
	}

	result := URI{Authority: parsed.Host}
	switch {
	case len(segments) == 2 && segments[0] == segmentDocument:
		result.Kind = KindDocument
		result.DocumentID = segments[1]
	case len(segments) == 2 && segments[0] == segmentTree:
		result.Kind = KindTree
		result.TreeID = segments[1]
	case len(segments) == 4 && segments[0] == segmentTree && segments[2] == segmentDocument:
		result.Kind = KindTreeDocument
		result.TreeID = segments[1]
		result.DocumentID = segments[3]
	case len(segments) == 5 && segments[0] == segmentTree && segments[2] == segmentDocument && segments[4] == segmentChildren:
		result.Kind = KindChildren
		result.TreeID = segments[1]
		result.DocumentID = segments[3]
	default:
		return URI{}, fmt.Errorf("%w: unrecognized document path: %s", ErrIllegalArgument, raw)
	}
	return result, nil
}

// DocumentURI returns content://authority/document/<id>.
func DocumentURI(authority, documentID string) string {
	return Scheme + "://" + authority + "/" + segmentDocument + "/" + url.PathEscape(documentID)
}

// TreeURI returns content://authority/tree/<tree-id>.
func TreeURI(authority, treeID string) string {
	return Scheme + "://" + authority + "/" + segmentTree + "/" + url.PathEscape(treeID)
}

// TreeDocumentURI returns content://authority/tree/<tree-id>/document/<id>.
func TreeDocumentURI(authority, treeID, documentID string) string {
	return TreeURI(authority, treeID) + "/" + segmentDocument + "/" + url.PathEscape(documentID)
}
