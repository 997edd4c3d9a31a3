// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package static

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/learningequality/dynstatic/lib/storage"
)

// forever is the max-age for immutable files: ten years.
const forever = 10 * 365 * 24 * 60 * 60

// encodings maps a compressed sibling's extension to its
// Content-Encoding. The order is the probe order.
var encodings = []struct {
	extension string
	name      string
}{
	{".gz", "gzip"},
	{".br", "br"},
}

// notModifiedHeaders are the only headers kept on a 304.
var notModifiedHeaders = []string{
	"Cache-Control",
	"Content-Location",
	"Date",
	"ETag",
	"Expires",
	"Vary",
}

// alternative is one servable representation of a file.
type alternative struct {
	encoding string
	// match is nil for the identity representation, which always
	// matches.
	match  *regexp.Regexp
	source string
	size   int64
	header http.Header
}

// File is an immutable resolved descriptor: where the bytes live and
// the headers to serve them with. The NOT_FOUND sentinel and redirect
// entries are also Files.
type File struct {
	url    string
	source string
	info   storage.Info

	etag         string
	lastModified time.Time
	alternatives []alternative
	notModified  http.Header

	redirect http.Header
	notFound bool
}

// notFound marks a URL known to have no file.
var notFound = &File{notFound: true}

// NotFound reports whether f is the NOT_FOUND sentinel.
func (f *File) NotFound() bool { return f.notFound }

// URL returns the URL path the descriptor was built for.
func (f *File) URL() string { return f.url }

// Source returns the filesystem path or document URI of the
// uncompressed representation.
func (f *File) Source() string { return f.source }

// Info returns the stat result of the uncompressed representation.
func (f *File) Info() storage.Info { return f.info }

// ETag returns the entity tag, or "" when the source has no mtime.
func (f *File) ETag() string { return f.etag }

// Location returns the redirect target of a redirect entry, or "".
func (f *File) Location() string {
	if f.redirect == nil {
		return ""
	}
	return f.redirect.Get("Location")
}

// Encodings returns the Content-Encoding of each representation in
// preference order; "" is the uncompressed file.
func (f *File) Encodings() []string {
	names := make([]string, len(f.alternatives))
	for i, alt := range f.alternatives {
		names[i] = alt.encoding
	}
	return names
}

// headerPolicy carries the middleware settings that shape headers.
type headerPolicy struct {
	maxAge            time.Duration
	immutableFileTest *regexp.Regexp
	allowAllOrigins   bool
}

func (p headerPolicy) cacheControl(urlPath string) string {
	if p.immutableFileTest != nil && p.immutableFileTest.MatchString(urlPath) {
		return fmt.Sprintf("max-age=%d, public, immutable", forever)
	}
	if p.maxAge < 0 {
		return ""
	}
	return fmt.Sprintf("max-age=%d, public", int64(p.maxAge/time.Second))
}

// newFile builds a descriptor. stats must contain source; compressed
// siblings are used when stats holds them.
func newFile(urlPath, source string, stats map[string]storage.Info, policy headerPolicy) *File {
	info := stats[source]
	f := &File{url: urlPath, source: source, info: info}

	base := make(http.Header)
	base.Set("Content-Type", contentType(source))
	if cacheControl := policy.cacheControl(urlPath); cacheControl != "" {
		base.Set("Cache-Control", cacheControl)
	}
	if policy.allowAllOrigins {
		base.Set("Access-Control-Allow-Origin", "*")
	}
	base.Set("Accept-Ranges", "bytes")

	type candidate struct {
		encoding string
		source   string
		size     int64
	}
	candidates := []candidate{{source: source, size: info.Size}}
	for _, encoding := range encodings {
		sibling := source + encoding.extension
		if siblingInfo, ok := stats[sibling]; ok {
			candidates = append(candidates, candidate{encoding: encoding.name, source: sibling, size: siblingInfo.Size})
		}
	}
	if len(candidates) > 1 {
		base.Set("Vary", "Accept-Encoding")
	}

	// Sources without an mtime get neither Last-Modified nor ETag.
	if seconds := info.ModTime.Unix(); !info.ModTime.IsZero() && seconds != 0 {
		f.lastModified = time.Unix(seconds, 0).UTC()
		base.Set("Last-Modified", f.lastModified.Format(http.TimeFormat))
		f.etag = fmt.Sprintf(`"%x-%x"`, seconds, info.Size)
		base.Set("ETag", f.etag)
	}

	// Smallest first. The identity representation matches every
	// request, so a compressed sibling larger than it is never chosen.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].size < candidates[j].size
	})
	for _, c := range candidates {
		header := base.Clone()
		header.Set("Content-Length", strconv.FormatInt(c.size, 10))
		alt := alternative{encoding: c.encoding, source: c.source, size: c.size, header: header}
		if c.encoding != "" {
			header.Set("Content-Encoding", c.encoding)
			alt.match = regexp.MustCompile(`\b` + regexp.QuoteMeta(c.encoding) + `\b`)
		}
		f.alternatives = append(f.alternatives, alt)
	}

	f.notModified = make(http.Header)
	for _, name := range notModifiedHeaders {
		if values := base.Values(name); len(values) > 0 {
			f.notModified[name] = append([]string(nil), values...)
		}
	}
	return f
}

// newRedirect builds a redirect entry for from to its canonical index
// URL. The Location is relative, so it survives any mount point.
func newRedirect(from, to, indexFile string, policy headerPolicy) (*File, error) {
	var location string
	switch {
	case to == from+"/":
		location = from[strings.LastIndex(from, "/")+1:] + "/"
	case from == to+indexFile:
		location = "./"
	default:
		return nil, fmt.Errorf("static: cannot redirect %s to %s", from, to)
	}

	header := make(http.Header)
	header.Set("Location", location)
	if policy.maxAge >= 0 {
		header.Set("Cache-Control", fmt.Sprintf("max-age=%d, public", int64(policy.maxAge/time.Second)))
	}
	return &File{url: from, redirect: header}, nil
}

// contentType returns the media type for a source by extension,
// adding charset=utf-8 to text types that lack one.
func contentType(source string) string {
	name := source
	if strings.Contains(source, "://") {
		// Document IDs travel escaped in the last URI segment.
		if unescaped, err := url.PathUnescape(source); err == nil {
			name = unescaped
		}
	}
	extension := path.Ext(name)
	mediaType := mime.TypeByExtension(extension)
	if mediaType == "" {
		return "application/octet-stream"
	}
	base, params, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return mediaType
	}
	if _, ok := params["charset"]; !ok && (strings.HasPrefix(base, "text/") || base == "application/javascript") {
		return mime.FormatMediaType(base, map[string]string{"charset": "utf-8"})
	}
	return mediaType
}
