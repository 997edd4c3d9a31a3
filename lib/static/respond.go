// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Opener opens a resolved source for reading. storage.Backend
// implements it.
type Opener interface {
	Open(ctx context.Context, source string) (*os.File, error)
}

// Response is the outcome of Respond. Body is nil for HEAD and for
// responses without content; otherwise the caller must close it.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// errMalformedRange marks a Range header that is ignored.
var errMalformedRange = errors.New("malformed range")

// Respond answers one request for the descriptor. The source is
// opened at most once, and only for GET. An error means the source
// could not be opened; no response was produced.
func (f *File) Respond(ctx context.Context, method string, header http.Header, opener Opener) (*Response, error) {
	if f.redirect != nil {
		return &Response{Status: http.StatusFound, Header: f.redirect.Clone()}, nil
	}

	if method != http.MethodGet && method != http.MethodHead {
		return &Response{
			Status: http.StatusMethodNotAllowed,
			Header: http.Header{"Allow": {"GET, HEAD"}},
		}, nil
	}

	if f.isNotModified(header) {
		return &Response{Status: http.StatusNotModified, Header: f.notModified.Clone()}, nil
	}

	alt := f.negotiate(header.Get("Accept-Encoding"))
	responseHeader := alt.header.Clone()

	if method == http.MethodHead {
		return &Response{Status: http.StatusOK, Header: responseHeader}, nil
	}

	file, err := opener.Open(ctx, alt.source)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", alt.source, err)
	}

	if rangeHeader := header.Get("Range"); rangeHeader != "" {
		start, end, err := byteRange(rangeHeader, alt.size)
		if err == nil {
			if start > end {
				file.Close()
				return &Response{
					Status: http.StatusRequestedRangeNotSatisfiable,
					Header: http.Header{"Content-Range": {fmt.Sprintf("bytes */%d", alt.size)}},
				}, nil
			}
			responseHeader.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, alt.size))
			responseHeader.Set("Content-Length", strconv.FormatInt(end-start+1, 10))
			return &Response{
				Status: http.StatusPartialContent,
				Header: responseHeader,
				Body: &sectionBody{
					Reader: io.NewSectionReader(file, start, end-start+1),
					file:   file,
				},
			}, nil
		}
		// A malformed range is ignored and the whole file served.
	}

	return &Response{Status: http.StatusOK, Header: responseHeader, Body: file}, nil
}

// isNotModified applies If-None-Match, falling back to
// If-Modified-Since only when no entity tag was sent.
func (f *File) isNotModified(header http.Header) bool {
	if values, ok := header["If-None-Match"]; ok {
		return f.etag != "" && len(values) > 0 && values[0] == f.etag
	}
	if f.lastModified.IsZero() {
		return false
	}
	since := header.Get("If-Modified-Since")
	if since == "" {
		return false
	}
	requested, err := http.ParseTime(since)
	if err != nil {
		return false
	}
	return !f.lastModified.After(requested)
}

// negotiate picks the first representation the client accepts. The
// identity representation is always acceptable.
func (f *File) negotiate(acceptEncoding string) alternative {
	if acceptEncoding == "*" {
		acceptEncoding = ""
	}
	for _, alt := range f.alternatives {
		if alt.match == nil || alt.match.MatchString(acceptEncoding) {
			return alt
		}
	}
	// Unreachable: the identity representation has no match.
	return f.alternatives[len(f.alternatives)-1]
}

// byteRange parses a single "bytes=" range against size, returning
// inclusive bounds clamped to the file. A suffix range asks for the
// last N bytes. The caller treats start > end as unsatisfiable.
func byteRange(rangeHeader string, size int64) (start, end int64, err error) {
	units, spec, found := strings.Cut(strings.TrimSpace(rangeHeader), "=")
	if !found || units != "bytes" {
		return 0, 0, errMalformedRange
	}
	startText, endText, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found {
		return 0, 0, errMalformedRange
	}

	endSet := false
	if startText == "" {
		suffix, err := parseOffset(endText)
		if err != nil {
			return 0, 0, err
		}
		start = max(size-suffix, 0)
	} else {
		if start, err = parseOffset(startText); err != nil {
			return 0, 0, err
		}
		if endText != "" {
			if end, err = parseOffset(endText); err != nil {
				return 0, 0, err
			}
			endSet = true
		}
	}

	if endSet {
		end = min(end, size-1)
	} else {
		end = size - 1
	}
	return start, end, nil
}

// parseOffset accepts only plain decimal digits, so multiple ranges
// ("0-1,5-6"), trailing commas and signs are all malformed.
func parseOffset(text string) (int64, error) {
	if text == "" {
		return 0, errMalformedRange
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, errMalformedRange
		}
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, errMalformedRange
	}
	return value, nil
}

// sectionBody reads a slice of a file and closes the file.
type sectionBody struct {
	io.Reader
	file *os.File
}

func (b *sectionBody) Close() error {
	return b.file.Close()
}
