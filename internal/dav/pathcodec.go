// Package dav implements a WebDAV client for remote storage access.
package dav

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrEncoding indicates malformed character-set input to the path codec.
var ErrEncoding = errors.New("malformed path encoding")

// EncodePath percent-encodes a storage path for use in WebDAV and sharing
// API URLs. Every reserved or space character is form-encoded, then the
// resulting "+" (space) is rewritten to "%20" and the encoded path
// separator "%2F" is rewritten back to a literal "/". Segment boundaries
// survive encoding while spaces and special characters within each segment
// stay safely escaped.
func EncodePath(raw string) string {
	enc := url.QueryEscape(raw)
	enc = strings.ReplaceAll(enc, "+", "%20")
	enc = strings.ReplaceAll(enc, "%2F", "/")
	return enc
}

// DecodePath is the inverse of EncodePath. It is used for diagnostics,
// not on the hot path.
func DecodePath(raw string) (string, error) {
	dec, err := url.QueryUnescape(strings.ReplaceAll(raw, "+", "%2B"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return dec, nil
}
