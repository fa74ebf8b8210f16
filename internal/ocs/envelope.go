// Package ocs drives the remote sharing API's create/update protocol.
package ocs

import (
	"bytes"
	"encoding/xml"
)

// envelope holds the scalar leaf fields of a sharing API response.
// The remote wraps these in a metadata envelope, but older proxies and
// error paths emit bare fragments, so parsing scans for the leaf tags
// wherever they appear instead of demanding the full document shape.
// Missing fields stay empty; malformed input never fails the request.
type envelope struct {
	ID      string
	URL     string
	Message string
}

// parseEnvelope extracts the first id, url and message leaf values from
// the response body. Reports whether each field was found.
func parseEnvelope(body []byte) envelope {
	var env envelope
	seen := map[string]bool{}

	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			// io.EOF or malformed input both end the scan with
			// whatever was collected so far.
			return env
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		local := start.Name.Local
		if local != "id" && local != "url" && local != "message" {
			continue
		}
		if seen[local] {
			continue
		}
		var value string
		if err := dec.DecodeElement(&value, &start); err != nil {
			return env
		}
		seen[local] = true
		switch local {
		case "id":
			env.ID = value
		case "url":
			env.URL = value
		case "message":
			env.Message = value
		}
	}
}
