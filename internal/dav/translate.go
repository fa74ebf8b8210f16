package dav

import (
	"encoding/xml"
	"strings"
)

// davMountMarker is the storage engine's WebDAV mount prefix. Hrefs
// returned to callers are made root-relative by stripping everything up
// to and including this marker.
const davMountMarker = "remote.php/webdav"

// ResourceRecord is the normalized listing entry returned to callers.
// Absent optional fields are omitted rather than emitted as nulls.
type ResourceRecord struct {
	Href             string            `json:"href"`
	CreationTime     string            `json:"creationTime,omitempty"`
	ModifiedTime     string            `json:"modifiedTime,omitempty"`
	ContentType      string            `json:"contentType,omitempty"`
	ContentLength    string            `json:"contentLength,omitempty"`
	ETag             string            `json:"etag,omitempty"`
	DisplayName      string            `json:"displayName,omitempty"`
	ContentLanguage  string            `json:"contentLanguage,omitempty"`
	ResourceTypes    []string          `json:"resourceTypes"`
	SupportedReports []string          `json:"supportedReports"`
	CustomProperties map[string]string `json:"customProperties"`
}

// Translate converts raw multistatus entries into normalized records.
// The transform is deterministic, has no side effects, and preserves
// entry order. Duplicate custom property keys resolve last write wins.
func Translate(resources []RawResource) []ResourceRecord {
	records := make([]ResourceRecord, 0, len(resources))
	for _, res := range resources {
		rec := ResourceRecord{
			Href:             StripMountPrefix(res.Path),
			CreationTime:     res.CreationDate,
			ModifiedTime:     res.LastModified,
			ContentType:      res.ContentType,
			ContentLength:    res.ContentLength,
			ETag:             res.ETag,
			DisplayName:      res.DisplayName,
			ContentLanguage:  res.ContentLanguage,
			ResourceTypes:    qualifiedNames(res.ResourceTypes),
			SupportedReports: qualifiedNames(res.SupportedReports),
			CustomProperties: map[string]string{},
		}
		for _, cp := range res.Custom {
			rec.CustomProperties[qualifiedName(cp.Name)] = cp.Value
		}
		records = append(records, rec)
	}
	return records
}

// StripMountPrefix makes a raw resource path root-relative by removing
// everything up to and including the WebDAV mount marker. Paths without
// the marker pass through unchanged.
func StripMountPrefix(path string) string {
	if idx := strings.LastIndex(path, davMountMarker); idx >= 0 {
		return path[idx+len(davMountMarker):]
	}
	return path
}

// qualifiedName renders an XML name as "{namespace}localName".
func qualifiedName(name xml.Name) string {
	return "{" + name.Space + "}" + name.Local
}

func qualifiedNames(names []xml.Name) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, qualifiedName(n))
	}
	return out
}
