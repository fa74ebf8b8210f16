package dav

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zimlet-labs/nextcloud-gateway/internal/httpclient"
	"github.com/zimlet-labs/nextcloud-gateway/internal/metrics"
)

var (
	// ErrTransport indicates the remote storage could not be reached.
	ErrTransport = errors.New("remote storage unreachable")

	// ErrProtocol indicates the remote storage returned an error status
	// or an unparseable response.
	ErrProtocol = errors.New("remote storage protocol error")
)

// FileIDProp is the storage-engine file identifier property requested on
// every listing. Office-integration consumers depend on it.
var FileIDProp = xml.Name{Space: "http://owncloud.org/ns", Local: "fileid"}

// CustomProp is a non-standard property returned by the remote server.
type CustomProp struct {
	Name  xml.Name
	Value string
}

// RawResource is one entry of a multistatus response, properties as
// returned by the server. Values are unparsed strings.
type RawResource struct {
	Path            string
	CreationDate    string
	LastModified    string
	ContentType     string
	ContentLength   string
	ETag            string
	DisplayName     string
	ContentLanguage string
	ResourceTypes   []xml.Name
	SupportedReports []xml.Name
	Custom          []CustomProp
}

// FileStream is a streamed resource body with the passthrough headers.
// The caller must close Body on every path.
type FileStream struct {
	Body               io.ReadCloser
	ContentType        string
	ContentDisposition string
}

// Client issues WebDAV operations against remote storage using a
// caller-supplied access token. It holds no per-request state.
type Client struct {
	httpc *httpclient.Client
}

// NewClient creates a WebDAV client on top of the shared outbound transport.
func NewClient(httpc *httpclient.Client) *Client {
	return &Client{httpc: httpc}
}

// Propfind lists properties at the given depth under rootURL + path.
// Standard DAV properties are always requested; extra properties from
// custom are requested alongside them.
func (c *Client) Propfind(ctx context.Context, token, rootURL, path string, depth int, custom []xml.Name) ([]RawResource, error) {
	body := buildPropfindBody(custom)

	req, err := http.NewRequestWithContext(ctx, "PROPFIND", rootURL+EncodePath(path), strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Depth", fmt.Sprintf("%d", depth))
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.httpc.Do(req)
	metrics.ObserveOutbound("dav", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, fmt.Errorf("%w: status %d", ErrProtocol, resp.StatusCode)
	}

	raw, err := c.httpc.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	resources, err := parseMultistatus(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return resources, nil
}

// Get streams a resource body. Exactly the Content-Type and
// Content-Disposition response headers are passed through.
func (c *Client) Get(ctx context.Context, token, rootURL, path string) (*FileStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rootURL+EncodePath(path), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	metrics.ObserveOutbound("dav", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrProtocol, resp.StatusCode)
	}

	return &FileStream{
		Body:               resp.Body,
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
	}, nil
}

// Put uploads content to rootURL + path. Intermediate collection behavior
// is whatever the remote server does.
func (c *Client) Put(ctx context.Context, token, rootURL, path string, content io.Reader, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rootURL+EncodePath(path), content)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpc.Do(req)
	metrics.ObserveOutbound("dav", err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrProtocol, resp.StatusCode)
	}
	return nil
}

// buildPropfindBody renders the request body listing standard DAV
// properties plus any extra properties.
func buildPropfindBody(custom []xml.Name) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<d:propfind xmlns:d="DAV:"><d:prop>`)
	b.WriteString(`<d:creationdate/>`)
	b.WriteString(`<d:getlastmodified/>`)
	b.WriteString(`<d:getcontenttype/>`)
	b.WriteString(`<d:getcontentlength/>`)
	b.WriteString(`<d:getetag/>`)
	b.WriteString(`<d:displayname/>`)
	b.WriteString(`<d:getcontentlanguage/>`)
	b.WriteString(`<d:resourcetype/>`)
	b.WriteString(`<d:supported-report-set/>`)
	for i, name := range custom {
		if name.Space == "DAV:" {
			fmt.Fprintf(&b, `<d:%s/>`, name.Local)
			continue
		}
		fmt.Fprintf(&b, `<x%d:%s xmlns:x%d=%q/>`, i, name.Local, i, name.Space)
	}
	b.WriteString(`</d:prop></d:propfind>`)
	return b.String()
}

// multistatus XML shapes, see RFC 4918 §14.

type msMultistatus struct {
	XMLName   xml.Name     `xml:"DAV: multistatus"`
	Responses []msResponse `xml:"response"`
}

type msResponse struct {
	Href      string       `xml:"href"`
	Propstats []msPropstat `xml:"propstat"`
}

type msPropstat struct {
	Status string `xml:"status"`
	Prop   msProp `xml:"prop"`
}

type msProp struct {
	Elements []msElement `xml:",any"`
}

type msElement struct {
	XMLName  xml.Name
	Value    string      `xml:",chardata"`
	Children []msElement `xml:",any"`
}

// standard DAV property names the client maps onto RawResource fields
const (
	davNS = "DAV:"
)

func parseMultistatus(body []byte) ([]RawResource, error) {
	var ms msMultistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, err
	}

	resources := make([]RawResource, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		res := RawResource{Path: r.Href}
		for _, ps := range r.Propstats {
			// Only successful propstat blocks carry values.
			if !strings.Contains(ps.Status, "200") {
				continue
			}
			for _, el := range ps.Prop.Elements {
				applyProp(&res, el)
			}
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func applyProp(res *RawResource, el msElement) {
	if el.XMLName.Space == davNS {
		switch el.XMLName.Local {
		case "creationdate":
			res.CreationDate = strings.TrimSpace(el.Value)
			return
		case "getlastmodified":
			res.LastModified = strings.TrimSpace(el.Value)
			return
		case "getcontenttype":
			res.ContentType = strings.TrimSpace(el.Value)
			return
		case "getcontentlength":
			res.ContentLength = strings.TrimSpace(el.Value)
			return
		case "getetag":
			res.ETag = strings.TrimSpace(el.Value)
			return
		case "displayname":
			res.DisplayName = strings.TrimSpace(el.Value)
			return
		case "getcontentlanguage":
			res.ContentLanguage = strings.TrimSpace(el.Value)
			return
		case "resourcetype":
			for _, child := range el.Children {
				res.ResourceTypes = append(res.ResourceTypes, child.XMLName)
			}
			return
		case "supported-report-set":
			// supported-report-set > supported-report > report > <name/>
			for _, sr := range el.Children {
				for _, rep := range sr.Children {
					for _, leaf := range rep.Children {
						res.SupportedReports = append(res.SupportedReports, leaf.XMLName)
					}
				}
			}
			return
		}
	}
	res.Custom = append(res.Custom, CustomProp{Name: el.XMLName, Value: strings.TrimSpace(el.Value)})
}
