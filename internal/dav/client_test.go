package dav_test

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zimlet-labs/nextcloud-gateway/internal/config"
	"github.com/zimlet-labs/nextcloud-gateway/internal/dav"
	"github.com/zimlet-labs/nextcloud-gateway/internal/httpclient"
	"github.com/zimlet-labs/nextcloud-gateway/internal/metrics"
)

func newTestClient() *dav.Client {
	return dav.NewClient(httpclient.New(&config.OutboundHTTPConfig{
		SSRFMode:         "off",
		TimeoutMS:        2000,
		ConnectTimeoutMS: 500,
		MaxRedirects:     1,
		MaxResponseBytes: 1 << 20,
	}))
}

const multistatusFixture = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:response>
    <d:href>/remote.php/webdav/Documents/</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:getlastmodified>Mon, 11 Aug 2025 10:00:00 GMT</d:getlastmodified>
        <d:resourcetype><d:collection/></d:resourcetype>
        <d:supported-report-set>
          <d:supported-report><d:report><oc:filter-files/></d:report></d:supported-report>
        </d:supported-report-set>
        <oc:fileid>41</oc:fileid>
      </d:prop>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/webdav/Documents/Readme.md</d:href>
    <d:propstat>
      <d:status>HTTP/1.1 200 OK</d:status>
      <d:prop>
        <d:getcontentlength>42</d:getcontentlength>
        <d:getcontenttype>text/markdown</d:getcontenttype>
        <d:getetag>&quot;abc123&quot;</d:getetag>
        <d:resourcetype/>
        <oc:fileid>42</oc:fileid>
      </d:prop>
    </d:propstat>
    <d:propstat>
      <d:status>HTTP/1.1 404 Not Found</d:status>
      <d:prop>
        <d:displayname/>
      </d:prop>
    </d:propstat>
  </d:response>
</d:multistatus>`

func TestClient_Propfind(t *testing.T) {
	var gotMethod, gotDepth, gotAuth, gotPath, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotDepth = r.Header.Get("Depth")
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.EscapedPath()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusMultiStatus)
		w.Write([]byte(multistatusFixture))
	}))
	defer srv.Close()

	client := newTestClient()

	resources, err := client.Propfind(context.Background(), "tok-1", srv.URL+"/remote.php/webdav", "/My Documents", 1, []xml.Name{dav.FileIDProp})
	if err != nil {
		t.Fatalf("Propfind() error = %v", err)
	}

	if gotMethod != "PROPFIND" {
		t.Errorf("expected PROPFIND, got %s", gotMethod)
	}
	if gotDepth != "1" {
		t.Errorf("expected Depth 1, got %q", gotDepth)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("unexpected Authorization %q", gotAuth)
	}
	if gotPath != "/remote.php/webdav/My%20Documents" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if !strings.Contains(gotBody, "fileid") {
		t.Errorf("request body does not ask for the fileid property: %s", gotBody)
	}

	if len(resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(resources))
	}

	dir := resources[0]
	if dir.Path != "/remote.php/webdav/Documents/" {
		t.Errorf("unexpected path %q", dir.Path)
	}
	if dir.LastModified != "Mon, 11 Aug 2025 10:00:00 GMT" {
		t.Errorf("unexpected last modified %q", dir.LastModified)
	}
	if len(dir.ResourceTypes) != 1 || dir.ResourceTypes[0].Local != "collection" {
		t.Errorf("unexpected resource types %v", dir.ResourceTypes)
	}
	if len(dir.SupportedReports) != 1 || dir.SupportedReports[0].Local != "filter-files" {
		t.Errorf("unexpected supported reports %v", dir.SupportedReports)
	}
	if len(dir.Custom) != 1 || dir.Custom[0].Value != "41" {
		t.Errorf("unexpected custom props %v", dir.Custom)
	}

	file := resources[1]
	if file.ContentLength != "42" {
		t.Errorf("unexpected content length %q", file.ContentLength)
	}
	if file.ContentType != "text/markdown" {
		t.Errorf("unexpected content type %q", file.ContentType)
	}
	// the 404 propstat must not contribute properties
	if file.DisplayName != "" {
		t.Errorf("404 propstat leaked display name %q", file.DisplayName)
	}
}

func TestClient_Propfind_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient()

	_, err := client.Propfind(context.Background(), "tok", srv.URL, "/x", 1, nil)
	if !errors.Is(err, dav.ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestClient_Propfind_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient()

	_, err := client.Propfind(context.Background(), "tok", srv.URL, "/x", 1, nil)
	if !errors.Is(err, dav.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestClient_Get_PassthroughHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		w.Header().Set("X-Other", "dropped")
		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	client := newTestClient()

	stream, err := client.Get(context.Background(), "tok", srv.URL, "/report.pdf")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer stream.Body.Close()

	if stream.ContentType != "application/pdf" {
		t.Errorf("unexpected content type %q", stream.ContentType)
	}
	if stream.ContentDisposition != `attachment; filename="report.pdf"` {
		t.Errorf("unexpected content disposition %q", stream.ContentDisposition)
	}

	body, _ := io.ReadAll(stream.Body)
	if string(body) != "%PDF-1.7" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestClient_Get_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient()

	_, err := client.Get(context.Background(), "tok", srv.URL, "/missing.txt")
	if !errors.Is(err, dav.ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestClient_Put(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := newTestClient()

	err := client.Put(context.Background(), "tok", srv.URL, "/mail export.eml", strings.NewReader("raw mail"), "message/rfc822")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("expected PUT, got %s", gotMethod)
	}
	if gotPath != "/mail%20export.eml" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotContentType != "message/rfc822" {
		t.Errorf("unexpected content type %q", gotContentType)
	}
	if string(gotBody) != "raw mail" {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestClient_CountsOutboundRequests(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.OutboundRequestsTotal.WithLabelValues("dav", "ok"))
	errBefore := testutil.ToFloat64(metrics.OutboundRequestsTotal.WithLabelValues("dav", "error"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	client := newTestClient()

	if err := client.Put(context.Background(), "tok", srv.URL, "/a.txt", strings.NewReader("x"), ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	srv.Close()
	if err := client.Put(context.Background(), "tok", srv.URL, "/b.txt", strings.NewReader("x"), ""); err == nil {
		t.Fatal("expected transport error after server close")
	}

	if got := testutil.ToFloat64(metrics.OutboundRequestsTotal.WithLabelValues("dav", "ok")) - okBefore; got != 1 {
		t.Errorf("ok counter delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.OutboundRequestsTotal.WithLabelValues("dav", "error")) - errBefore; got != 1 {
		t.Errorf("error counter delta = %v, want 1", got)
	}
}

func TestClient_Put_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	client := newTestClient()

	err := client.Put(context.Background(), "tok", srv.URL, "/big.bin", strings.NewReader("x"), "")
	if !errors.Is(err, dav.ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}
