// Package mailexport copies a mail item and its attachments from the
// mail backend into remote storage.
package mailexport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zimlet-labs/nextcloud-gateway/internal/httpclient"
)

var (
	// ErrFetchFailed indicates the mail body could not be fetched.
	ErrFetchFailed = errors.New("cannot fetch mail")

	// ErrAttachmentFetchFailed indicates an attachment could not be fetched.
	ErrAttachmentFetchFailed = errors.New("cannot fetch attachment")
)

// Fetcher retrieves mail content from the mail backend over authenticated
// internal requests. Authentication rides on the caller's session cookie,
// never the storage access token.
type Fetcher struct {
	httpc      *httpclient.Client
	baseURL    string
	cookieName string
}

// NewFetcher creates a mail backend fetcher.
func NewFetcher(httpc *httpclient.Client, baseURL, cookieName string) *Fetcher {
	return &Fetcher{httpc: httpc, baseURL: baseURL, cookieName: cookieName}
}

// FetchMail streams the printable form of a mail item.
func (f *Fetcher) FetchMail(ctx context.Context, sessionToken, mailID string) (io.ReadCloser, error) {
	urlStr := f.baseURL + "/h/printmessage?id=" + mailID
	body, err := f.fetch(ctx, sessionToken, urlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return body, nil
}

// FetchAttachment streams one attachment via its backend-relative URL.
// The disp=a suffix asks the backend for the attachment disposition.
func (f *Fetcher) FetchAttachment(ctx context.Context, sessionToken, relURL string) (io.ReadCloser, error) {
	urlStr := f.baseURL + relURL + "&disp=a"
	body, err := f.fetch(ctx, sessionToken, urlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentFetchFailed, err)
	}
	return body, nil
}

func (f *Fetcher) fetch(ctx context.Context, sessionToken, urlStr string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.AddCookie(&http.Cookie{Name: f.cookieName, Value: sessionToken})

	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
