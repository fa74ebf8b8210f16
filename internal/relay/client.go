// Package relay forwards JSON payloads to remote API endpoints on behalf
// of the authenticated session.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zimlet-labs/nextcloud-gateway/internal/httpclient"
	"github.com/zimlet-labs/nextcloud-gateway/internal/metrics"
)

// ErrRelayFailed indicates the remote endpoint could not be reached.
var ErrRelayFailed = errors.New("relay request failed")

// Client POSTs an opaque JSON body to a remote API URL with bearer
// authentication and returns the raw response.
type Client struct {
	httpc *httpclient.Client
}

// NewClient creates a relay client on the shared outbound transport.
func NewClient(httpc *httpclient.Client) *Client {
	return &Client{httpc: httpc}
}

// Response is the passthrough result of a relayed call.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// PostJSON forwards body to apiURL. The response body is returned
// verbatim regardless of the remote status code; only transport-level
// failures produce an error.
func (c *Client) PostJSON(ctx context.Context, token, apiURL string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	metrics.ObserveOutbound("relay", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := c.httpc.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayFailed, err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
