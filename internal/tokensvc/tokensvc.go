// Package tokensvc obtains short-lived storage access tokens from the
// host token service.
package tokensvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zimlet-labs/nextcloud-gateway/internal/httpclient"
)

// ErrTokenRefresh indicates the token service could not issue a token.
// Downstream calls will fail without one, so callers reject the request.
var ErrTokenRefresh = errors.New("access token refresh failed")

// TokenSource exchanges an authenticated webmail session for an access
// token scoped to (account, integration). Tokens are short-lived and
// fetched fresh per inbound request; any caching belongs to the token
// service itself.
type TokenSource interface {
	RefreshAccessToken(ctx context.Context, accountID, sessionToken string) (string, error)
}

// Client talks to the host token service over a form-encoded POST.
type Client struct {
	httpc       *httpclient.Client
	endpoint    string
	integration string
}

// NewClient creates a token service client. integration names the remote
// service the issued tokens are scoped to.
func NewClient(httpc *httpclient.Client, endpoint, integration string) *Client {
	return &Client{httpc: httpc, endpoint: endpoint, integration: integration}
}

// tokenResponse is the token service's issue response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// tokenError is the token service's error response.
type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) RefreshAccessToken(ctx context.Context, accountID, sessionToken string) (string, error) {
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("integration", c.integration)
	form.Set("session_token", sessionToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	defer resp.Body.Close()

	body, err := c.httpc.ReadBody(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}

	if resp.StatusCode >= 400 {
		var svcErr tokenError
		if json.Unmarshal(body, &svcErr) == nil && svcErr.Error != "" {
			return "", fmt.Errorf("%w: %s: %s", ErrTokenRefresh, svcErr.Error, svcErr.ErrorDescription)
		}
		return "", fmt.Errorf("%w: status %d", ErrTokenRefresh, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrTokenRefresh, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrTokenRefresh)
	}

	return tr.AccessToken, nil
}

// Static is a TokenSource returning a fixed token. Useful for dev mode
// and tests.
type Static string

func (s Static) RefreshAccessToken(ctx context.Context, accountID, sessionToken string) (string, error) {
	if s == "" {
		return "", ErrTokenRefresh
	}
	return string(s), nil
}
