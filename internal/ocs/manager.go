package ocs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zimlet-labs/nextcloud-gateway/internal/appctx"
	"github.com/zimlet-labs/nextcloud-gateway/internal/dav"
	"github.com/zimlet-labs/nextcloud-gateway/internal/httpclient"
	"github.com/zimlet-labs/nextcloud-gateway/internal/metrics"
)

// createShareFailed is the canonical failure text when no share could
// be created at all. Clients display it verbatim.
const createShareFailed = "Could not create share."

// ShareRequest describes one create-share invocation.
type ShareRequest struct {
	// Endpoint is the sharing API URL.
	Endpoint string

	// Path is the raw storage path to share.
	Path string

	// ShareType is the share type enum encoded as a string ("3" = public link).
	ShareType string

	// Password protects the share; empty removes the password.
	Password string

	// ExpiryDate expires the share ("YYYY-MM-DD"); empty removes the expiry.
	ExpiryDate string
}

// ShareResult is the fixed legacy result envelope. StatusCode 100 means
// success, 400 failure. Message and Token are reserved and always empty.
type ShareResult struct {
	StatusCode int    `json:"statuscode"`
	ID         string `json:"id"`
	Message    string `json:"message"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	Token      string `json:"token"`
}

// Manager drives the two-phase share protocol: one create POST, then two
// update PUTs that set or clear the expiry date and password. A share id
// obtained from a successful create is preserved even when updates fail.
type Manager struct {
	httpc *httpclient.Client
}

// NewManager creates a share manager on the shared outbound transport.
func NewManager(httpc *httpclient.Client) *Manager {
	return &Manager{httpc: httpc}
}

// CreateShare runs the full protocol. It never fails the request: any
// internal error is converted into a well-formed failure envelope.
func (m *Manager) CreateShare(ctx context.Context, token string, req ShareRequest) ShareResult {
	logger := appctx.GetLogger(ctx)

	id, shareURL, errBuf := m.createPhase(ctx, token, req)

	// Phase 2 always runs once an id is known. Empty values clear the
	// corresponding property server-side.
	if id != "" && id != "0" {
		updates := []string{
			"expireDate=" + req.ExpiryDate,
			"password=" + req.Password,
		}
		for _, update := range updates {
			if msg := m.updatePhase(ctx, token, req.Endpoint, id, update); msg != "" {
				errBuf += msg + ". "
			}
		}
	}

	if id == "" {
		id = "0"
	}

	if errBuf == "" {
		return ShareResult{StatusCode: 100, ID: id, URL: shareURL, Status: "ok"}
	}

	logger.Warn("share protocol reported errors", "id", id, "errors", errBuf)

	// The created share's URL is unreliable once anything failed; report
	// the accumulated error text instead.
	return ShareResult{StatusCode: 400, ID: id, URL: strings.TrimSuffix(errBuf, " "), Status: "ok"}
}

// createPhase POSTs the share and extracts id and url from the response.
// On failure it returns the failure text in errBuf and whatever id could
// still be extracted.
func (m *Manager) createPhase(ctx context.Context, token string, req ShareRequest) (id, shareURL, errBuf string) {
	form := "path=" + dav.EncodePath(req.Path) +
		"&shareType=" + url.QueryEscape(req.ShareType) +
		"&password=" + url.QueryEscape(req.Password)

	resp, err := m.doForm(ctx, http.MethodPost, req.Endpoint, token, form)
	if err != nil {
		appctx.GetLogger(ctx).Warn("create share request failed", "error", err)
		return "", "", createShareFailed + " "
	}
	defer resp.Body.Close()

	body, err := m.httpc.ReadBody(resp)
	if err != nil {
		return "", "", createShareFailed + " "
	}

	env := parseEnvelope(body)

	if resp.StatusCode >= 400 {
		failure := env.Message
		if failure == "" {
			failure = createShareFailed
		}
		return env.ID, "", failure + " "
	}

	if env.URL == "" || env.ID == "" {
		return env.ID, "", createShareFailed + " "
	}
	return env.ID, env.URL, ""
}

// updatePhase PUTs one property assignment to {endpoint}/{id} and returns
// a non-empty error message when the update did not succeed.
func (m *Manager) updatePhase(ctx context.Context, token, endpoint, id, assignment string) string {
	resp, err := m.doForm(ctx, http.MethodPut, endpoint+"/"+id, token, assignment)
	if err != nil {
		return err.Error()
	}
	defer resp.Body.Close()

	body, err := m.httpc.ReadBody(resp)
	if err != nil {
		return err.Error()
	}

	env := parseEnvelope(body)

	if resp.StatusCode >= 400 {
		if env.Message != "" {
			return env.Message
		}
		return fmt.Sprintf("share update failed with status %d", resp.StatusCode)
	}

	// A missing message on a successful update is tolerated; some server
	// versions omit it entirely.
	if env.Message != "" && env.Message != "OK" {
		return env.Message
	}
	return ""
}

func (m *Manager) doForm(ctx context.Context, method, urlStr, token, body string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.httpc.Do(req)
	metrics.ObserveOutbound("ocs", err)
	return resp, err
}
