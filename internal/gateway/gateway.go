// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 Nextcloud Gateway Authors

// Package gateway dispatches webmail actions to remote storage.
package gateway

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/zimlet-labs/nextcloud-gateway/internal/api"
	"github.com/zimlet-labs/nextcloud-gateway/internal/appctx"
	"github.com/zimlet-labs/nextcloud-gateway/internal/dav"
	"github.com/zimlet-labs/nextcloud-gateway/internal/history"
	"github.com/zimlet-labs/nextcloud-gateway/internal/httpclient"
	"github.com/zimlet-labs/nextcloud-gateway/internal/mailexport"
	"github.com/zimlet-labs/nextcloud-gateway/internal/metrics"
	"github.com/zimlet-labs/nextcloud-gateway/internal/ocs"
	"github.com/zimlet-labs/nextcloud-gateway/internal/relay"
	"github.com/zimlet-labs/nextcloud-gateway/internal/tokensvc"
)

// Action names carried in the nextcloudAction discriminator.
const (
	actionPropfind       = "propfind"
	actionGet            = "get"
	actionPut            = "put"
	actionCreateShare    = "createShare"
	actionCreateTalkConv = "createTalkConv"
)

// installedMarker is the no-op acknowledgement body. Frontends probe
// it to detect whether the gateway is deployed.
const installedMarker = "nextcloud-gateway is installed."

// maxPayloadMemory bounds in-memory multipart parsing.
const maxPayloadMemory = 1 << 20

// tokenRelayPage is the CORS workaround for storage hosts that do not
// answer preflight requests: a self-submitting form posts the access
// token directly to the storage host from the browser.
var tokenRelayPage = template.Must(template.New("relay").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <!--ZM-NC-TOKEN-OK-->
</head>
<body><form id="ncForm" action="{{.URL}}" method="post"><input type="hidden" name="token" value="{{.Token}}"></form>
  <script>
  document.getElementById("ncForm").submit();
</script>
</body>
</html>
`))

// Handler multiplexes gateway actions. Authentication happens in the
// server middleware; Handler only reads the session from the context.
type Handler struct {
	dav      *dav.Client
	pipeline *mailexport.Pipeline
	shares   *ocs.Manager
	relay    *relay.Client
	tokens   tokensvc.TokenSource
	store    history.Store
	validate *validator.Validate
}

// New creates a gateway handler. store may be nil to disable action
// history.
func New(davClient *dav.Client, pipeline *mailexport.Pipeline, shares *ocs.Manager, relayClient *relay.Client, tokens tokensvc.TokenSource, store history.Store) *Handler {
	return &Handler{
		dav:      davClient,
		pipeline: pipeline,
		shares:   shares,
		relay:    relayClient,
		tokens:   tokens,
		store:    store,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		api.WriteError(w, http.StatusMethodNotAllowed, api.ReasonBadRequest, "method not allowed")
	}
}

// handleGet serves the token relay flow when a url parameter is
// present, the installed marker otherwise.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	session, ok := appctx.SessionFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, installedMarker)
		return
	}

	// A refresh failure still renders the page; the storage host will
	// reject the empty token and the user sees its error.
	accessToken, err := h.tokens.RefreshAccessToken(r.Context(), session.AccountID, session.Token)
	if err != nil {
		appctx.GetLogger(r.Context()).Warn("access token refresh failed", "error", err)
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
	} else {
		metrics.TokenRefreshesTotal.WithLabelValues("ok").Inc()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tokenRelayPage.Execute(w, struct {
		URL   string
		Token string
	}{URL: target, Token: accessToken})
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	session, ok := appctx.SessionFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxPayloadMemory); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "malformed multipart form")
		return
	}
	raw := r.FormValue("jsondata")
	if raw == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "jsondata field is required")
		return
	}

	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "jsondata is not valid JSON")
		return
	}

	if field, err := validateAction(h.validate, &payload); err != nil {
		appctx.GetLogger(r.Context()).Info("payload validation failed",
			"action", payload.Action, "field", field, "error", err)
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	}

	accessToken, err := h.tokens.RefreshAccessToken(r.Context(), session.AccountID, session.Token)
	if err != nil {
		appctx.GetLogger(r.Context()).Warn("access token refresh failed", "error", err)
		metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		api.WriteBadGateway(w, api.ReasonTokenRefreshFail, "could not obtain storage access token")
		return
	}
	metrics.TokenRefreshesTotal.WithLabelValues("ok").Inc()

	start := time.Now()
	outcome, detail := h.dispatch(w, r, session, accessToken, &payload, raw)
	metrics.ObserveAction(actionLabel(payload.Action), outcome, time.Since(start))
	h.record(r, session.AccountID, &payload, outcome, detail)
}

// dispatch routes one action and writes the response. It returns the
// outcome and failure detail for history and metrics.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, session *appctx.Session, accessToken string, payload *Payload, raw string) (outcome, detail string) {
	ctx := r.Context()

	switch payload.Action {
	case actionPropfind:
		resources, err := h.dav.Propfind(ctx, accessToken, payload.DAVPath, payload.Path, 1, []xml.Name{dav.FileIDProp})
		if err != nil {
			h.writeDavError(w, r, err)
			return "error", err.Error()
		}
		records := dav.Translate(resources)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
		return "ok", ""

	case actionGet:
		stream, err := h.dav.Get(ctx, accessToken, payload.DAVPath, payload.Path)
		if err != nil {
			h.writeDavError(w, r, err)
			return "error", err.Error()
		}
		defer stream.Body.Close()
		if stream.ContentType != "" {
			w.Header().Set("Content-Type", stream.ContentType)
		}
		if stream.ContentDisposition != "" {
			w.Header().Set("Content-Disposition", stream.ContentDisposition)
		}
		if _, err := io.Copy(w, stream.Body); err != nil {
			// Headers are gone; all we can do is log the broken copy.
			appctx.GetLogger(ctx).Warn("file stream aborted", "error", err)
			return "error", err.Error()
		}
		return "ok", ""

	case actionPut:
		req := mailexport.Request{
			DAVRoot:     payload.DAVPath,
			Path:        payload.Path,
			FileName:    payload.Filename,
			MailID:      payload.MailID,
			Attachments: payload.Attachments,
		}
		err := h.pipeline.Run(ctx, accessToken, session.Token, req)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			appctx.GetLogger(ctx).Warn("mail export failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, raw)
			return "error", err.Error()
		}
		io.WriteString(w, raw)
		return "ok", ""

	case actionCreateShare:
		result := h.shares.CreateShare(ctx, accessToken, ocs.ShareRequest{
			Endpoint:   payload.OCSPath,
			Path:       payload.Path,
			ShareType:  payload.ShareType,
			Password:   payload.Password,
			ExpiryDate: payload.ExpiryDate,
		})
		w.Header().Set("Content-Type", "application/json")
		if result.StatusCode != 100 {
			w.WriteHeader(http.StatusBadRequest)
		}
		json.NewEncoder(w).Encode(result)
		if result.StatusCode != 100 {
			return "error", result.URL
		}
		return "ok", ""

	case actionCreateTalkConv:
		resp, err := h.relay.PostJSON(ctx, accessToken, payload.APIURL, payload.Body)
		if err != nil {
			appctx.GetLogger(ctx).Warn("relay failed", "api_url", payload.APIURL, "error", err)
			api.WriteBadGateway(w, api.ReasonNetworkError, "relay request failed")
			return "error", err.Error()
		}
		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		w.WriteHeader(resp.StatusCode)
		w.Write(resp.Body)
		if resp.StatusCode >= 400 {
			return "error", http.StatusText(resp.StatusCode)
		}
		return "ok", ""

	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, installedMarker)
		return "ok", ""
	}
}

// writeDavError maps storage client failures onto the error envelope.
func (h *Handler) writeDavError(w http.ResponseWriter, r *http.Request, err error) {
	logger := appctx.GetLogger(r.Context())
	switch {
	case httpclient.IsSSRFError(err):
		logger.Warn("storage request blocked", "error", err)
		api.WriteBadRequest(w, api.ReasonSSRFBlocked, "storage URL is not allowed")
	case errors.Is(err, dav.ErrProtocol):
		logger.Warn("storage protocol error", "error", err)
		api.WriteBadGateway(w, api.ReasonRemoteStatus, "remote storage returned an error")
	default:
		logger.Warn("storage unreachable", "error", err)
		api.WriteBadGateway(w, api.ReasonNetworkError, "remote storage unreachable")
	}
}

// record appends a best-effort history entry; store failures never
// affect the response.
func (h *Handler) record(r *http.Request, accountID string, payload *Payload, outcome, detail string) {
	if h.store == nil {
		return
	}

	target := payload.Path
	if payload.Action == actionCreateTalkConv {
		target = payload.APIURL
	}

	entry := &history.Entry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Action:    actionLabel(payload.Action),
		Target:    target,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().Unix(),
	}
	if err := h.store.Append(r.Context(), entry); err != nil {
		appctx.GetLogger(r.Context()).Warn("history append failed", "error", err)
	}
}

// actionLabel folds unknown actions into one label to keep metric and
// history cardinality bounded.
func actionLabel(action string) string {
	switch action {
	case actionPropfind, actionGet, actionPut, actionCreateShare, actionCreateTalkConv:
		return action
	default:
		return "unknown"
	}
}
