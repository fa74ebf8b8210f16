package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/zimlet-labs/nextcloud-gateway/internal/mailexport"
)

// Payload is the action-multiplexed JSON body carried in the jsondata
// multipart field. Field names follow the wire contract the webmail
// frontend already speaks.
type Payload struct {
	Action     string `json:"nextcloudAction"`
	Path       string `json:"nextcloudPath"`
	DAVPath    string `json:"nextcloudDAVPath"`
	Filename   string `json:"nextcloudFilename"`
	OCSPath    string `json:"OCSPath"`
	ShareType  string `json:"shareType"`
	Password   string `json:"password"`
	ExpiryDate string `json:"expiryDate"`

	// MailID identifies the mail item for put, or "skip" for
	// attachment-only export.
	MailID string `json:"id"`

	Attachments []mailexport.Attachment `json:"attachments"`

	// APIURL and Body drive the createTalkConv relay action.
	APIURL string          `json:"apiURL"`
	Body   json.RawMessage `json:"body"`
}

// Per-action parameter views, validated before dispatch.

type davParams struct {
	Path    string `validate:"required"`
	DAVPath string `validate:"required,url"`
}

type putParams struct {
	Path     string `validate:"required"`
	DAVPath  string `validate:"required,url"`
	Filename string `validate:"required"`
	MailID   string `validate:"required"`
}

type shareParams struct {
	OCSPath   string `validate:"required,url"`
	Path      string `validate:"required"`
	ShareType string `validate:"required"`
}

type relayParams struct {
	APIURL string `validate:"required,url"`
	Body   []byte `validate:"required"`
}

// validateAction checks the payload fields the given action requires.
// Returns the offending field name on failure.
func validateAction(v *validator.Validate, p *Payload) (string, error) {
	var target any
	switch p.Action {
	case actionPropfind, actionGet:
		target = davParams{Path: p.Path, DAVPath: p.DAVPath}
	case actionPut:
		target = putParams{Path: p.Path, DAVPath: p.DAVPath, Filename: p.Filename, MailID: p.MailID}
	case actionCreateShare:
		target = shareParams{OCSPath: p.OCSPath, Path: p.Path, ShareType: p.ShareType}
	case actionCreateTalkConv:
		target = relayParams{APIURL: p.APIURL, Body: p.Body}
	default:
		return "", nil
	}

	err := v.Struct(target)
	if err == nil {
		return "", nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field(), fmt.Errorf("field %s failed %s validation", verrs[0].Field(), verrs[0].Tag())
	}
	return "", err
}
