package mailexport

import (
	"context"
	"fmt"

	"github.com/zimlet-labs/nextcloud-gateway/internal/appctx"
	"github.com/zimlet-labs/nextcloud-gateway/internal/dav"
	"github.com/zimlet-labs/nextcloud-gateway/internal/metrics"
)

// MailIDSkip is the sentinel mail id meaning "do not export the mail
// body, only attachments".
const MailIDSkip = "skip"

// Attachment is one attachment reference from the mail backend.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Request describes one export invocation.
type Request struct {
	// DAVRoot is the remote storage WebDAV URL prefix.
	DAVRoot string

	// Path is the raw target directory in remote storage.
	Path string

	// FileName is the base name for the exported mail body.
	FileName string

	// MailID identifies the mail item, or MailIDSkip for attachment-only
	// export.
	MailID string

	// Attachments are exported in order after the mail body.
	Attachments []Attachment
}

// Pipeline runs the export stages strictly in order: mail body first,
// then each attachment. Processing stops at the first failing stage.
// Artifacts uploaded by earlier stages are intentionally left in place;
// there is no compensating delete, matching the behavior storage-side
// consumers have come to depend on.
type Pipeline struct {
	dav      *dav.Client
	fetcher  *Fetcher
	strategy Strategy
}

// NewPipeline assembles an export pipeline.
func NewPipeline(davClient *dav.Client, fetcher *Fetcher, strategy Strategy) *Pipeline {
	return &Pipeline{dav: davClient, fetcher: fetcher, strategy: strategy}
}

// Run executes the pipeline. accessToken authenticates storage uploads;
// sessionToken authenticates mail backend fetches.
func (p *Pipeline) Run(ctx context.Context, accessToken, sessionToken string, req Request) error {
	logger := appctx.GetLogger(ctx)

	bodyExported := false
	if req.MailID != MailIDSkip {
		if err := p.exportBody(ctx, accessToken, sessionToken, req); err != nil {
			return err
		}
		bodyExported = true
		logger.Debug("mail body exported", "mail_id", req.MailID, "path", req.Path)
	}

	for i, att := range req.Attachments {
		if err := p.exportAttachment(ctx, accessToken, sessionToken, req, att, bodyExported); err != nil {
			return fmt.Errorf("attachment %d (%s): %w", i, att.Filename, err)
		}
		logger.Debug("attachment exported", "filename", att.Filename)
	}

	return nil
}

func (p *Pipeline) exportBody(ctx context.Context, accessToken, sessionToken string, req Request) error {
	mail, err := p.fetcher.FetchMail(ctx, sessionToken, req.MailID)
	if err != nil {
		return err
	}
	defer mail.Close()

	artifact, err := p.strategy.Produce(ctx, mail)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer artifact.Body.Close()

	target := req.Path + req.FileName + artifact.Extension
	if err := p.dav.Put(ctx, accessToken, req.DAVRoot, target, artifact.Body, artifact.ContentType); err != nil {
		return err
	}
	metrics.MailExportUploads.WithLabelValues("mail").Inc()
	return nil
}

func (p *Pipeline) exportAttachment(ctx context.Context, accessToken, sessionToken string, req Request, att Attachment, bodyExported bool) error {
	content, err := p.fetcher.FetchAttachment(ctx, sessionToken, att.URL)
	if err != nil {
		return err
	}
	defer content.Close()

	var target string
	if bodyExported {
		target = req.Path + req.FileName + "-" + att.Filename
	} else {
		target = req.Path + att.Filename
	}
	if err := p.dav.Put(ctx, accessToken, req.DAVRoot, target, content, ""); err != nil {
		return err
	}
	metrics.MailExportUploads.WithLabelValues("attachment").Inc()
	return nil
}
