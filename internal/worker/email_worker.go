package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"sarnabroker/internal/infra"

	"github.com/rs/zerolog/log"
)

type EmailAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// EmailJobPayload is queued on QueueEmail. Attachment bytes travel base64
// encoded inside the job.
type EmailJobPayload struct {
	ToEmail     string            `json:"to_email"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
}

// Mailer is satisfied by *infra.Mailer.
type Mailer interface {
	Send(to, subject, body string, attachments ...infra.Attachment) error
}

type EmailWorker struct {
	mailer   Mailer
	retryGap time.Duration
}

func NewEmailWorker(mailer Mailer) *EmailWorker {
	return &EmailWorker{mailer: mailer, retryGap: time.Second}
}

func (w *EmailWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload EmailJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("email_worker: invalid payload")
		return
	}
	if payload.ToEmail == "" {
		log.Warn().Msg("email_worker: empty to_email, skipping")
		return
	}

	atts := make([]infra.Attachment, 0, len(payload.Attachments))
	for _, a := range payload.Attachments {
		atts = append(atts, infra.Attachment{Name: a.Name, ContentType: a.ContentType, Data: a.Data})
	}

	err := withRetryBase(ctx, 3, w.retryGap, func(attempt int) error {
		err := w.mailer.Send(payload.ToEmail, payload.Subject, payload.Body, atts...)
		if errors.Is(err, infra.ErrMailerDisabled) {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Str("to", payload.ToEmail).Msg("email_worker: send attempt failed")
		}
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("to", payload.ToEmail).Msg("email_worker: giving up")
		return
	}
	log.Info().Str("to", payload.ToEmail).Str("subject", payload.Subject).Msg("email_worker: sent")
}
