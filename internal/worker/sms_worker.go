package worker

import (
	"context"
	"encoding/json"
	"time"

	"sarnabroker/internal/infra"
	"sarnabroker/internal/model"
	"sarnabroker/internal/repository"

	"github.com/rs/zerolog/log"
)

// MaxSMSRetries is the number of cron re-attempts before a message is
// dead-lettered.
const MaxSMSRetries = 5

// immediateAttempts is how many times the worker tries before handing the
// message to the retry cron.
const immediateAttempts = 3

// SMSWorker records every outgoing text in the outbox and delivers it through
// the gateway behind the circuit breaker.
type SMSWorker struct {
	gateway  infra.SMSGateway
	cb       *infra.CircuitBreaker
	repo     repository.SMSMessageRepository
	retryGap time.Duration
}

func NewSMSWorker(gateway infra.SMSGateway, cb *infra.CircuitBreaker, repo repository.SMSMessageRepository) *SMSWorker {
	return &SMSWorker{gateway: gateway, cb: cb, repo: repo, retryGap: time.Second}
}

func (w *SMSWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload SMSJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("sms_worker: invalid payload")
		return
	}
	if payload.To == "" || payload.Body == "" {
		log.Warn().Msg("sms_worker: empty recipient or body, skipping")
		return
	}

	// Outbox writes must land even when shutdown cancels ctx mid-job, or the
	// row is never picked up by the retry cron.
	bookkeeping := context.WithoutCancel(ctx)

	msg := &model.SMSMessage{Recipient: payload.To, Body: payload.Body, Status: model.SMSPending}
	if err := w.repo.Create(bookkeeping, msg); err != nil {
		log.Error().Err(err).Str("to", payload.To).Msg("sms_worker: outbox insert failed")
		return
	}

	err := withRetryBase(ctx, immediateAttempts, w.retryGap, func(attempt int) error {
		err := w.deliver(ctx, msg)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Str("sms_id", msg.ID.String()).
				Msg("sms_worker: send attempt failed")
		}
		return err
	})
	if err != nil {
		w.scheduleRetry(msg, err)
		log.Error().Err(err).Str("sms_id", msg.ID.String()).Time("next_retry_at", *msg.NextRetryAt).
			Msg("sms_worker: send failed, handed to retry cron")
	}
	if uerr := w.repo.Update(bookkeeping, msg); uerr != nil {
		log.Error().Err(uerr).Str("sms_id", msg.ID.String()).Msg("sms_worker: outbox update failed")
	}
}

// deliver makes one gateway call through the breaker and marks msg sent on
// success.
func (w *SMSWorker) deliver(ctx context.Context, msg *model.SMSMessage) error {
	var ref string
	err := w.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		ref, err = w.gateway.SendSMS(ctx, msg.Recipient, msg.Body)
		return err
	})
	if err != nil {
		return err
	}
	msg.Status = model.SMSSent
	msg.NextRetryAt = nil
	msg.LastError = nil
	if ref != "" {
		msg.ProviderRef = &ref
	}
	return nil
}

func (w *SMSWorker) scheduleRetry(msg *model.SMSMessage, cause error) {
	errMsg := cause.Error()
	msg.LastError = &errMsg
	next := time.Now().Add(computeRetryBackoff(msg.RetryCount + 1))
	msg.NextRetryAt = &next
}

// computeRetryBackoff spaces cron re-attempts: 1m, 2m, 4m, 8m, capped at 30m.
func computeRetryBackoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := time.Minute << uint(retry-1)
	if d > 30*time.Minute || d <= 0 {
		d = 30 * time.Minute
	}
	return d
}
