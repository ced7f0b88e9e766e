package worker

// retry_cron re-attempts outbox texts whose immediate delivery failed. Only
// one replica runs a tick at a time; the others skip it.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sarnabroker/internal/infra"
	"sarnabroker/internal/model"
	"sarnabroker/internal/repository"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	retryBatchSize = 20
	retryLockKey   = "lock:sms-retry-cron"
)

var ErrLockHeld = errors.New("retry_cron: lock held elsewhere")

// Locker hands out a lease for one cron tick.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type redisLocker struct{ client *redislock.Client }

// NewRedisLocker backs Locker with bsm/redislock.
func NewRedisLocker(rdb *redis.Client) Locker {
	return &redisLocker{client: redislock.New(rdb)}
}

func (l *redisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// Use a fresh context: the tick's may already be cancelled.
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Err(err).Msg("retry_cron: lock release failed")
		}
	}, nil
}

type RetryCronConfig struct {
	Repo       repository.SMSMessageRepository
	Gateway    infra.SMSGateway
	CB         *infra.CircuitBreaker
	Queue      Queue
	Locker     Locker
	Interval   time.Duration
	MaxRetries int
}

// StartRetryCron ticks every cfg.Interval until ctx is cancelled.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = MaxSMSRetries
	}
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		log.Info().Dur("interval", cfg.Interval).Msg("retry_cron: started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				runRetryTick(ctx, cfg)
			}
		}
	}()
}

func runRetryTick(ctx context.Context, cfg RetryCronConfig) {
	if cfg.Locker != nil {
		release, err := cfg.Locker.Obtain(ctx, retryLockKey, cfg.Interval)
		if errors.Is(err, ErrLockHeld) {
			log.Debug().Msg("retry_cron: another instance holds the lock, skipping tick")
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("retry_cron: lock unavailable, skipping tick")
			return
		}
		defer release()
	}
	processRetries(ctx, cfg)
}

func processRetries(ctx context.Context, cfg RetryCronConfig) {
	if cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("retry_cron: circuit breaker is open, skipping tick")
		return
	}

	msgs, err := cfg.Repo.ListPendingRetries(ctx, time.Now(), retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query pending retries")
		return
	}
	if len(msgs) == 0 {
		return
	}
	log.Info().Int("count", len(msgs)).Msg("retry_cron: retrying queued texts")

	for i := range msgs {
		msg := &msgs[i]
		if cfg.CB.State() == infra.CBOpen {
			log.Debug().Msg("retry_cron: circuit breaker opened mid-batch, stopping")
			return
		}

		var ref string
		sendErr := cfg.CB.Execute(ctx, func(ctx context.Context) error {
			var err error
			ref, err = cfg.Gateway.SendSMS(ctx, msg.Recipient, msg.Body)
			return err
		})

		if sendErr == nil {
			msg.Status = model.SMSSent
			msg.NextRetryAt = nil
			msg.LastError = nil
			if ref != "" {
				msg.ProviderRef = &ref
			}
			log.Info().Str("sms_id", msg.ID.String()).Int("retries", msg.RetryCount).Msg("retry_cron: delivered after retry")
		} else {
			msg.RetryCount++
			errMsg := sendErr.Error()
			msg.LastError = &errMsg
			if msg.RetryCount >= cfg.MaxRetries {
				msg.Status = model.SMSFailed
				msg.NextRetryAt = nil
				payload, _ := json.Marshal(SMSJobPayload{To: msg.Recipient, Body: msg.Body})
				SendToDLQ(ctx, cfg.Queue, QueueSMS, JobSMS, payload,
					fmt.Sprintf("max retries (%d) exceeded: %s", cfg.MaxRetries, errMsg), msg.RetryCount)
			} else {
				next := time.Now().Add(computeRetryBackoff(msg.RetryCount + 1))
				msg.NextRetryAt = &next
				log.Warn().Str("sms_id", msg.ID.String()).Int("retry_count", msg.RetryCount).
					Time("next_retry_at", next).Msg("retry_cron: retry failed, rescheduled")
			}
		}

		if err := cfg.Repo.Update(ctx, msg); err != nil {
			log.Error().Err(err).Str("sms_id", msg.ID.String()).Msg("retry_cron: outbox update failed")
		}
	}
}
