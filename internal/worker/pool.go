package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sarnabroker/internal/infra"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	QueueSMS       = "jobs:sms"
	QueueStatement = "jobs:statement"
	QueueEmail     = "jobs:email"
)

const (
	JobSMS       = "sms"
	JobStatement = "statement"
	JobEmail     = "email"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type SMSJobPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type StatementJobPayload struct {
	BookingID string `json:"booking_id"`
}

// Dispatcher is the producer side: it turns domain events into queued jobs.
// It satisfies service.Notifier and service.StatementQueue.
type Dispatcher struct {
	q      Queue
	region string
}

func NewDispatcher(q Queue, defaultRegion string) *Dispatcher {
	return &Dispatcher{q: q, region: defaultRegion}
}

// Send normalizes phone to E.164 and queues the text. It never blocks on
// delivery; false means the job was not queued.
func (d *Dispatcher) Send(ctx context.Context, phone, message string) bool {
	to, err := infra.NormalizePhone(phone, d.region)
	if err != nil {
		log.Warn().Err(err).Str("phone", phone).Msg("dispatcher: unusable phone number")
		return false
	}
	if err := d.EnqueueSMS(ctx, SMSJobPayload{To: to, Body: message}); err != nil {
		log.Error().Err(err).Str("to", to).Msg("dispatcher: sms enqueue failed")
		return false
	}
	return true
}

func (d *Dispatcher) EnqueueSMS(ctx context.Context, payload SMSJobPayload) error {
	return d.enqueue(ctx, QueueSMS, JobSMS, payload)
}

func (d *Dispatcher) EnqueueStatement(ctx context.Context, bookingID uuid.UUID) error {
	return d.enqueue(ctx, QueueStatement, JobStatement, StatementJobPayload{BookingID: bookingID.String()})
}

func (d *Dispatcher) EnqueueEmail(ctx context.Context, payload EmailJobPayload) error {
	return d.enqueue(ctx, QueueEmail, JobEmail, payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.q.Push(ctx, queue, encoded)
}

// Handler processes one job payload.
type Handler func(ctx context.Context, payload json.RawMessage)

// Pool is the consumer side: size goroutines popping from every queue that
// has a registered handler.
type Pool struct {
	q        Queue
	size     int
	handlers map[string]Handler
	queues   []string
	wg       sync.WaitGroup
}

func NewPool(q Queue, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{q: q, size: size, handlers: make(map[string]Handler)}
}

// Handle registers h for jobs of jobType arriving on queue. Call before Start.
func (p *Pool) Handle(queue, jobType string, h Handler) {
	if _, seen := p.handlers[jobType]; !seen {
		p.queues = append(p.queues, queue)
	}
	p.handlers[jobType] = h
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
	log.Info().Int("workers", p.size).Strs("queues", p.queues).Msg("worker pool started")
}

// Wait blocks until every worker has returned after ctx was cancelled.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) run(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			log.Info().Int("worker", id).Msg("worker shutting down")
			return
		}
		// Wait up to 5s, then loop to re-check ctx.
		queue, raw, err := p.q.Pop(ctx, 5*time.Second, p.queues...)
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) && ctx.Err() == nil {
				log.Warn().Err(err).Int("worker", id).Msg("worker: pop failed")
				time.Sleep(time.Second)
			}
			continue
		}
		p.process(ctx, queue, raw)
	}
}

func (p *Pool) process(ctx context.Context, queue string, raw []byte) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("worker: undecodable job")
		SendToDLQ(ctx, p.q, queue, "unknown", raw, fmt.Sprintf("decode: %v", err), 0)
		return
	}
	h, ok := p.handlers[job.Type]
	if !ok {
		log.Error().Str("queue", queue).Str("type", job.Type).Msg("worker: no handler for job type")
		SendToDLQ(ctx, p.q, queue, job.Type, job.Payload, "no handler", 0)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("type", job.Type).Interface("panic", r).Msg("worker: handler panicked")
			SendToDLQ(ctx, p.q, queue, job.Type, job.Payload, fmt.Sprintf("panic: %v", r), 1)
		}
	}()
	h(ctx, job.Payload)
}

// withRetry calls fn up to maxAttempts times with exponential backoff.
// Attempt 1 is immediate, then 1s, 2s, 4s...
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	return withRetryBase(ctx, maxAttempts, time.Second, fn)
}

func withRetryBase(ctx context.Context, maxAttempts int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := base << uint(i-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
