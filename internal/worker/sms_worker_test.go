package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sarnabroker/internal/infra"
	"sarnabroker/internal/model"
	"sarnabroker/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func smsJob(t *testing.T, to, body string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(SMSJobPayload{To: to, Body: body})
	require.NoError(t, err)
	return raw
}

func outbox(t *testing.T, db *gorm.DB) []model.SMSMessage {
	t.Helper()
	var rows []model.SMSMessage
	require.NoError(t, db.Order("created_at").Find(&rows).Error)
	return rows
}

func newSMSWorkerForTest(gw infra.SMSGateway, repo repository.SMSMessageRepository) *SMSWorker {
	w := NewSMSWorker(gw, infra.NewCircuitBreaker(infra.DefaultCBConfig("sms-test")), repo)
	w.retryGap = time.Millisecond
	return w
}

func TestSMSWorker_DeliversAndRecords(t *testing.T) {
	db := newTestDB(t)
	gw := &stubGateway{}
	w := newSMSWorkerForTest(gw, repository.NewSMSMessageRepository(db))

	w.Process(context.Background(), smsJob(t, "+919876500001", "Booking S10001 approved."))

	rows := outbox(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SMSSent, rows[0].Status)
	require.NotNil(t, rows[0].ProviderRef)
	assert.Equal(t, "SM123", *rows[0].ProviderRef)
	assert.Nil(t, rows[0].NextRetryAt)
	assert.Equal(t, []string{"+919876500001|Booking S10001 approved."}, gw.sent)
}

func TestSMSWorker_RetriesTransientFailure(t *testing.T) {
	db := newTestDB(t)
	gw := &stubGateway{failures: 2}
	w := newSMSWorkerForTest(gw, repository.NewSMSMessageRepository(db))

	w.Process(context.Background(), smsJob(t, "+919876500001", "hi"))

	assert.Equal(t, 3, gw.calls)
	rows := outbox(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SMSSent, rows[0].Status)
}

func TestSMSWorker_CancelledContextStillSchedulesRetry(t *testing.T) {
	db := newTestDB(t)
	gw := &stubGateway{failures: -1}
	w := newSMSWorkerForTest(gw, repository.NewSMSMessageRepository(db))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Process(ctx, smsJob(t, "+919876500001", "shutting down"))

	assert.Equal(t, 1, gw.calls, "cancelled context stops the immediate retries")
	rows := outbox(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SMSPending, rows[0].Status)
	require.NotNil(t, rows[0].NextRetryAt, "row stays visible to the retry cron")
	require.NotNil(t, rows[0].LastError)
}

func TestSMSWorker_SchedulesCronRetryAfterFailures(t *testing.T) {
	db := newTestDB(t)
	gw := &stubGateway{failures: -1}
	w := newSMSWorkerForTest(gw, repository.NewSMSMessageRepository(db))

	before := time.Now()
	w.Process(context.Background(), smsJob(t, "+919876500001", "hi"))

	assert.Equal(t, immediateAttempts, gw.calls)
	rows := outbox(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SMSPending, rows[0].Status)
	assert.Equal(t, 0, rows[0].RetryCount)
	require.NotNil(t, rows[0].NextRetryAt)
	assert.True(t, rows[0].NextRetryAt.After(before))
	require.NotNil(t, rows[0].LastError)
	assert.Contains(t, *rows[0].LastError, "gateway down")
}

func TestSMSWorker_SkipsEmptyPayload(t *testing.T) {
	db := newTestDB(t)
	gw := &stubGateway{}
	w := newSMSWorkerForTest(gw, repository.NewSMSMessageRepository(db))

	w.Process(context.Background(), smsJob(t, "", "hi"))
	w.Process(context.Background(), json.RawMessage(`{bad`))

	assert.Zero(t, gw.calls)
	assert.Empty(t, outbox(t, db))
}

// ── retry cron ───────────────────────────────────────────────────────────────

type stubLocker struct {
	err      error
	obtained int
	released int
}

func (l *stubLocker) Obtain(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.obtained++
	return func() { l.released++ }, nil
}

func seedDue(t *testing.T, repo repository.SMSMessageRepository, retries int) *model.SMSMessage {
	t.Helper()
	due := time.Now().Add(-time.Hour)
	m := &model.SMSMessage{
		Recipient:   "+919876500002",
		Body:        "Truck loaded for booking S10001.",
		Status:      model.SMSPending,
		RetryCount:  retries,
		NextRetryAt: &due,
	}
	require.NoError(t, repo.Create(context.Background(), m))
	return m
}

func cronConfig(repo repository.SMSMessageRepository, gw infra.SMSGateway, q Queue) RetryCronConfig {
	return RetryCronConfig{
		Repo:       repo,
		Gateway:    gw,
		CB:         infra.NewCircuitBreaker(infra.DefaultCBConfig("sms-test")),
		Queue:      q,
		Interval:   time.Minute,
		MaxRetries: 3,
	}
}

func TestRetryCron_DeliversDueMessages(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSMSMessageRepository(db)
	seedDue(t, repo, 1)
	gw := &stubGateway{}

	processRetries(context.Background(), cronConfig(repo, gw, newMemQueue()))

	rows := outbox(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SMSSent, rows[0].Status)
	assert.Equal(t, 1, gw.calls)
}

func TestRetryCron_ReschedulesFailure(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSMSMessageRepository(db)
	seedDue(t, repo, 0)

	processRetries(context.Background(), cronConfig(repo, &stubGateway{failures: -1}, newMemQueue()))

	rows := outbox(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SMSPending, rows[0].Status)
	assert.Equal(t, 1, rows[0].RetryCount)
	require.NotNil(t, rows[0].NextRetryAt)
	assert.True(t, rows[0].NextRetryAt.After(time.Now()))
}

func TestRetryCron_DeadLettersAfterMaxRetries(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSMSMessageRepository(db)
	seedDue(t, repo, 2)
	q := newMemQueue()

	processRetries(context.Background(), cronConfig(repo, &stubGateway{failures: -1}, q))

	rows := outbox(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, model.SMSFailed, rows[0].Status)
	assert.Nil(t, rows[0].NextRetryAt)

	dead := q.items(DLQPrefix + QueueSMS)
	require.Len(t, dead, 1)
	var e DLQEntry
	require.NoError(t, json.Unmarshal(dead[0], &e))
	assert.Equal(t, JobSMS, e.JobType)
	assert.Equal(t, 3, e.Attempts)
}

func TestRetryCron_SkipsWhenBreakerOpen(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSMSMessageRepository(db)
	seedDue(t, repo, 0)
	gw := &stubGateway{}

	cfg := cronConfig(repo, gw, newMemQueue())
	cfg.CB = infra.NewCircuitBreaker(infra.CircuitBreakerConfig{Name: "sms-test", FailureThreshold: 1, OpenTimeout: time.Hour})
	_ = cfg.CB.Execute(context.Background(), func(context.Context) error { return errors.New("trip") })
	require.Equal(t, infra.CBOpen, cfg.CB.State())

	processRetries(context.Background(), cfg)

	assert.Zero(t, gw.calls)
	assert.Equal(t, model.SMSPending, outbox(t, db)[0].Status)
}

func TestRetryCron_SkipsTickWhenLockHeld(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewSMSMessageRepository(db)
	seedDue(t, repo, 0)
	gw := &stubGateway{}

	cfg := cronConfig(repo, gw, newMemQueue())
	cfg.Locker = &stubLocker{err: ErrLockHeld}
	runRetryTick(context.Background(), cfg)
	assert.Zero(t, gw.calls)

	locker := &stubLocker{}
	cfg.Locker = locker
	runRetryTick(context.Background(), cfg)
	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, 1, locker.obtained)
	assert.Equal(t, 1, locker.released)
}
