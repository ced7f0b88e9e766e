package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sarnabroker/internal/infra"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// memQueue is an in-process Queue for tests.
type memQueue struct {
	mu    sync.Mutex
	lists map[string][][]byte
}

var _ Queue = (*memQueue)(nil)

func newMemQueue() *memQueue { return &memQueue{lists: make(map[string][][]byte)} }

func (q *memQueue) Push(_ context.Context, queue string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lists[queue] = append([][]byte{data}, q.lists[queue]...)
	return nil
}

func (q *memQueue) Pop(ctx context.Context, timeout time.Duration, queues ...string) (string, []byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		for _, name := range queues {
			l := q.lists[name]
			if n := len(l); n > 0 {
				data := l[n-1]
				q.lists[name] = l[:n-1]
				q.mu.Unlock()
				return name, data, nil
			}
		}
		q.mu.Unlock()
		if time.Now().After(deadline) {
			return "", nil, ErrQueueEmpty
		}
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *memQueue) Len(_ context.Context, queue string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.lists[queue])), nil
}

func (q *memQueue) items(queue string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.lists[queue]...)
}

var errGatewayDown = errors.New("gateway down")

type stubGateway struct {
	mu       sync.Mutex
	failures int // fail this many calls before succeeding; -1 fails forever
	calls    int
	sent     []string
}

func (g *stubGateway) SendSMS(_ context.Context, to, body string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failures < 0 || g.calls <= g.failures {
		return "", errGatewayDown
	}
	g.sent = append(g.sent, to+"|"+body)
	return "SM123", nil
}

type stubMailer struct {
	mu    sync.Mutex
	err   error
	calls int
	last  struct {
		to, subject string
		atts        []infra.Attachment
	}
}

func (m *stubMailer) Send(to, subject, _ string, atts ...infra.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last.to = to
	m.last.subject = subject
	m.last.atts = atts
	return m.err
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, infra.Migrate(db))
	return db
}
