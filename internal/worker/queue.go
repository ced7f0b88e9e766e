package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Pop when the timeout passes with no job.
var ErrQueueEmpty = errors.New("queue: empty")

// Queue is a set of named FIFO lists. Producers push on the left and
// consumers pop from the right.
type Queue interface {
	Push(ctx context.Context, queue string, data []byte) error
	Pop(ctx context.Context, timeout time.Duration, queues ...string) (string, []byte, error)
	Len(ctx context.Context, queue string) (int64, error)
}

// RedisQueue backs Queue with Redis lists (LPUSH / BRPOP).
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue { return &RedisQueue{rdb: rdb} }

func (q *RedisQueue) Push(ctx context.Context, queue string, data []byte) error {
	return q.rdb.LPush(ctx, queue, data).Err()
}

// Pop blocks for up to timeout, so idle workers cost nothing.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration, queues ...string) (string, []byte, error) {
	res, err := q.rdb.BRPop(ctx, timeout, queues...).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, ErrQueueEmpty
	}
	if err != nil {
		return "", nil, err
	}
	if len(res) < 2 {
		return "", nil, ErrQueueEmpty
	}
	return res[0], []byte(res[1]), nil
}

func (q *RedisQueue) Len(ctx context.Context, queue string) (int64, error) {
	return q.rdb.LLen(ctx, queue).Result()
}
