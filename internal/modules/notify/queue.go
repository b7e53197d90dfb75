// README: Redis list backed notification queue.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Queue is a FIFO of encoded events: producers LPUSH, workers BRPOP.
type Queue struct {
	redis *redis.Client
	key   string
	log   logrus.FieldLogger
}

func NewQueue(redis *redis.Client, key string, log logrus.FieldLogger) *Queue {
	return &Queue{redis: redis, key: key, log: log}
}

func (q *Queue) Publish(ctx context.Context, events ...Event) {
	if len(events) == 0 {
		return
	}
	now := time.Now().UTC()
	payloads := make([]interface{}, 0, len(events))
	for _, e := range events {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		b, err := json.Marshal(e)
		if err != nil {
			q.log.WithError(err).WithField("type", e.Type).Error("encode notification")
			continue
		}
		payloads = append(payloads, b)
	}
	if len(payloads) == 0 {
		return
	}
	// Delivery is detached from the request; a cancelled request context must
	// not drop events for a committed change.
	ctx = context.WithoutCancel(ctx)
	if err := q.redis.LPush(ctx, q.key, payloads...).Err(); err != nil {
		q.log.WithError(err).WithField("count", len(payloads)).Error("enqueue notifications")
	}
}

// Pop blocks up to wait for the next event. ok is false on timeout.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (e Event, ok bool, err error) {
	res, err := q.redis.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	// res is [key, value].
	if err := json.Unmarshal([]byte(res[1]), &e); err != nil {
		return Event{}, false, err
	}
	return e, true, nil
}

// Len reports the number of queued events.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, q.key).Result()
}
