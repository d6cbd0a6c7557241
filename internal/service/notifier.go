package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type JobDoneEvent struct {
	ReaderTestID string    `json:"reader_test_id"`
	CompletedAt  time.Time `json:"completed_at"`
}

// RedisNotifier announces finished reader tests on a pub/sub channel and
// also pushes them onto a list for consumers that were not subscribed.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	list    string
	now     func() time.Time
}

func NewRedisNotifier(rdb *redis.Client, channel, list string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel, list: list, now: time.Now}
}

func (n *RedisNotifier) JobDone(ctx context.Context, readerTestID string) error {
	payload, err := json.Marshal(JobDoneEvent{
		ReaderTestID: readerTestID,
		CompletedAt:  n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode job done event: %w", err)
	}

	pipe := n.rdb.TxPipeline()
	if n.list != "" {
		pipe.LPush(ctx, n.list, payload)
	}
	pipe.Publish(ctx, n.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish job done for %s: %w", readerTestID, err)
	}
	return nil
}
