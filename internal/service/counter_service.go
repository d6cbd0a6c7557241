package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"inference-task-worker/internal/entity"
)

// Per reader test:
//   {prefix}{id}          hash: processed, total, created_at, updated_at, completed_at
//   {prefix}{id}:counted  set of task ids already counted
//
// completed_at is written with HSETNX, so only one caller ever observes
// the crossing.

var incrementScript = redis.NewScript(`
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
  return 0
end
local processed = redis.call('HINCRBY', KEYS[1], 'processed', 1)
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[2])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
local total = redis.call('HGET', KEYS[1], 'total')
if total and processed >= tonumber(total) then
  return redis.call('HSETNX', KEYS[1], 'completed_at', ARGV[2])
end
return 0
`)

var setTotalScript = redis.NewScript(`
redis.call('HSET', KEYS[1], 'total', ARGV[1], 'updated_at', ARGV[2])
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[2])
local processed = tonumber(redis.call('HGET', KEYS[1], 'processed') or '0')
if processed >= tonumber(ARGV[1]) then
  return redis.call('HSETNX', KEYS[1], 'completed_at', ARGV[2])
end
return 0
`)

// RedisJobCounters keeps reader test counters in Redis hashes.
type RedisJobCounters struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisJobCounters(rdb *redis.Client, prefix string) *RedisJobCounters {
	if prefix == "" {
		prefix = "readertest:"
	}
	return &RedisJobCounters{rdb: rdb, prefix: prefix, now: time.Now}
}

func (c *RedisJobCounters) hashKey(id string) string    { return c.prefix + id }
func (c *RedisJobCounters) countedKey(id string) string { return c.prefix + id + ":counted" }

func (c *RedisJobCounters) IncrementAndCheck(ctx context.Context, readerTestID, taskID string) (bool, error) {
	n, err := incrementScript.Run(ctx, c.rdb,
		[]string{c.hashKey(readerTestID), c.countedKey(readerTestID)},
		taskID, c.stamp(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("increment reader test %s: %w", readerTestID, err)
	}
	return n == 1, nil
}

func (c *RedisJobCounters) SetTotal(ctx context.Context, readerTestID string, total int) (bool, error) {
	n, err := setTotalScript.Run(ctx, c.rdb,
		[]string{c.hashKey(readerTestID)},
		total, c.stamp(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("set total for reader test %s: %w", readerTestID, err)
	}
	return n == 1, nil
}

func (c *RedisJobCounters) Progress(ctx context.Context, readerTestID string) (*entity.ReaderTest, error) {
	fields, err := c.rdb.HGetAll(ctx, c.hashKey(readerTestID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get reader test %s: %w", readerTestID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rt := &entity.ReaderTest{ID: readerTestID}
	if v, ok := fields["processed"]; ok {
		if rt.ProcessedCount, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse processed: %w", err)
		}
	}
	if v, ok := fields["total"]; ok {
		total, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse total: %w", err)
		}
		rt.TotalCount = &total
	}
	rt.CreatedAt = parseStamp(fields["created_at"])
	rt.UpdatedAt = parseStamp(fields["updated_at"])
	if v, ok := fields["completed_at"]; ok {
		ts := parseStamp(v)
		rt.CompletedAt = &ts
	}
	return rt, nil
}

func (c *RedisJobCounters) stamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}

func parseStamp(v string) time.Time {
	ts, _ := time.Parse(time.RFC3339Nano, v)
	return ts
}
