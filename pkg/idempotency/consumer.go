package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which broker events were already handled.
type Deduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewDeduper(rdb redis.Cmdable, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl}
}

// Key prefers the producer-assigned event id and falls back to the partition
// offset for events published without one.
func (d *Deduper) Key(eventID, topic string, partition int, offset int64) string {
	if eventID != "" {
		return "idem:event:" + eventID
	}
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Seen marks key as handled and reports whether it already was.
func (d *Deduper) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Forget drops key so a failed handler can be retried.
func (d *Deduper) Forget(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, key).Err()
}
