package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper marks processed update ids with SETNX so redelivered webhooks are dropped across instances.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// Seen marks id as processed and reports whether it had already been marked.
func (d *Deduper) Seen(ctx context.Context, id int64) (bool, error) {
	fresh, err := d.client.SetNX(ctx, "bot:update:"+strconv.FormatInt(id, 10), 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}
