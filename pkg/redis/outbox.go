package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Outbox is a bounded Redis list that downstream deliverers pop from
type Outbox struct {
	client *Client
	name   string
	maxLen int64
}

// NewOutbox creates an outbox list; maxLen <= 0 keeps every entry
func NewOutbox(client *Client, name string, maxLen int64) *Outbox {
	return &Outbox{client: client, name: name, maxLen: maxLen}
}

// Push appends v as JSON. No-op when Redis is disabled.
func (o *Outbox) Push(ctx context.Context, v interface{}) error {
	if !o.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("outbox marshal failed: %w", err)
	}

	key := o.client.Key("outbox", o.name)
	pipe := o.client.Redis().TxPipeline()
	pipe.LPush(ctx, key, data)
	if o.maxLen > 0 {
		pipe.LTrim(ctx, key, 0, o.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("outbox push failed: %w", err)
	}
	return nil
}

// Pop removes the oldest entry into dest. found=false when empty or disabled.
func (o *Outbox) Pop(ctx context.Context, dest interface{}) (bool, error) {
	if !o.client.Enabled() {
		return false, nil
	}

	data, err := o.client.Redis().RPop(ctx, o.client.Key("outbox", o.name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("outbox pop failed: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("outbox unmarshal failed: %w", err)
	}
	return true, nil
}

// Len returns the number of queued entries
func (o *Outbox) Len(ctx context.Context) (int64, error) {
	if !o.client.Enabled() {
		return 0, nil
	}
	return o.client.Redis().LLen(ctx, o.client.Key("outbox", o.name)).Result()
}
