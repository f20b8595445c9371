package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vcissuer/internal/nonce"
	"vcissuer/pkg/platform/sentinel"
	"vcissuer/pkg/requestcontext"
)

const nonceKeyPrefix = "nonce:"

// consumeScript marks a record spent and returns it in one round trip.
// Returns {0} when missing, {2, record} when already spent, {1, record}
// on success. The spent marker inherits the record's remaining TTL.
var consumeScript = redis.NewScript(`
local record = redis.call('GET', KEYS[1])
if not record then
	return {0}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
	ttl = 1000
end
local marked = redis.call('SET', KEYS[2], ARGV[1], 'NX', 'PX', ttl)
if not marked then
	return {2, record}
end
return {1, record}
`)

// RedisStore keeps nonce records in Redis; key expiry enforces the TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed nonce store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(n string) string {
	return nonceKeyPrefix + "{" + n + "}"
}

func spentKey(n string) string {
	return nonceKeyPrefix + "{" + n + "}:spent"
}

// remainingTTL measures the record's lifetime against the request clock
// that stamped ExpiresAt.
func remainingTTL(ctx context.Context, record *nonce.Record) time.Duration {
	return record.ExpiresAt.Sub(requestcontext.Now(ctx))
}

func (s *RedisStore) Create(ctx context.Context, record *nonce.Record) error {
	ttl := remainingTTL(ctx, record)
	if ttl <= 0 {
		return fmt.Errorf("nonce %s already expired: %w", record.Nonce, sentinel.ErrExpired)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal nonce: %w", err)
	}
	ok, err := s.client.SetNX(ctx, recordKey(record.Nonce), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("nonce %s: %w", record.Nonce, sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, n string, now time.Time) (*nonce.Record, error) {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{recordKey(n), spentKey(n)},
		now.UTC().Format(time.RFC3339Nano),
	).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("consume nonce: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("consume nonce: empty script result")
	}
	status, _ := res[0].(int64)
	switch status {
	case 0:
		return nil, fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
	case 2:
		return nil, fmt.Errorf("nonce already consumed: %w", sentinel.ErrAlreadyUsed)
	}

	raw, _ := res[1].(string)
	var record nonce.Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("unmarshal nonce: %w", err)
	}
	spentAt := now
	record.SpentAt = &spentAt
	return &record, nil
}
