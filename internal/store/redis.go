package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps values as plain strings and the event log as a Redis
// list of JSON documents. RPUSH is atomic, so concurrent writers from
// several processes never interleave partial events.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// RedisOptions configures OpenRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key this store touches.
	Prefix string
	Logger *slog.Logger
}

func OpenRedis(ctx context.Context, o RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to reach redis at %s: %w", ErrUnavailable, o.Addr, err)
	}
	return NewRedisStore(client, o.Prefix, o.Logger), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to get %q: %w", ErrUnavailable, key, err)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to set %q: %w", ErrUnavailable, key, err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: failed to remove %q: %w", ErrUnavailable, key, err)
	}
	return nil
}

func (r *RedisStore) Append(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.RPush(ctx, r.prefix+KeyEvents, data).Err(); err != nil {
		return fmt.Errorf("%w: failed to record event: %w", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisStore) Events(ctx context.Context) ([]Event, error) {
	raw, err := r.client.LRange(ctx, r.prefix+KeyEvents, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get events: %w", ErrUnavailable, err)
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			r.logger.Warn("discarding corrupt event log", "key", r.prefix+KeyEvents, "error", err)
			return nil, nil
		}
		events = append(events, e)
	}
	return events, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.Remove(ctx, KeyEvents)
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
