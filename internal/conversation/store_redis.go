package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "session:"

// RedisStore persists sessions in Redis with a TTL, so multiple instances
// share conversation state.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		tracer: otel.Tracer("conversation.redis_store"),
	}
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "RedisStore.Load",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: redis get: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "RedisStore.Save",
		trace.WithAttributes(
			attribute.String("session.id", s.ID),
			attribute.String("session.stage", string(s.Stage)),
		))
	defer span.End()

	raw, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+s.ID, raw, r.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "RedisStore.Delete")
	defer span.End()

	if err := r.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]*Session, error) {
	ctx, span := r.tracer.Start(ctx, "RedisStore.List")
	defer span.End()

	var out []*Session
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: redis get during scan: %w", err)
		}
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		out = append(out, &s)
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: redis scan: %w", err)
	}
	return out, nil
}

// CleanupExpired is a no-op for Redis, which expires keys itself.
func (r *RedisStore) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}
