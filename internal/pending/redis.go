package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Kerhoff/vpcs/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pending:"

// RedisStore keeps records as JSON strings with a native expiry.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Store backed by client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func (s *RedisStore) Put(ctx context.Context, rec *models.PendingApproval, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode pending record: %w", err)
	}
	if err := s.client.Set(ctx, key(rec.TransactionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending record: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.PendingApproval, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending record: %w", err)
	}

	rec := &models.PendingApproval{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode pending record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete pending record: %w", err)
	}
	return nil
}
