package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
	"github.com/dutchbook/dutchbook/internal/model"
)

// QuoteMetadataRepo stores the ephemeral serving-time quote context. Records
// are write-once and expire on their own; the controller read-joins them by
// quote id shortly after orders settle.
type QuoteMetadataRepo interface {
	Put(ctx context.Context, q *model.QuoteMetadata) error
	GetByQuoteID(ctx context.Context, id uuid.UUID) (*model.QuoteMetadata, error)
}

// RedisQuoteRepo is the Redis-backed implementation.
type RedisQuoteRepo struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisQuoteRepo(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisQuoteRepo {
	return &RedisQuoteRepo{client: client, ttl: ttl, logger: logger}
}

func quoteKey(id uuid.UUID) string { return "quote:" + id.String() }

// Put records the metadata once. A second write for the same quote id is a
// conflict, never an overwrite.
func (r *RedisQuoteRepo) Put(ctx context.Context, q *model.QuoteMetadata) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return apperrors.WrapInternal(err, "marshaling quote metadata")
	}
	ok, err := r.client.SetNX(ctx, quoteKey(q.QuoteID), raw, r.ttl).Result()
	if err != nil {
		return apperrors.WrapInternal(err, "writing quote metadata")
	}
	if !ok {
		return apperrors.Conflictf("quote metadata for %s already recorded", q.QuoteID)
	}
	return nil
}

// GetByQuoteID returns the metadata, or nil when absent or expired.
func (r *RedisQuoteRepo) GetByQuoteID(ctx context.Context, id uuid.UUID) (*model.QuoteMetadata, error) {
	raw, err := r.client.Get(ctx, quoteKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.WrapInternal(err, "reading quote metadata")
	}
	var q model.QuoteMetadata
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, apperrors.WrapInternal(err, "decoding quote metadata")
	}
	return &q, nil
}
