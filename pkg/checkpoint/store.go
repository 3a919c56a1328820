package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a checkpoint stays valid after its last update.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNoCheckpoint indicates no checkpoint exists for the query
	ErrNoCheckpoint = errors.New("no checkpoint")

	// ErrInvalidCheckpoint indicates the stored checkpoint could not be decoded
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// Store reads and writes checkpoints in Redis.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a checkpoint store. A non-positive ttl selects DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis: redisClient,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Load returns the checkpoint for query.
// Returns ErrNoCheckpoint if none exists or it has expired.
func (s *Store) Load(ctx context.Context, query string) (*Checkpoint, error) {
	data, err := s.redis.Get(ctx, Key(query)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoCheckpoint
		}
		CheckpointErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		CheckpointErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	return &cp, nil
}

// Save writes cp, refreshing its TTL. UpdatedAt is set to the current time.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	cp.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		CheckpointErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, Key(cp.Query), data, s.ttl).Err(); err != nil {
		CheckpointErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CheckpointSaves.Inc()
	return nil
}

// Clear removes the checkpoint for query. Clearing a missing checkpoint is not an error.
func (s *Store) Clear(ctx context.Context, query string) error {
	if err := s.redis.Del(ctx, Key(query)).Err(); err != nil {
		CheckpointErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
