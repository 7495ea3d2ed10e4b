// Package history persists per-project experiment history: the
// completed-experiment summaries the Prior Resolver, Shrinkage
// Corrector, and forecast diagnostics read across calls to
// engine.Evaluate, which is itself stateless. It is the sole place in
// vibariant that talks to Redis, the way redisclient was the teacher's
// sole Redis touchpoint.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/discordwell/vibariant/config"
	"github.com/discordwell/vibariant/engine"
)

const (
	historyKeyPrefix = "vibariant:history:"
	weightsKeyPrefix = "vibariant:history:weights:"
	maxHistoryLen    = 200
	maxCASRetries    = 5
)

// Store is the interface the rest of the service depends on, so
// handlers and tests can swap a Redis-backed store for an in-memory one
// without touching call sites.
type Store interface {
	Append(ctx context.Context, projectID string, h engine.HistoricalExperiment) error
	List(ctx context.Context, projectID string, limit int) ([]engine.HistoricalExperiment, error)
	Ping(ctx context.Context) error

	// GetEngagementWeights returns the project's last calibrated
	// engagement blend weights, or nil if none has ever been set.
	GetEngagementWeights(ctx context.Context, projectID string) (*[4]float64, error)
	// SetEngagementWeights stores a newly calibrated weight vector,
	// overwriting whatever a prior Calibrate call left behind.
	SetEngagementWeights(ctx context.Context, projectID string, weights [4]float64) error
}

// RedisStore is the production Store, backed by a Redis list per
// project (most recent experiment pushed to the head, trimmed to
// maxHistoryLen).
type RedisStore struct {
	client *redis.Client
}

// New creates a RedisStore from the service config. Returns an error if
// the Redis URL cannot be parsed.
func New(cfg *config.Config) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opt)}, nil
}

func key(projectID string) string {
	return historyKeyPrefix + projectID
}

func weightsKey(projectID string) string {
	return weightsKeyPrefix + projectID
}

// Append records one completed experiment for a project, most-recent
// first, trimmed to the last maxHistoryLen entries.
func (s *RedisStore) Append(ctx context.Context, projectID string, h engine.HistoricalExperiment) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal historical experiment: %w", err)
	}

	k := key(projectID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, k, payload)
	pipe.LTrim(ctx, k, 0, maxHistoryLen-1)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns up to limit of a project's most recent completed
// experiments, most-recent first. limit<=0 returns all stored entries
// (capped at maxHistoryLen).
func (s *RedisStore) List(ctx context.Context, projectID string, limit int) ([]engine.HistoricalExperiment, error) {
	stop := int64(maxHistoryLen - 1)
	if limit > 0 && limit <= maxHistoryLen {
		stop = int64(limit - 1)
	}

	raw, err := s.client.LRange(ctx, key(projectID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", projectID, err)
	}

	out := make([]engine.HistoricalExperiment, 0, len(raw))
	for _, item := range raw {
		var h engine.HistoricalExperiment
		if err := json.Unmarshal([]byte(item), &h); err != nil {
			continue // skip a malformed record rather than fail the whole read
		}
		out = append(out, h)
	}
	return out, nil
}

// Ping verifies Redis connectivity, for the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// GetEngagementWeights reads the project's last calibrated weight
// vector. Returns (nil, nil) if Calibrate has never been persisted for
// this project.
func (s *RedisStore) GetEngagementWeights(ctx context.Context, projectID string) (*[4]float64, error) {
	raw, err := s.client.Get(ctx, weightsKey(projectID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get engagement weights for %s: %w", projectID, err)
	}
	var w [4]float64
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("unmarshal engagement weights for %s: %w", projectID, err)
	}
	return &w, nil
}

// SetEngagementWeights persists a newly calibrated weight vector in a
// WATCH/MULTI transaction: if a concurrent write to the same project's
// key aborts it, the same payload is written again, up to maxCASRetries
// attempts, so the last writer's weights are the ones kept.
func (s *RedisStore) SetEngagementWeights(ctx context.Context, projectID string, weights [4]float64) error {
	k := weightsKey(projectID)
	payload, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("marshal engagement weights: %w", err)
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			_, txErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, k, payload, 0)
				return nil
			})
			return txErr
		}, k)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return fmt.Errorf("set engagement weights for %s: %w", projectID, err)
	}
	return fmt.Errorf("set engagement weights for %s: exceeded %d CAS retries", projectID, maxCASRetries)
}
