package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rathbookie/stageflow/pkg/models"
)

const defaultTTL = 5 * time.Minute

// Redis implements PublishedGraphs on a redis instance. Cache failures are
// logged and treated as misses; the cache is never allowed to fail a read
// path that persistence could still serve.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewRedis creates a redis-backed published-graph cache.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger,
		ttl:    defaultTTL,
	}
}

func key(workflowID string) string {
	return "stageflow:published:" + workflowID
}

func (r *Redis) Get(ctx context.Context, workflowID string) (*models.Workflow, error) {
	data, err := r.client.Get(ctx, key(workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		r.logger.WarnContext(ctx, "published graph cache read failed", "workflow_id", workflowID, "error", err)

		return nil, nil
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		r.logger.WarnContext(ctx, "published graph cache entry corrupt", "workflow_id", workflowID, "error", err)

		return nil, nil
	}

	return &workflow, nil
}

func (r *Redis) Set(ctx context.Context, workflow *models.Workflow) error {
	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to encode workflow for cache: %w", err)
	}

	if err := r.client.Set(ctx, key(workflow.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache published workflow: %w", err)
	}

	return nil
}

func (r *Redis) Invalidate(ctx context.Context, workflowID string) error {
	if err := r.client.Del(ctx, key(workflowID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached workflow: %w", err)
	}

	return nil
}
