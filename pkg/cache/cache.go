// Package cache caches published workflow graphs so transition resolution
// does not hit primary storage on every task render.
package cache

import (
	"context"

	"github.com/rathbookie/stageflow/pkg/models"
)

// PublishedGraphs is a read-through cache of published workflow definitions.
// Get returns (nil, nil) on a miss; callers fall back to persistence. The
// cache is invalidated on every save, publish, and delete so a stale graph
// can never outlive the write that changed it.
type PublishedGraphs interface {
	Get(ctx context.Context, workflowID string) (*models.Workflow, error)
	Set(ctx context.Context, workflow *models.Workflow) error
	Invalidate(ctx context.Context, workflowID string) error
}

// Noop satisfies PublishedGraphs without caching anything. Used when no
// redis is configured and in tests.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Get(_ context.Context, _ string) (*models.Workflow, error) {
	return nil, nil
}

func (n *Noop) Set(_ context.Context, _ *models.Workflow) error {
	return nil
}

func (n *Noop) Invalidate(_ context.Context, _ string) error {
	return nil
}
