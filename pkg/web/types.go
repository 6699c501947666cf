// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence"
	"github.com/rathbookie/stageflow/pkg/resolution"
)

// ListWorkflowsResponse wraps the workflow collection.
type ListWorkflowsResponse struct {
	Results []*models.Workflow `json:"results"`
}

// StageBlockedResponse is the 422 body for a structural stage rejection.
// Clients render it verbatim as a "name (count)" list.
type StageBlockedResponse struct {
	BlockedStages []persistence.BlockedStage `json:"blocked_stages"`
}

// TransitionOptionsResponse wraps the legal next stages for a task.
type TransitionOptionsResponse struct {
	Results []resolution.Option `json:"results"`
}
