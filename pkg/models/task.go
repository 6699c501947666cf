package models

import (
	"strings"
	"time"
)

// Canonical status values carried by legacy tasks and produced by the
// stage-name mapping. New-era tasks reference a stage id directly; the flat
// status is kept in sync for consumers that still read it.
const (
	StatusNotStarted    = "NOT_STARTED"
	StatusInProgress    = "IN_PROGRESS"
	StatusBlocked       = "BLOCKED"
	StatusWaitingReview = "WAITING_REVIEW"
	StatusDone          = "DONE"
	StatusCancelled     = "CANCELLED"
)

// KnownStatuses is the closed set of canonical status values.
var KnownStatuses = []string{
	StatusNotStarted,
	StatusInProgress,
	StatusBlocked,
	StatusWaitingReview,
	StatusDone,
	StatusCancelled,
}

// StageStatus maps a stage display name onto a canonical status value.
// The mapping normalizes the name (trim, upper-case, spaces to underscores)
// and only accepts exact matches against the known set; anything else is
// explicitly unmapped (ok == false), never guessed.
func StageStatus(stageName string) (string, bool) {
	normalized := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(stageName)), " ", "_")

	for _, status := range KnownStatuses {
		if normalized == status {
			return status, true
		}
	}

	return "", false
}

// Task models only the facets of a task this service owns: its position in a
// workflow graph and the optimistic-lock version. Title/description editing,
// attachments, and assignment live with the external task provider.
type Task struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	WorkflowID     string    `json:"workflow_id"`
	StageID        string    `json:"stage_id,omitempty"`
	Status         string    `json:"status"`
	BlockedReason  string    `json:"blocked_reason,omitempty"`
	HasAttachments bool      `json:"has_attachments"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CurrentStage resolves the task's stage within the given workflow. A stage
// id reference wins; tasks from the legacy flat-status era fall back to the
// stage whose name maps onto the task's status. Returns nil when neither
// resolves; callers must treat that as "no legal transitions".
func (t *Task) CurrentStage(w *Workflow) *Stage {
	if w == nil {
		return nil
	}

	if t.StageID != "" {
		return w.StageByID(t.StageID)
	}

	if t.Status != "" {
		return w.StageByStatus(t.Status)
	}

	return nil
}
