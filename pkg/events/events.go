// Package events defines the lifecycle notifications published when
// workflows change shape and tasks move between stages.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/rathbookie/stageflow/pkg/models"
)

type EventType string

// Topic is the bus topic every stageflow lifecycle event is published to.
const Topic = "stageflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowCreatedEvent    EventType = "workflow.created"
	WorkflowDraftSavedEvent EventType = "workflow.draft_saved"
	WorkflowPublishedEvent  EventType = "workflow.published"
	WorkflowDeletedEvent    EventType = "workflow.deleted"
	TaskTransitionedEvent   EventType = "task.transitioned"
)

// BaseEvent carries the fields common to every lifecycle event.
type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a base event with a fresh id and timestamp.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type WorkflowCreated struct {
	BaseEvent

	Name string `json:"name"`
}

func (w WorkflowCreated) GetType() EventType {
	return WorkflowCreatedEvent
}

type WorkflowDraftSaved struct {
	BaseEvent

	Version         int `json:"version"`
	StageCount      int `json:"stage_count"`
	TransitionCount int `json:"transition_count"`
}

func (w WorkflowDraftSaved) GetType() EventType {
	return WorkflowDraftSavedEvent
}

type WorkflowPublished struct {
	BaseEvent

	Version     int       `json:"version"`
	PublishedAt time.Time `json:"published_at"`
}

func (w WorkflowPublished) GetType() EventType {
	return WorkflowPublishedEvent
}

type WorkflowDeleted struct {
	BaseEvent

	Name string `json:"name"`
}

func (w WorkflowDeleted) GetType() EventType {
	return WorkflowDeletedEvent
}

// TaskTransitioned is published after a task commits a stage transition.
type TaskTransitioned struct {
	BaseEvent

	TaskID    string      `json:"task_id"`
	FromStage string      `json:"from_stage,omitempty"`
	ToStage   string      `json:"to_stage,omitempty"`
	Status    string      `json:"status"`
	Role      models.Role `json:"role"`
	Version   int         `json:"version"`
}

func (t TaskTransitioned) GetType() EventType {
	return TaskTransitionedEvent
}
