// Package progress owns the per-project progress coordinator: a stateful
// actor reached through a registry, serializing all updates for one project
// and fanning them out to live subscribers.
package progress

import (
	"time"

	"github.com/storyloom/storyloom/internal/models"
)

// EventType discriminates live feed events.
type EventType string

const (
	EventStage     EventType = "stage"
	EventDiscovery EventType = "discovery"
	EventComplete  EventType = "complete"
)

// Event is one discrete, independently parseable live feed record.
type Event struct {
	Type      EventType    `json:"type"`
	Stage     models.Stage `json:"stage,omitempty"`
	Progress  int          `json:"progress"`
	Message   string       `json:"message,omitempty"`
	Discovery string       `json:"discoveryType,omitempty"`
	Preview   string       `json:"preview,omitempty"`
	Status    string       `json:"status,omitempty"`
	NextStage models.Stage `json:"nextStage,omitempty"`
	Error     string       `json:"error,omitempty"`
	SentAt    time.Time    `json:"sentAt"`
}

// Discovery is a notable intermediate finding kept in the bounded buffer.
type Discovery struct {
	Type    string    `json:"type"`
	Preview string    `json:"preview"`
	At      time.Time `json:"at"`
}

// Completion is the terminal marker of a pipeline run.
type Completion struct {
	Status    string       `json:"status"` // "success" or "error"
	NextStage models.Stage `json:"nextStage,omitempty"`
	Error     string       `json:"error,omitempty"`
	Final     bool         `json:"final"`
}

// State is the coordinator's snapshot: what stage, how far, what happened.
type State struct {
	ProjectID   string       `json:"projectId"`
	Stage       models.Stage `json:"stage,omitempty"`
	Percent     int          `json:"percent"`
	LastMessage string       `json:"lastMessage,omitempty"`
	Discoveries []Discovery  `json:"discoveries,omitempty"`
	Terminal    *Completion  `json:"terminal,omitempty"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
