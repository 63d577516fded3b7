// Package adapter defines the outbound notification contract for
// settled runs and the event payload shared by all implementations.
package adapter

import (
	"context"
	"time"
)

// EventVersion identifies the run_settled payload schema.
const EventVersion = "1"

// Outcome labels how a watched run ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"
	OutcomeConnectionLost Outcome = "connection_lost"
)

// RunSettledEvent is the JSON payload published when a watched run
// reaches a terminal state or the stream is lost for good.
type RunSettledEvent struct {
	Version      string    `json:"version"`
	EventType    string    `json:"event_type"`
	RunID        string    `json:"run_id"`
	Outcome      Outcome   `json:"outcome"`
	Status       string    `json:"status,omitempty"`
	CurrentStage string    `json:"current_stage,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Sections     []string  `json:"sections,omitempty"`
	SettledAt    time.Time `json:"settled_at"`
}

// NewRunSettledEvent stamps the schema constants so callers only fill
// in run facts.
func NewRunSettledEvent(runID string, outcome Outcome) RunSettledEvent {
	return RunSettledEvent{
		Version:   EventVersion,
		EventType: "run_settled",
		RunID:     runID,
		Outcome:   outcome,
		SettledAt: time.Now().UTC(),
	}
}

// Adapter publishes run_settled events to an external system.
type Adapter interface {
	// Publish delivers the event. Implementations retry internally;
	// an error means delivery ultimately failed.
	Publish(ctx context.Context, event RunSettledEvent) error

	// Close releases any held connections.
	Close() error
}
