// Package types defines core domain types for the dossier client.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RunStatus is the lifecycle status reported by the pipeline engine.
type RunStatus string

// Run status constants, matching the engine's wire vocabulary.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true if no further legitimate transition follows.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Known returns true if s is one of the defined status values.
func (s RunStatus) Known() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Run is the client-side view of one pipeline execution. It is the shape
// shared by the snapshot endpoint and every event on the live feed: the
// engine always transmits the whole document, with result sections filled
// in as stages complete.
//
// Sections holds every non-null top-level result key (clarified_idea,
// market_research, positioning, ...) as opaque JSON. The client never
// inspects section contents; it only accumulates them.
type Run struct {
	RunID        string
	RawIdea      string
	Status       RunStatus
	CurrentStage string // empty when the engine has not reported a stage
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	SelectedFunctions []string

	Sections map[string]json.RawMessage
}

// Meta keys of the run document. Every other non-null top-level key is a
// result section.
const (
	fieldRunID             = "run_id"
	fieldRawIdea           = "raw_idea"
	fieldStatus            = "status"
	fieldCurrentStage      = "current_step"
	fieldError             = "error"
	fieldCreatedAt         = "created_at"
	fieldUpdatedAt         = "updated_at"
	fieldSelectedFunctions = "selected_functions"
)

// SectionKeys returns the sorted set of section keys present.
// The returned slice is a fresh copy.
func (r *Run) SectionKeys() []string {
	keys := make([]string, 0, len(r.Sections))
	for k := range r.Sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the run. Section values are shared byte
// slices; they are treated as immutable everywhere in this codebase.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	out := *r
	if r.SelectedFunctions != nil {
		out.SelectedFunctions = append([]string(nil), r.SelectedFunctions...)
	}
	if r.Sections != nil {
		out.Sections = make(map[string]json.RawMessage, len(r.Sections))
		for k, v := range r.Sections {
			out.Sections[k] = v
		}
	}
	return &out
}

// UnmarshalJSON decodes the engine's flat run document. Meta fields are
// lifted into struct fields; every remaining non-null key becomes a section.
// The engine serializes absent sections as explicit nulls, so null values
// are skipped rather than stored.
func (r *Run) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("run document: %w", err)
	}

	*r = Run{}

	if err := popString(raw, fieldRunID, &r.RunID); err != nil {
		return err
	}
	if err := popString(raw, fieldRawIdea, &r.RawIdea); err != nil {
		return err
	}
	var status string
	if err := popString(raw, fieldStatus, &status); err != nil {
		return err
	}
	r.Status = RunStatus(status)
	if err := popString(raw, fieldCurrentStage, &r.CurrentStage); err != nil {
		return err
	}
	if err := popString(raw, fieldError, &r.Error); err != nil {
		return err
	}
	if err := popTime(raw, fieldCreatedAt, &r.CreatedAt); err != nil {
		return err
	}
	if err := popTime(raw, fieldUpdatedAt, &r.UpdatedAt); err != nil {
		return err
	}
	if v, ok := raw[fieldSelectedFunctions]; ok {
		delete(raw, fieldSelectedFunctions)
		if !isJSONNull(v) {
			if err := json.Unmarshal(v, &r.SelectedFunctions); err != nil {
				return fmt.Errorf("run document: %s: %w", fieldSelectedFunctions, err)
			}
		}
	}

	for k, v := range raw {
		if isJSONNull(v) {
			continue
		}
		if r.Sections == nil {
			r.Sections = make(map[string]json.RawMessage, len(raw))
		}
		r.Sections[k] = v
	}
	return nil
}

// MarshalJSON re-emits the flat document shape, sections at top level.
func (r *Run) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.Sections)+8)
	doc[fieldRunID] = r.RunID
	doc[fieldStatus] = r.Status
	if r.RawIdea != "" {
		doc[fieldRawIdea] = r.RawIdea
	}
	if r.CurrentStage != "" {
		doc[fieldCurrentStage] = r.CurrentStage
	}
	if r.Error != "" {
		doc[fieldError] = r.Error
	}
	if !r.CreatedAt.IsZero() {
		doc[fieldCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		doc[fieldUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(r.SelectedFunctions) > 0 {
		doc[fieldSelectedFunctions] = r.SelectedFunctions
	}
	for k, v := range r.Sections {
		doc[k] = v
	}
	return json.Marshal(doc)
}

func popString(raw map[string]json.RawMessage, key string, dst *string) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	delete(raw, key)
	if isJSONNull(v) {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("run document: %s: %w", key, err)
	}
	return nil
}

func popTime(raw map[string]json.RawMessage, key string, dst *time.Time) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	delete(raw, key)
	if isJSONNull(v) {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return fmt.Errorf("run document: %s: %w", key, err)
	}
	// The engine emits ISO 8601 with or without an explicit offset.
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			*dst = t
			return nil
		}
	}
	return fmt.Errorf("run document: %s: unrecognized timestamp %q", key, s)
}

func isJSONNull(v json.RawMessage) bool {
	return len(v) == 4 && string(v) == "null"
}
