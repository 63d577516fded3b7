package stage

import (
	"github.com/pithecene-io/dossier/types"
)

// Status is the derived display status of one stage.
type Status string

// Derived stage status constants.
const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// View is the derived display state of one stage. Views are recomputed on
// every read from (current stage pointer, run status); they are never
// stored.
type View struct {
	Key    string
	Label  string
	Status Status
}

// Derive computes the display status of every catalog stage from the run's
// current stage pointer and status. It is pure: identical inputs always
// yield identical output, and it holds no state between calls.
//
// Rules, in priority order:
//  1. completed run: every stage done.
//  2. failed run with a resolvable pointer: earlier stages done, the
//     pointed-at stage failed, later stages pending.
//  3. failed run without a resolvable pointer: no stage is marked failed;
//     stages derive as if the pointer were absent. The run-level failure
//     is carried by the run status, not by stage decoration.
//  4. non-terminal run with a resolvable pointer: earlier stages done, the
//     pointed-at stage active, later stages pending.
//  5. non-terminal run without a pointer: every stage pending.
//
// Unknown pointer keys are tolerated and treated as absent, never fatal.
func Derive(c *Catalog, currentStage string, status types.RunStatus) []View {
	views := make([]View, c.Len())
	ord, resolved := c.Resolve(currentStage)

	for i, s := range c.stages {
		views[i] = View{Key: s.Key, Label: s.Label, Status: statusAt(i, ord, resolved, status)}
	}
	return views
}

func statusAt(i, ord int, resolved bool, status types.RunStatus) Status {
	if status == types.RunStatusCompleted {
		return StatusDone
	}
	if !resolved {
		return StatusPending
	}
	switch {
	case i < ord:
		return StatusDone
	case i == ord:
		if status == types.RunStatusFailed {
			return StatusFailed
		}
		return StatusActive
	default:
		return StatusPending
	}
}
