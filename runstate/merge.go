// Package runstate holds the authoritative state of one observed run:
// a pure merge function folding incoming payloads into the accumulated
// run document, and a Store wrapping it with single-writer discipline.
package runstate

import (
	"encoding/json"

	"github.com/pithecene-io/dossier/types"
)

// Info reports what a merge did, for diagnostics and metrics.
// Merge itself stays pure; callers decide what to log.
type Info struct {
	// Seeded is true when there was no prior state and the incoming
	// payload became the initial run verbatim.
	Seeded bool
	// Regressed is true when the incoming payload attempted to move a
	// terminal status back to a non-terminal one. The status and stage
	// pointer were kept; sections were still merged.
	Regressed bool
	// AddedSections lists result sections present in the merged run that
	// were absent before.
	AddedSections []string
}

// Merge folds an incoming run document into the current state and returns
// the new state. Pure and total: no side effects, never fails, inputs are
// not mutated.
//
// Result sections are whole-document replacements keyed by section name;
// each section is produced atomically by one pipeline stage and never
// revised piecemeal, so no deep merging happens. Status never regresses
// from terminal to non-terminal. A missing stage pointer means "no new
// information", not "no stage".
//
// Duplicate deliveries are idempotent by construction: overwriting a
// section with identical bytes and re-applying an already-held status
// change nothing.
func Merge(current, incoming *types.Run) (*types.Run, Info) {
	if incoming == nil {
		return current, Info{}
	}
	if current == nil {
		seeded := incoming.Clone()
		return seeded, Info{Seeded: true, AddedSections: seeded.SectionKeys()}
	}

	merged := current.Clone()
	var info Info

	for key, doc := range incoming.Sections {
		if merged.Sections == nil {
			merged.Sections = make(map[string]json.RawMessage, len(incoming.Sections))
		}
		if _, had := merged.Sections[key]; !had {
			info.AddedSections = append(info.AddedSections, key)
		}
		merged.Sections[key] = doc
	}

	switch {
	case incoming.Status == "":
		// A payload without a status carries no new lifecycle
		// information; keep the status we hold. The stage pointer and
		// error may still advance.
		if incoming.CurrentStage != "" {
			merged.CurrentStage = incoming.CurrentStage
		}
		if incoming.Error != "" {
			merged.Error = incoming.Error
		}
	case current.Status.IsTerminal() && !incoming.Status.IsTerminal():
		// Misbehaving producer; keep status and stage pointer as they were.
		info.Regressed = true
	default:
		merged.Status = incoming.Status
		if incoming.CurrentStage != "" {
			merged.CurrentStage = incoming.CurrentStage
		}
		if incoming.Error != "" {
			merged.Error = incoming.Error
		}
	}

	if merged.RunID == "" {
		merged.RunID = incoming.RunID
	}
	if merged.RawIdea == "" {
		merged.RawIdea = incoming.RawIdea
	}
	if len(merged.SelectedFunctions) == 0 && len(incoming.SelectedFunctions) > 0 {
		merged.SelectedFunctions = append([]string(nil), incoming.SelectedFunctions...)
	}
	// CreatedAt is set once for the run's lifetime.
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = incoming.CreatedAt
	}
	if incoming.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = incoming.UpdatedAt
	}

	return merged, info
}
