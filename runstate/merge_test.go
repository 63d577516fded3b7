package runstate_test

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/pithecene-io/dossier/runstate"
	"github.com/pithecene-io/dossier/types"
)

func runDoc(t *testing.T, doc string) *types.Run {
	t.Helper()
	var run types.Run
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		t.Fatalf("unmarshal run document: %v", err)
	}
	return &run
}

func TestMerge_NilCurrentSeedsVerbatim(t *testing.T) {
	incoming := runDoc(t, `{"run_id": "r1", "status": "pending"}`)

	merged, info := runstate.Merge(nil, incoming)
	if !info.Seeded {
		t.Error("expected Seeded")
	}
	if merged.RunID != "r1" || merged.Status != types.RunStatusPending {
		t.Errorf("seed mismatch: %+v", merged)
	}

	// Seed is a copy, not an alias.
	merged.Status = types.RunStatusFailed
	if incoming.Status != types.RunStatusPending {
		t.Error("seeding must not alias the incoming payload")
	}
}

func TestMerge_Idempotent(t *testing.T) {
	payload := runDoc(t, `{
		"run_id": "r1",
		"status": "running",
		"current_step": "clarifier",
		"clarified_idea": {"problem": "p"}
	}`)

	once, _ := runstate.Merge(nil, payload)
	twice, info := runstate.Merge(once, payload)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge(merge(nil, P), P) != merge(nil, P):\n%+v\n%+v", once, twice)
	}
	if len(info.AddedSections) != 0 {
		t.Errorf("re-applied payload added sections: %v", info.AddedSections)
	}
}

func TestMerge_SectionsAccumulate(t *testing.T) {
	first := runDoc(t, `{"run_id": "r1", "status": "running", "clarified_idea": {"a": 1}}`)
	second := runDoc(t, `{"run_id": "r1", "status": "running", "market_research": {"b": 2}}`)

	state, _ := runstate.Merge(nil, first)
	state, info := runstate.Merge(state, second)

	if len(state.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %v", state.SectionKeys())
	}
	if !reflect.DeepEqual(info.AddedSections, []string{"market_research"}) {
		t.Errorf("AddedSections = %v, want [market_research]", info.AddedSections)
	}
}

func TestMerge_SectionOverwriteWholeDocument(t *testing.T) {
	first := runDoc(t, `{"run_id": "r1", "status": "running", "finance": {"inputs": {"cac": 10}}}`)
	second := runDoc(t, `{"run_id": "r1", "status": "running", "finance": {"outputs": {"gross_margin": 0.8}}}`)

	state, _ := runstate.Merge(nil, first)
	state, _ = runstate.Merge(state, second)

	var finance map[string]any
	if err := json.Unmarshal(state.Sections["finance"], &finance); err != nil {
		t.Fatalf("unmarshal finance section: %v", err)
	}
	if _, kept := finance["inputs"]; kept {
		t.Error("sections are whole-document replacements, not deep merges")
	}
	if _, present := finance["outputs"]; !present {
		t.Error("replacement section lost")
	}
}

func TestMerge_TerminalStatusNeverRegresses(t *testing.T) {
	done := runDoc(t, `{"run_id": "r1", "status": "completed", "current_step": "finalizer"}`)
	stale := runDoc(t, `{"run_id": "r1", "status": "running", "current_step": "finance", "finance": {"x": 1}}`)

	state, _ := runstate.Merge(nil, done)
	state, info := runstate.Merge(state, stale)

	if !info.Regressed {
		t.Error("expected Regressed for terminal -> non-terminal attempt")
	}
	if state.Status != types.RunStatusCompleted {
		t.Errorf("status regressed to %q", state.Status)
	}
	if state.CurrentStage != "finalizer" {
		t.Errorf("stage pointer regressed to %q", state.CurrentStage)
	}
	// Sections from the anomalous payload are still merged.
	if _, ok := state.Sections["finance"]; !ok {
		t.Error("new sections from a regressing payload must still be merged")
	}
}

func TestMerge_MissingStatusKeepsPrior(t *testing.T) {
	first := runDoc(t, `{"run_id": "r1", "status": "running", "current_step": "positioning"}`)
	second := runDoc(t, `{"run_id": "r1", "current_step": "mvp_planner", "mvp_plan": {"weeks": 4}}`)

	state, _ := runstate.Merge(nil, first)
	state, info := runstate.Merge(state, second)

	if state.Status != types.RunStatusRunning {
		t.Errorf("missing status overwrote the held status with %q", state.Status)
	}
	if info.Regressed {
		t.Error("missing status is absent information, not a regression")
	}
	// Pointer and sections still advance.
	if state.CurrentStage != "mvp_planner" {
		t.Errorf("CurrentStage = %q, want mvp_planner", state.CurrentStage)
	}
	if _, ok := state.Sections["mvp_plan"]; !ok {
		t.Error("sections from a status-less payload must still be merged")
	}
}

func TestMerge_MissingPointerKeepsPrior(t *testing.T) {
	first := runDoc(t, `{"run_id": "r1", "status": "running", "current_step": "moderator"}`)
	second := runDoc(t, `{"run_id": "r1", "status": "running"}`)

	state, _ := runstate.Merge(nil, first)
	state, _ = runstate.Merge(state, second)

	if state.CurrentStage != "moderator" {
		t.Errorf("missing pointer means no new information; got %q", state.CurrentStage)
	}
}

func TestMerge_PointerAdvances(t *testing.T) {
	first := runDoc(t, `{"run_id": "r1", "status": "running", "current_step": "clarifier"}`)
	second := runDoc(t, `{"run_id": "r1", "status": "running", "current_step": "market_research"}`)

	state, _ := runstate.Merge(nil, first)
	state, _ = runstate.Merge(state, second)

	if state.CurrentStage != "market_research" {
		t.Errorf("CurrentStage = %q, want market_research", state.CurrentStage)
	}
}

func TestMerge_ErrorMessageSurfaces(t *testing.T) {
	first := runDoc(t, `{"run_id": "r1", "status": "running", "current_step": "finance"}`)
	failed := runDoc(t, `{"run_id": "r1", "status": "failed", "current_step": "finance", "error": "budget model diverged"}`)

	state, _ := runstate.Merge(nil, first)
	state, _ = runstate.Merge(state, failed)

	if state.Status != types.RunStatusFailed {
		t.Errorf("Status = %q, want failed", state.Status)
	}
	if state.Error != "budget model diverged" {
		t.Errorf("Error = %q, want verbatim message", state.Error)
	}
}

func TestMerge_CreatedAtSetOnce(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	first := &types.Run{RunID: "r1", Status: types.RunStatusRunning, CreatedAt: created}
	second := &types.Run{RunID: "r1", Status: types.RunStatusRunning, CreatedAt: created.Add(time.Hour)}

	state, _ := runstate.Merge(nil, first)
	state, _ = runstate.Merge(state, second)

	if !state.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt mutated to %v", state.CreatedAt)
	}
}

func TestMerge_InputsNotMutated(t *testing.T) {
	current := runDoc(t, `{"run_id": "r1", "status": "running", "clarified_idea": {"a": 1}}`)
	state, _ := runstate.Merge(nil, current)

	incoming := runDoc(t, `{"run_id": "r1", "status": "running", "market_research": {"b": 2}}`)
	runstate.Merge(state, incoming)

	if len(state.Sections) != 1 {
		t.Error("merge mutated its current argument")
	}
	if len(incoming.Sections) != 1 {
		t.Error("merge mutated its incoming argument")
	}
}

func TestMerge_NilIncomingIsNoop(t *testing.T) {
	state, _ := runstate.Merge(nil, runDoc(t, `{"run_id": "r1", "status": "running"}`))
	same, info := runstate.Merge(state, nil)
	if same != state || info.Seeded || info.Regressed {
		t.Error("nil incoming must be a no-op")
	}
}
