package stage_test

import (
	"reflect"
	"testing"

	"github.com/pithecene-io/dossier/stage"
	"github.com/pithecene-io/dossier/types"
)

func statusByKey(t *testing.T, views []stage.View, key string) stage.Status {
	t.Helper()
	for _, v := range views {
		if v.Key == key {
			return v.Status
		}
	}
	t.Fatalf("stage %q not present in derived views", key)
	return ""
}

func countStatus(views []stage.View, s stage.Status) int {
	n := 0
	for _, v := range views {
		if v.Status == s {
			n++
		}
	}
	return n
}

func TestDerive_PendingNoStage_AllPending(t *testing.T) {
	c := stage.Default()
	views := stage.Derive(c, "", types.RunStatusPending)

	if len(views) != c.Len() {
		t.Fatalf("got %d views, want %d", len(views), c.Len())
	}
	if n := countStatus(views, stage.StatusPending); n != c.Len() {
		t.Errorf("%d stages pending, want all %d", n, c.Len())
	}
}

func TestDerive_RunningMidPipeline(t *testing.T) {
	c := stage.Default()
	views := stage.Derive(c, "market_research", types.RunStatusRunning)

	if got := statusByKey(t, views, "clarifier"); got != stage.StatusDone {
		t.Errorf("clarifier = %s, want done", got)
	}
	if got := statusByKey(t, views, "market_research"); got != stage.StatusActive {
		t.Errorf("market_research = %s, want active", got)
	}
	if got := statusByKey(t, views, "positioning"); got != stage.StatusPending {
		t.Errorf("positioning = %s, want pending", got)
	}
	if n := countStatus(views, stage.StatusActive); n != 1 {
		t.Errorf("%d active stages, want exactly 1", n)
	}
}

func TestDerive_OrdinalConsistency(t *testing.T) {
	c := stage.Default()
	ord, _ := c.Resolve("finance")
	views := stage.Derive(c, "finance", types.RunStatusRunning)

	for i, v := range views {
		var want stage.Status
		switch {
		case i < ord:
			want = stage.StatusDone
		case i == ord:
			want = stage.StatusActive
		default:
			want = stage.StatusPending
		}
		if v.Status != want {
			t.Errorf("ordinal %d (%s) = %s, want %s", i, v.Key, v.Status, want)
		}
	}
}

func TestDerive_Completed_AllDone(t *testing.T) {
	c := stage.Default()
	// A final snapshot may omit the stage pointer entirely.
	for _, pointer := range []string{"", "finance", "warp_drive"} {
		views := stage.Derive(c, pointer, types.RunStatusCompleted)
		if n := countStatus(views, stage.StatusDone); n != c.Len() {
			t.Errorf("pointer %q: %d stages done, want all %d", pointer, n, c.Len())
		}
	}
}

func TestDerive_FailedAtStage(t *testing.T) {
	c := stage.Default()
	views := stage.Derive(c, "finance", types.RunStatusFailed)

	if got := statusByKey(t, views, "finance"); got != stage.StatusFailed {
		t.Errorf("finance = %s, want failed", got)
	}
	if got := statusByKey(t, views, "moderator"); got != stage.StatusDone {
		t.Errorf("moderator = %s, want done", got)
	}
	if got := statusByKey(t, views, "finalizer"); got != stage.StatusPending {
		t.Errorf("finalizer = %s, want pending", got)
	}
	if n := countStatus(views, stage.StatusFailed); n != 1 {
		t.Errorf("%d failed stages, want exactly 1", n)
	}
}

func TestDerive_FailedUnresolvedPointer_NoStageFailed(t *testing.T) {
	c := stage.Default()
	for _, pointer := range []string{"", "warp_drive"} {
		views := stage.Derive(c, pointer, types.RunStatusFailed)
		if n := countStatus(views, stage.StatusFailed); n != 0 {
			t.Errorf("pointer %q: %d failed stages, want 0", pointer, n)
		}
		if n := countStatus(views, stage.StatusPending); n != c.Len() {
			t.Errorf("pointer %q: %d pending stages, want all %d", pointer, n, c.Len())
		}
	}
}

func TestDerive_AliasedPointer(t *testing.T) {
	c := stage.Default()
	views := stage.Derive(c, "market", types.RunStatusRunning)

	if got := statusByKey(t, views, "market_research"); got != stage.StatusActive {
		t.Errorf("aliased pointer: market_research = %s, want active", got)
	}
}

func TestDerive_Pure(t *testing.T) {
	c := stage.Default()
	first := stage.Derive(c, "moderator", types.RunStatusRunning)
	second := stage.Derive(c, "moderator", types.RunStatusRunning)

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs must yield identical output")
	}

	// Mutating a returned view must not affect subsequent derivations.
	first[0].Status = stage.StatusFailed
	third := stage.Derive(c, "moderator", types.RunStatusRunning)
	if !reflect.DeepEqual(second, third) {
		t.Error("derivation must hold no state between calls")
	}
}
