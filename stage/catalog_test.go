package stage_test

import (
	"testing"

	"github.com/pithecene-io/dossier/stage"
)

func TestNewCatalog_RejectsEmpty(t *testing.T) {
	if _, err := stage.NewCatalog(nil, nil); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestNewCatalog_RejectsDuplicateKeys(t *testing.T) {
	_, err := stage.NewCatalog([]stage.Stage{
		{Key: "a", Label: "A"},
		{Key: "a", Label: "A again"},
	}, nil)
	if err == nil {
		t.Fatal("expected error for duplicate key")
	}
}

func TestNewCatalog_RejectsDanglingAlias(t *testing.T) {
	_, err := stage.NewCatalog(
		[]stage.Stage{{Key: "a", Label: "A"}},
		map[string]string{"b": "missing"},
	)
	if err == nil {
		t.Fatal("expected error for alias pointing outside the catalog")
	}
}

func TestCatalog_ResolveOrdinals(t *testing.T) {
	c := stage.Default()

	ord, ok := c.Resolve("clarifier")
	if !ok || ord != 0 {
		t.Errorf("Resolve(clarifier) = (%d, %v), want (0, true)", ord, ok)
	}
	ord, ok = c.Resolve("finalizer")
	if !ok || ord != c.Len()-1 {
		t.Errorf("Resolve(finalizer) = (%d, %v), want (%d, true)", ord, ok, c.Len()-1)
	}
}

func TestCatalog_ResolveAlias(t *testing.T) {
	c := stage.Default()

	direct, ok := c.Resolve("market_research")
	if !ok {
		t.Fatal("market_research should resolve")
	}
	aliased, ok := c.Resolve("market")
	if !ok {
		t.Fatal("alias market should resolve")
	}
	if direct != aliased {
		t.Errorf("alias resolved to ordinal %d, want %d", aliased, direct)
	}
}

func TestCatalog_ResolveUnknown(t *testing.T) {
	c := stage.Default()

	if _, ok := c.Resolve("warp_drive"); ok {
		t.Error("unknown key should not resolve")
	}
	if _, ok := c.Resolve(""); ok {
		t.Error("empty key should not resolve")
	}
}

func TestCatalog_StagesIsACopy(t *testing.T) {
	c := stage.Default()
	stages := c.Stages()
	stages[0].Key = "mutated"

	if ord, ok := c.Resolve("clarifier"); !ok || ord != 0 {
		t.Error("mutating the returned slice must not affect the catalog")
	}
}

func TestCatalog_WithAliases(t *testing.T) {
	c, err := stage.Default().WithAliases(map[string]string{"money": "finance"})
	if err != nil {
		t.Fatalf("WithAliases: %v", err)
	}

	if ord, ok := c.Resolve("money"); !ok || ord != 8 {
		t.Errorf("Resolve(money) = (%d, %v), want (8, true)", ord, ok)
	}
	// Built-in aliases survive the merge.
	if _, ok := c.Resolve("market"); !ok {
		t.Error("built-in alias market should still resolve")
	}
	// Original catalog is untouched.
	if _, ok := stage.Default().Resolve("money"); ok {
		t.Error("Default catalog must not gain the new alias")
	}
}

func TestCatalog_WithAliasesRejectsDangling(t *testing.T) {
	if _, err := stage.Default().WithAliases(map[string]string{"x": "nowhere"}); err == nil {
		t.Fatal("expected error for dangling alias")
	}
}
