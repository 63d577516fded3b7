// Package stage defines the ordered stage catalog for the analysis
// pipeline and the derivation of per-stage display status from run state.
//
// The catalog is static configuration, one per deployed pipeline variant.
// It must match the stage-key vocabulary the engine emits in current_step;
// where the two vocabularies differ, an alias table translates engine keys
// to catalog keys.
package stage

import (
	"fmt"
)

// Stage is one named, ordered unit of work within a run.
type Stage struct {
	// Key is the canonical stage identifier.
	Key string
	// Label is the short display name.
	Label string
}

// Catalog is the ordered stage list for one pipeline variant.
// Ordinal is position in the list; the ordering defines progress semantics.
type Catalog struct {
	stages  []Stage
	index   map[string]int
	aliases map[string]string
}

// NewCatalog builds a catalog from an ordered stage list and an optional
// alias table mapping engine stage keys to catalog keys. Alias targets must
// resolve to catalog keys.
func NewCatalog(stages []Stage, aliases map[string]string) (*Catalog, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("stage catalog must not be empty")
	}

	index := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.Key == "" {
			return nil, fmt.Errorf("stage at ordinal %d has an empty key", i)
		}
		if _, dup := index[s.Key]; dup {
			return nil, fmt.Errorf("duplicate stage key %q", s.Key)
		}
		index[s.Key] = i
	}

	for from, to := range aliases {
		if _, ok := index[to]; !ok {
			return nil, fmt.Errorf("alias %q -> %q does not resolve to a catalog key", from, to)
		}
	}

	copied := make(map[string]string, len(aliases))
	for from, to := range aliases {
		copied[from] = to
	}

	return &Catalog{
		stages:  append([]Stage(nil), stages...),
		index:   index,
		aliases: copied,
	}, nil
}

// Len returns the number of stages.
func (c *Catalog) Len() int { return len(c.stages) }

// Stages returns the ordered stage list as a fresh copy.
func (c *Catalog) Stages() []Stage {
	return append([]Stage(nil), c.stages...)
}

// Resolve maps an engine stage key to its catalog ordinal, applying the
// alias table. Unknown keys resolve to (-1, false); callers tolerate them
// and treat the pointer as absent.
func (c *Catalog) Resolve(key string) (int, bool) {
	if key == "" {
		return -1, false
	}
	if target, ok := c.aliases[key]; ok {
		key = target
	}
	ord, ok := c.index[key]
	if !ok {
		return -1, false
	}
	return ord, true
}

// WithAliases returns a copy of the catalog with extra alias entries
// layered on top of the existing table. Entries for the same engine key
// override the originals.
func (c *Catalog) WithAliases(aliases map[string]string) (*Catalog, error) {
	merged := make(map[string]string, len(c.aliases)+len(aliases))
	for from, to := range c.aliases {
		merged[from] = to
	}
	for from, to := range aliases {
		merged[from] = to
	}
	return NewCatalog(c.stages, merged)
}

// defaultStages is the 10-stage venture-analysis pipeline.
var defaultStages = []Stage{
	{Key: "clarifier", Label: "Idea"},
	{Key: "market_research", Label: "Market"},
	{Key: "positioning", Label: "Strategy"},
	{Key: "mvp_planner", Label: "MVP"},
	{Key: "landing_copy", Label: "Landing"},
	{Key: "bull_investor", Label: "Bull"},
	{Key: "skeptic_investor", Label: "Skeptic"},
	{Key: "moderator", Label: "Debate"},
	{Key: "finance", Label: "Finance"},
	{Key: "finalizer", Label: "Final"},
}

// defaultAliases covers engine-side key renames observed across deployed
// pipeline variants.
var defaultAliases = map[string]string{
	"market":   "market_research",
	"strategy": "positioning",
	"mvp":      "mvp_planner",
	"finalize": "finalizer",
}

// Default returns the catalog for the standard venture-analysis pipeline.
func Default() *Catalog {
	c, err := NewCatalog(defaultStages, defaultAliases)
	if err != nil {
		// Compiled-in catalog; unreachable unless the tables above are broken.
		panic(err)
	}
	return c
}
