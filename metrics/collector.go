// Package metrics provides per-watch metrics collection.
//
// The Collector accumulates counters while one run is being observed. It
// is a leaf package with no internal dependencies. All increment methods
// are nil-receiver safe so instrumentation never needs guarding.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the collected counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Snapshot loading
	SnapshotsFetched int64 `json:"snapshots_fetched"`
	SnapshotFailures int64 `json:"snapshot_failures"`

	// Live feed
	EventsReceived int64 `json:"events_received"`
	UpdatesApplied int64 `json:"updates_applied"`
	SectionsAdded  int64 `json:"sections_added"`
	StreamFailures int64 `json:"stream_failures"`

	// Merge anomalies
	RegressionsGuarded int64 `json:"regressions_guarded"`

	// Dimensions (informational, set at construction)
	RunID string `json:"run_id"`
}

// Collector accumulates metrics while observing a single run.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	snapshotsFetched int64
	snapshotFailures int64

	eventsReceived int64
	updatesApplied int64
	sectionsAdded  int64
	streamFailures int64

	regressionsGuarded int64

	runID string
}

// NewCollector creates a collector for the given run.
func NewCollector(runID string) *Collector {
	return &Collector{runID: runID}
}

// IncSnapshotsFetched records a successful snapshot fetch.
func (c *Collector) IncSnapshotsFetched() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.snapshotsFetched++
	c.mu.Unlock()
}

// IncSnapshotFailures records a failed snapshot fetch.
func (c *Collector) IncSnapshotFailures() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.snapshotFailures++
	c.mu.Unlock()
}

// IncEventsReceived records one event delivered by the live feed.
func (c *Collector) IncEventsReceived() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsReceived++
	c.mu.Unlock()
}

// IncUpdatesApplied records one payload merged into the run store.
func (c *Collector) IncUpdatesApplied() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.updatesApplied++
	c.mu.Unlock()
}

// AddSectionsAdded records result sections newly added by a merge.
func (c *Collector) AddSectionsAdded(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sectionsAdded += int64(n)
	c.mu.Unlock()
}

// IncStreamFailures records a transport-level feed failure.
func (c *Collector) IncStreamFailures() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamFailures++
	c.mu.Unlock()
}

// IncRegressionsGuarded records a terminal-to-non-terminal status attempt
// that the merge refused.
func (c *Collector) IncRegressionsGuarded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.regressionsGuarded++
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of the current counters.
// A nil collector yields a zero snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SnapshotsFetched:   c.snapshotsFetched,
		SnapshotFailures:   c.snapshotFailures,
		EventsReceived:     c.eventsReceived,
		UpdatesApplied:     c.updatesApplied,
		SectionsAdded:      c.sectionsAdded,
		StreamFailures:     c.streamFailures,
		RegressionsGuarded: c.regressionsGuarded,
		RunID:              c.runID,
	}
}
