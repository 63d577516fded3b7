// Package watch orchestrates the observation of one run: load a snapshot,
// seed the run store, subscribe to the live feed, merge events until a
// terminal condition, and close the subscription unconditionally on
// teardown.
//
// At most one subscription exists per watcher, and it never outlives the
// watcher's context. The store is fed from a single goroutine; everything
// else reads.
package watch

import (
	"context"
	"fmt"

	"github.com/pithecene-io/dossier/client"
	"github.com/pithecene-io/dossier/log"
	"github.com/pithecene-io/dossier/metrics"
	"github.com/pithecene-io/dossier/runstate"
	"github.com/pithecene-io/dossier/types"
)

// State is the watcher's lifecycle state.
type State string

// Watcher states. Settled and Failed are terminal; a new run identifier
// means a new watcher.
const (
	// StateIdle: constructed, Run not yet called.
	StateIdle State = "idle"
	// StateLoading: fetching the snapshot.
	StateLoading State = "loading"
	// StateSubscribed: live feed open, merging events.
	StateSubscribed State = "subscribed"
	// StateSettled: the run reached a terminal status (completed or
	// pipeline-reported failure) and the full document was merged.
	StateSettled State = "settled"
	// StateFailed: observation ended without a terminal payload (snapshot
	// failure or dropped connection). The last good run state is retained.
	StateFailed State = "failed"
)

// Feed abstracts a live event subscription for test injection.
// *client.Subscription satisfies it.
type Feed interface {
	Events() <-chan types.StreamEvent
	Err() error
	Close() error
}

// Engine abstracts the remote API surface the watcher needs.
type Engine interface {
	GetRun(ctx context.Context, runID string) (*types.Run, error)
	Subscribe(ctx context.Context, runID string) (Feed, error)
}

// NewEngine wraps an API client as an Engine.
func NewEngine(c *client.Client) Engine {
	return clientEngine{c}
}

type clientEngine struct {
	c *client.Client
}

func (e clientEngine) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	return e.c.GetRun(ctx, runID)
}

func (e clientEngine) Subscribe(ctx context.Context, runID string) (Feed, error) {
	return e.c.Subscribe(ctx, runID)
}

// Config configures a watcher.
type Config struct {
	// Engine is the remote API surface (required).
	Engine Engine
	// RunID is the run to observe (required).
	RunID string
	// Logger receives merge diagnostics. If nil, logging is disabled.
	Logger *log.Logger
	// Collector records watch metrics. Nil disables collection.
	Collector *metrics.Collector
	// Observer, when set, is called synchronously with every payload the
	// watcher accepts, before it is merged. Used for session recording.
	Observer func(types.StreamEvent)
	// Reconnects is how many times a dropped connection is re-subscribed
	// from the last known state before the watcher fails. Zero means a
	// single drop ends the watch.
	Reconnects int
}

// Outcome describes how a watch ended.
type Outcome struct {
	// State is StateSettled or StateFailed.
	State State
	// Run is the last authoritative run state; nil when the snapshot
	// never loaded.
	Run *types.Run
	// ConnectionLost is true when the feed dropped without a terminal
	// payload and reconnect attempts were exhausted.
	ConnectionLost bool
	// Err classifies the failure for StateFailed outcomes.
	Err error
}

// Watcher supervises the observation of one run.
type Watcher struct {
	config Config
	store  *runstate.Store
	logger *log.Logger

	state chan State // 1-buffered holder, see setState
}

// New creates a watcher for the given run.
func New(config Config) (*Watcher, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("watch: engine is required")
	}
	if config.RunID == "" {
		return nil, fmt.Errorf("watch: run id is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	w := &Watcher{
		config: config,
		store:  runstate.NewStore(),
		logger: logger,
		state:  make(chan State, 1),
	}
	w.state <- StateIdle
	return w, nil
}

// Store returns the run store the watcher feeds. Multi-reader safe.
func (w *Watcher) Store() *runstate.Store {
	return w.store
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	s := <-w.state
	w.state <- s
	return s
}

func (w *Watcher) setState(s State) {
	<-w.state
	w.state <- s
}

// Run executes the watch to completion: snapshot, subscribe, merge loop.
// It blocks until the run settles, the observation fails, or ctx is
// canceled. The subscription is closed before Run returns, regardless of
// how it returns.
func (w *Watcher) Run(ctx context.Context) (*Outcome, error) {
	w.setState(StateLoading)

	snapshot, err := w.config.Engine.GetRun(ctx, w.config.RunID)
	if err != nil {
		w.config.Collector.IncSnapshotFailures()
		w.setState(StateFailed)
		w.logger.Warn("snapshot load failed", map[string]any{"error": err.Error()})
		return &Outcome{State: StateFailed, Err: err}, nil
	}
	w.config.Collector.IncSnapshotsFetched()
	w.accept(types.StreamEvent{Type: types.StreamEventSnapshot, Run: snapshot})

	if snapshot.Status.IsTerminal() {
		w.setState(StateSettled)
		return &Outcome{State: StateSettled, Run: w.store.Current()}, nil
	}

	// Snapshot application happens-before subscription: a live event can
	// never be clobbered by a stale snapshot arriving later.
	reconnects := w.config.Reconnects
	for {
		outcome, retry, err := w.subscribeOnce(ctx)
		if err != nil || outcome != nil {
			return outcome, err
		}
		if !retry || reconnects <= 0 {
			w.setState(StateFailed)
			w.logger.Warn("event stream lost", map[string]any{"reconnects_left": 0})
			return &Outcome{
				State:          StateFailed,
				Run:            w.store.Current(),
				ConnectionLost: true,
				Err:            client.ErrStreamClosed,
			}, nil
		}
		reconnects--
		w.logger.Info("re-subscribing after stream loss", map[string]any{
			"reconnects_left": reconnects,
		})
	}
}

// subscribeOnce opens one subscription and drains it. Returns a non-nil
// outcome when the watch is finished, or retry=true when the connection
// dropped and a re-subscribe from current state is the recovery path.
func (w *Watcher) subscribeOnce(ctx context.Context) (outcome *Outcome, retry bool, err error) {
	feed, err := w.config.Engine.Subscribe(ctx, w.config.RunID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		w.setState(StateFailed)
		return &Outcome{State: StateFailed, Run: w.store.Current(), Err: err}, false, nil
	}
	// Unconditional close on every exit path: an unclosed subscription is
	// a dangling connection feeding a store nobody owns anymore.
	defer func() { _ = feed.Close() }()

	w.setState(StateSubscribed)

	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()

		case ev, ok := <-feed.Events():
			if !ok {
				// Feed ended without a terminal event.
				w.config.Collector.IncStreamFailures()
				return nil, true, nil
			}
			w.config.Collector.IncEventsReceived()

			switch {
			case ev.Type == types.StreamEventUpdate:
				w.accept(ev)

			case ev.Type == types.StreamEventComplete || ev.PipelineFailure():
				w.accept(ev)
				w.setState(StateSettled)
				return &Outcome{State: StateSettled, Run: w.store.Current()}, false, nil

			default:
				// Transport failure: no merge, prior state retained.
				w.config.Collector.IncStreamFailures()
				return nil, true, nil
			}
		}
	}
}

// accept routes one payload through the observer and the merge path.
func (w *Watcher) accept(ev types.StreamEvent) {
	if w.config.Observer != nil {
		w.config.Observer(ev)
	}
	info := w.store.Apply(ev.Run)
	w.config.Collector.IncUpdatesApplied()
	w.config.Collector.AddSectionsAdded(len(info.AddedSections))

	if info.Regressed {
		w.config.Collector.IncRegressionsGuarded()
		w.logger.Warn("ignored status regression from producer", map[string]any{
			"event":    string(ev.Type),
			"incoming": string(ev.Run.Status),
		})
	}
	if len(info.AddedSections) > 0 {
		w.logger.Debug("merged new result sections", map[string]any{
			"sections": info.AddedSections,
		})
	}
}
