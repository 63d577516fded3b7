package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dossier/adapter"
	adapterredis "github.com/pithecene-io/dossier/adapter/redis"
	adapterwebhook "github.com/pithecene-io/dossier/adapter/webhook"
	"github.com/pithecene-io/dossier/cli/config"
	"github.com/pithecene-io/dossier/cli/render"
	"github.com/pithecene-io/dossier/cli/tui"
	"github.com/pithecene-io/dossier/client"
	"github.com/pithecene-io/dossier/log"
	"github.com/pithecene-io/dossier/metrics"
	"github.com/pithecene-io/dossier/session"
	"github.com/pithecene-io/dossier/stage"
	"github.com/pithecene-io/dossier/types"
	"github.com/pithecene-io/dossier/watch"
)

// Exit codes for watch.
const (
	exitRunCompleted = 0
	exitRunFailed    = 1
	exitStreamLost   = 2
	exitRunNotFound  = 3

	exitAborted = 130
)

// defaultReconnects is how many stream drops are re-subscribed before
// the watch gives up, absent config or flag.
const defaultReconnects = 1

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Follow a run live until it settles",
		ArgsUsage: "<run-id>",
		Flags: append(ReadOnlyFlags(),
			&cli.IntFlag{
				Name:  "reconnects",
				Usage: "Times to re-subscribe after a dropped stream",
				Value: defaultReconnects,
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Line-oriented output instead of the live TUI",
			},
			&cli.StringFlag{
				Name:  "record",
				Usage: "Record every received payload to a session file",
			},
			&cli.BoolFlag{
				Name:  "no-notify",
				Usage: "Skip the configured completion notification",
			},
		),
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	runID := c.Args().First()
	if runID == "" {
		return cli.Exit("usage: dossier watch <run-id>", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	api, err := newClient(c, cfg)
	if err != nil {
		return err
	}
	return watchRun(c, cfg, api, runID)
}

// watchRun executes the watch for runID and exits with the outcome code.
// Shared by watch and start --watch.
func watchRun(c *cli.Context, cfg *config.Config, api *client.Client, runID string) error {
	catalog, err := cfg.StageCatalog()
	if err != nil {
		return err
	}

	plain := c.Bool("plain") || cfg.Watch.Plain || !isStdoutTTY()

	reconnects := c.Int("reconnects")
	if !c.IsSet("reconnects") && cfg.Watch.Reconnects != nil {
		reconnects = *cfg.Watch.Reconnects
	}

	// The TUI owns the terminal; log lines would corrupt its frame.
	logger := log.NewNop()
	if plain {
		logger = log.NewLogger(runID)
	}

	var observer func(types.StreamEvent)
	recordPath := c.String("record")
	if recordPath == "" {
		recordPath = cfg.Watch.Record
	}
	if recordPath != "" {
		rec, err := session.NewRecorder(recordPath)
		if err != nil {
			return fmt.Errorf("open session file: %w", err)
		}
		defer func() {
			if cerr := rec.Close(); cerr != nil {
				logger.Warn("session file close failed", map[string]any{"error": cerr.Error()})
			}
		}()
		observer = rec.Observe
	}

	collector := metrics.NewCollector(runID)
	watcher, err := watch.New(watch.Config{
		Engine:     watch.NewEngine(api),
		RunID:      runID,
		Logger:     logger,
		Collector:  collector,
		Observer:   observer,
		Reconnects: reconnects,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	var outcome *watch.Outcome
	if plain {
		outcome, err = runPlain(ctx, watcher, catalog, logger)
	} else {
		outcome, err = runTUI(ctx, cancel, watcher, catalog, runID)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return cli.Exit("", exitAborted)
		}
		return err
	}
	if outcome == nil {
		return cli.Exit("", exitAborted)
	}

	if !c.Bool("no-notify") {
		notifySettled(cfg, runID, outcome, logger)
	}

	if plain {
		if rerr := renderOutcome(c, catalog, collector, outcome); rerr != nil {
			return rerr
		}
	}

	return cli.Exit("", outcomeExitCode(outcome))
}

// runPlain runs the watcher in the foreground, logging stage transitions
// as they land in the store.
func runPlain(ctx context.Context, watcher *watch.Watcher, catalog *stage.Catalog, logger *log.Logger) (*watch.Outcome, error) {
	store := watcher.Store()
	changes := store.Changes()
	// Exits with the watch context, which the caller cancels on return.
	go func() {
		lastStage := ""
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				run := store.Current()
				if run == nil || run.CurrentStage == lastStage {
					continue
				}
				lastStage = run.CurrentStage
				if ord, ok := catalog.Resolve(run.CurrentStage); ok {
					logger.Info("pipeline advanced", map[string]any{
						"stage":   run.CurrentStage,
						"ordinal": ord,
						"status":  string(run.Status),
					})
				}
			}
		}
	}()

	return watcher.Run(ctx)
}

// runTUI runs the watcher in the background and the live view in the
// foreground. A nil outcome with nil error means the user quit early.
func runTUI(ctx context.Context, cancel context.CancelFunc, watcher *watch.Watcher, catalog *stage.Catalog, runID string) (*watch.Outcome, error) {
	outcomeCh := make(chan watch.Outcome, 1)
	errCh := make(chan error, 1)
	go func() {
		outcome, err := watcher.Run(ctx)
		if err != nil {
			errCh <- err
			return
		}
		outcomeCh <- *outcome
	}()

	final, aborted, err := tui.RunWatchTUI(runID, watcher.Store(), catalog, outcomeCh)
	if err != nil {
		cancel()
		return nil, err
	}
	if aborted {
		cancel()
		// Wait for the watcher to release its subscription.
		select {
		case <-outcomeCh:
		case <-errCh:
		}
		return nil, nil
	}
	if final == nil {
		// The TUI exited without an outcome; surface the watcher error.
		select {
		case err := <-errCh:
			return nil, err
		case outcome := <-outcomeCh:
			return &outcome, nil
		}
	}
	return final, nil
}

// notifySettled publishes a run_settled event via the configured adapter.
// Delivery failure is logged, never fatal: the watch result stands on its
// own.
func notifySettled(cfg *config.Config, runID string, outcome *watch.Outcome, logger *log.Logger) {
	if cfg.Adapter.Type == "" {
		return
	}

	a, err := buildAdapter(cfg)
	if err != nil {
		logger.Warn("notification adapter unavailable", map[string]any{"error": err.Error()})
		return
	}
	defer func() { _ = a.Close() }()

	ev := adapter.NewRunSettledEvent(runID, outcomeKind(outcome))
	if run := outcome.Run; run != nil {
		ev.Status = string(run.Status)
		ev.CurrentStage = run.CurrentStage
		ev.ErrorMessage = run.Error
		ev.Sections = run.SectionKeys()
	}

	if err := a.Publish(context.Background(), ev); err != nil {
		logger.Warn("run_settled notification failed", map[string]any{"error": err.Error()})
	}
}

func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	retries := -1
	if cfg.Adapter.Retries != nil {
		retries = *cfg.Adapter.Retries
	}

	switch cfg.Adapter.Type {
	case "webhook":
		return adapterwebhook.New(adapterwebhook.Config{
			URL:     cfg.Adapter.URL,
			Headers: cfg.Adapter.Headers,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		return adapterredis.New(context.Background(), adapterredis.Config{
			Addr:    cfg.Adapter.Addr,
			Channel: cfg.Adapter.Channel,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", cfg.Adapter.Type)
	}
}

func outcomeKind(outcome *watch.Outcome) adapter.Outcome {
	switch {
	case outcome.ConnectionLost:
		return adapter.OutcomeConnectionLost
	case outcome.Run != nil && outcome.Run.Status == types.RunStatusCompleted:
		return adapter.OutcomeCompleted
	default:
		return adapter.OutcomeFailed
	}
}

func outcomeExitCode(outcome *watch.Outcome) int {
	if outcome.State == watch.StateSettled && outcome.Run != nil {
		if outcome.Run.Status == types.RunStatusCompleted {
			return exitRunCompleted
		}
		return exitRunFailed
	}
	if errors.Is(outcome.Err, client.ErrNotFound) {
		return exitRunNotFound
	}
	return exitStreamLost
}

// watchSummary is the plain-mode final report.
type watchSummary struct {
	RunID        string           `json:"run_id"`
	Status       string           `json:"status"`
	CurrentStage string           `json:"current_step,omitempty"`
	Error        string           `json:"error,omitempty"`
	Stages       []stageSummary   `json:"stages"`
	Metrics      metrics.Snapshot `json:"metrics"`
}

type stageSummary struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

func renderOutcome(c *cli.Context, catalog *stage.Catalog, collector *metrics.Collector, outcome *watch.Outcome) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	summary := watchSummary{
		Status:  string(outcome.State),
		Metrics: collector.Snapshot(),
	}
	currentStage := ""
	if run := outcome.Run; run != nil {
		summary.RunID = run.RunID
		summary.Status = string(run.Status)
		summary.CurrentStage = run.CurrentStage
		summary.Error = run.Error
		currentStage = run.CurrentStage
	}
	for _, v := range stage.Derive(catalog, currentStage, runStatusOf(outcome.Run)) {
		summary.Stages = append(summary.Stages, stageSummary{
			Key:    v.Key,
			Label:  v.Label,
			Status: string(v.Status),
		})
	}

	return r.Render(summary)
}

func runStatusOf(run *types.Run) types.RunStatus {
	if run == nil {
		return types.RunStatusPending
	}
	return run.Status
}

// isStdoutTTY returns true if stdout is a TTY.
func isStdoutTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
