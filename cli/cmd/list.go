package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dossier/cli/render"
	"github.com/pithecene-io/dossier/types"
)

// listWarningThreshold is the number of rows above which we warn about --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// runRow is the thin listing slice; full documents come from show.
type runRow struct {
	RunID        string `json:"run_id"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_step"`
	RawIdea      string `json:"raw_idea"`
	UpdatedAt    string `json:"updated_at"`
}

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List known runs",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status: pending, running, completed, failed",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	statusFilter := c.String("status")
	if statusFilter != "" && !types.RunStatus(statusFilter).Known() {
		return cli.Exit(fmt.Sprintf("invalid status filter: %q", statusFilter), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	api, err := newClient(c, cfg)
	if err != nil {
		return err
	}

	runs, err := api.ListRuns(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}

	rows := make([]runRow, 0, len(runs))
	for _, run := range runs {
		if statusFilter != "" && string(run.Status) != statusFilter {
			continue
		}
		row := runRow{
			RunID:        run.RunID,
			Status:       string(run.Status),
			CurrentStage: run.CurrentStage,
			RawIdea:      truncate(run.RawIdea, 48),
		}
		if !run.UpdatedAt.IsZero() {
			row.UpdatedAt = run.UpdatedAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, row)
	}

	// TTY only to avoid noise in pipelines.
	if len(rows) > listWarningThreshold && c.Int("limit") == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(rows))
	}

	return r.Render(rows)
}

// truncate shortens s to at most max runes, ending with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
