package cmd

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dossier/cli/render"
	"github.com/pithecene-io/dossier/client"
	"github.com/pithecene-io/dossier/stage"
)

// ShowCommand returns the show command.
func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the current state of a run",
		ArgsUsage: "<run-id>",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "sections",
				Usage: "Include full result section documents",
			},
		),
		Action: showAction,
	}
}

// showResponse is the show command payload.
type showResponse struct {
	RunID        string                     `json:"run_id"`
	RawIdea      string                     `json:"raw_idea,omitempty"`
	Status       string                     `json:"status"`
	CurrentStage string                     `json:"current_step,omitempty"`
	Error        string                     `json:"error,omitempty"`
	CreatedAt    string                     `json:"created_at,omitempty"`
	UpdatedAt    string                     `json:"updated_at,omitempty"`
	Stages       []stageSummary             `json:"stages"`
	SectionKeys  []string                   `json:"section_keys,omitempty"`
	Sections     map[string]json.RawMessage `json:"sections,omitempty"`
}

func showAction(c *cli.Context) error {
	runID := c.Args().First()
	if runID == "" {
		return cli.Exit("usage: dossier show <run-id>", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	api, err := newClient(c, cfg)
	if err != nil {
		return err
	}
	catalog, err := cfg.StageCatalog()
	if err != nil {
		return err
	}

	run, err := api.GetRun(context.Background(), runID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return cli.Exit("run not found: "+runID, exitRunNotFound)
		}
		return err
	}

	resp := showResponse{
		RunID:        run.RunID,
		RawIdea:      run.RawIdea,
		Status:       string(run.Status),
		CurrentStage: run.CurrentStage,
		Error:        run.Error,
	}
	if !run.CreatedAt.IsZero() {
		resp.CreatedAt = run.CreatedAt.Format("2006-01-02 15:04:05")
	}
	if !run.UpdatedAt.IsZero() {
		resp.UpdatedAt = run.UpdatedAt.Format("2006-01-02 15:04:05")
	}
	for _, v := range stage.Derive(catalog, run.CurrentStage, run.Status) {
		resp.Stages = append(resp.Stages, stageSummary{
			Key:    v.Key,
			Label:  v.Label,
			Status: string(v.Status),
		})
	}
	if c.Bool("sections") {
		resp.Sections = run.Sections
	} else {
		resp.SectionKeys = run.SectionKeys()
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(resp)
}
