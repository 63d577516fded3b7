package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dossier/cli/render"
)

// StartCommand returns the start command.
func StartCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Submit a business idea for analysis",
		ArgsUsage: "<idea>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringSliceFlag{
				Name:  "function",
				Usage: "Business function stage to include (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Watch the run after starting it",
			},
		),
		Action: startAction,
	}
}

func startAction(c *cli.Context) error {
	idea := c.Args().First()
	if idea == "" {
		return cli.Exit("usage: dossier start <idea>", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	api, err := newClient(c, cfg)
	if err != nil {
		return err
	}

	result, err := api.CreateRun(context.Background(), idea, c.StringSlice("function"))
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	if c.Bool("watch") {
		return watchRun(c, cfg, api, result.RunID)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(result)
}
