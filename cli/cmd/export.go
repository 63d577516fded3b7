package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dossier/cli/config"
	"github.com/pithecene-io/dossier/client"
	"github.com/pithecene-io/dossier/export"
)

// ExportCommand returns the export command.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Download a run's report artifact",
		ArgsUsage: "<run-id>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "artifact",
				Usage: "Artifact filename",
				Value: export.DefaultArtifact,
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Local destination directory",
			},
			&cli.StringFlag{
				Name:  "s3",
				Usage: "S3 destination as bucket or bucket/prefix",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "AWS region for the S3 destination",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Custom S3 endpoint (R2, MinIO, ...)",
			},
			&cli.BoolFlag{
				Name:  "s3-path-style",
				Usage: "Force path-style S3 addressing",
			},
		),
		Action: exportAction,
	}
}

func exportAction(c *cli.Context) error {
	runID := c.Args().First()
	if runID == "" {
		return cli.Exit("usage: dossier export <run-id>", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	api, err := newClient(c, cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	dest, err := buildDestination(ctx, c, cfg)
	if err != nil {
		return err
	}

	loc, err := export.Export(ctx, api, dest, runID, c.String("artifact"))
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return cli.Exit("artifact not found for run "+runID, exitRunNotFound)
		}
		return err
	}

	fmt.Fprintln(c.App.Writer, loc)
	return nil
}

// buildDestination chooses the export target from flags, falling back to
// config. --s3 and --dir are mutually exclusive; neither means the
// configured default, or the working directory.
func buildDestination(ctx context.Context, c *cli.Context, cfg *config.Config) (export.Destination, error) {
	s3Path := c.String("s3")
	dir := c.String("dir")
	if s3Path != "" && dir != "" {
		return nil, fmt.Errorf("--s3 and --dir are mutually exclusive")
	}

	if s3Path == "" && dir == "" {
		if cfg.Export.S3.Bucket != "" {
			return export.NewS3Destination(ctx, export.S3Config{
				Bucket:       cfg.Export.S3.Bucket,
				Prefix:       cfg.Export.S3.Prefix,
				Region:       cfg.Export.S3.Region,
				Endpoint:     cfg.Export.S3.Endpoint,
				UsePathStyle: cfg.Export.S3.S3PathStyle,
			})
		}
		return export.FileDestination{Dir: cfg.Export.Dir}, nil
	}

	if s3Path != "" {
		bucket, prefix := export.ParseS3Path(s3Path)
		return export.NewS3Destination(ctx, export.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       c.String("s3-region"),
			Endpoint:     c.String("s3-endpoint"),
			UsePathStyle: c.Bool("s3-path-style"),
		})
	}
	return export.FileDestination{Dir: dir}, nil
}
