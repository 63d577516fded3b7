// Package cmd provides CLI commands for the dossier binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dossier/cli/config"
	"github.com/pithecene-io/dossier/client"
)

// DefaultConfigPath is the config file looked up when --config is not given.
const DefaultConfigPath = "dossier.yaml"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// ConfigFlag points at a dossier.yaml config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to dossier.yaml config file",
	}

	// APIURLFlag overrides the engine base URL from config.
	APIURLFlag = &cli.StringFlag{
		Name:    "api-url",
		Usage:   "Engine base URL (overrides config)",
		EnvVars: []string{"DOSSIER_API_URL"},
	}

	// TimeoutFlag overrides the per-request timeout for one-shot calls.
	TimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Per-request timeout for one-shot API calls",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		ConfigFlag,
		APIURLFlag,
		TimeoutFlag,
	}
}

// loadConfig resolves the config file for a command invocation.
// An explicit --config path must exist; the default path is optional.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(DefaultConfigPath); err != nil {
		return &config.Config{}, nil
	}
	return config.Load(DefaultConfigPath)
}

// newClient builds the engine client from config and flag overrides.
func newClient(c *cli.Context, cfg *config.Config) (*client.Client, error) {
	baseURL := cfg.API.URL
	if u := c.String("api-url"); u != "" {
		baseURL = u
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	timeout := cfg.API.Timeout.Duration
	if t := c.Duration("timeout"); t > 0 {
		timeout = t
	}
	return client.New(client.Config{
		BaseURL: baseURL,
		Timeout: timeout,
		Headers: cfg.API.Headers,
	})
}
