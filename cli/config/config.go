package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/dossier/stage"
)

// Config represents a dossier.yaml configuration file.
// All values are optional and act as defaults for dossier command flags.
// CLI flags always override config values.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Catalog CatalogConfig `yaml:"catalog"`
	Watch   WatchConfig   `yaml:"watch"`
	Adapter AdapterConfig `yaml:"adapter"`
	Export  ExportConfig  `yaml:"export"`
}

// APIConfig holds connection defaults for the analysis service.
type APIConfig struct {
	URL     string            `yaml:"url"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// CatalogConfig optionally overrides the built-in pipeline stage table.
type CatalogConfig struct {
	Stages  []StageConfig     `yaml:"stages,omitempty"`
	Aliases map[string]string `yaml:"aliases,omitempty"`
}

// StageConfig is one pipeline stage definition within the config file.
type StageConfig struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// WatchConfig holds live-watch defaults from the config file.
type WatchConfig struct {
	Reconnects *int   `yaml:"reconnects,omitempty"`
	Record     string `yaml:"record,omitempty"`
	Plain      bool   `yaml:"plain,omitempty"`
}

// AdapterConfig holds completion notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url,omitempty"`
	Addr    string            `yaml:"addr,omitempty"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ExportConfig holds artifact export defaults.
type ExportConfig struct {
	Dir string         `yaml:"dir,omitempty"`
	S3  ExportS3Config `yaml:"s3,omitempty"`
}

// ExportS3Config configures the S3 destination.
type ExportS3Config struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// StageCatalog builds the pipeline catalog from the config file.
// With no stages declared it returns the built-in catalog, with any
// declared aliases layered on top.
func (c *Config) StageCatalog() (*stage.Catalog, error) {
	if len(c.Catalog.Stages) == 0 {
		if len(c.Catalog.Aliases) == 0 {
			return stage.Default(), nil
		}
		cat, err := stage.Default().WithAliases(c.Catalog.Aliases)
		if err != nil {
			return nil, fmt.Errorf("catalog aliases: %w", err)
		}
		return cat, nil
	}

	stages := make([]stage.Stage, 0, len(c.Catalog.Stages))
	for _, sc := range c.Catalog.Stages {
		stages = append(stages, stage.Stage{Key: sc.Key, Label: sc.Label})
	}
	cat, err := stage.NewCatalog(stages, c.Catalog.Aliases)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}
