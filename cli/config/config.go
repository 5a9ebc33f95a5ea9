package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/runledger/backfill"
	"github.com/pithecene-io/runledger/featureflag"
)

// Config represents a runledger.yaml configuration file.
// All values are optional and act as defaults for runledger close flags.
// CLI flags always override config values.
type Config struct {
	Flags    FlagsConfig    `yaml:"flags"`
	Backfill BackfillConfig `yaml:"backfill"`
	Storage  StorageConfig  `yaml:"storage"`
	Adapter  AdapterConfig  `yaml:"adapter"`
	Report   ReportConfig   `yaml:"report"`
}

// FlagsConfig holds feature flag rules. A nil rule leaves the flag at its
// built-in default.
type FlagsConfig struct {
	StreamStatusTracking *FlagRule `yaml:"stream_status_tracking,omitempty"`
}

// FlagRule is the YAML form of featureflag.Rule.
type FlagRule struct {
	Default          bool     `yaml:"default"`
	AllowWorkspaces  []string `yaml:"allow_workspaces,omitempty"`
	DenyWorkspaces   []string `yaml:"deny_workspaces,omitempty"`
	AllowConnections []string `yaml:"allow_connections,omitempty"`
	DenyConnections  []string `yaml:"deny_connections,omitempty"`
}

// BackfillConfig holds the connection's backfill preference.
type BackfillConfig struct {
	Preference string `yaml:"preference"`
}

// StorageConfig holds archive storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ReportConfig holds attempt report defaults.
type ReportConfig struct {
	// Path is where the JSON attempt report goes. "-" means stderr.
	Path string `yaml:"path"`
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

// Validate checks enum-valued fields. Empty values are allowed everywhere.
func (c *Config) Validate() error {
	if _, err := c.BackfillPreference(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case "", "fs", "s3", "memory":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q (want fs, s3 or memory)", c.Storage.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type: unknown adapter %q (want webhook or redis)", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	return nil
}

// BackfillPreference returns the configured preference. An empty value
// means disabled.
func (c *Config) BackfillPreference() (backfill.Preference, error) {
	switch backfill.Preference(c.Backfill.Preference) {
	case "", backfill.PreferenceDisabled:
		return backfill.PreferenceDisabled, nil
	case backfill.PreferenceEnabled:
		return backfill.PreferenceEnabled, nil
	default:
		return "", fmt.Errorf("backfill.preference: unknown value %q (want enabled or disabled)", c.Backfill.Preference)
	}
}

// FlagClient builds a feature flag client from the flags section.
// Returns nil when no rule is configured, which leaves tracking on.
func (c *Config) FlagClient() featureflag.Client {
	if c.Flags.StreamStatusTracking == nil {
		return nil
	}
	r := c.Flags.StreamStatusTracking
	return featureflag.NewStatic(map[featureflag.Flag]featureflag.Rule{
		featureflag.StreamStatusTracking: {
			Default:          r.Default,
			AllowWorkspaces:  r.AllowWorkspaces,
			DenyWorkspaces:   r.DenyWorkspaces,
			AllowConnections: r.AllowConnections,
			DenyConnections:  r.DenyConnections,
		},
	})
}
