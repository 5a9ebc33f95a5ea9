package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/cli/config"
)

// Precedence for every setting: explicit flag, then config file, then the
// flag's default.

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// configVal reads a value from cfg, returning the zero value for a nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

// loadConfig loads the --config file. Returns nil when the flag is unset.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	return config.Load(path)
}
