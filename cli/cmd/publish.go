package cmd

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/runledger/adapter"
	"github.com/pithecene-io/runledger/adapter/redis"
	"github.com/pithecene-io/runledger/adapter/webhook"
	"github.com/pithecene-io/runledger/cli/config"
)

const (
	defaultAdapterTimeout = 10 * time.Second
	defaultAdapterRetries = 3
)

// adapterChoice holds the resolved adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

// parseAdapterConfigWithPrecedence resolves adapter settings for adapterType.
// Config headers are merged first so --adapter-header entries override them.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (*adapterChoice, error) {
	switch adapterType {
	case "webhook", "redis":
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}

	ac := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		channel:     resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel })),
		timeout:     resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries:     c.Int("adapter-retries"),
		headers:     make(map[string]string),
	}
	if !c.IsSet("adapter-retries") {
		if r := configVal(cfg, func(c *config.Config) *int { return c.Adapter.Retries }); r != nil {
			ac.retries = *r
		}
	}

	if ac.url == "" {
		return nil, fmt.Errorf("--adapter-url is required when --adapter=%s", adapterType)
	}

	maps.Copy(ac.headers, configVal(cfg, func(c *config.Config) map[string]string { return c.Adapter.Headers }))
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (expected key=value)", h)
		}
		ac.headers[k] = v
	}
	return ac, nil
}

// buildAdapter creates the adapter described by ac.
func buildAdapter(ac *adapterChoice) (adapter.Adapter, error) {
	switch ac.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.url,
			Channel: ac.channel,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.adapterType)
	}
}
