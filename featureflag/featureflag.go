// Package featureflag gates optional tracking behaviour per workspace and connection.
//
// Rules from runledger.yaml are served through an OpenFeature in-memory
// provider; the workspace and connection form the evaluation context.
package featureflag

import (
	"context"
	"slices"

	"github.com/open-feature/go-sdk/openfeature"
	"github.com/open-feature/go-sdk/openfeature/memprovider"
)

// Flag names a gated feature.
type Flag string

// StreamStatusTracking gates the stream run tracker. When off, tracking and
// finalization are no-ops for the attempt.
const StreamStatusTracking Flag = "stream-status-tracking"

// Evaluation context attribute names.
const (
	WorkspaceKey  = "workspaceId"
	ConnectionKey = "connectionId"
)

const (
	variantOn  = "on"
	variantOff = "off"
)

// Context identifies who a flag is evaluated for.
type Context struct {
	WorkspaceID  string
	ConnectionID string
}

// Flatten returns ctx as an OpenFeature evaluation context. The connection is
// the targeting key, falling back to the workspace.
func (c Context) Flatten() openfeature.FlattenedContext {
	fc := openfeature.FlattenedContext{}
	if c.WorkspaceID != "" {
		fc[WorkspaceKey] = c.WorkspaceID
	}
	if c.ConnectionID != "" {
		fc[ConnectionKey] = c.ConnectionID
	}
	switch {
	case c.ConnectionID != "":
		fc[openfeature.TargetingKey] = c.ConnectionID
	case c.WorkspaceID != "":
		fc[openfeature.TargetingKey] = c.WorkspaceID
	}
	return fc
}

func contextFrom(fc openfeature.FlattenedContext) Context {
	ws, _ := fc[WorkspaceKey].(string)
	conn, _ := fc[ConnectionKey].(string)
	return Context{WorkspaceID: ws, ConnectionID: conn}
}

// Client evaluates flags.
type Client interface {
	Enabled(flag Flag, ctx Context) bool
}

// Rule is the evaluation rule for one flag.
//
// Precedence, highest first: DenyConnections, AllowConnections,
// DenyWorkspaces, AllowWorkspaces, Default.
type Rule struct {
	Default          bool
	AllowWorkspaces  []string
	DenyWorkspaces   []string
	AllowConnections []string
	DenyConnections  []string
}

// Evaluate applies the rule to ctx.
func (r Rule) Evaluate(ctx Context) bool {
	if ctx.ConnectionID != "" {
		if slices.Contains(r.DenyConnections, ctx.ConnectionID) {
			return false
		}
		if slices.Contains(r.AllowConnections, ctx.ConnectionID) {
			return true
		}
	}
	if ctx.WorkspaceID != "" {
		if slices.Contains(r.DenyWorkspaces, ctx.WorkspaceID) {
			return false
		}
		if slices.Contains(r.AllowWorkspaces, ctx.WorkspaceID) {
			return true
		}
	}
	return r.Default
}

// inMemoryFlag renders the rule as a boolean flag whose variant is chosen by
// Evaluate against the evaluation context.
func (r Rule) inMemoryFlag(flag Flag) memprovider.InMemoryFlag {
	evaluate := func(_ memprovider.InMemoryFlag, evalCtx openfeature.FlattenedContext) (any, openfeature.ProviderResolutionDetail) {
		variant := variantOff
		if r.Evaluate(contextFrom(evalCtx)) {
			variant = variantOn
		}
		return variant == variantOn, openfeature.ProviderResolutionDetail{
			Reason:  openfeature.TargetingMatchReason,
			Variant: variant,
		}
	}
	return memprovider.InMemoryFlag{
		Key:              string(flag),
		State:            memprovider.Enabled,
		DefaultVariant:   variantOff,
		Variants:         map[string]any{variantOn: true, variantOff: false},
		ContextEvaluator: &evaluate,
	}
}

// Static is a Client backed by a fixed rule set. Flags without a rule are off.
type Static struct {
	provider memprovider.InMemoryProvider
}

// NewStatic creates a Static client from rules. Later changes to the rules
// map do not affect the client.
func NewStatic(rules map[Flag]Rule) *Static {
	flags := make(map[string]memprovider.InMemoryFlag, len(rules))
	for f, r := range rules {
		flags[string(f)] = r.inMemoryFlag(f)
	}
	return &Static{provider: memprovider.NewInMemoryProvider(flags)}
}

// Provider exposes the underlying provider for OpenFeature clients.
func (s *Static) Provider() openfeature.FeatureProvider {
	return s.provider
}

// Enabled implements Client.
func (s *Static) Enabled(flag Flag, ctx Context) bool {
	if s == nil {
		return false
	}
	res := s.provider.BooleanEvaluation(context.Background(), string(flag), false, ctx.Flatten())
	return res.Value
}

// Constant is a Client that returns the same answer for every flag.
type Constant bool

// Enabled implements Client.
func (c Constant) Enabled(Flag, Context) bool {
	return bool(c)
}
