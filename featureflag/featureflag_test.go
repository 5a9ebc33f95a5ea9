package featureflag

import (
	"testing"

	"github.com/open-feature/go-sdk/openfeature"
)

func TestRule_Evaluate(t *testing.T) {
	rule := Rule{
		Default:          false,
		AllowWorkspaces:  []string{"ws-beta"},
		DenyWorkspaces:   []string{"ws-blocked"},
		AllowConnections: []string{"conn-pilot"},
		DenyConnections:  []string{"conn-broken"},
	}

	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{"default applies to unknown ids", Context{WorkspaceID: "ws-1", ConnectionID: "conn-1"}, false},
		{"workspace allow", Context{WorkspaceID: "ws-beta", ConnectionID: "conn-1"}, true},
		{"connection allow beats workspace deny", Context{WorkspaceID: "ws-blocked", ConnectionID: "conn-pilot"}, true},
		{"connection deny beats workspace allow", Context{WorkspaceID: "ws-beta", ConnectionID: "conn-broken"}, false},
		{"workspace deny", Context{WorkspaceID: "ws-blocked"}, false},
		{"empty context", Context{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rule.Evaluate(tt.ctx); got != tt.want {
				t.Errorf("Evaluate(%+v) = %v, want %v", tt.ctx, got, tt.want)
			}
		})
	}
}

func TestStatic_Enabled(t *testing.T) {
	rules := map[Flag]Rule{StreamStatusTracking: {Default: true}}
	client := NewStatic(rules)

	// Mutating the caller's map must not change the client.
	rules[StreamStatusTracking] = Rule{Default: false}

	if !client.Enabled(StreamStatusTracking, Context{}) {
		t.Error("StreamStatusTracking should be enabled")
	}
	if client.Enabled(Flag("unknown"), Context{}) {
		t.Error("flags without a rule should be off")
	}

	var nilClient *Static
	if nilClient.Enabled(StreamStatusTracking, Context{}) {
		t.Error("nil client should report disabled")
	}
}

func TestStatic_TargetsEvaluationContext(t *testing.T) {
	client := NewStatic(map[Flag]Rule{
		StreamStatusTracking: {Default: true, DenyWorkspaces: []string{"ws-off"}, AllowConnections: []string{"conn-on"}},
	})

	tests := []struct {
		name string
		ctx  Context
		want bool
	}{
		{"default", Context{WorkspaceID: "ws-1", ConnectionID: "conn-1"}, true},
		{"workspace denied", Context{WorkspaceID: "ws-off", ConnectionID: "conn-1"}, false},
		{"connection allowed in denied workspace", Context{WorkspaceID: "ws-off", ConnectionID: "conn-on"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.Enabled(StreamStatusTracking, tt.ctx); got != tt.want {
				t.Errorf("Enabled(%+v) = %v, want %v", tt.ctx, got, tt.want)
			}
		})
	}
}

func TestStatic_ProviderResolution(t *testing.T) {
	client := NewStatic(map[Flag]Rule{StreamStatusTracking: {DenyConnections: []string{"conn-1"}, Default: true}})
	provider := client.Provider()

	res := provider.BooleanEvaluation(t.Context(), string(StreamStatusTracking), true,
		Context{WorkspaceID: "ws-1", ConnectionID: "conn-1"}.Flatten())
	if res.Value {
		t.Error("Value = true, want false for denied connection")
	}
	if res.Variant != variantOff || res.Reason != openfeature.TargetingMatchReason {
		t.Errorf("resolution = %s/%s, want %s/%s", res.Variant, res.Reason, variantOff, openfeature.TargetingMatchReason)
	}

	missing := provider.BooleanEvaluation(t.Context(), "unknown", false, Context{}.Flatten())
	if missing.Value {
		t.Error("missing flag should resolve to the default")
	}
}

func TestContext_Flatten(t *testing.T) {
	tests := []struct {
		name      string
		ctx       Context
		wantKey   any
		wantAttrs int
	}{
		{"connection is the targeting key", Context{WorkspaceID: "ws", ConnectionID: "conn"}, "conn", 3},
		{"workspace fallback", Context{WorkspaceID: "ws"}, "ws", 2},
		{"empty", Context{}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := tt.ctx.Flatten()
			if fc[openfeature.TargetingKey] != tt.wantKey {
				t.Errorf("targeting key = %v, want %v", fc[openfeature.TargetingKey], tt.wantKey)
			}
			if len(fc) != tt.wantAttrs {
				t.Errorf("len = %d, want %d", len(fc), tt.wantAttrs)
			}
			if got := contextFrom(fc); got != tt.ctx {
				t.Errorf("contextFrom = %+v, want %+v", got, tt.ctx)
			}
		})
	}
}

func TestConstant(t *testing.T) {
	if !Constant(true).Enabled(StreamStatusTracking, Context{}) {
		t.Error("Constant(true) should be enabled")
	}
	if Constant(false).Enabled(StreamStatusTracking, Context{WorkspaceID: "ws"}) {
		t.Error("Constant(false) should be disabled")
	}
}
