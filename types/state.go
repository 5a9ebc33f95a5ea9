package types

import (
	"bytes"
	"encoding/json"
)

// StateType is the scope of persisted sync state.
type StateType string

const (
	StateTypeStream StateType = "STREAM"
	StateTypeGlobal StateType = "GLOBAL"
	// StateTypeLegacy is a single opaque blob with no per-stream entries.
	StateTypeLegacy StateType = "LEGACY"
)

// jsonNull is the explicit JSON null used to mark a cleared stream state.
var jsonNull = json.RawMessage("null")

// StreamState is the state blob of one stream.
type StreamState struct {
	Stream StreamDescriptor `json:"stream_descriptor"`
	State  json.RawMessage  `json:"stream_state"`
}

// HasState reports whether the entry carries a non-null state blob.
func (s StreamState) HasState() bool {
	trimmed := bytes.TrimSpace(s.State)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, jsonNull)
}

// IsCleared reports whether the state is an explicit JSON null.
func (s StreamState) IsCleared() bool {
	return bytes.Equal(bytes.TrimSpace(s.State), jsonNull)
}

// Cleared returns a copy of s whose state is an explicit JSON null.
func (s StreamState) Cleared() StreamState {
	return StreamState{Stream: s.Stream, State: append(json.RawMessage(nil), jsonNull...)}
}

func (s StreamState) clone() StreamState {
	return StreamState{Stream: s.Stream, State: cloneRaw(s.State)}
}

// GlobalState is a shared state blob plus per-stream sub-states.
type GlobalState struct {
	SharedState  json.RawMessage `json:"shared_state,omitempty"`
	StreamStates []StreamState   `json:"stream_states"`
}

// PersistedState is the connection's persisted sync state.
//
// Streams is populated for STREAM scope, Global for GLOBAL scope, Legacy for LEGACY.
type PersistedState struct {
	Type    StateType       `json:"type"`
	Streams []StreamState   `json:"streams,omitempty"`
	Global  *GlobalState    `json:"global,omitempty"`
	Legacy  json.RawMessage `json:"legacy,omitempty"`
}

// PerStreamStates returns the per-stream entries regardless of scope.
// The returned slice aliases the receiver's storage.
func (p *PersistedState) PerStreamStates() []StreamState {
	if p == nil {
		return nil
	}
	switch p.Type {
	case StateTypeStream:
		return p.Streams
	case StateTypeGlobal:
		if p.Global == nil {
			return nil
		}
		return p.Global.StreamStates
	default:
		return nil
	}
}

// Clone returns a deep copy. Returns nil for a nil receiver.
func (p *PersistedState) Clone() *PersistedState {
	if p == nil {
		return nil
	}
	out := &PersistedState{
		Type:   p.Type,
		Legacy: cloneRaw(p.Legacy),
	}
	if p.Streams != nil {
		out.Streams = make([]StreamState, len(p.Streams))
		for i, s := range p.Streams {
			out.Streams[i] = s.clone()
		}
	}
	if p.Global != nil {
		g := &GlobalState{SharedState: cloneRaw(p.Global.SharedState)}
		if p.Global.StreamStates != nil {
			g.StreamStates = make([]StreamState, len(p.Global.StreamStates))
			for i, s := range p.Global.StreamStates {
				g.StreamStates[i] = s.clone()
			}
		}
		out.Global = g
	}
	return out
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(make([]byte, 0, len(r))), r...)
}
