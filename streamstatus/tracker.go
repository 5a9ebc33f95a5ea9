// Package streamstatus tracks per-stream run state for a single attempt and
// finalizes it into terminal status messages when the attempt ends.
//
// A Tracker is owned by one attempt. Track may be called from several
// goroutines; calls are serialized by a mutex and out-of-order events are
// resolved by comparing emission timestamps, not arrival order.
package streamstatus

import (
	"sync"
	"time"

	"github.com/pithecene-io/runledger/featureflag"
	"github.com/pithecene-io/runledger/log"
	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/types"
)

// Disposition is what Track did with an event.
type Disposition string

const (
	// Accepted means the event updated the stream's state.
	Accepted Disposition = "accepted"
	// Unknown means the stream is not in the tracked catalog.
	Unknown Disposition = "unknown"
	// Stale means the event is not newer than the stream's current state.
	Stale Disposition = "stale"
	// Ignored means the event is not a valid transition from the current state.
	Ignored Disposition = "ignored"
	// Inactive means tracking was never started or is disabled for the attempt.
	Inactive Disposition = "inactive"
)

// TrackerConfig configures a Tracker. Every field is optional.
type TrackerConfig struct {
	// Flags gates tracking per attempt. Nil means always enabled.
	Flags featureflag.Client
	// Logger receives debug and warn entries. Nil means discard.
	Logger *log.Logger
	// Collector records status counters. Nil means no metrics.
	Collector *metrics.Collector
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Tracker holds the run state of every stream in one attempt's catalog.
type Tracker struct {
	flags     featureflag.Client
	logger    *log.Logger
	collector *metrics.Collector
	nowFunc   func() time.Time

	mu      sync.Mutex
	started bool
	enabled bool
	order   []types.StreamDescriptor
	states  map[types.StreamDescriptor]*types.StreamRunState
}

// NewTracker creates a Tracker. Tracking does nothing until StartTracking.
func NewTracker(config TrackerConfig) *Tracker {
	t := &Tracker{
		flags:     config.Flags,
		logger:    config.Logger,
		collector: config.Collector,
		nowFunc:   config.Now,
	}
	if t.flags == nil {
		t.flags = featureflag.Constant(true)
	}
	if t.logger == nil {
		t.logger = log.Nop()
	}
	if t.nowFunc == nil {
		t.nowFunc = time.Now
	}
	return t
}

// StartTracking initializes one PENDING state per catalog stream.
// A second call replaces all prior state. When the tracking flag is off for
// the attempt's workspace and connection, the tracker stays inactive.
func (t *Tracker) StartTracking(catalog types.Catalog, meta types.AttemptMeta) {
	enabled := t.flags.Enabled(featureflag.StreamStatusTracking, featureflag.Context{
		WorkspaceID:  meta.WorkspaceID,
		ConnectionID: meta.ConnectionID,
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	t.started = true
	t.enabled = enabled
	t.order = nil
	t.states = make(map[types.StreamDescriptor]*types.StreamRunState)

	if !enabled {
		t.logger.Info("stream status tracking disabled", map[string]any{
			"workspace_id":  meta.WorkspaceID,
			"connection_id": meta.ConnectionID,
		})
		t.collector.SetStreamsTracked(0)
		return
	}

	now := t.nowFunc()
	t.order = catalog.Descriptors()
	for _, d := range t.order {
		t.states[d] = &types.StreamRunState{
			Stream:         d,
			RunState:       types.RunStatePending,
			TransitionedAt: now,
		}
	}
	t.collector.SetStreamsTracked(len(t.order))
	t.logger.Debug("stream status tracking started", map[string]any{"streams": len(t.order)})
}

// Track applies a status event to its stream.
//
// Unknown streams, stale events and invalid transitions are dropped without
// error. The returned Disposition says which case applied.
func (t *Tracker) Track(event types.StreamStatusEvent) Disposition {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || !t.enabled {
		return Inactive
	}

	cur, ok := t.states[event.Stream]
	if !ok {
		t.collector.IncStatusUnknown()
		t.logger.Warn("status for stream outside catalog", map[string]any{
			"stream":    event.Stream.String(),
			"run_state": string(event.RunState),
		})
		return Unknown
	}

	// The initial PENDING timestamp is local to the tracker and does not order
	// connector-reported events.
	ordered := cur.RunState != types.RunStatePending

	emittedAt := event.EmittedAt
	if emittedAt.IsZero() {
		emittedAt = t.nowFunc()
		// Unstamped events apply in arrival order.
		if ordered && !emittedAt.After(cur.TransitionedAt) {
			emittedAt = cur.TransitionedAt.Add(time.Nanosecond)
		}
	}

	// transitionedAt strictly increases per stream.
	if ordered && !emittedAt.After(cur.TransitionedAt) {
		t.collector.IncStatusStale()
		t.logger.Warn("stale stream status dropped", map[string]any{
			"stream":          event.Stream.String(),
			"run_state":       string(event.RunState),
			"emitted_at":      emittedAt,
			"transitioned_at": cur.TransitionedAt,
		})
		return Stale
	}

	if !validTransition(cur.RunState, event.RunState) {
		t.collector.IncStatusIgnored()
		t.logger.Debug("stream status transition ignored", map[string]any{
			"stream": event.Stream.String(),
			"from":   string(cur.RunState),
			"to":     string(event.RunState),
		})
		return Ignored
	}

	cur.RunState = event.RunState
	cur.TransitionedAt = emittedAt
	cur.IncompleteCause = ""
	cur.Metadata = nil
	switch event.RunState {
	case types.RunStateIncomplete:
		cur.IncompleteCause = event.IncompleteCause
		if cur.IncompleteCause == "" {
			cur.IncompleteCause = types.IncompleteCauseFailed
		}
	case types.RunStateRateLimited:
		if event.RateLimited != nil {
			md := *event.RateLimited
			cur.Metadata = &md
		}
	}

	t.collector.IncStatusAccepted()
	t.logger.Debug("stream status tracked", map[string]any{
		"stream":    event.Stream.String(),
		"run_state": string(event.RunState),
	})
	return Accepted
}

// validTransition reports whether a stream may move from one state to another.
// Terminal states are sticky against RUNNING and RATE_LIMITED, and nothing
// returns to PENDING.
func validTransition(from, to types.RunState) bool {
	if !to.IsValid() || to == types.RunStatePending {
		return false
	}
	if from.IsTerminal() {
		return to.IsTerminal()
	}
	return true
}

// Finalize returns the terminal status messages for the attempt, each passed
// through mapper. A nil mapper is treated as IdentityMapper.
//
// With exitCode 0 every tracked stream is reported COMPLETE. With any other
// exit code only streams that already reached a terminal state are reported.
// Finalize reads state only, so it is safe to call more than once. It returns
// an empty slice when tracking is inactive.
func (t *Tracker) Finalize(exitCode int, mapper MessageMapper) []types.StatusMessage {
	if mapper == nil {
		mapper = IdentityMapper
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := []types.StatusMessage{}
	if !t.started || !t.enabled {
		return out
	}

	nowMs := t.nowFunc().UnixMilli()
	for _, d := range t.order {
		st := t.states[d]
		var msg types.StatusMessage
		switch {
		case exitCode == 0:
			msg = types.StatusMessage{Stream: d, Status: types.RunStateComplete, EmittedAtMs: nowMs}
		case st.RunState.IsTerminal():
			msg = types.StatusMessage{
				Stream:          d,
				Status:          st.RunState,
				IncompleteCause: st.IncompleteCause,
				EmittedAtMs:     st.TransitionedAt.UnixMilli(),
			}
		default:
			continue
		}
		out = append(out, mapper.Map(msg))
	}
	return out
}

// Snapshot returns a copy of every stream's current state in catalog order.
func (t *Tracker) Snapshot() []types.StreamRunState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.StreamRunState, 0, len(t.order))
	for _, d := range t.order {
		st := *t.states[d]
		if st.Metadata != nil {
			md := *st.Metadata
			st.Metadata = &md
		}
		out = append(out, st)
	}
	return out
}

// Enabled reports whether tracking was started and is enabled for the attempt.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && t.enabled
}
