package types

import "time"

// RunState is the per-attempt run state of a single stream.
type RunState string

const (
	RunStatePending     RunState = "PENDING"
	RunStateRunning     RunState = "RUNNING"
	RunStateRateLimited RunState = "RATE_LIMITED"
	RunStateComplete    RunState = "COMPLETE"
	RunStateIncomplete  RunState = "INCOMPLETE"
)

// IsTerminal returns true for COMPLETE and INCOMPLETE.
func (s RunState) IsTerminal() bool {
	return s == RunStateComplete || s == RunStateIncomplete
}

// IsValid returns true if s is one of the known run states.
func (s RunState) IsValid() bool {
	switch s {
	case RunStatePending, RunStateRunning, RunStateRateLimited, RunStateComplete, RunStateIncomplete:
		return true
	default:
		return false
	}
}

// IncompleteCause explains why a stream ended INCOMPLETE.
// Empty unless the run state is INCOMPLETE.
type IncompleteCause string

const (
	IncompleteCauseFailed   IncompleteCause = "FAILED"
	IncompleteCauseCanceled IncompleteCause = "CANCELED"
)

// RateLimitedMetadata is attached while a stream is RATE_LIMITED.
// QuotaResetMs is the epoch-millis the connector expects the quota to reset,
// zero when the connector did not say.
type RateLimitedMetadata struct {
	QuotaResetMs int64 `json:"quota_reset_ms,omitempty" msgpack:"quota_reset_ms,omitempty"`
}

// StreamRunState is the current state of one stream within one attempt.
type StreamRunState struct {
	Stream          StreamDescriptor     `json:"stream"`
	RunState        RunState             `json:"run_state"`
	IncompleteCause IncompleteCause      `json:"incomplete_cause,omitempty"`
	TransitionedAt  time.Time            `json:"transitioned_at"`
	Metadata        *RateLimitedMetadata `json:"metadata,omitempty"`
}

// StreamStatusEvent is one status report observed during the run.
type StreamStatusEvent struct {
	Stream          StreamDescriptor
	RunState        RunState
	IncompleteCause IncompleteCause
	// EmittedAt is when the reporter emitted the status. Zero means "now".
	EmittedAt time.Time
	// RateLimited carries quota information for RATE_LIMITED events.
	RateLimited *RateLimitedMetadata
}

// StatusMessage is a terminal stream status emitted downstream when an attempt is finalized.
type StatusMessage struct {
	Stream          StreamDescriptor `json:"stream"`
	Status          RunState         `json:"status"`
	IncompleteCause IncompleteCause  `json:"incomplete_cause,omitempty"`
	EmittedAtMs     int64            `json:"emitted_at_ms"`
}
