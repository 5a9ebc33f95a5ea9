// Package reader is the read side of the attempt archive.
//
// Records come back from Lode as map[string]any; this package turns them into
// typed summaries and aggregates for the read-only commands.
package reader

import (
	"time"

	"github.com/pithecene-io/runledger/types"
)

// AttemptSummary is one archived attempt outcome.
type AttemptSummary struct {
	ConnectionID   string    `json:"connection_id"`
	Day            string    `json:"day"`
	JobID          string    `json:"job_id"`
	Attempt        int       `json:"attempt"`
	Outcome        string    `json:"outcome"`
	Message        string    `json:"message"`
	PartialSuccess bool      `json:"partial_success"`
	ExitCode       int       `json:"exit_code"`
	DurationMs     int64     `json:"duration_ms"`
	FrameCount     int64     `json:"frame_count"`
	ClosedAt       time.Time `json:"closed_at"`

	StreamsTracked    int64            `json:"streams_tracked"`
	StatusesFinalized int64            `json:"statuses_finalized"`
	StreamsBackfilled int64            `json:"streams_backfilled"`
	StreamsResumed    int64            `json:"streams_resumed"`
	Failures          int64            `json:"failures"`
	FailuresByOrigin  map[string]int64 `json:"failures_by_origin,omitempty"`
	StorageBackend    string           `json:"storage_backend,omitempty"`
}

// ArchivedStatus is one archived terminal stream status.
type ArchivedStatus struct {
	Stream          types.StreamDescriptor `json:"stream"`
	Status          types.RunState         `json:"status"`
	IncompleteCause types.IncompleteCause  `json:"incomplete_cause,omitempty"`
	EmittedAtMs     int64                  `json:"emitted_at_ms"`
}

// ArchivedFailure is one archived failure, at position Index of the ordered list.
type ArchivedFailure struct {
	Index            int                     `json:"index"`
	Origin           string                  `json:"failure_origin"`
	Type             string                  `json:"failure_type"`
	ExternalMessage  string                  `json:"external_message"`
	InternalMessage  string                  `json:"internal_message,omitempty"`
	Stacktrace       string                  `json:"stacktrace,omitempty"`
	TimestampMs      int64                   `json:"timestamp"`
	FromTraceMessage bool                    `json:"from_trace_message"`
	ConnectorCommand string                  `json:"connector_command,omitempty"`
	Retryable        *bool                   `json:"retryable,omitempty"`
	Stream           *types.StreamDescriptor `json:"stream,omitempty"`
}

// AttemptDetail is an archived attempt with its statuses and ordered failures.
type AttemptDetail struct {
	Attempt  AttemptSummary    `json:"attempt"`
	Statuses []ArchivedStatus  `json:"statuses"`
	Failures []ArchivedFailure `json:"failures"`
}

// ListOptions filters archived attempts. Empty fields match everything and a
// zero Limit returns every match.
type ListOptions struct {
	ConnectionID string
	JobID        string
	Outcome      string
	Limit        int
}

// AttemptStats aggregates archived attempt outcomes.
type AttemptStats struct {
	Attempts          int64            `json:"attempts"`
	Succeeded         int64            `json:"succeeded"`
	Failed            int64            `json:"failed"`
	Cancelled         int64            `json:"cancelled"`
	PartialSuccess    int64            `json:"partial_success"`
	Failures          int64            `json:"failures"`
	FailuresByOrigin  map[string]int64 `json:"failures_by_origin"`
	StreamsBackfilled int64            `json:"streams_backfilled"`
	StreamsResumed    int64            `json:"streams_resumed"`
	AvgDurationMs     int64            `json:"avg_duration_ms"`
	LastClosedAt      *time.Time       `json:"last_closed_at"`
}
