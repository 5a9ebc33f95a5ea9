// Package runtime closes out a single attempt: it prepares state before the
// run, tracks stream statuses and failures during it, and produces the
// finalized statuses, ordered failure report and outcome when it ends.
package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/runledger/backfill"
	"github.com/pithecene-io/runledger/failure"
	"github.com/pithecene-io/runledger/featureflag"
	"github.com/pithecene-io/runledger/log"
	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/resume"
	"github.com/pithecene-io/runledger/streamstatus"
	"github.com/pithecene-io/runledger/types"
)

// AttemptConfig configures a single attempt.
type AttemptConfig struct {
	// Meta is the attempt identity. Required.
	Meta types.AttemptMeta
	// Catalog is the configured catalog for the attempt.
	Catalog types.Catalog
	// Flags gates stream status tracking. If nil, tracking is always on.
	Flags featureflag.Client
	// Mapper translates finalized statuses. If nil, statuses pass unchanged.
	Mapper streamstatus.MessageMapper
	// Collector is the metrics collector for this attempt.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Logger overrides the attempt logger. If nil, one is built from Meta.
	Logger *log.Logger
	// Now overrides the clock (for testing).
	Now func() time.Time
}

// PrepareInput is what an attempt starts from.
type PrepareInput struct {
	// State is the connection's persisted state. May be nil.
	State *types.PersistedState
	// AppliedDiff is the schema diff applied before this attempt. May be nil.
	AppliedDiff *types.SchemaDiff
	// Backfill is the connection's backfill preference.
	Backfill backfill.Preference
}

// Preparation is the effective pre-run state of an attempt.
type Preparation struct {
	// State is the state the attempt runs with, with backfilled streams cleared.
	State             *types.PersistedState         `json:"state,omitempty"`
	StreamsToBackfill types.StreamSet               `json:"streams_to_backfill"`
	StreamsWithState  types.StreamSet               `json:"streams_with_state"`
	ResumedStreams    types.StreamSet               `json:"resumed_streams"`
	StreamMetadata    []types.StreamAttemptMetadata `json:"stream_metadata"`
}

// AttemptResult is the close-out of an attempt.
type AttemptResult struct {
	Meta     types.AttemptMeta      `json:"-"`
	Statuses []types.StatusMessage  `json:"statuses"`
	Streams  []types.StreamRunState `json:"streams"`
	Outcome  *Outcome               `json:"outcome"`
	// Failures is nil for a successful attempt.
	Failures *types.AttemptFailureSummary `json:"failures,omitempty"`
	ExitCode int                          `json:"exit_code"`
	Duration time.Duration                `json:"-"`
}

// Attempt ties tracking, preparation and failure classification together
// for one attempt.
type Attempt struct {
	config     *AttemptConfig
	tracker    *streamstatus.Tracker
	classifier failure.Classifier
	logger     *log.Logger
	nowFunc    func() time.Time
	startTime  time.Time

	mu          sync.Mutex
	failures    []types.FailureRecord
	preparation *Preparation
	closed      bool
}

// NewAttempt creates an attempt. Tracking starts against the configured
// catalog immediately; Prepare does not need to be called first.
// Returns error if the attempt metadata is invalid.
func NewAttempt(config *AttemptConfig) (*Attempt, error) {
	if err := config.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid attempt metadata: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(&config.Meta)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	a := &Attempt{
		config: config,
		tracker: streamstatus.NewTracker(streamstatus.TrackerConfig{
			Flags:     config.Flags,
			Logger:    logger,
			Collector: config.Collector,
			Now:       now,
		}),
		classifier: failure.NewClassifier(config.Meta, now),
		logger:     logger,
		nowFunc:    now,
		startTime:  now(),
	}
	a.tracker.StartTracking(config.Catalog, config.Meta)
	return a, nil
}

// Prepare computes the backfill and resume decisions for the attempt and
// restarts tracking against the configured catalog.
//
// Backfill only applies when the connection opted in and a diff was applied.
// Resumed streams are judged against the state after backfill clearing.
func (a *Attempt) Prepare(in PrepareInput) *Preparation {
	streamsToBackfill := make(types.StreamSet)
	state := in.State
	if backfill.ShouldBackfill(in.Backfill, in.AppliedDiff) {
		streamsToBackfill = backfill.StreamsToBackfill(in.AppliedDiff, a.config.Catalog)
		state = backfill.ClearStateForStreams(in.State, streamsToBackfill)
	}

	withState := resume.StreamsWithState(state)
	resumed := resume.ResumedFullRefreshStreams(a.config.Catalog, state)

	prep := &Preparation{
		State:             state,
		StreamsToBackfill: streamsToBackfill,
		StreamsWithState:  withState,
		ResumedStreams:    resumed,
		StreamMetadata:    resume.AttemptMetadata(withState, streamsToBackfill),
	}

	a.config.Collector.AddStreamsBackfilled(len(streamsToBackfill))
	a.config.Collector.AddStreamsResumed(len(resumed))
	a.logger.Info("attempt prepared", map[string]any{
		"streams_to_backfill": len(streamsToBackfill),
		"streams_with_state":  len(withState),
		"resumed_streams":     len(resumed),
	})

	a.tracker.StartTracking(a.config.Catalog, a.config.Meta)

	a.mu.Lock()
	a.preparation = prep
	a.mu.Unlock()
	return prep
}

// MarkResumed flags resumed full-refresh streams in output's statistics,
// judged against the state the attempt was prepared with. The attempt's
// catalog stands in when output carries none.
func (a *Attempt) MarkResumed(output *types.ReplicationOutput) types.StreamSet {
	a.mu.Lock()
	prep := a.preparation
	a.mu.Unlock()

	input := &types.ReplicationInput{Catalog: a.config.Catalog}
	if prep != nil {
		input.State = prep.State
	}
	return resume.MarkResumed(input, output)
}

// Track applies a stream status event.
func (a *Attempt) Track(event types.StreamStatusEvent) streamstatus.Disposition {
	return a.tracker.Track(event)
}

// Classifier returns the attempt's failure classifier.
func (a *Attempt) Classifier() failure.Classifier {
	return a.classifier
}

// RecordTrace classifies and records a connector error trace.
func (a *Attempt) RecordTrace(sig failure.TraceSignal) types.FailureRecord {
	r := a.classifier.FromTraceSignal(sig)
	a.RecordFailure(r)
	return r
}

// RecordException classifies and records an error raised while the
// connector ran the given command.
func (a *Attempt) RecordException(exc failure.Exception, kind failure.CommandKind) types.FailureRecord {
	r := a.classifier.FromUncaughtException(exc, kind)
	a.RecordFailure(r)
	return r
}

// RecordFailure records an already classified failure.
func (a *Attempt) RecordFailure(r types.FailureRecord) {
	a.mu.Lock()
	a.failures = append(a.failures, r)
	a.mu.Unlock()

	a.config.Collector.IncFailure(string(r.Origin))
	a.logger.Warn("failure recorded", map[string]any{
		"origin":     string(r.Origin),
		"type":       string(r.Type),
		"from_trace": r.Metadata.FromTraceMessage,
	})
}

// Close finalizes the attempt with the process exit signal. The caller must
// call Close even for a cancelled attempt. Close may be called again; each
// call reflects the state at that time.
func (a *Attempt) Close(exitCode int, cancelled bool) *AttemptResult {
	statuses := a.tracker.Finalize(exitCode, a.config.Mapper)

	a.mu.Lock()
	failures := make([]types.FailureRecord, len(a.failures))
	copy(failures, a.failures)
	first := !a.closed
	a.closed = true
	a.mu.Unlock()

	outcome := DetermineOutcome(exitCode, cancelled, failures, statuses)

	result := &AttemptResult{
		Meta:     a.config.Meta,
		Statuses: statuses,
		Streams:  a.tracker.Snapshot(),
		Outcome:  outcome,
		ExitCode: outcome.Status.ExitCode(),
		Duration: a.nowFunc().Sub(a.startTime),
	}

	switch outcome.Status {
	case OutcomeCancelled:
		summary := a.classifier.SummaryForCancellation(failures, outcome.PartialSuccess)
		result.Failures = &summary
	case OutcomeFailed:
		summary := failure.Summary(failures, outcome.PartialSuccess)
		result.Failures = &summary
	}

	if first {
		a.config.Collector.AddStatusesFinalized(len(statuses))
	}
	a.logger.Info("attempt closed", map[string]any{
		"outcome":         string(outcome.Status),
		"exit_code":       exitCode,
		"statuses":        len(statuses),
		"failures":        len(failures),
		"partial_success": outcome.PartialSuccess,
	})
	return result
}
