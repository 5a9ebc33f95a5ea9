// Package adapter defines the boundary for publishing closed attempts to
// downstream systems (alerting, dashboards, schedulers).
//
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/runledger/runtime"
	"github.com/pithecene-io/runledger/types"
)

// EventTypeAttemptClosed is the event_type of every AttemptClosedEvent.
const EventTypeAttemptClosed = "attempt_closed"

// StreamStatus is the per-stream summary carried by an AttemptClosedEvent.
type StreamStatus struct {
	Name            string  `json:"name"`
	Namespace       *string `json:"namespace,omitempty"`
	Status          string  `json:"status"`
	IncompleteCause string  `json:"incomplete_cause,omitempty"`
}

// FailureSummary is the condensed form of one failure record.
type FailureSummary struct {
	Origin          string `json:"failure_origin,omitempty"`
	Type            string `json:"failure_type,omitempty"`
	ExternalMessage string `json:"external_message,omitempty"`
	Retryable       *bool  `json:"retryable,omitempty"`
}

// AttemptClosedEvent is the payload published when an attempt is closed.
type AttemptClosedEvent struct {
	ContractVersion string           `json:"contract_version"`
	EventID         string           `json:"event_id"`
	EventType       string           `json:"event_type"` // always "attempt_closed"
	JobID           string           `json:"job_id"`
	Attempt         int              `json:"attempt"`
	ConnectionID    string           `json:"connection_id,omitempty"`
	WorkspaceID     string           `json:"workspace_id,omitempty"`
	Outcome         string           `json:"outcome"` // succeeded, failed, cancelled
	Message         string           `json:"message"`
	PartialSuccess  bool             `json:"partial_success"`
	ExitCode        int              `json:"exit_code"`
	DurationMs      int64            `json:"duration_ms"`
	Streams         []StreamStatus   `json:"streams"`
	Failures        []FailureSummary `json:"failures"`
	StoragePath     string           `json:"storage_path,omitempty"`
	Timestamp       string           `json:"timestamp"` // RFC 3339
}

// NewAttemptClosedEvent builds the event for report. Failures keep the
// report's canonical order. storagePath may be empty when nothing was archived.
func NewAttemptClosedEvent(report *runtime.AttemptReport, storagePath string, closedAt time.Time) *AttemptClosedEvent {
	ev := &AttemptClosedEvent{
		ContractVersion: types.Version,
		EventID:         uuid.NewString(),
		EventType:       EventTypeAttemptClosed,
		JobID:           report.JobID,
		Attempt:         report.Attempt,
		ConnectionID:    report.ConnectionID,
		WorkspaceID:     report.WorkspaceID,
		Outcome:         string(report.Outcome),
		Message:         report.Message,
		PartialSuccess:  report.PartialSuccess,
		ExitCode:        report.ExitCode,
		DurationMs:      report.DurationMs,
		Streams:         make([]StreamStatus, 0, len(report.Statuses)),
		Failures:        make([]FailureSummary, 0, len(report.Failures)),
		StoragePath:     storagePath,
		Timestamp:       closedAt.UTC().Format(time.RFC3339),
	}
	for _, s := range report.Statuses {
		ev.Streams = append(ev.Streams, StreamStatus{
			Name:            s.Stream.Name,
			Namespace:       s.Stream.NamespacePtr(),
			Status:          string(s.Status),
			IncompleteCause: string(s.IncompleteCause),
		})
	}
	for _, f := range report.Failures {
		ev.Failures = append(ev.Failures, FailureSummary{
			Origin:          string(f.Origin),
			Type:            string(f.Type),
			ExternalMessage: f.ExternalMessage,
			Retryable:       f.Retryable,
		})
	}
	return ev
}

// Adapter publishes attempt closed events to a downstream system.
type Adapter interface {
	// Publish sends an attempt closed event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *AttemptClosedEvent) error

	// Close releases adapter resources.
	Close() error
}
