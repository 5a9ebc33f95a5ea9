package lode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/runtime"
	"github.com/pithecene-io/runledger/types"
)

// RecordKind discriminator values. Also the record_kind partition value.
const (
	RecordKindFailure      = "failure"
	RecordKindStreamStatus = "stream_status"
	RecordKindOutcome      = "outcome"
)

// OutcomeRecord is the per-attempt outcome written alongside failures and statuses.
type OutcomeRecord struct {
	Outcome        string
	Message        string
	PartialSuccess bool
	ExitCode       int
	DurationMs     int64
	FrameCount     int64
	ClosedAt       time.Time
	Metrics        metrics.Snapshot
}

// OutcomeFromReport extracts the outcome record of report.
func OutcomeFromReport(report *runtime.AttemptReport, closedAt time.Time) OutcomeRecord {
	rec := OutcomeRecord{
		Outcome:        string(report.Outcome),
		Message:        report.Message,
		PartialSuccess: report.PartialSuccess,
		ExitCode:       report.ExitCode,
		DurationMs:     report.DurationMs,
		FrameCount:     report.FrameCount,
		ClosedAt:       closedAt,
	}
	if report.Metrics != nil {
		rec.Metrics = *report.Metrics
	}
	return rec
}

// Lode HiveLayout requires records as map[string]any.

func streamFields(m map[string]any, d types.StreamDescriptor) {
	m["stream_name"] = d.Name
	if d.HasNamespace {
		m["stream_namespace"] = d.Namespace
	}
}

// toFailureRecordMap converts a failure record at position index of the
// ordered failure list.
func toFailureRecordMap(r types.FailureRecord, index int, cfg Config) map[string]any {
	m := cfg.partitions(RecordKindFailure)
	m["index"] = index
	m["failure_origin"] = string(r.Origin)
	m["failure_type"] = string(r.Type)
	m["external_message"] = r.ExternalMessage
	m["internal_message"] = r.InternalMessage
	m["stacktrace"] = r.Stacktrace
	m["timestamp"] = r.TimestampMs
	m["from_trace_message"] = r.Metadata.FromTraceMessage
	if r.Metadata.ConnectorCommand != "" {
		m["connector_command"] = string(r.Metadata.ConnectorCommand)
	}
	if r.Retryable != nil {
		m["retryable"] = *r.Retryable
	}
	if r.Stream != nil {
		streamFields(m, *r.Stream)
	}
	return m
}

// toStatusRecordMap converts a finalized stream status.
func toStatusRecordMap(s types.StatusMessage, cfg Config) map[string]any {
	m := cfg.partitions(RecordKindStreamStatus)
	streamFields(m, s.Stream)
	m["status"] = string(s.Status)
	m["emitted_at_ms"] = s.EmittedAtMs
	if s.IncompleteCause != "" {
		m["incomplete_cause"] = string(s.IncompleteCause)
	}
	return m
}

// toOutcomeRecordMap converts an outcome record, flattening the metrics snapshot.
func toOutcomeRecordMap(o OutcomeRecord, cfg Config) map[string]any {
	m := cfg.partitions(RecordKindOutcome)
	m["outcome"] = o.Outcome
	m["message"] = o.Message
	m["partial_success"] = o.PartialSuccess
	m["exit_code"] = o.ExitCode
	m["duration_ms"] = o.DurationMs
	m["frame_count"] = o.FrameCount
	m["closed_at"] = o.ClosedAt.UTC().Format(time.RFC3339Nano)

	s := o.Metrics
	m["streams_tracked"] = s.StreamsTracked
	m["status_accepted"] = s.StatusAccepted
	m["status_stale"] = s.StatusStale
	m["status_unknown"] = s.StatusUnknown
	m["status_ignored"] = s.StatusIgnored
	m["statuses_finalized"] = s.StatusesFinalized
	m["streams_backfilled"] = s.StreamsBackfilled
	m["streams_resumed"] = s.StreamsResumed
	m["failures"] = s.Failures
	m["frame_decode_errors"] = s.FrameDecodeErrors
	if len(s.FailuresByOrigin) > 0 {
		byOrigin := make(map[string]any, len(s.FailuresByOrigin))
		for k, v := range s.FailuresByOrigin {
			byOrigin[k] = v
		}
		m["failures_by_origin"] = byOrigin
	}
	if s.StorageBackend != "" {
		m["storage_backend"] = s.StorageBackend
	}
	return m
}

func marshalReport(report *runtime.AttemptReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
