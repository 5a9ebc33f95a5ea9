package reader

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pithecene-io/runledger/types"
)

// ParseOutcomeRecord converts an archived outcome record to an AttemptSummary.
// Handles both int64 (direct writes) and float64 (JSON round-trips) for numeric fields.
func ParseOutcomeRecord(record map[string]any) (*AttemptSummary, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	s := &AttemptSummary{
		ConnectionID:   toString(record["connection"]),
		Day:            toString(record["day"]),
		JobID:          toString(record["job_id"]),
		Outcome:        toString(record["outcome"]),
		Message:        toString(record["message"]),
		PartialSuccess: toBool(record["partial_success"]),
		ExitCode:       int(toInt64(record["exit_code"])),
		DurationMs:     toInt64(record["duration_ms"]),
		FrameCount:     toInt64(record["frame_count"]),

		StreamsTracked:    toInt64(record["streams_tracked"]),
		StatusesFinalized: toInt64(record["statuses_finalized"]),
		StreamsBackfilled: toInt64(record["streams_backfilled"]),
		StreamsResumed:    toInt64(record["streams_resumed"]),
		Failures:          toInt64(record["failures"]),
		FailuresByOrigin:  parseCounts(record["failures_by_origin"]),
		StorageBackend:    toString(record["storage_backend"]),
	}

	// The write path always populates these; missing values indicate a
	// malformed record.
	if s.JobID == "" {
		return nil, errors.New("outcome record missing required field: job_id")
	}
	if s.Outcome == "" {
		return nil, errors.New("outcome record missing required field: outcome")
	}
	attempt, err := strconv.Atoi(toString(record["attempt"]))
	if err != nil {
		return nil, fmt.Errorf("outcome record has invalid attempt %v", record["attempt"])
	}
	s.Attempt = attempt

	if ts := toString(record["closed_at"]); ts != "" {
		closedAt, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("outcome record has invalid closed_at %q: %w", ts, err)
		}
		s.ClosedAt = closedAt
	}
	return s, nil
}

// ParseStatusRecord converts an archived stream status record.
func ParseStatusRecord(record map[string]any) (*ArchivedStatus, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	stream, ok := parseStream(record)
	if !ok {
		return nil, errors.New("status record missing required field: stream_name")
	}
	status := types.RunState(toString(record["status"]))
	if !status.IsValid() {
		return nil, fmt.Errorf("status record has invalid status %q", status)
	}
	return &ArchivedStatus{
		Stream:          stream,
		Status:          status,
		IncompleteCause: types.IncompleteCause(toString(record["incomplete_cause"])),
		EmittedAtMs:     toInt64(record["emitted_at_ms"]),
	}, nil
}

// ParseFailureRecord converts an archived failure record.
func ParseFailureRecord(record map[string]any) (*ArchivedFailure, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}
	f := &ArchivedFailure{
		Index:            int(toInt64(record["index"])),
		Origin:           toString(record["failure_origin"]),
		Type:             toString(record["failure_type"]),
		ExternalMessage:  toString(record["external_message"]),
		InternalMessage:  toString(record["internal_message"]),
		Stacktrace:       toString(record["stacktrace"]),
		TimestampMs:      toInt64(record["timestamp"]),
		FromTraceMessage: toBool(record["from_trace_message"]),
		ConnectorCommand: toString(record["connector_command"]),
	}
	if f.Origin == "" {
		return nil, errors.New("failure record missing required field: failure_origin")
	}
	if b, ok := record["retryable"].(bool); ok {
		f.Retryable = &b
	}
	if stream, ok := parseStream(record); ok {
		f.Stream = &stream
	}
	return f, nil
}

// parseStream reads stream_name and the optional stream_namespace.
func parseStream(record map[string]any) (types.StreamDescriptor, bool) {
	name := toString(record["stream_name"])
	if name == "" {
		return types.StreamDescriptor{}, false
	}
	if ns, ok := record["stream_namespace"].(string); ok {
		return types.NewNamespacedStream(ns, name), true
	}
	return types.NewStream(name), true
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// parseCounts converts a per-key counter map from Lode record format.
// Handles both map[string]int64 (direct) and map[string]any (JSON round-trip).
func parseCounts(v any) map[string]int64 {
	switch m := v.(type) {
	case map[string]int64:
		return m
	case map[string]any:
		result := make(map[string]int64, len(m))
		for k, val := range m {
			result[k] = toInt64(val)
		}
		return result
	default:
		return nil
	}
}
