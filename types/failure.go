package types

import "strings"

// FailureOrigin is where a failure originated.
type FailureOrigin string

const (
	OriginSource      FailureOrigin = "source"
	OriginDestination FailureOrigin = "destination"
	OriginReplication FailureOrigin = "replication"
	OriginPlatform    FailureOrigin = "airbyte_platform"
	OriginUnknown     FailureOrigin = "unknown"
)

// ParseFailureOrigin maps a reported origin onto a known FailureOrigin.
// Unknown or empty values return OriginUnknown and false.
func ParseFailureOrigin(s string) (FailureOrigin, bool) {
	switch o := FailureOrigin(strings.ToLower(s)); o {
	case OriginSource, OriginDestination, OriginReplication, OriginPlatform, OriginUnknown:
		return o, true
	default:
		return OriginUnknown, false
	}
}

// FailureType classifies a failure for retry and alerting decisions.
type FailureType string

const (
	FailureConfigError        FailureType = "config_error"
	FailureSystemError        FailureType = "system_error"
	FailureTransientError     FailureType = "transient_error"
	FailureManualCancellation FailureType = "manual_cancellation"
	FailureRefreshSchema      FailureType = "refresh_schema"
	FailureHeartbeatTimeout   FailureType = "heartbeat_timeout"
	FailureDestinationTimeout FailureType = "destination_timeout"
)

// ParseFailureType maps a reported tag onto a known FailureType.
// Unknown or empty tags return false.
func ParseFailureType(s string) (FailureType, bool) {
	switch FailureType(s) {
	case FailureConfigError, FailureSystemError, FailureTransientError, FailureManualCancellation,
		FailureRefreshSchema, FailureHeartbeatTimeout, FailureDestinationTimeout:
		return FailureType(s), true
	default:
		return "", false
	}
}

// ConnectorCommand is the connector operation during which a failure occurred.
type ConnectorCommand string

const (
	CommandSpec     ConnectorCommand = "spec"
	CommandCheck    ConnectorCommand = "check"
	CommandDiscover ConnectorCommand = "discover"
	CommandRead     ConnectorCommand = "read"
	CommandWrite    ConnectorCommand = "write"
)

// FailureMetadata holds the always-present keys as typed fields.
// Extra is reserved for genuinely extensible metadata.
type FailureMetadata struct {
	JobID            string            `json:"job_id,omitempty"`
	AttemptNumber    int               `json:"attempt_number"`
	ConnectorCommand ConnectorCommand  `json:"connector_command,omitempty"`
	FromTraceMessage bool              `json:"from_trace_message"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// FailureRecord is one detected failure within an attempt.
// Records are not mutated after construction.
type FailureRecord struct {
	Origin          FailureOrigin     `json:"failure_origin,omitempty"`
	Type            FailureType       `json:"failure_type,omitempty"`
	ExternalMessage string            `json:"external_message,omitempty"`
	InternalMessage string            `json:"internal_message,omitempty"`
	Stacktrace      string            `json:"stacktrace,omitempty"`
	TimestampMs     int64             `json:"timestamp"`
	Stream          *StreamDescriptor `json:"stream_descriptor,omitempty"`
	Retryable       *bool             `json:"retryable,omitempty"`
	Metadata        FailureMetadata   `json:"metadata"`
}

// AttemptFailureSummary is the ordered failure report attached to an attempt.
type AttemptFailureSummary struct {
	Failures       []FailureRecord `json:"failures"`
	PartialSuccess bool            `json:"partial_success"`
}
