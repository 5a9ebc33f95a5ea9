package ipc

// Frame type discriminants.
const (
	StreamStatusType = "stream_status"
	ErrorTraceType   = "error_trace"
	ExceptionType    = "exception"
	ExitType         = "exit"
)

// StreamRef is a stream descriptor on the wire. A nil Namespace means none.
type StreamRef struct {
	Name      string  `msgpack:"name"`
	Namespace *string `msgpack:"namespace,omitempty"`
}

// StreamStatusFrame reports a stream's run state.
type StreamStatusFrame struct {
	Type            string    `msgpack:"type"`
	Seq             int64     `msgpack:"seq"`
	Stream          StreamRef `msgpack:"stream"`
	Status          string    `msgpack:"status"`
	IncompleteCause string    `msgpack:"incomplete_cause,omitempty"`
	EmittedAtMs     int64     `msgpack:"emitted_at_ms"`
	QuotaResetMs    int64     `msgpack:"quota_reset_ms,omitempty"`
}

// ErrorTraceFrame is an error trace reported by a connector.
type ErrorTraceFrame struct {
	Type            string     `msgpack:"type"`
	Seq             int64      `msgpack:"seq"`
	Message         string     `msgpack:"message,omitempty"`
	InternalMessage string     `msgpack:"internal_message,omitempty"`
	StackTrace      string     `msgpack:"stack_trace,omitempty"`
	FailureType     string     `msgpack:"failure_type,omitempty"`
	Stream          *StreamRef `msgpack:"stream,omitempty"`
	EmittedAtMs     int64      `msgpack:"emitted_at_ms"`
	Command         string     `msgpack:"command,omitempty"`
	Origin          string     `msgpack:"origin,omitempty"`
}

// Exception kinds carried by ExceptionFrame.Kind.
const (
	ExceptionCheckSource        = "check_source"
	ExceptionCheckDestination   = "check_destination"
	ExceptionDiscover           = "discover"
	ExceptionRead               = "read"
	ExceptionWrite              = "write"
	ExceptionReplication        = "replication"
	ExceptionPlatform           = "platform"
	ExceptionHeartbeat          = "heartbeat"
	ExceptionDestinationTimeout = "destination_timeout"
	ExceptionUnknown            = "unknown"
)

// Known cause codes carried by ExceptionFrame.Causes.
const (
	CauseSizeLimit          = "size_limit"
	CauseResourceConstraint = "resource_constraint"
	CauseWorkloadLauncher   = "workload_launcher"
	CauseWorkloadMonitor    = "workload_monitor"
)

// ExceptionFrame is an error the orchestrator observed while the attempt ran.
type ExceptionFrame struct {
	Type        string   `msgpack:"type"`
	Seq         int64    `msgpack:"seq"`
	Kind        string   `msgpack:"kind"`
	Message     string   `msgpack:"message"`
	Causes      []string `msgpack:"causes,omitempty"`
	Stacktrace  string   `msgpack:"stacktrace,omitempty"`
	TimestampMs int64    `msgpack:"timestamp_ms,omitempty"`
	// ThresholdMs and ElapsedMs are set for heartbeat and destination timeouts.
	ThresholdMs int64 `msgpack:"threshold_ms,omitempty"`
	ElapsedMs   int64 `msgpack:"elapsed_ms,omitempty"`
}

// ExitFrame carries the process exit signal. It is the last frame of a log.
type ExitFrame struct {
	Type      string `msgpack:"type"`
	Seq       int64  `msgpack:"seq"`
	ExitCode  int    `msgpack:"exit_code"`
	Cancelled bool   `msgpack:"cancelled,omitempty"`
}
