// Package failure turns raw failure signals observed during an attempt into
// canonical failure records and orders them into the attempt's failure report.
//
// Connector-reported error traces and orchestrator-observed errors are both
// normalized here. Every constructor truncates free text and fills a failure
// type at construction time.
package failure

import (
	"fmt"
	"time"

	"github.com/pithecene-io/runledger/types"
)

// TraceSignal is an error trace reported in-band by a connector.
type TraceSignal struct {
	// Message is the user-facing message.
	Message string
	// InternalMessage is the technical message.
	InternalMessage string
	// StackTrace is the connector's stack trace, if any.
	StackTrace string
	// FailureType is the raw failure type tag. Empty or unknown tags classify
	// as a system error.
	FailureType string
	// Stream is the stream the failure relates to, if any.
	Stream *types.StreamDescriptor
	// EmittedAtMs is when the connector emitted the trace.
	EmittedAtMs int64
	// Command is the connector command that produced the trace, if known.
	Command types.ConnectorCommand
	// Origin overrides the origin derived from Command. Values outside the
	// known origins classify as OriginUnknown.
	Origin types.FailureOrigin
}

// Exception is an error the orchestrator observed directly.
type Exception struct {
	Err error
	// Stacktrace is the captured stack, if the collaborator recorded one.
	Stacktrace string
	// TimestampMs is when the error was observed. Zero means now.
	TimestampMs int64
}

// CommandKind is the connector operation an exception was raised in. It fixes
// both the origin and the command recorded in metadata.
type CommandKind int

const (
	CommandCheckSource CommandKind = iota
	CommandCheckDestination
	CommandDiscover
	CommandRead
	CommandWrite
)

// Origin is the failure origin implied by the command.
func (k CommandKind) Origin() types.FailureOrigin {
	switch k {
	case CommandCheckDestination, CommandWrite:
		return types.OriginDestination
	default:
		return types.OriginSource
	}
}

// Command is the connector command recorded in metadata.
func (k CommandKind) Command() types.ConnectorCommand {
	switch k {
	case CommandCheckSource, CommandCheckDestination:
		return types.CommandCheck
	case CommandDiscover:
		return types.CommandDiscover
	case CommandWrite:
		return types.CommandWrite
	default:
		return types.CommandRead
	}
}

// Classifier builds failure records for one attempt.
// It is a value type with no shared state; copies are independent.
type Classifier struct {
	meta types.AttemptMeta
	now  func() time.Time
}

// NewClassifier creates a Classifier for the given attempt. A nil clock means time.Now.
func NewClassifier(meta types.AttemptMeta, now func() time.Time) Classifier {
	if now == nil {
		now = time.Now
	}
	return Classifier{meta: meta, now: now}
}

func (c Classifier) metadata(command types.ConnectorCommand, fromTrace bool) types.FailureMetadata {
	return types.FailureMetadata{
		JobID:            c.meta.JobID,
		AttemptNumber:    c.meta.AttemptNumber,
		ConnectorCommand: command,
		FromTraceMessage: fromTrace,
	}
}

func originForCommand(cmd types.ConnectorCommand) types.FailureOrigin {
	switch cmd {
	case types.CommandRead, types.CommandDiscover:
		return types.OriginSource
	case types.CommandWrite:
		return types.OriginDestination
	default:
		return types.OriginUnknown
	}
}

// FromTraceSignal builds a record from a connector error trace.
func (c Classifier) FromTraceSignal(sig TraceSignal) types.FailureRecord {
	failureType, ok := types.ParseFailureType(sig.FailureType)
	if !ok {
		failureType = types.FailureSystemError
	}
	origin := originForCommand(sig.Command)
	if sig.Origin != "" {
		origin, _ = types.ParseFailureOrigin(string(sig.Origin))
	}
	var stream *types.StreamDescriptor
	if sig.Stream != nil {
		d := *sig.Stream
		stream = &d
	}

	return types.FailureRecord{
		Origin:          origin,
		Type:            failureType,
		ExternalMessage: Truncate(sig.Message, MaxMessageLength),
		InternalMessage: Truncate(sig.InternalMessage, MaxMessageLength),
		Stacktrace:      Truncate(sig.StackTrace, MaxStacktraceLength),
		TimestampMs:     sig.EmittedAtMs,
		Stream:          stream,
		Metadata:        c.metadata(sig.Command, true),
	}
}

// generic builds the common part of an exception-derived record.
func (c Classifier) generic(exc Exception, command types.ConnectorCommand) types.FailureRecord {
	ts := exc.TimestampMs
	if ts == 0 {
		ts = c.now().UnixMilli()
	}
	var internal string
	if exc.Err != nil {
		internal = exc.Err.Error()
	}
	return types.FailureRecord{
		Type:            types.FailureSystemError,
		InternalMessage: Truncate(internal, MaxMessageLength),
		Stacktrace:      Truncate(exc.Stacktrace, MaxStacktraceLength),
		TimestampMs:     ts,
		Metadata:        c.metadata(command, false),
	}
}

// FromUncaughtException builds a record for an error raised while the
// connector ran the given command. Check commands classify as configuration
// errors.
func (c Classifier) FromUncaughtException(exc Exception, kind CommandKind) types.FailureRecord {
	switch kind {
	case CommandCheckSource, CommandCheckDestination:
		return c.CheckFailure(exc, kind.Origin())
	case CommandWrite:
		r := c.generic(exc, kind.Command())
		r.Origin = types.OriginDestination
		r.ExternalMessage = "Something went wrong within the destination connector"
		return r
	default:
		r := c.generic(exc, kind.Command())
		r.Origin = types.OriginSource
		r.ExternalMessage = "Something went wrong within the source connector"
		return r
	}
}

// CheckFailure builds a non-retryable configuration error for a failed
// connection check against origin.
func (c Classifier) CheckFailure(exc Exception, origin types.FailureOrigin) types.FailureRecord {
	retryable := false
	r := c.generic(exc, types.CommandCheck)
	r.Origin = origin
	r.Type = types.FailureConfigError
	r.Retryable = &retryable
	r.ExternalMessage = fmt.Sprintf(
		"Checking %s connection failed - please review this connection's configuration to prevent future syncs from failing",
		origin,
	)
	return r
}

// ReplicationFailure builds a record for an error in the replication process
// itself. Launch and monitoring problems are transient.
func (c Classifier) ReplicationFailure(exc Exception) types.FailureRecord {
	r := c.generic(exc, "")
	r.Origin = types.OriginReplication
	switch {
	case chainOrMessageContains(exc.Err, ErrResourceConstraint):
		r.Type = types.FailureTransientError
		r.ExternalMessage = "Could not start the sync process. " +
			"This may be due to insufficient system resources. Please check available resources and try again."
	case chainOrMessageContains(exc.Err, ErrWorkloadLauncher):
		r.Type = types.FailureTransientError
		r.ExternalMessage = "Could not start the sync process."
	case chainOrMessageContains(exc.Err, ErrWorkloadMonitor):
		r.Type = types.FailureTransientError
		r.ExternalMessage = "Could not start the sync process or track the progress of the sync."
	default:
		r.ExternalMessage = "Something went wrong during replication"
	}
	return r
}

// PlatformFailure builds a record for an error inside the platform.
func (c Classifier) PlatformFailure(exc Exception) types.FailureRecord {
	r := c.generic(exc, "")
	r.Origin = types.OriginPlatform
	if ExceptionChainContains(exc.Err, Sentinel(ErrSizeLimit)) {
		r.ExternalMessage = "Size limit exceeded, please check your configuration, this is often related to a high number of fields."
	} else {
		r.ExternalMessage = "Something went wrong within the platform"
	}
	return r
}

// UnknownOriginFailure builds a record for an error nobody can attribute.
func (c Classifier) UnknownOriginFailure(exc Exception) types.FailureRecord {
	r := c.generic(exc, "")
	r.Origin = types.OriginUnknown
	r.ExternalMessage = "An unknown failure occurred"
	return r
}

// HeartbeatFailure builds a record for a source that stopped sending records
// for longer than threshold.
func (c Classifier) HeartbeatFailure(exc Exception, threshold, sinceLastRecord time.Duration) types.FailureRecord {
	r := c.generic(exc, types.CommandRead)
	r.Origin = types.OriginSource
	r.Type = types.FailureHeartbeatTimeout
	r.ExternalMessage = fmt.Sprintf(
		"The source didn't send any records in the last %s, exceeding the configured %s threshold. "+
			"Reading will be retried on the next sync.",
		sinceLastRecord, threshold,
	)
	return r
}

// DestinationTimeoutFailure builds a record for a destination that made no
// progress for longer than threshold.
func (c Classifier) DestinationTimeoutFailure(exc Exception, threshold, sinceLastAction time.Duration) types.FailureRecord {
	r := c.generic(exc, types.CommandWrite)
	r.Origin = types.OriginDestination
	r.Type = types.FailureDestinationTimeout
	r.ExternalMessage = fmt.Sprintf(
		"The destination didn't make progress in the last %s, exceeding the configured %s threshold. "+
			"Writing will be retried on the next sync.",
		sinceLastAction, threshold,
	)
	return r
}

// CancellationFailure builds the record attached to a cancelled attempt.
func (c Classifier) CancellationFailure() types.FailureRecord {
	return types.FailureRecord{
		Type:            types.FailureManualCancellation,
		InternalMessage: "Setting attempt to FAILED because the job was cancelled",
		ExternalMessage: "This attempt was cancelled",
		TimestampMs:     c.now().UnixMilli(),
		Metadata:        c.metadata("", false),
	}
}
