package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pithecene-io/runledger/failure"
	"github.com/pithecene-io/runledger/ipc"
	"github.com/pithecene-io/runledger/log"
	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/types"
)

// IngestionError classifies event log errors.
type IngestionError struct {
	// Kind indicates whether this is a framing error or a cancellation.
	Kind IngestionErrorKind
	// Err is the underlying error.
	Err error
}

// IngestionErrorKind classifies ingestion errors.
type IngestionErrorKind int

const (
	// IngestionErrorStream indicates a framing or sequencing error.
	IngestionErrorStream IngestionErrorKind = iota
	// IngestionErrorCanceled indicates context cancellation.
	IngestionErrorCanceled
)

func (e *IngestionError) Error() string {
	return e.Err.Error()
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestionErrorCanceled
	}
	return false
}

// IsStreamError returns true if the error is a framing or sequencing error.
func IsStreamError(err error) bool {
	var ingErr *IngestionError
	if errors.As(err, &ingErr) {
		return ingErr.Kind == IngestionErrorStream
	}
	return false
}

// IngestionEngine replays an attempt event log into an Attempt.
//
//   - Frames are read in order and seq must be strictly increasing
//   - Broken framing is fatal (no resync)
//   - Frames that fail to decode are counted and skipped
//   - The first exit frame wins; later frames are ignored
type IngestionEngine struct {
	decoder    *ipc.FrameDecoder
	attempt    *Attempt
	logger     *log.Logger
	collector  *metrics.Collector
	currentSeq int64
	exit       *ipc.ExitFrame
	frames     int64
}

// NewIngestionEngine creates a new ingestion engine.
func NewIngestionEngine(
	reader io.Reader,
	attempt *Attempt,
	logger *log.Logger,
	collector *metrics.Collector,
) *IngestionEngine {
	if logger == nil {
		logger = log.Nop()
	}
	return &IngestionEngine{
		decoder:   ipc.NewFrameDecoder(reader),
		attempt:   attempt,
		logger:    logger,
		collector: collector,
	}
}

// Run runs the ingestion loop until EOF, an exit frame, or a fatal error.
// Returns:
//   - nil: log ended cleanly
//   - *IngestionError with Kind=IngestionErrorStream: framing or sequencing error
//   - *IngestionError with Kind=IngestionErrorCanceled: context canceled
func (e *IngestionEngine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &IngestionError{Kind: IngestionErrorCanceled, Err: ctx.Err()}
		default:
		}

		payload, err := e.decoder.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// A torn tail after the exit frame is a writer that died late.
			if e.exit != nil {
				e.logger.Debug("event log truncated after exit frame", map[string]any{
					"error": err.Error(),
				})
				return nil
			}
			e.logger.Error("frame error", map[string]any{"error": err.Error()})
			return &IngestionError{
				Kind: IngestionErrorStream,
				Err:  fmt.Errorf("frame error: %w", err),
			}
		}

		if err := e.processFrame(payload); err != nil {
			return err
		}
	}
}

func (e *IngestionEngine) processFrame(payload []byte) error {
	decoded, err := ipc.DecodeFrame(payload)
	if err != nil {
		e.collector.IncFrameDecodeErrors()
		e.logger.Warn("frame decode error, skipping", map[string]any{"error": err.Error()})
		return nil
	}

	seq := frameSeq(decoded)
	if seq <= e.currentSeq {
		e.logger.Error("sequence violation", map[string]any{
			"previous": e.currentSeq,
			"got":      seq,
		})
		return &IngestionError{
			Kind: IngestionErrorStream,
			Err:  fmt.Errorf("sequence violation: expected > %d, got %d", e.currentSeq, seq),
		}
	}
	e.currentSeq = seq

	if e.exit != nil {
		e.logger.Warn("ignoring frame after exit", map[string]any{"seq": seq})
		return nil
	}
	e.frames++

	switch frame := decoded.(type) {
	case *ipc.StreamStatusFrame:
		e.attempt.Track(StatusEventFromFrame(frame))
	case *ipc.ErrorTraceFrame:
		e.attempt.RecordTrace(TraceSignalFromFrame(frame))
	case *ipc.ExceptionFrame:
		e.attempt.RecordFailure(e.classifyException(frame))
	case *ipc.ExitFrame:
		e.exit = frame
		e.logger.Info("exit frame received", map[string]any{
			"exit_code": frame.ExitCode,
			"cancelled": frame.Cancelled,
			"seq":       frame.Seq,
		})
	}
	return nil
}

func frameSeq(frame any) int64 {
	switch f := frame.(type) {
	case *ipc.StreamStatusFrame:
		return f.Seq
	case *ipc.ErrorTraceFrame:
		return f.Seq
	case *ipc.ExceptionFrame:
		return f.Seq
	case *ipc.ExitFrame:
		return f.Seq
	default:
		return 0
	}
}

// Exit returns the exit frame, if one was read.
func (e *IngestionEngine) Exit() (*ipc.ExitFrame, bool) {
	return e.exit, e.exit != nil
}

// FrameCount returns the number of frames applied to the attempt.
func (e *IngestionEngine) FrameCount() int64 {
	return e.frames
}

// CurrentSeq returns the last accepted sequence number.
func (e *IngestionEngine) CurrentSeq() int64 {
	return e.currentSeq
}

// StreamFromRef converts a wire stream reference into a descriptor.
func StreamFromRef(ref ipc.StreamRef) types.StreamDescriptor {
	if ref.Namespace == nil {
		return types.NewStream(ref.Name)
	}
	return types.NewNamespacedStream(*ref.Namespace, ref.Name)
}

// StatusEventFromFrame converts a stream status frame into a tracker event.
func StatusEventFromFrame(f *ipc.StreamStatusFrame) types.StreamStatusEvent {
	ev := types.StreamStatusEvent{
		Stream:          StreamFromRef(f.Stream),
		RunState:        types.RunState(f.Status),
		IncompleteCause: types.IncompleteCause(f.IncompleteCause),
	}
	if f.EmittedAtMs != 0 {
		ev.EmittedAt = time.UnixMilli(f.EmittedAtMs)
	}
	if ev.RunState == types.RunStateRateLimited {
		ev.RateLimited = &types.RateLimitedMetadata{QuotaResetMs: f.QuotaResetMs}
	}
	return ev
}

// TraceSignalFromFrame converts an error trace frame into a trace signal.
func TraceSignalFromFrame(f *ipc.ErrorTraceFrame) failure.TraceSignal {
	sig := failure.TraceSignal{
		Message:         f.Message,
		InternalMessage: f.InternalMessage,
		StackTrace:      f.StackTrace,
		FailureType:     f.FailureType,
		EmittedAtMs:     f.EmittedAtMs,
		Command:         types.ConnectorCommand(f.Command),
		Origin:          types.FailureOrigin(f.Origin),
	}
	if f.Stream != nil {
		d := StreamFromRef(*f.Stream)
		sig.Stream = &d
	}
	return sig
}

var causeSentinels = map[string]error{
	ipc.CauseSizeLimit:          failure.ErrSizeLimit,
	ipc.CauseResourceConstraint: failure.ErrResourceConstraint,
	ipc.CauseWorkloadLauncher:   failure.ErrWorkloadLauncher,
	ipc.CauseWorkloadMonitor:    failure.ErrWorkloadMonitor,
}

// frameException is an exception frame's message with its cause codes as the
// wrapped chain. Only the message is rendered.
type frameException struct {
	message string
	causes  []error
}

func (e *frameException) Error() string { return e.message }

func (e *frameException) Unwrap() []error { return e.causes }

// ExceptionFromFrame rebuilds an error chain from an exception frame. Known
// cause codes become the matching sentinels; unknown codes are kept as text.
func ExceptionFromFrame(f *ipc.ExceptionFrame) failure.Exception {
	var err error = errors.New(f.Message)
	if len(f.Causes) > 0 {
		causes := make([]error, 0, len(f.Causes))
		for _, c := range f.Causes {
			if sentinel, ok := causeSentinels[c]; ok {
				causes = append(causes, sentinel)
			} else {
				causes = append(causes, errors.New(c))
			}
		}
		err = &frameException{message: f.Message, causes: causes}
	}
	return failure.Exception{Err: err, Stacktrace: f.Stacktrace, TimestampMs: f.TimestampMs}
}

func (e *IngestionEngine) classifyException(f *ipc.ExceptionFrame) types.FailureRecord {
	c := e.attempt.Classifier()
	exc := ExceptionFromFrame(f)
	threshold := time.Duration(f.ThresholdMs) * time.Millisecond
	elapsed := time.Duration(f.ElapsedMs) * time.Millisecond

	switch f.Kind {
	case ipc.ExceptionCheckSource:
		return c.FromUncaughtException(exc, failure.CommandCheckSource)
	case ipc.ExceptionCheckDestination:
		return c.FromUncaughtException(exc, failure.CommandCheckDestination)
	case ipc.ExceptionDiscover:
		return c.FromUncaughtException(exc, failure.CommandDiscover)
	case ipc.ExceptionRead:
		return c.FromUncaughtException(exc, failure.CommandRead)
	case ipc.ExceptionWrite:
		return c.FromUncaughtException(exc, failure.CommandWrite)
	case ipc.ExceptionReplication:
		return c.ReplicationFailure(exc)
	case ipc.ExceptionPlatform:
		return c.PlatformFailure(exc)
	case ipc.ExceptionHeartbeat:
		return c.HeartbeatFailure(exc, threshold, elapsed)
	case ipc.ExceptionDestinationTimeout:
		return c.DestinationTimeoutFailure(exc, threshold, elapsed)
	default:
		return c.UnknownOriginFailure(exc)
	}
}
