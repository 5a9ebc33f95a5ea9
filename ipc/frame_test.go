package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/vmihailenco/msgpack/v5"
)

// encodeFrame wraps a raw payload with its length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func ptr(s string) *string { return &s }

func writeLog(t *testing.T, frames ...any) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)
	for _, f := range frames {
		if err := enc.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	return buf.Bytes()
}

func readAll(t *testing.T, r io.Reader) []any {
	t.Helper()
	dec := NewFrameDecoder(r)
	var out []any
	for {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		frame, err := DecodeFrame(payload)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		out = append(out, frame)
	}
}

func TestFrameRoundTrip_AllTypes(t *testing.T) {
	data := writeLog(t,
		&StreamStatusFrame{
			Type: StreamStatusType, Seq: 1,
			Stream: StreamRef{Name: "users", Namespace: ptr("public")},
			Status: "RATE_LIMITED", EmittedAtMs: 1000, QuotaResetMs: 5000,
		},
		&ErrorTraceFrame{
			Type: ErrorTraceType, Seq: 2, Message: "boom", FailureType: "config_error",
			Stream: &StreamRef{Name: "users"}, EmittedAtMs: 1100, Command: "read",
		},
		&ExceptionFrame{
			Type: ExceptionType, Seq: 3, Kind: ExceptionPlatform, Message: "payload too big",
			Causes: []string{CauseSizeLimit},
		},
		&ExitFrame{Type: ExitType, Seq: 4, ExitCode: 1, Cancelled: true},
	)

	frames := readAll(t, bytes.NewReader(data))
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}

	status, ok := frames[0].(*StreamStatusFrame)
	if !ok {
		t.Fatalf("frames[0] is %T, want *StreamStatusFrame", frames[0])
	}
	if status.Stream.Namespace == nil || *status.Stream.Namespace != "public" {
		t.Errorf("Namespace = %v, want public", status.Stream.Namespace)
	}
	if status.QuotaResetMs != 5000 {
		t.Errorf("QuotaResetMs = %d, want 5000", status.QuotaResetMs)
	}

	trace, ok := frames[1].(*ErrorTraceFrame)
	if !ok {
		t.Fatalf("frames[1] is %T, want *ErrorTraceFrame", frames[1])
	}
	if trace.Stream == nil || trace.Stream.Namespace != nil {
		t.Errorf("trace stream = %+v, want users without namespace", trace.Stream)
	}

	exc, ok := frames[2].(*ExceptionFrame)
	if !ok {
		t.Fatalf("frames[2] is %T, want *ExceptionFrame", frames[2])
	}
	if len(exc.Causes) != 1 || exc.Causes[0] != CauseSizeLimit {
		t.Errorf("Causes = %v", exc.Causes)
	}

	exit, ok := frames[3].(*ExitFrame)
	if !ok {
		t.Fatalf("frames[3] is %T, want *ExitFrame", frames[3])
	}
	if exit.ExitCode != 1 || !exit.Cancelled {
		t.Errorf("exit = %+v", exit)
	}
}

func TestFrameDecoder_OneByteReader(t *testing.T) {
	data := writeLog(t,
		&StreamStatusFrame{Type: StreamStatusType, Seq: 1, Stream: StreamRef{Name: "a"}, Status: "RUNNING"},
		&ExitFrame{Type: ExitType, Seq: 2},
	)

	frames := readAll(t, iotest.OneByteReader(bytes.NewReader(data)))
	if len(frames) != 2 {
		t.Errorf("got %d frames, want 2", len(frames))
	}
}

func TestFrameDecoder_PartialFrame(t *testing.T) {
	data := writeLog(t, &ExitFrame{Type: ExitType, Seq: 1, ExitCode: 0})
	truncated := data[:LengthPrefixSize+len(data[LengthPrefixSize:])/2]

	_, err := NewFrameDecoder(bytes.NewReader(truncated)).ReadFrame()
	if err == nil {
		t.Fatal("expected error for truncated frame")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}
}

func TestFrameDecoder_OversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(MaxPayloadSize+1))

	_, err := NewFrameDecoder(&buf).ReadFrame()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T (%v)", err, err)
	}
	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
	if !frameErr.IsFatal() {
		t.Error("FrameErrorTooLarge.IsFatal() should return true")
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	_, err := NewFrameDecoder(bytes.NewReader(nil)).ReadFrame()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

func TestFrameDecoder_TruncatedLengthPrefix(t *testing.T) {
	_, err := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x00})).ReadFrame()
	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	unknown, err := msgpack.Marshal(map[string]any{"type": "heartbeat"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	wrongShape, err := msgpack.Marshal(map[string]any{"type": ExitType, "exit_code": "zero"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	tests := []struct {
		name    string
		payload []byte
		kind    FrameErrorKind
	}{
		{"garbage", []byte{0xFF, 0xFF, 0xFF}, FrameErrorDecode},
		{"unknown type", unknown, FrameErrorUnknownType},
		{"wrong field type", wrongShape, FrameErrorDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.payload)
			var frameErr *FrameError
			if !errors.As(err, &frameErr) {
				t.Fatalf("expected *FrameError, got %T (%v)", err, err)
			}
			if frameErr.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", frameErr.Kind, tt.kind)
			}
			if frameErr.IsFatal() {
				t.Error("decode errors must not be fatal")
			}
		})
	}
}

func TestFrameError_ErrorMessage(t *testing.T) {
	withCause := &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode exit", Err: errors.New("bad int")}
	if got := withCause.Error(); got != "failed to decode exit: bad int" {
		t.Errorf("Error() = %q", got)
	}
	bare := &FrameError{Kind: FrameErrorTooLarge, Msg: "too large"}
	if got := bare.Error(); got != "too large" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(withCause, withCause.Err) {
		t.Error("FrameError should unwrap to its cause")
	}
}

func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	if IsFatalFrameError(errors.New("plain")) {
		t.Error("plain errors are not fatal frame errors")
	}
}
