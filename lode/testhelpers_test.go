package lode

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/runtime"
	"github.com/pithecene-io/runledger/types"
)

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	PutErr error

	PutCalls int
	PutPaths []string
}

func (s *FailingStore) Put(_ context.Context, path string, _ io.Reader) error {
	s.PutCalls++
	s.PutPaths = append(s.PutPaths, path)
	return s.PutErr
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

// sharedFactory returns a StoreFactory that always returns the given store,
// so write and read datasets share the same in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

var (
	closedAt   = time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	testConfig = Config{
		Dataset:      "runledger",
		ConnectionID: "conn-1",
		Day:          "2026-02-03",
		JobID:        "job-1",
		Attempt:      2,
	}
)

func testReport() *runtime.AttemptReport {
	retryable := false
	users := types.NewStream("users")
	return &runtime.AttemptReport{
		JobID:          "job-1",
		Attempt:        2,
		ConnectionID:   "conn-1",
		Outcome:        runtime.OutcomeFailed,
		Message:        "attempt exited with code 1",
		PartialSuccess: true,
		ExitCode:       1,
		DurationMs:     1500,
		FrameCount:     7,
		Statuses: []types.StatusMessage{
			{Stream: users, Status: types.RunStateComplete, EmittedAtMs: 1_000},
			{
				Stream:          types.NewNamespacedStream("public", "accounts"),
				Status:          types.RunStateIncomplete,
				IncompleteCause: types.IncompleteCauseFailed,
				EmittedAtMs:     2_000,
			},
		},
		Failures: []types.FailureRecord{
			{Origin: types.OriginReplication, Type: types.FailureSystemError, TimestampMs: 30},
			{Origin: types.OriginSource, Type: types.FailureConfigError, TimestampMs: 10, Retryable: &retryable,
				Stream: &users, Metadata: types.FailureMetadata{FromTraceMessage: true, ConnectorCommand: types.CommandRead}},
		},
		Metrics: &metrics.Snapshot{
			StreamsTracked:   2,
			Failures:         2,
			FailuresByOrigin: map[string]int64{"source": 1, "replication": 1},
			StorageBackend:   "memory",
		},
	}
}
