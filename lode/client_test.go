package lode

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/types"
)

func TestArchive_WriteReadRoundTrip(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())

	client, err := NewLodeClientWithFactory(testConfig, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	archive := NewArchive(client, client)
	if err := archive.WriteReport(t.Context(), testReport(), closedAt); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	ds, err := NewReadDataset("runledger", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}

	failures, err := QueryRecords(t.Context(), ds, Query{JobID: "job-1", Attempt: 2, RecordKind: RecordKindFailure})
	if err != nil {
		t.Fatalf("QueryRecords(failure) failed: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("got %d failure records, want 2", len(failures))
	}
	if failures[0]["failure_origin"] != "replication" || failures[1]["failure_origin"] != "source" {
		t.Errorf("failure order not preserved: %v, %v", failures[0]["failure_origin"], failures[1]["failure_origin"])
	}
	if failures[1]["stream_name"] != "users" {
		t.Errorf("stream_name = %v, want users", failures[1]["stream_name"])
	}
	if failures[1]["retryable"] != false {
		t.Errorf("retryable = %v, want false", failures[1]["retryable"])
	}

	statuses, err := QueryRecords(t.Context(), ds, Query{JobID: "job-1", Attempt: -1, RecordKind: RecordKindStreamStatus})
	if err != nil {
		t.Fatalf("QueryRecords(status) failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d status records, want 2", len(statuses))
	}
	for _, s := range statuses {
		if s["stream_name"] == "accounts" {
			if s["stream_namespace"] != "public" || s["incomplete_cause"] != "FAILED" {
				t.Errorf("accounts record = %v", s)
			}
		}
	}

	outcome, err := QueryLatestOutcome(t.Context(), ds, Query{JobID: "job-1", Attempt: 2})
	if err != nil {
		t.Fatalf("QueryLatestOutcome failed: %v", err)
	}
	if outcome["outcome"] != "failed" {
		t.Errorf("outcome = %v, want failed", outcome["outcome"])
	}
	if toInt64(outcome["streams_tracked"]) != 2 {
		t.Errorf("streams_tracked = %v, want 2", outcome["streams_tracked"])
	}
	if outcome["connection"] != "conn-1" || outcome["attempt"] != "2" {
		t.Errorf("partitions = %v/%v", outcome["connection"], outcome["attempt"])
	}
}

func TestQueryLatestOutcome_NoRecords(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	client, err := NewLodeClientWithFactory(testConfig, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteStatuses(t.Context(), testReport().Statuses); err != nil {
		t.Fatalf("WriteStatuses failed: %v", err)
	}

	ds, err := NewReadDataset("runledger", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	_, err = QueryLatestOutcome(t.Context(), ds, Query{JobID: "job-1", Attempt: -1})
	if !errors.Is(err, ErrNoRecordsFound) {
		t.Errorf("err = %v, want ErrNoRecordsFound", err)
	}
}

func TestQueryLatestOutcome_FiltersByJob(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())

	for _, jobID := range []string{"job-1", "job-10"} {
		cfg := testConfig
		cfg.JobID = jobID
		client, err := NewLodeClientWithFactory(cfg, factory)
		if err != nil {
			t.Fatalf("NewLodeClientWithFactory failed: %v", err)
		}
		if err := client.WriteOutcome(t.Context(), OutcomeRecord{Outcome: "succeeded", Message: jobID}); err != nil {
			t.Fatalf("WriteOutcome failed: %v", err)
		}
	}

	ds, err := NewReadDataset("runledger", factory)
	if err != nil {
		t.Fatalf("NewReadDataset failed: %v", err)
	}
	record, err := QueryLatestOutcome(t.Context(), ds, Query{JobID: "job-1", Attempt: -1})
	if err != nil {
		t.Fatalf("QueryLatestOutcome failed: %v", err)
	}
	if record["message"] != "job-1" {
		t.Errorf("message = %v, want job-1", record["message"])
	}
}

func TestLodeClient_EmptyWritesAreNoops(t *testing.T) {
	store := &FailingStore{PutErr: errors.New("should not be called")}
	client, err := NewLodeClientWithFactory(testConfig, sharedFactory(store))
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteFailures(t.Context(), nil); err != nil {
		t.Errorf("WriteFailures(nil) = %v", err)
	}
	if err := client.WriteStatuses(t.Context(), []types.StatusMessage{}); err != nil {
		t.Errorf("WriteStatuses(empty) = %v", err)
	}
	if store.PutCalls != 0 {
		t.Errorf("PutCalls = %d, want 0", store.PutCalls)
	}
}

func TestLodeClient_WriteFailureIsClassified(t *testing.T) {
	store := &FailingStore{PutErr: errors.New("write: no space left on device")}
	client, err := NewLodeClientWithFactory(testConfig, sharedFactory(store))
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}

	err = client.WriteOutcome(t.Context(), OutcomeRecord{Outcome: "failed"})
	if err == nil {
		t.Fatal("expected write error")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *StorageError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrDiskFull) {
		t.Errorf("kind = %v, want ErrDiskFull", storageErr.Kind)
	}
	if storageErr.Op != "write" || !strings.Contains(storageErr.Path, "record_kind=outcome") {
		t.Errorf("Op=%q Path=%q", storageErr.Op, storageErr.Path)
	}
}

func TestLodeClient_PutFile(t *testing.T) {
	store := &FailingStore{}
	client, err := NewLodeClientWithFactory(testConfig, sharedFactory(store))
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}

	if err := client.PutFile(t.Context(), "report.json", "application/json", []byte("{}")); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
	prefix := "datasets/runledger/partitions/connection=conn-1/day=2026-02-03/job_id=job-1/attempt=2"
	if got := client.AttemptPath(); got != prefix {
		t.Errorf("AttemptPath() = %q, want %q", got, prefix)
	}
	want := prefix + "/files/report.json"
	if len(store.PutPaths) != 1 || store.PutPaths[0] != want {
		t.Errorf("PutPaths = %v, want [%s]", store.PutPaths, want)
	}

	for _, bad := range []string{"", "../x", "a/b", `a\b`} {
		if err := client.PutFile(t.Context(), bad, "", nil); err == nil {
			t.Errorf("PutFile(%q) succeeded, want error", bad)
		}
	}
}

func TestLodeClient_DefaultsConnectionAndDataset(t *testing.T) {
	store := &FailingStore{}
	client, err := NewLodeClientWithFactory(Config{JobID: "job-1", Day: "2026-02-03"}, sharedFactory(store))
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.PutFile(t.Context(), "report.json", "", nil); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
	if !strings.HasPrefix(store.PutPaths[0], "datasets/runledger/partitions/connection=unknown/") {
		t.Errorf("path = %s", store.PutPaths[0])
	}
}

func TestArchive_WriteReportWithStubs(t *testing.T) {
	stub := NewStubClient()
	files := NewStubFileWriter()
	archive := NewArchive(stub, files)

	if err := archive.WriteReport(t.Context(), testReport(), closedAt); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	if len(stub.Failures) != 1 || len(stub.Failures[0]) != 2 {
		t.Errorf("Failures = %v", stub.Failures)
	}
	if len(stub.Outcomes) != 1 || stub.Outcomes[0].FrameCount != 7 || !stub.Outcomes[0].ClosedAt.Equal(closedAt) {
		t.Errorf("Outcomes = %+v", stub.Outcomes)
	}
	if len(files.Files) != 1 || files.Files[0].Filename != "report.json" {
		t.Errorf("Files = %+v", files.Files)
	}

	if err := archive.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
	if !stub.Closed {
		t.Error("client not closed")
	}
}

type failingClient struct {
	StubClient
	err error
}

func (c *failingClient) WriteStatuses(_ context.Context, _ []types.StatusMessage) error {
	return c.err
}

func TestInstrumentedClient_CountsWrites(t *testing.T) {
	collector := metrics.NewCollector("memory", "job-1", "conn-1")
	inner := &failingClient{err: NewStorageError(ErrThrottled, "write", "p", errors.New("SlowDown"))}
	client := NewInstrumentedClient(inner, collector)

	if err := client.WriteFailures(t.Context(), nil); err != nil {
		t.Fatalf("WriteFailures = %v", err)
	}
	if err := client.WriteStatuses(t.Context(), nil); !errors.Is(err, ErrThrottled) {
		t.Fatalf("WriteStatuses = %v, want ErrThrottled", err)
	}
	if err := client.WriteOutcome(t.Context(), OutcomeRecord{}); err != nil {
		t.Fatalf("WriteOutcome = %v", err)
	}

	snap := collector.Snapshot()
	if snap.ArchiveWriteSuccess != 2 || snap.ArchiveWriteFailure != 1 {
		t.Errorf("success=%d failure=%d, want 2/1", snap.ArchiveWriteSuccess, snap.ArchiveWriteFailure)
	}

	// A nil collector is valid.
	if err := NewInstrumentedClient(NewStubClient(), nil).WriteOutcome(t.Context(), OutcomeRecord{}); err != nil {
		t.Errorf("nil collector WriteOutcome = %v", err)
	}
}
