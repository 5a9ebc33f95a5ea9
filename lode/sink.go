// Package lode archives attempt outcomes to a Lode dataset.
//
// Records are Hive-partitioned by connection/day/job_id/attempt/record_kind
// and stored as JSONL. Three record kinds are written per attempt: one
// record per failure, one per finalized stream status, and one outcome
// record carrying the attempt's metrics.
package lode

import (
	"context"
	"strconv"
	"time"

	"github.com/pithecene-io/runledger/runtime"
	"github.com/pithecene-io/runledger/types"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "runledger"

// unknownConnection is the connection partition used when no connection ID is known.
const unknownConnection = "unknown"

// DeriveDay computes the partition day from the attempt close time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config holds archive partition configuration.
type Config struct {
	// Dataset is the Lode dataset ID. Defaults to DefaultDataset.
	Dataset string
	// ConnectionID is the connection partition. Defaults to "unknown".
	ConnectionID string
	// Day is the partition day (YYYY-MM-DD UTC), see DeriveDay.
	Day string
	// JobID is the job partition. Required.
	JobID string
	// Attempt is the attempt partition.
	Attempt int
}

// ConfigFor builds a Config for an attempt closed at closedAt.
func ConfigFor(dataset string, meta types.AttemptMeta, closedAt time.Time) Config {
	return Config{
		Dataset:      dataset,
		ConnectionID: meta.ConnectionID,
		Day:          DeriveDay(closedAt),
		JobID:        meta.JobID,
		Attempt:      meta.AttemptNumber,
	}
}

func (c Config) withDefaults() Config {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.ConnectionID == "" {
		c.ConnectionID = unknownConnection
	}
	return c
}

// partitions returns the partition fields shared by every record of the attempt.
func (c Config) partitions(kind string) map[string]any {
	return map[string]any{
		"connection":  c.ConnectionID,
		"day":         c.Day,
		"job_id":      c.JobID,
		"attempt":     strconv.Itoa(c.Attempt),
		"record_kind": kind,
	}
}

// Client abstracts the archive storage client.
type Client interface {
	// WriteFailures writes the ordered failure records of an attempt.
	WriteFailures(ctx context.Context, failures []types.FailureRecord) error

	// WriteStatuses writes the finalized stream statuses of an attempt.
	WriteStatuses(ctx context.Context, statuses []types.StatusMessage) error

	// WriteOutcome writes the attempt outcome record.
	WriteOutcome(ctx context.Context, outcome OutcomeRecord) error

	// Close releases client resources.
	Close() error
}

// Archive writes a closed attempt's report to a Client.
type Archive struct {
	client Client
	files  FileWriter
}

// NewArchive creates an archive. files may be nil, in which case the JSON
// report sidecar is not written.
func NewArchive(client Client, files FileWriter) *Archive {
	return &Archive{client: client, files: files}
}

// WriteReport archives the failures, statuses and outcome of report, then
// the report itself as a sidecar file. Writes stop at the first error.
func (a *Archive) WriteReport(ctx context.Context, report *runtime.AttemptReport, closedAt time.Time) error {
	if err := a.client.WriteFailures(ctx, report.Failures); err != nil {
		return err
	}
	if err := a.client.WriteStatuses(ctx, report.Statuses); err != nil {
		return err
	}
	if err := a.client.WriteOutcome(ctx, OutcomeFromReport(report, closedAt)); err != nil {
		return err
	}
	if a.files == nil {
		return nil
	}
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	return a.files.PutFile(ctx, "report.json", "application/json", data)
}

// Close closes the underlying client.
func (a *Archive) Close() error {
	return a.client.Close()
}

// StubClient is a test client that accepts writes without persisting.
type StubClient struct {
	Failures [][]types.FailureRecord
	Statuses [][]types.StatusMessage
	Outcomes []OutcomeRecord
	Closed   bool
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteFailures implements Client.
func (c *StubClient) WriteFailures(_ context.Context, failures []types.FailureRecord) error {
	c.Failures = append(c.Failures, failures)
	return nil
}

// WriteStatuses implements Client.
func (c *StubClient) WriteStatuses(_ context.Context, statuses []types.StatusMessage) error {
	c.Statuses = append(c.Statuses, statuses)
	return nil
}

// WriteOutcome implements Client.
func (c *StubClient) WriteOutcome(_ context.Context, outcome OutcomeRecord) error {
	c.Outcomes = append(c.Outcomes, outcome)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
