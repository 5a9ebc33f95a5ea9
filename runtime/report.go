package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/runledger/iox"
	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/types"
)

// AttemptReport is the structured JSON report written by --report.
type AttemptReport struct {
	JobID          string        `json:"job_id"`
	Attempt        int           `json:"attempt"`
	ConnectionID   string        `json:"connection_id,omitempty"`
	WorkspaceID    string        `json:"workspace_id,omitempty"`
	Outcome        OutcomeStatus `json:"outcome"`
	Message        string        `json:"message"`
	PartialSuccess bool          `json:"partial_success"`
	ExitCode       int           `json:"exit_code"`
	DurationMs     int64         `json:"duration_ms"`
	FrameCount     int64         `json:"frame_count"`

	Statuses    []types.StatusMessage         `json:"statuses"`
	Failures    []types.FailureRecord         `json:"failures"`
	Preparation *Preparation                  `json:"preparation,omitempty"`
	Streams     []types.StreamRunState        `json:"streams"`
	Metrics     *metrics.Snapshot             `json:"metrics"`
	Metadata    []types.StreamAttemptMetadata `json:"stream_metadata,omitempty"`
}

// BuildAttemptReport composes an AttemptReport from a result and metrics snapshot.
// prep may be nil when the attempt was not prepared.
func BuildAttemptReport(result *AttemptResult, prep *Preparation, snap metrics.Snapshot, frameCount int64) *AttemptReport {
	report := &AttemptReport{
		JobID:          result.Meta.JobID,
		Attempt:        result.Meta.AttemptNumber,
		ConnectionID:   result.Meta.ConnectionID,
		WorkspaceID:    result.Meta.WorkspaceID,
		Outcome:        result.Outcome.Status,
		Message:        result.Outcome.Message,
		PartialSuccess: result.Outcome.PartialSuccess,
		ExitCode:       result.ExitCode,
		DurationMs:     result.Duration.Milliseconds(),
		FrameCount:     frameCount,
		Statuses:       result.Statuses,
		Failures:       []types.FailureRecord{},
		Preparation:    prep,
		Streams:        result.Streams,
		Metrics:        &snap,
	}
	if result.Failures != nil {
		report.Failures = result.Failures.Failures
	}
	if prep != nil {
		report.Metadata = prep.StreamMetadata
	}
	return report
}

// WriteAttemptReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteAttemptReport(report *AttemptReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeAttemptReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeAttemptReportTo(report, f); err != nil {
		iox.DiscardClose(f)
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeAttemptReportTo writes report JSON to any writer.
func writeAttemptReportTo(report *AttemptReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
