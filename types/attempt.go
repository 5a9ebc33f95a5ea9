package types

import (
	"errors"
	"fmt"
)

// AttemptMeta identifies one attempt of a sync job.
// The identifiers are supplied by the orchestration layer and embedded verbatim
// into failure metadata and log context.
type AttemptMeta struct {
	// JobID is the job identifier. Required.
	JobID string
	// AttemptNumber is the attempt number within the job. Starts at 0.
	AttemptNumber int
	// ConnectionID is the connection this job syncs. Optional.
	ConnectionID string
	// WorkspaceID is the workspace owning the connection. Optional.
	WorkspaceID string
}

// Validate checks the identifiers the orchestration layer must always provide.
func (m *AttemptMeta) Validate() error {
	if m.JobID == "" {
		return errors.New("job_id must be non-empty")
	}
	if m.AttemptNumber < 0 {
		return fmt.Errorf("attempt number must be >= 0, got %d", m.AttemptNumber)
	}
	return nil
}

// StreamSyncStats are per-stream statistics reported for an attempt.
type StreamSyncStats struct {
	Stream         StreamDescriptor `json:"stream"`
	RecordsEmitted int64            `json:"records_emitted"`
	BytesEmitted   int64            `json:"bytes_emitted"`
	WasBackfilled  bool             `json:"was_backfilled"`
	WasResumed     bool             `json:"was_resumed"`
}

// ReplicationInput is what an attempt starts from.
type ReplicationInput struct {
	Catalog Catalog         `json:"catalog"`
	State   *PersistedState `json:"state,omitempty"`
}

// ReplicationOutput is what an attempt produced.
type ReplicationOutput struct {
	Catalog     Catalog            `json:"catalog"`
	StreamStats []*StreamSyncStats `json:"stream_stats"`
}

// StreamAttemptMetadata records whether a stream was backfilled or resumed in an attempt.
type StreamAttemptMetadata struct {
	Stream        StreamDescriptor `json:"stream"`
	WasBackfilled bool             `json:"was_backfilled"`
	WasResumed    bool             `json:"was_resumed"`
}
