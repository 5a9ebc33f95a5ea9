// Package metrics provides per-attempt metrics collection.
//
// The Collector accumulates counters during a single attempt. It is a leaf
// package with no internal dependencies so the core packages can record into
// it without import cycles.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the attempt counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Stream status tracking
	StreamsTracked    int64 `json:"streams_tracked"`
	StatusAccepted    int64 `json:"status_accepted"`
	StatusStale       int64 `json:"status_stale"`
	StatusUnknown     int64 `json:"status_unknown"`
	StatusIgnored     int64 `json:"status_ignored"`
	StatusesFinalized int64 `json:"statuses_finalized"`

	// Pre-run decisions
	StreamsBackfilled int64 `json:"streams_backfilled"`
	StreamsResumed    int64 `json:"streams_resumed"`

	// Failures, keyed by origin
	Failures         int64            `json:"failures"`
	FailuresByOrigin map[string]int64 `json:"failures_by_origin"`

	// Event log
	FrameDecodeErrors int64 `json:"frame_decode_errors"`

	// Archive / Storage
	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`

	// Dimensions (informational, set at construction)
	StorageBackend string `json:"storage_backend,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	ConnectionID   string `json:"connection_id,omitempty"`
}

// Collector accumulates metrics during a single attempt.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	streamsTracked    int64
	statusAccepted    int64
	statusStale       int64
	statusUnknown     int64
	statusIgnored     int64
	statusesFinalized int64

	streamsBackfilled int64
	streamsResumed    int64

	failures         int64
	failuresByOrigin map[string]int64

	frameDecodeErrors int64

	archiveWriteSuccess int64
	archiveWriteFailure int64

	storageBackend string
	jobID          string
	connectionID   string
}

// NewCollector creates a Collector with dimension labels. All labels are optional.
func NewCollector(storageBackend, jobID, connectionID string) *Collector {
	return &Collector{
		failuresByOrigin: make(map[string]int64),
		storageBackend:   storageBackend,
		jobID:            jobID,
		connectionID:     connectionID,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Stream status tracking ---

// SetStreamsTracked records how many streams tracking was started with.
// A restart of tracking replaces the previous value.
func (c *Collector) SetStreamsTracked(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsTracked = int64(n)
	c.mu.Unlock()
}

// IncStatusAccepted records a status event applied to a tracked stream.
func (c *Collector) IncStatusAccepted() {
	if c == nil {
		return
	}
	c.add(&c.statusAccepted, 1)
}

// IncStatusStale records a status event older than the stream's current state.
func (c *Collector) IncStatusStale() {
	if c == nil {
		return
	}
	c.add(&c.statusStale, 1)
}

// IncStatusUnknown records a status event for a stream outside the catalog.
func (c *Collector) IncStatusUnknown() {
	if c == nil {
		return
	}
	c.add(&c.statusUnknown, 1)
}

// IncStatusIgnored records a status event rejected as an invalid transition.
func (c *Collector) IncStatusIgnored() {
	if c == nil {
		return
	}
	c.add(&c.statusIgnored, 1)
}

// AddStatusesFinalized records statuses produced by one finalize call.
func (c *Collector) AddStatusesFinalized(n int) {
	if c == nil {
		return
	}
	c.add(&c.statusesFinalized, int64(n))
}

// --- Pre-run decisions ---

// AddStreamsBackfilled records streams selected for backfill.
func (c *Collector) AddStreamsBackfilled(n int) {
	if c == nil {
		return
	}
	c.add(&c.streamsBackfilled, int64(n))
}

// AddStreamsResumed records full-refresh streams detected as resumed.
func (c *Collector) AddStreamsResumed(n int) {
	if c == nil {
		return
	}
	c.add(&c.streamsResumed, int64(n))
}

// --- Failures ---

// IncFailure records one failure record for the given origin.
// The origin is a plain string to keep this package free of the types package.
func (c *Collector) IncFailure(origin string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failures++
	c.failuresByOrigin[origin]++
	c.mu.Unlock()
}

// --- Event log ---

// IncFrameDecodeErrors records an event log frame decode error.
func (c *Collector) IncFrameDecodeErrors() {
	if c == nil {
		return
	}
	c.add(&c.frameDecodeErrors, 1)
}

// --- Archive / Storage ---
// Archive counters are per-call, not per-record.

// IncArchiveWriteSuccess records a successful archive write.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteSuccess, 1)
}

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byOrigin := make(map[string]int64, len(c.failuresByOrigin))
	for k, v := range c.failuresByOrigin {
		byOrigin[k] = v
	}

	return Snapshot{
		StreamsTracked:    c.streamsTracked,
		StatusAccepted:    c.statusAccepted,
		StatusStale:       c.statusStale,
		StatusUnknown:     c.statusUnknown,
		StatusIgnored:     c.statusIgnored,
		StatusesFinalized: c.statusesFinalized,

		StreamsBackfilled: c.streamsBackfilled,
		StreamsResumed:    c.streamsResumed,

		Failures:         c.failures,
		FailuresByOrigin: byOrigin,

		FrameDecodeErrors: c.frameDecodeErrors,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		StorageBackend: c.storageBackend,
		JobID:          c.jobID,
		ConnectionID:   c.connectionID,
	}
}
