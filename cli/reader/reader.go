package reader

import (
	"context"
	"fmt"
	"sort"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/runledger/lode"
)

// Reader queries an attempt archive dataset.
type Reader struct {
	ds lodelibrary.Dataset
}

// New returns a Reader over ds.
func New(ds lodelibrary.Dataset) *Reader {
	return &Reader{ds: ds}
}

// Attempt returns the latest archived outcome for jobID with its statuses and
// failures. A negative attempt selects the most recently archived attempt; an
// empty connectionID matches every connection.
// Returns lode.ErrNoRecordsFound when nothing matches.
func (r *Reader) Attempt(ctx context.Context, connectionID, jobID string, attempt int) (*AttemptDetail, error) {
	q := lode.Query{ConnectionID: connectionID, JobID: jobID, Attempt: attempt}
	record, err := lode.QueryLatestOutcome(ctx, r.ds, q)
	if err != nil {
		return nil, err
	}
	summary, err := ParseOutcomeRecord(record)
	if err != nil {
		return nil, err
	}

	// Pin the partitions the outcome belongs to.
	q.ConnectionID = summary.ConnectionID
	q.Attempt = summary.Attempt
	detail := &AttemptDetail{
		Attempt:  *summary,
		Statuses: []ArchivedStatus{},
		Failures: []ArchivedFailure{},
	}

	q.RecordKind = lode.RecordKindStreamStatus
	statuses, err := lode.QueryRecords(ctx, r.ds, q)
	if err != nil {
		return nil, err
	}
	for i, rec := range statuses {
		if toString(rec["day"]) != summary.Day {
			continue
		}
		s, err := ParseStatusRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("status record %d: %w", i, err)
		}
		detail.Statuses = append(detail.Statuses, *s)
	}

	q.RecordKind = lode.RecordKindFailure
	failures, err := lode.QueryRecords(ctx, r.ds, q)
	if err != nil {
		return nil, err
	}
	for i, rec := range failures {
		if toString(rec["day"]) != summary.Day {
			continue
		}
		f, err := ParseFailureRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("failure record %d: %w", i, err)
		}
		detail.Failures = append(detail.Failures, *f)
	}
	return detail, nil
}

// ListAttempts returns archived attempt outcomes matching opts, most recently
// closed first.
func (r *Reader) ListAttempts(ctx context.Context, opts ListOptions) ([]AttemptSummary, error) {
	records, err := lode.QueryRecords(ctx, r.ds, lode.Query{
		ConnectionID: opts.ConnectionID,
		JobID:        opts.JobID,
		Attempt:      -1,
		RecordKind:   lode.RecordKindOutcome,
	})
	if err != nil {
		return nil, err
	}

	out := make([]AttemptSummary, 0, len(records))
	for i, rec := range records {
		s, err := ParseOutcomeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("outcome record %d: %w", i, err)
		}
		if opts.Outcome != "" && s.Outcome != opts.Outcome {
			continue
		}
		out = append(out, *s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ClosedAt.Equal(out[j].ClosedAt) {
			return out[i].ClosedAt.After(out[j].ClosedAt)
		}
		if out[i].JobID != out[j].JobID {
			return out[i].JobID < out[j].JobID
		}
		return out[i].Attempt > out[j].Attempt
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Stats aggregates every archived outcome matching opts. opts.Limit is ignored.
func (r *Reader) Stats(ctx context.Context, opts ListOptions) (*AttemptStats, error) {
	opts.Limit = 0
	summaries, err := r.ListAttempts(ctx, opts)
	if err != nil {
		return nil, err
	}
	return Aggregate(summaries), nil
}

// Aggregate folds attempt summaries into AttemptStats.
func Aggregate(summaries []AttemptSummary) *AttemptStats {
	stats := &AttemptStats{FailuresByOrigin: make(map[string]int64)}
	var totalDuration int64
	for _, s := range summaries {
		stats.Attempts++
		switch s.Outcome {
		case "succeeded":
			stats.Succeeded++
		case "failed":
			stats.Failed++
		case "cancelled":
			stats.Cancelled++
		}
		if s.PartialSuccess {
			stats.PartialSuccess++
		}
		stats.Failures += s.Failures
		for origin, n := range s.FailuresByOrigin {
			stats.FailuresByOrigin[origin] += n
		}
		stats.StreamsBackfilled += s.StreamsBackfilled
		stats.StreamsResumed += s.StreamsResumed
		totalDuration += s.DurationMs
		if !s.ClosedAt.IsZero() && (stats.LastClosedAt == nil || s.ClosedAt.After(*stats.LastClosedAt)) {
			closedAt := s.ClosedAt
			stats.LastClosedAt = &closedAt
		}
	}
	if stats.Attempts > 0 {
		stats.AvgDurationMs = totalDuration / stats.Attempts
	}
	return stats
}
