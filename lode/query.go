package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecordsFound is returned when no archived record matches a query.
var ErrNoRecordsFound = errors.New("no archived records found")

// Query selects archived records. Empty fields match everything; Attempt
// matches every attempt when negative.
type Query struct {
	ConnectionID string
	JobID        string
	Attempt      int
	RecordKind   string
}

func (q Query) attemptValue() string {
	if q.Attempt < 0 {
		return ""
	}
	return strconv.Itoa(q.Attempt)
}

func (q Query) matchesSnapshot(snap *lode.DatasetSnapshot) bool {
	return snapshotMatchesFilter(snap, "record_kind", q.RecordKind) &&
		snapshotMatchesFilter(snap, "job_id", q.JobID) &&
		snapshotMatchesFilter(snap, "attempt", q.attemptValue()) &&
		snapshotMatchesFilter(snap, "connection", q.ConnectionID)
}

// Manifest path filtering is a coarse pre-filter; record fields are
// authoritative.
func (q Query) matchesRecord(record map[string]any) bool {
	checks := []struct{ key, want string }{
		{"record_kind", q.RecordKind},
		{"job_id", q.JobID},
		{"attempt", q.attemptValue()},
		{"connection", q.ConnectionID},
	}
	for _, c := range checks {
		if c.want != "" && toString(record[c.key]) != c.want {
			return false
		}
	}
	return true
}

// QueryRecords returns every archived record matching q, oldest snapshot
// first. Failure records are returned in their archived order.
func QueryRecords(ctx context.Context, ds lode.Dataset, q Query) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var out []map[string]any
	for _, snap := range snapshots {
		if !q.matchesSnapshot(snap) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !q.matchesRecord(record) {
				continue
			}
			out = append(out, record)
		}
	}

	if q.RecordKind == RecordKindFailure {
		sort.SliceStable(out, func(i, j int) bool {
			return toInt64(out[i]["index"]) < toInt64(out[j]["index"])
		})
	}
	return out, nil
}

// QueryLatestOutcome finds the most recent outcome record for the job and
// attempt selected by q. q.RecordKind is ignored.
// Returns ErrNoRecordsFound if none exist.
func QueryLatestOutcome(ctx context.Context, ds lode.Dataset, q Query) (map[string]any, error) {
	q.RecordKind = RecordKindOutcome
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	// Iterate in reverse (latest first); snapshots are ordered by creation time
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !q.matchesSnapshot(snap) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			if record, ok := item.(map[string]any); ok && q.matchesRecord(record) {
				return record, nil
			}
		}
	}
	return nil, ErrNoRecordsFound
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts a decoded JSON number to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
