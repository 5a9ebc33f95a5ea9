package failure

import (
	"slices"

	"github.com/pithecene-io/runledger/types"
)

// Order returns records in canonical report order: records the orchestrator
// observed come before connector-reported trace records, each group ascends
// by timestamp, and remaining ties keep input order. The input is not modified.
func Order(records []types.FailureRecord) []types.FailureRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b types.FailureRecord) int {
		if a.Metadata.FromTraceMessage != b.Metadata.FromTraceMessage {
			if !a.Metadata.FromTraceMessage {
				return -1
			}
			return 1
		}
		switch {
		case a.TimestampMs < b.TimestampMs:
			return -1
		case a.TimestampMs > b.TimestampMs:
			return 1
		default:
			return 0
		}
	})
	if out == nil {
		out = []types.FailureRecord{}
	}
	return out
}

// Summary builds the attempt failure summary from records.
func Summary(records []types.FailureRecord, partialSuccess bool) types.AttemptFailureSummary {
	return types.AttemptFailureSummary{
		Failures:       Order(records),
		PartialSuccess: partialSuccess,
	}
}

// SummaryForCancellation builds the summary for a cancelled attempt, adding a
// manual cancellation record to records.
func (c Classifier) SummaryForCancellation(records []types.FailureRecord, partialSuccess bool) types.AttemptFailureSummary {
	all := make([]types.FailureRecord, 0, len(records)+1)
	all = append(all, records...)
	all = append(all, c.CancellationFailure())
	return Summary(all, partialSuccess)
}
