// Package resume detects full-refresh streams that continue from a prior
// partial run instead of starting over.
package resume

import (
	"github.com/pithecene-io/runledger/types"
)

// StreamsWithState returns every stream with a non-empty per-stream state
// entry, for both STREAM and GLOBAL scope. Nil or legacy state yields an
// empty set.
func StreamsWithState(state *types.PersistedState) types.StreamSet {
	out := make(types.StreamSet)
	for _, s := range state.PerStreamStates() {
		if s.HasState() {
			out.Add(s.Stream)
		}
	}
	return out
}

// ResumedFullRefreshStreams returns the full-refresh streams of catalog that
// already carry per-stream state. A full-refresh stream with state can only
// hold a checkpoint from an earlier partial run.
func ResumedFullRefreshStreams(catalog types.Catalog, state *types.PersistedState) types.StreamSet {
	return StreamsWithState(state).Intersect(catalog.StreamsWithMode(types.SyncModeFullRefresh))
}

// MarkResumed sets WasResumed on every stat entry in output whose stream is a
// resumed full-refresh stream, judged against output's catalog and input's
// state. When output carries no catalog, input's catalog is used. output is
// mutated in place. Entries outside the resumed set keep
// their existing flag. Returns the resumed set.
func MarkResumed(input *types.ReplicationInput, output *types.ReplicationOutput) types.StreamSet {
	if output == nil {
		return types.StreamSet{}
	}
	catalog := output.Catalog
	var state *types.PersistedState
	if input != nil {
		state = input.State
		if len(catalog.Streams) == 0 {
			catalog = input.Catalog
		}
	}
	resumed := ResumedFullRefreshStreams(catalog, state)
	for _, s := range output.StreamStats {
		if s != nil && resumed.Has(s.Stream) {
			s.WasResumed = true
		}
	}
	return resumed
}

// AttemptMetadata builds per-stream attempt metadata. Every stream with state
// is marked resumed and every backfilled stream is marked backfilled. The
// result is sorted by descriptor.
func AttemptMetadata(streamsWithState, streamsToBackfill types.StreamSet) []types.StreamAttemptMetadata {
	byStream := make(map[types.StreamDescriptor]*types.StreamAttemptMetadata)
	get := func(d types.StreamDescriptor) *types.StreamAttemptMetadata {
		m, ok := byStream[d]
		if !ok {
			m = &types.StreamAttemptMetadata{Stream: d}
			byStream[d] = m
		}
		return m
	}
	all := make(types.StreamSet)
	for d := range streamsWithState {
		get(d).WasResumed = true
		all.Add(d)
	}
	for d := range streamsToBackfill {
		get(d).WasBackfilled = true
		all.Add(d)
	}

	out := make([]types.StreamAttemptMetadata, 0, len(all))
	for _, d := range all.Sorted() {
		out = append(out, *byStream[d])
	}
	return out
}
