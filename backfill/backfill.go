// Package backfill decides which streams must be re-read from scratch after a
// schema change and clears their persisted state.
//
// Every function is pure: inputs are never mutated and results are fresh values.
package backfill

import (
	"github.com/pithecene-io/runledger/types"
)

// Preference is a connection's backfill setting.
type Preference string

const (
	PreferenceEnabled  Preference = "enabled"
	PreferenceDisabled Preference = "disabled"
)

// ShouldBackfill reports whether an attempt should backfill at all: the
// connection must opt in and a non-empty diff must have been applied.
func ShouldBackfill(pref Preference, appliedDiff *types.SchemaDiff) bool {
	return pref == PreferenceEnabled && !appliedDiff.IsEmpty()
}

// StreamsToBackfill returns the streams whose update added at least one field
// and that are configured as incremental in catalog. Streams missing from the
// catalog and full-refresh streams are never returned.
func StreamsToBackfill(diff *types.SchemaDiff, catalog types.Catalog) types.StreamSet {
	out := make(types.StreamSet)
	if diff.IsEmpty() {
		return out
	}
	for _, tr := range diff.Transforms {
		if !tr.AddsField() {
			continue
		}
		entry, ok := catalog.Lookup(tr.Stream)
		if !ok || entry.SyncMode == types.SyncModeFullRefresh {
			continue
		}
		out.Add(tr.Stream)
	}
	return out
}

// ClearStateForStreams returns a copy of state where every per-stream entry
// for a stream in streams carries an explicit JSON null. Entries for other
// streams, the global shared state and legacy state are copied unchanged.
// A nil state yields nil.
func ClearStateForStreams(state *types.PersistedState, streams types.StreamSet) *types.PersistedState {
	out := state.Clone()
	if out == nil || len(streams) == 0 {
		return out
	}
	entries := out.PerStreamStates()
	for i := range entries {
		if streams.Has(entries[i].Stream) {
			entries[i] = entries[i].Cleared()
		}
	}
	return out
}
