package resume

import (
	"encoding/json"
	"testing"

	"github.com/pithecene-io/runledger/types"
)

var (
	users    = types.NewStream("users")
	accounts = types.NewStream("accounts")
	events   = types.NewNamespacedStream("", "events")
)

func catalog() types.Catalog {
	return types.NewCatalog(
		types.CatalogEntry{Stream: users, SyncMode: types.SyncModeFullRefresh},
		types.CatalogEntry{Stream: accounts, SyncMode: types.SyncModeIncremental},
		types.CatalogEntry{Stream: events, SyncMode: types.SyncModeFullRefresh},
	)
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestStreamsWithState(t *testing.T) {
	tests := []struct {
		name  string
		state *types.PersistedState
		want  []types.StreamDescriptor
	}{
		{name: "nil state", state: nil, want: nil},
		{name: "legacy state", state: &types.PersistedState{Type: types.StateTypeLegacy, Legacy: raw(`{}`)}, want: nil},
		{
			name: "stream scope skips null and missing",
			state: &types.PersistedState{Type: types.StateTypeStream, Streams: []types.StreamState{
				{Stream: users, State: raw(`{"page":3}`)},
				{Stream: accounts, State: raw(`null`)},
				{Stream: events},
			}},
			want: []types.StreamDescriptor{users},
		},
		{
			name: "global scope reads nested entries",
			state: &types.PersistedState{Type: types.StateTypeGlobal, Global: &types.GlobalState{
				SharedState: raw(`{"lsn":1}`),
				StreamStates: []types.StreamState{
					{Stream: accounts, State: raw(`{"pk":1}`)},
					{Stream: events, State: raw(`{"pk":2}`)},
				},
			}},
			want: []types.StreamDescriptor{accounts, events},
		},
		{name: "global scope without payload", state: &types.PersistedState{Type: types.StateTypeGlobal}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StreamsWithState(tt.state)
			if len(got) != len(tt.want) {
				t.Fatalf("StreamsWithState() = %v, want %v", got.Sorted(), tt.want)
			}
			for _, d := range tt.want {
				if !got.Has(d) {
					t.Errorf("missing %v", d)
				}
			}
		})
	}
}

func TestResumedFullRefreshStreams(t *testing.T) {
	state := &types.PersistedState{Type: types.StateTypeStream, Streams: []types.StreamState{
		{Stream: users, State: raw(`{"page":3}`)},
		{Stream: accounts, State: raw(`{"cursor":9}`)},
		{Stream: types.NewStream("removed"), State: raw(`{"page":1}`)},
	}}

	got := ResumedFullRefreshStreams(catalog(), state)
	if len(got) != 1 || !got.Has(users) {
		t.Errorf("ResumedFullRefreshStreams() = %v, want [users]", got.Sorted())
	}

	// Subset law: resumed ⊆ withState ∩ fullRefresh.
	withState := StreamsWithState(state)
	fullRefresh := catalog().StreamsWithMode(types.SyncModeFullRefresh)
	for d := range got {
		if !withState.Has(d) || !fullRefresh.Has(d) {
			t.Errorf("%v violates the subset law", d)
		}
	}

	if empty := ResumedFullRefreshStreams(catalog(), nil); len(empty) != 0 {
		t.Errorf("nil state yields %v, want empty", empty.Sorted())
	}
}

func TestMarkResumed(t *testing.T) {
	input := &types.ReplicationInput{
		Catalog: catalog(),
		State: &types.PersistedState{Type: types.StateTypeStream, Streams: []types.StreamState{
			{Stream: users, State: raw(`{"page":3}`)},
		}},
	}
	usersStats := &types.StreamSyncStats{Stream: users}
	accountsStats := &types.StreamSyncStats{Stream: accounts, WasResumed: true}
	eventsStats := &types.StreamSyncStats{Stream: events}
	output := &types.ReplicationOutput{
		Catalog:     catalog(),
		StreamStats: []*types.StreamSyncStats{usersStats, accountsStats, eventsStats, nil},
	}

	resumed := MarkResumed(input, output)

	if !resumed.Has(users) || len(resumed) != 1 {
		t.Errorf("resumed = %v, want [users]", resumed.Sorted())
	}
	if !usersStats.WasResumed {
		t.Error("users.WasResumed = false, want true")
	}
	if !accountsStats.WasResumed {
		t.Error("accounts.WasResumed was forced to false")
	}
	if eventsStats.WasResumed {
		t.Error("events.WasResumed = true, want false")
	}
}

func TestMarkResumed_FallsBackToInputCatalog(t *testing.T) {
	input := &types.ReplicationInput{
		Catalog: catalog(),
		State: &types.PersistedState{Type: types.StateTypeStream, Streams: []types.StreamState{
			{Stream: users, State: raw(`{"page":3}`)},
		}},
	}
	usersStats := &types.StreamSyncStats{Stream: users}
	output := &types.ReplicationOutput{StreamStats: []*types.StreamSyncStats{usersStats}}

	if resumed := MarkResumed(input, output); !resumed.Has(users) {
		t.Errorf("resumed = %v, want [users]", resumed.Sorted())
	}
	if !usersStats.WasResumed {
		t.Error("users.WasResumed = false, want true")
	}
}

func TestMarkResumed_NilInputs(t *testing.T) {
	if got := MarkResumed(nil, nil); len(got) != 0 {
		t.Errorf("MarkResumed(nil, nil) = %v", got)
	}
	output := &types.ReplicationOutput{
		Catalog:     catalog(),
		StreamStats: []*types.StreamSyncStats{{Stream: users}},
	}
	MarkResumed(nil, output)
	if output.StreamStats[0].WasResumed {
		t.Error("WasResumed set without input state")
	}
}

func TestAttemptMetadata(t *testing.T) {
	got := AttemptMetadata(types.NewStreamSet(users, accounts), types.NewStreamSet(accounts, events))

	want := []types.StreamAttemptMetadata{
		{Stream: accounts, WasBackfilled: true, WasResumed: true},
		{Stream: users, WasResumed: true},
		{Stream: events, WasBackfilled: true},
	}
	if len(got) != len(want) {
		t.Fatalf("AttemptMetadata() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
