package streamstatus

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/runledger/featureflag"
	"github.com/pithecene-io/runledger/metrics"
	"github.com/pithecene-io/runledger/types"
)

var (
	users    = types.NewStream("users")
	accounts = types.NewNamespacedStream("public", "accounts")
	orders   = types.NewNamespacedStream("", "orders")
	attempt  = types.AttemptMeta{JobID: "job-1", AttemptNumber: 0, WorkspaceID: "ws-1", ConnectionID: "conn-1"}
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testCatalog() types.Catalog {
	return types.NewCatalog(
		types.CatalogEntry{Stream: users, SyncMode: types.SyncModeFullRefresh},
		types.CatalogEntry{Stream: accounts, SyncMode: types.SyncModeIncremental},
		types.CatalogEntry{Stream: orders, SyncMode: types.SyncModeIncremental},
	)
}

func newStartedTracker(t *testing.T) (*Tracker, *fakeClock, *metrics.Collector) {
	t.Helper()
	clock := newFakeClock()
	collector := metrics.NewCollector("", attempt.JobID, attempt.ConnectionID)
	tr := NewTracker(TrackerConfig{Now: clock.Now, Collector: collector})
	tr.StartTracking(testCatalog(), attempt)
	return tr, clock, collector
}

func event(d types.StreamDescriptor, s types.RunState, at time.Time) types.StreamStatusEvent {
	return types.StreamStatusEvent{Stream: d, RunState: s, EmittedAt: at}
}

func statusesByStream(msgs []types.StatusMessage) map[types.StreamDescriptor]types.StatusMessage {
	out := make(map[types.StreamDescriptor]types.StatusMessage, len(msgs))
	for _, m := range msgs {
		out[m.Stream] = m
	}
	return out
}

func TestStartTracking_AllPending(t *testing.T) {
	tr, clock, collector := newStartedTracker(t)

	snap := tr.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(Snapshot) = %d, want 3", len(snap))
	}
	for i, want := range []types.StreamDescriptor{users, accounts, orders} {
		if snap[i].Stream != want {
			t.Errorf("snap[%d].Stream = %v, want %v", i, snap[i].Stream, want)
		}
		if snap[i].RunState != types.RunStatePending {
			t.Errorf("snap[%d].RunState = %s, want PENDING", i, snap[i].RunState)
		}
		if !snap[i].TransitionedAt.Equal(clock.Now()) {
			t.Errorf("snap[%d].TransitionedAt = %v, want %v", i, snap[i].TransitionedAt, clock.Now())
		}
	}
	if got := collector.Snapshot().StreamsTracked; got != 3 {
		t.Errorf("StreamsTracked = %d, want 3", got)
	}
}

func TestStartTracking_ReplacesPriorState(t *testing.T) {
	tr, clock, _ := newStartedTracker(t)
	clock.Advance(time.Second)
	tr.Track(event(users, types.RunStateComplete, clock.Now()))

	tr.StartTracking(types.NewCatalog(types.CatalogEntry{Stream: users}), attempt)

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("len(Snapshot) = %d, want 1", len(snap))
	}
	if snap[0].RunState != types.RunStatePending {
		t.Errorf("RunState = %s, want PENDING after restart", snap[0].RunState)
	}
}

func TestTrack_Dispositions(t *testing.T) {
	tests := []struct {
		name   string
		prior  []types.RunState
		event  types.RunState
		want   Disposition
		expect types.RunState
	}{
		{"pending to running", nil, types.RunStateRunning, Accepted, types.RunStateRunning},
		{"pending to complete", nil, types.RunStateComplete, Accepted, types.RunStateComplete},
		{"running to rate limited", []types.RunState{types.RunStateRunning}, types.RunStateRateLimited, Accepted, types.RunStateRateLimited},
		{"rate limited back to running", []types.RunState{types.RunStateRunning, types.RunStateRateLimited}, types.RunStateRunning, Accepted, types.RunStateRunning},
		{"complete is sticky against running", []types.RunState{types.RunStateComplete}, types.RunStateRunning, Ignored, types.RunStateComplete},
		{"incomplete is sticky against rate limited", []types.RunState{types.RunStateIncomplete}, types.RunStateRateLimited, Ignored, types.RunStateIncomplete},
		{"terminal to terminal", []types.RunState{types.RunStateIncomplete}, types.RunStateComplete, Accepted, types.RunStateComplete},
		{"never back to pending", []types.RunState{types.RunStateRunning}, types.RunStatePending, Ignored, types.RunStateRunning},
		{"invalid state", nil, types.RunState("EXPLODED"), Ignored, types.RunStatePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, clock, _ := newStartedTracker(t)
			for _, s := range tt.prior {
				clock.Advance(time.Second)
				if d := tr.Track(event(users, s, clock.Now())); d != Accepted {
					t.Fatalf("prior %s: disposition %s", s, d)
				}
			}
			clock.Advance(time.Second)
			if got := tr.Track(event(users, tt.event, clock.Now())); got != tt.want {
				t.Errorf("Track() = %s, want %s", got, tt.want)
			}
			if got := tr.Snapshot()[0].RunState; got != tt.expect {
				t.Errorf("RunState = %s, want %s", got, tt.expect)
			}
		})
	}
}

func TestTrack_UnknownStreamIgnored(t *testing.T) {
	tr, clock, collector := newStartedTracker(t)

	got := tr.Track(event(types.NewStream("ghost"), types.RunStateComplete, clock.Now()))
	if got != Unknown {
		t.Errorf("Track() = %s, want %s", got, Unknown)
	}

	// Namespace absence and empty namespace are distinct identities.
	got = tr.Track(event(types.NewStream("orders"), types.RunStateComplete, clock.Now()))
	if got != Unknown {
		t.Errorf("Track(orders without namespace) = %s, want %s", got, Unknown)
	}

	if n := collector.Snapshot().StatusUnknown; n != 2 {
		t.Errorf("StatusUnknown = %d, want 2", n)
	}
	for _, st := range tr.Snapshot() {
		if st.RunState != types.RunStatePending {
			t.Errorf("%v: RunState = %s, want PENDING", st.Stream, st.RunState)
		}
	}
}

func TestTrack_StaleEventDoesNotOverwrite(t *testing.T) {
	tr, clock, collector := newStartedTracker(t)
	base := clock.Now()

	tr.Track(event(users, types.RunStateRunning, base.Add(2*time.Second)))
	tr.Track(event(users, types.RunStateComplete, base.Add(5*time.Second)))

	// An older INCOMPLETE arriving late must not replace the newer COMPLETE.
	got := tr.Track(types.StreamStatusEvent{
		Stream:          users,
		RunState:        types.RunStateIncomplete,
		IncompleteCause: types.IncompleteCauseFailed,
		EmittedAt:       base.Add(3 * time.Second),
	})
	if got != Stale {
		t.Errorf("Track() = %s, want %s", got, Stale)
	}

	st := tr.Snapshot()[0]
	if st.RunState != types.RunStateComplete {
		t.Errorf("RunState = %s, want COMPLETE", st.RunState)
	}
	if !st.TransitionedAt.Equal(base.Add(5 * time.Second)) {
		t.Errorf("TransitionedAt = %v, want %v", st.TransitionedAt, base.Add(5*time.Second))
	}
	if n := collector.Snapshot().StatusStale; n != 1 {
		t.Errorf("StatusStale = %d, want 1", n)
	}
}

func TestTrack_EqualTimestampIsStale(t *testing.T) {
	tr, clock, collector := newStartedTracker(t)
	at := clock.Now().Add(time.Second)

	tr.Track(event(users, types.RunStateRunning, at))
	if got := tr.Track(event(users, types.RunStateRateLimited, at)); got != Stale {
		t.Errorf("Track() = %s, want %s", got, Stale)
	}
	st := tr.Snapshot()[0]
	if st.RunState != types.RunStateRunning || !st.TransitionedAt.Equal(at) {
		t.Errorf("state = %s at %v, want RUNNING at %v", st.RunState, st.TransitionedAt, at)
	}
	if n := collector.Snapshot().StatusStale; n != 1 {
		t.Errorf("StatusStale = %d, want 1", n)
	}
}

func TestTrack_UnstampedEventsApplyInArrivalOrder(t *testing.T) {
	tr, _, _ := newStartedTracker(t)

	// The clock never advances, so each local stamp must still move forward.
	tr.Track(types.StreamStatusEvent{Stream: users, RunState: types.RunStateRunning})
	first := tr.Snapshot()[0].TransitionedAt
	if got := tr.Track(types.StreamStatusEvent{Stream: users, RunState: types.RunStateComplete}); got != Accepted {
		t.Fatalf("Track() = %s, want %s", got, Accepted)
	}
	st := tr.Snapshot()[0]
	if st.RunState != types.RunStateComplete {
		t.Errorf("RunState = %s, want COMPLETE", st.RunState)
	}
	if !st.TransitionedAt.After(first) {
		t.Errorf("TransitionedAt = %v, want after %v", st.TransitionedAt, first)
	}
}

func TestTrack_EventsBeforeStartTimeAccepted(t *testing.T) {
	tr, clock, _ := newStartedTracker(t)

	got := tr.Track(event(users, types.RunStateRunning, clock.Now().Add(-time.Minute)))
	if got != Accepted {
		t.Errorf("Track() = %s, want %s", got, Accepted)
	}
}

func TestTrack_ZeroEmittedAtUsesClock(t *testing.T) {
	tr, clock, _ := newStartedTracker(t)
	clock.Advance(42 * time.Second)

	tr.Track(types.StreamStatusEvent{Stream: accounts, RunState: types.RunStateRunning})

	if got := tr.Snapshot()[1].TransitionedAt; !got.Equal(clock.Now()) {
		t.Errorf("TransitionedAt = %v, want %v", got, clock.Now())
	}
}

func TestTrack_RateLimitedMetadata(t *testing.T) {
	tr, clock, _ := newStartedTracker(t)

	clock.Advance(time.Second)
	tr.Track(event(users, types.RunStateRunning, clock.Now()))
	clock.Advance(time.Second)
	tr.Track(types.StreamStatusEvent{
		Stream:      users,
		RunState:    types.RunStateRateLimited,
		EmittedAt:   clock.Now(),
		RateLimited: &types.RateLimitedMetadata{QuotaResetMs: 1700000000000},
	})

	st := tr.Snapshot()[0]
	if st.Metadata == nil || st.Metadata.QuotaResetMs != 1700000000000 {
		t.Fatalf("Metadata = %+v, want quota reset 1700000000000", st.Metadata)
	}

	clock.Advance(time.Second)
	tr.Track(event(users, types.RunStateRunning, clock.Now()))
	if st := tr.Snapshot()[0]; st.Metadata != nil {
		t.Errorf("Metadata = %+v, want nil after leaving RATE_LIMITED", st.Metadata)
	}
}

func TestTrack_IncompleteDefaultsToFailed(t *testing.T) {
	tr, clock, _ := newStartedTracker(t)
	tr.Track(event(users, types.RunStateIncomplete, clock.Now().Add(time.Second)))

	if got := tr.Snapshot()[0].IncompleteCause; got != types.IncompleteCauseFailed {
		t.Errorf("IncompleteCause = %q, want FAILED", got)
	}
}

func TestFinalize_SuccessReportsEveryStreamComplete(t *testing.T) {
	histories := map[string]map[types.StreamDescriptor][]types.RunState{
		"nothing tracked": {},
		"mixed states": {
			users:    {types.RunStateRunning},
			accounts: {types.RunStateRunning, types.RunStateRateLimited},
		},
		"incomplete overridden by clean exit": {
			users:  {types.RunStateIncomplete},
			orders: {types.RunStateComplete},
		},
	}

	for name, history := range histories {
		t.Run(name, func(t *testing.T) {
			tr, clock, _ := newStartedTracker(t)
			for d, states := range history {
				for _, s := range states {
					clock.Advance(time.Second)
					tr.Track(event(d, s, clock.Now()))
				}
			}

			msgs := tr.Finalize(0, IdentityMapper)
			if len(msgs) != 3 {
				t.Fatalf("len(Finalize) = %d, want 3", len(msgs))
			}
			byStream := statusesByStream(msgs)
			for _, d := range []types.StreamDescriptor{users, accounts, orders} {
				m, ok := byStream[d]
				if !ok {
					t.Errorf("missing status for %v", d)
					continue
				}
				if m.Status != types.RunStateComplete {
					t.Errorf("%v: Status = %s, want COMPLETE", d, m.Status)
				}
				if m.IncompleteCause != "" {
					t.Errorf("%v: IncompleteCause = %q, want empty", d, m.IncompleteCause)
				}
			}
		})
	}
}

func TestFinalize_FailureReportsOnlyTerminalStreams(t *testing.T) {
	tr, clock, _ := newStartedTracker(t)

	clock.Advance(time.Second)
	tr.Track(event(users, types.RunStateRunning, clock.Now()))
	clock.Advance(time.Second)
	tr.Track(types.StreamStatusEvent{
		Stream:          accounts,
		RunState:        types.RunStateIncomplete,
		IncompleteCause: types.IncompleteCauseCanceled,
		EmittedAt:       clock.Now(),
	})
	completedAt := clock.Now().Add(time.Second)
	tr.Track(event(orders, types.RunStateComplete, completedAt))

	msgs := tr.Finalize(1, nil)
	if len(msgs) != 2 {
		t.Fatalf("len(Finalize) = %d, want 2: %+v", len(msgs), msgs)
	}
	byStream := statusesByStream(msgs)
	if _, ok := byStream[users]; ok {
		t.Error("RUNNING stream must not be reported on failure")
	}
	if m := byStream[accounts]; m.Status != types.RunStateIncomplete || m.IncompleteCause != types.IncompleteCauseCanceled {
		t.Errorf("accounts = %+v, want INCOMPLETE/CANCELED", m)
	}
	if m := byStream[orders]; m.Status != types.RunStateComplete || m.EmittedAtMs != completedAt.UnixMilli() {
		t.Errorf("orders = %+v, want COMPLETE at %d", m, completedAt.UnixMilli())
	}
}

func TestFinalize_AppliesMapper(t *testing.T) {
	tr, _, _ := newStartedTracker(t)

	var calls int
	mapper := MapperFunc(func(m types.StatusMessage) types.StatusMessage {
		calls++
		m.Stream.Name = strings.ToUpper(m.Stream.Name)
		return m
	})

	msgs := tr.Finalize(0, mapper)
	if calls != 3 {
		t.Errorf("mapper calls = %d, want 3", calls)
	}
	if msgs[0].Stream.Name != "USERS" {
		t.Errorf("msgs[0].Stream.Name = %q, want USERS", msgs[0].Stream.Name)
	}
}

func TestFinalize_IsRepeatable(t *testing.T) {
	tr, clock, _ := newStartedTracker(t)
	tr.Track(event(users, types.RunStateComplete, clock.Now().Add(time.Second)))

	first := tr.Finalize(1, IdentityMapper)
	second := tr.Finalize(1, IdentityMapper)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Finalize lengths = %d, %d, want 1, 1", len(first), len(second))
	}
	if first[0] != second[0] {
		t.Errorf("Finalize not repeatable: %+v vs %+v", first[0], second[0])
	}

	// Tracking keeps working after finalize.
	if d := tr.Track(event(accounts, types.RunStateIncomplete, clock.Now().Add(2*time.Second))); d != Accepted {
		t.Errorf("Track after Finalize = %s, want %s", d, Accepted)
	}
}

func TestFinalize_BeforeStartIsEmpty(t *testing.T) {
	tr := NewTracker(TrackerConfig{})

	if d := tr.Track(event(users, types.RunStateRunning, time.Time{})); d != Inactive {
		t.Errorf("Track before start = %s, want %s", d, Inactive)
	}
	msgs := tr.Finalize(0, IdentityMapper)
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("Finalize before start = %v, want empty non-nil slice", msgs)
	}
}

func TestTracker_DisabledByFlag(t *testing.T) {
	flags := featureflag.NewStatic(map[featureflag.Flag]featureflag.Rule{
		featureflag.StreamStatusTracking: {Default: true, DenyConnections: []string{"conn-1"}},
	})
	tr := NewTracker(TrackerConfig{Flags: flags})
	tr.StartTracking(testCatalog(), attempt)

	if tr.Enabled() {
		t.Error("Enabled() = true, want false")
	}
	if d := tr.Track(event(users, types.RunStateComplete, time.Time{})); d != Inactive {
		t.Errorf("Track() = %s, want %s", d, Inactive)
	}
	if msgs := tr.Finalize(0, IdentityMapper); len(msgs) != 0 {
		t.Errorf("Finalize() = %v, want empty", msgs)
	}
	if snap := tr.Snapshot(); len(snap) != 0 {
		t.Errorf("Snapshot() = %v, want empty", snap)
	}
}

func TestTrack_ConcurrentProducers(t *testing.T) {
	tr, clock, collector := newStartedTracker(t)
	base := clock.Now()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state := types.RunStateRunning
			if i%2 == 0 {
				state = types.RunStateRateLimited
			}
			tr.Track(event(accounts, state, base.Add(time.Duration(i)*time.Millisecond)))
		}(i)
	}
	wg.Wait()
	tr.Track(event(accounts, types.RunStateComplete, base.Add(time.Second)))

	st := tr.Snapshot()[1]
	if st.RunState != types.RunStateComplete {
		t.Errorf("RunState = %s, want COMPLETE", st.RunState)
	}
	s := collector.Snapshot()
	if s.StatusAccepted+s.StatusStale != 51 {
		t.Errorf("accepted+stale = %d, want 51", s.StatusAccepted+s.StatusStale)
	}
}
