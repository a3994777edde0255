package session

import "testing"

func TestEchoSequencerDetectsStaleRecord(t *testing.T) {
	var s EchoSequencer
	for i := 0; i < 5; i++ {
		s.Next()
	}
	if !s.IsStale(2) {
		t.Fatal("a sequence number 3 behind current should be stale")
	}
	if s.IsStale(5) {
		t.Fatal("the current sequence number itself is not stale")
	}
}

func TestEchoSequencerHandlesRollover(t *testing.T) {
	var s EchoSequencer
	for i := 0; i < echoSeqModulus+3; i++ {
		s.Next()
	}
	if s.seq != 3 {
		t.Fatalf("expected wraparound to 3, got %d", s.seq)
	}
	if !s.IsStale(2) {
		t.Fatal("sequence 2 is one behind 3 and should read as stale even across a wrap boundary")
	}
	if !s.IsStale(1) {
		t.Fatal("sequence 1 should read as stale relative to 3")
	}
}

// TestEchoSeqRolloverWindow pins the known false-positive window at the
// mod-100 boundary: a record more than half the modulus behind reads as
// "ahead" (wrapped) rather than stale, which is the documented tradeoff
// of using a small modulus instead of a monotonic counter.
func TestEchoSeqRolloverWindow(t *testing.T) {
	var s EchoSequencer
	s.seq = 1
	if s.IsStale(51) {
		t.Fatal("a sequence number exactly half the modulus away must not read as stale")
	}
	if !s.IsStale(52) {
		t.Fatal("one step further should cross into the stale window")
	}
}

func TestDecideInitialSyncTable(t *testing.T) {
	cases := []struct {
		name string
		in   InitialSyncInputs
		want InitialSyncDecision
	}{
		{
			name: "legacy peer gets no initial-sync flags at all",
			in:   InitialSyncInputs{Mode: StdAutoMaster, IsMaster: true, LocalDataIsNull: true, LegacyPeer: true},
			want: InitialSyncDecision{},
		},
		{
			name: "std auto master: local data changed since stop pushes it",
			in:   InitialSyncInputs{Mode: StdAutoMaster, UpdatesSinceStop: true},
			want: InitialSyncDecision{IsIniMaster: true},
		},
		{
			name: "std auto master: master with no local data expects to receive it",
			in:   InitialSyncInputs{Mode: StdAutoMaster, IsMaster: true, LocalDataIsNull: true},
			want: InitialSyncDecision{IsIniSlave: true},
		},
		{
			name: "std auto master: master with data neither pushes nor expects",
			in:   InitialSyncInputs{Mode: StdAutoMaster, IsMaster: true, LocalDataIsNull: false},
			want: InitialSyncDecision{},
		},
		{
			name: "implicit master auto-promotes from local update history",
			in:   InitialSyncInputs{Mode: ImplicitMaster, IsMaster: false, LocalUpdateCount: 4},
			want: InitialSyncDecision{PromotedToMaster: true},
		},
		{
			name: "implicit master, null+save expects the initial value",
			in:   InitialSyncInputs{Mode: ImplicitMaster, IsMaster: true, LocalDataIsNull: true, IsSaveMode: true},
			want: InitialSyncDecision{IsIniSlave: true},
		},
		{
			name: "implicit master promoted but not save mode is not slave",
			in:   InitialSyncInputs{Mode: ImplicitMaster, IsMaster: false, LocalUpdateCount: 1, LocalDataIsNull: true, IsSaveMode: false},
			want: InitialSyncDecision{PromotedToMaster: true},
		},
		{
			name: "explicit master never auto-promotes, but null+save+master expects value",
			in:   InitialSyncInputs{Mode: ExplicitMaster, IsMaster: true, LocalDataIsNull: true, IsSaveMode: true, LocalUpdateCount: 0},
			want: InitialSyncDecision{IsIniSlave: true},
		},
		{
			name: "explicit master, not master, never promotes regardless of update count",
			in:   InitialSyncInputs{Mode: ExplicitMaster, IsMaster: false, LocalUpdateCount: 9},
			want: InitialSyncDecision{},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DecideInitialSync(c.in)
			if got != c.want {
				t.Fatalf("got %+v, want %+v", got, c.want)
			}
		})
	}
}
