package session

import "github.com/synctree/synctree/wire"

// FluxType is the single-letter type flag spec.md §4.E attaches to every
// flux record: whether the change is an (I)nitial sync value, an
// (E)cho of our own prior write, a normal (S)ubsequent update, or a
// (N)o-op touch that only bumps the update counter.
type FluxType byte

const (
	FluxInitial FluxType = 'I'
	FluxEcho    FluxType = 'E'
	FluxSubsequent FluxType = 'S'
	FluxTouch   FluxType = 'N'
)

// FluxRecord is the decoded form of a "flux" wire record.
type FluxRecord struct {
	Path    string
	Type    FluxType
	EchoSeq int
	Blob    []byte
}

// DecodeFlux parses a wire.Record with Cmd=="flux" into a FluxRecord.
func DecodeFlux(r wire.Record) FluxRecord {
	typ, _ := r.Get("type")
	seq, _ := r.GetInt("echo")
	path, _ := r.Get("path")
	blobStr, _ := r.Get("blob")
	var t FluxType
	if len(typ) > 0 {
		t = FluxType(typ[0])
	}
	return FluxRecord{Path: path, Type: t, EchoSeq: int(seq), Blob: []byte(blobStr)}
}

// Encode renders f as a wire.Record.
func (f FluxRecord) Encode() wire.Record {
	return wire.New("flux").
		With("path", f.Path).
		With("type", string(f.Type)).
		WithInt("echo", int64(f.EchoSeq)).
		With("blob", string(f.Blob))
}

// EchoSequencer tracks the modulo-100 echo-sequence counter spec.md uses
// to detect stale flux records racing a faster local write: a received
// record whose sequence number trails the locally observed one (within
// the rollover window) is a late echo of something already superseded,
// and should be dropped rather than applied.
//
// Resolved Open Question: echo-seq rollover wraps mod 100 rather than
// using a monotonically increasing 64-bit counter, matching the
// original implementation's on-the-wire field width.
type EchoSequencer struct {
	seq int
}

const echoSeqModulus = 100

// Next returns the next sequence number to stamp on an outgoing write.
func (s *EchoSequencer) Next() int {
	s.seq = (s.seq + 1) % echoSeqModulus
	return s.seq
}

// IsStale reports whether a received sequence number is "behind" the
// locally tracked one, accounting for wraparound: a gap of more than
// half the modulus in the "wrong" direction is treated as the received
// value having wrapped ahead, not behind.
func (s *EchoSequencer) IsStale(received int) bool {
	diff := (s.seq - received + echoSeqModulus) % echoSeqModulus
	return diff != 0 && diff < echoSeqModulus/2
}

// InitialSyncMode is the per-session client sync mode configured up
// front (spec.md §4.E), not something negotiated by comparing the two
// sides' master flags against each other.
type InitialSyncMode int

const (
	// StdAutoMaster: a side with local writes since the session last
	// stopped pushes them as the initial value; a side that is Master
	// but holds no data (Null) expects to receive one instead.
	StdAutoMaster InitialSyncMode = iota
	// ImplicitMaster: a side with any local update history promotes
	// itself to Master if it isn't already one.
	ImplicitMaster
	// ExplicitMaster: Master is only ever set by configuration, never
	// auto-promoted from local update history.
	ExplicitMaster
	// Legacy: the peer predates the Info/Master negotiation entirely;
	// none of the initial-sync flags below apply.
	Legacy
)

// InitialSyncInputs are evaluated independently on each side of a link;
// this is NOT a two-sided negotiation against the remote's equivalent
// values; a side decides whether it is the source or the sink of the
// initial value purely from its own state plus which ClientSyncMode it
// was configured with. Grounded on ArnSync::reqStartNormalSync (the
// switch over _clientSyncMode around itemNet->isMaster()/isNull()).
type InitialSyncInputs struct {
	Mode InitialSyncMode

	// IsMaster is this side's current master flag, before any
	// ImplicitMaster auto-promotion below is applied.
	IsMaster bool
	// LocalDataIsNull is true when this side holds no data for the
	// path at all (Arn::DataType::Null).
	LocalDataIsNull bool
	// UpdatesSinceStop is true when local_update_count has advanced
	// since this session last stopped (i.e. data changed locally while
	// disconnected, the signal scenario 3 of spec.md §8 depends on).
	UpdatesSinceStop bool
	// LocalUpdateCount is the all-time local write counter, used only
	// to decide ImplicitMaster auto-promotion, never compared against
	// a remote count.
	LocalUpdateCount uint64
	// IsSaveMode is this path's persisted/save bit.
	IsSaveMode bool
	// LegacyPeer is true when the remote speaks a pre-Info protocol
	// version that never negotiated Master/save semantics at all.
	LegacyPeer bool
}

// InitialSyncDecision reports what this side of the link should do when
// the session first starts normal sync for a path.
type InitialSyncDecision struct {
	// IsIniMaster: this side should push its current value as the
	// authoritative initial value.
	IsIniMaster bool
	// IsIniSlave: this side expects the peer to supply the initial
	// value rather than pushing its own (Null && Master && save).
	IsIniSlave bool
	// PromotedToMaster: ImplicitMaster auto-promoted this side to
	// Master because it had local update history.
	PromotedToMaster bool
}

// DecideInitialSync evaluates one side's initial-sync behavior from its
// own local state and configured mode alone.
func DecideInitialSync(in InitialSyncInputs) InitialSyncDecision {
	var d InitialSyncDecision
	isMaster := in.IsMaster

	switch in.Mode {
	case StdAutoMaster:
		if in.LegacyPeer {
			return d
		}
		d.IsIniMaster = in.UpdatesSinceStop
		d.IsIniSlave = isMaster && in.LocalDataIsNull
	case ImplicitMaster:
		if !isMaster && in.LocalUpdateCount > 0 {
			isMaster = true
			d.PromotedToMaster = true
		}
		if in.LegacyPeer {
			return d
		}
		d.IsIniSlave = isMaster && in.LocalDataIsNull && in.IsSaveMode
	case ExplicitMaster:
		if in.LegacyPeer {
			return d
		}
		d.IsIniSlave = isMaster && in.LocalDataIsNull && in.IsSaveMode
	case Legacy:
	}
	return d
}
