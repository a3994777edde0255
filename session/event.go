package session

import (
	"github.com/synctree/synctree/link"
	"github.com/synctree/synctree/wire"
)

// EventKind enumerates the "event" record subtypes spec.md §4.E defines
// for monitor notifications, distinct from "flux" value updates.
type EventKind string

const (
	EventItemCreated     EventKind = "created"
	EventItemFound       EventKind = "found"
	EventItemDeleted     EventKind = "deleted"
	EventItemModeChanged EventKind = "modechg"
	EventMonitorStart    EventKind = "monstart"
	EventMonitorReStart  EventKind = "monrestart"
)

// EventRecord is the decoded form of an "event" wire record.
type EventRecord struct {
	Kind EventKind
	Path string
	Mode link.Mode
}

func EncodeEvent(e EventRecord) wire.Record {
	return wire.New("event").
		With("kind", string(e.Kind)).
		With("path", e.Path).
		WithInt("mode", int64(e.Mode))
}

func DecodeEvent(r wire.Record) EventRecord {
	kind, _ := r.Get("kind")
	path, _ := r.Get("path")
	mode, _ := r.GetInt("mode")
	return EventRecord{Kind: EventKind(kind), Path: path, Mode: link.Mode(mode)}
}

// MonitorSequence returns the catch-up burst a fresh subtree monitor
// emits (spec.md §8 scenario 5): a MonitorStart record for path,
// followed by one "found" record per existing child, in the order
// given. "created" records for later additions are not part of the
// returned slice. The leading MonitorStart tells the far end that the
// "found" records describe existing items, not new creations.
func MonitorSequence(path string, existingChildren []string) []EventRecord {
	out := make([]EventRecord, 0, len(existingChildren)+1)
	out = append(out, EventRecord{Kind: EventMonitorStart, Path: path})
	for _, child := range existingChildren {
		out = append(out, EventRecord{Kind: EventItemFound, Path: child})
	}
	return out
}

// AtomicOpRecord carries a link.AtomicOpKind operation across the wire,
// since atomic add/bitset ops must be applied as the operation itself
// on the far end rather than as a value overwrite (spec.md §4.B/§4.D).
type AtomicOpRecord struct {
	Path string
	Op   link.AtomicOpKind
	Arg1 int64
	Arg2 int64
}

func EncodeAtomicOp(a AtomicOpRecord) wire.Record {
	return wire.New("atomop").
		With("path", a.Path).
		WithInt("op", int64(a.Op)).
		WithInt("arg1", a.Arg1).
		WithInt("arg2", a.Arg2)
}

func DecodeAtomicOp(r wire.Record) AtomicOpRecord {
	path, _ := r.Get("path")
	op, _ := r.GetInt("op")
	arg1, _ := r.GetInt("arg1")
	arg2, _ := r.GetInt("arg2")
	return AtomicOpRecord{Path: path, Op: link.AtomicOpKind(op), Arg1: arg1, Arg2: arg2}
}

// DestroyRecord carries a "delete"/"destroy" record: the peer is
// retiring path with the given retirement scope. IsGlobal is carried
// independently of Retirement (folder vs. leaf kind): a folder destroy
// can be global just as a leaf destroy can (spec.md §8 "Retirement
// totality"), so the two are orthogonal wire fields.
type DestroyRecord struct {
	Path       string
	Retirement link.Retirement
	IsGlobal   bool
}

func EncodeDestroy(d DestroyRecord) wire.Record {
	rec := wire.New("destroy").With("path", d.Path).WithInt("retirement", int64(d.Retirement))
	if d.IsGlobal {
		rec = rec.With("global", "true")
	}
	return rec
}

func DecodeDestroy(r wire.Record) DestroyRecord {
	path, _ := r.Get("path")
	ret, _ := r.GetInt("retirement")
	global, _ := r.Get("global")
	return DestroyRecord{Path: path, Retirement: link.Retirement(ret), IsGlobal: global == "true"}
}
