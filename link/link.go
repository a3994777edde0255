// Package link implements the shared object tree's node type: a
// reference-counted, path-addressed graph node with bidirectional "twin"
// pairs, retirement semantics, a subscription bus, and thread-crossing
// event delivery.
//
// The mutex discipline is grounded on the teacher's fuse/inode.go
// Inode.treeLock, but each link owns its own mutex, allocated only once
// the node is marked threaded (see ThreadTag on Listener and MarkThreaded
// below). Until then, all operations are assumed
// to run on the registry's single main thread and need no locking at all.
package link

import (
	"sync"
	"sync/atomic"
)

type Kind uint8

const (
	KindFolder Kind = iota
	KindLeaf
)

type Retirement uint8

const (
	RetireNone Retirement = iota
	RetireTree
	RetireLeafLocal
	RetireLeafGlobal
)

// Mode bits, persistent properties of a link (as opposed to SyncMode,
// which is a per-session overlay kept by package session).
type Mode uint32

const (
	ModePipe Mode = 1 << iota
	ModeSave
	ModeAtomicOpProvider
	ModeBidir
)

// ZeroRefSink receives the zero-ref notification described in spec.md
// §4.B/§4.C. It is implemented by registry.Registry; Link only depends on
// the interface to avoid an import cycle.
type ZeroRefSink interface {
	NotifyZeroRef(l *Link)
}

// Link is one node of the shared object tree.
type Link struct {
	mu *sync.Mutex // nil until MarkThreaded; guards everything below

	name   string
	kind   Kind
	parent *Link

	children map[string]*Link // non-nil only for folders

	twin *Link
	mode Mode

	value            Value
	localUpdateCount uint64

	refcount   int32 // value-half only; providers read the twin's
	retirement Retirement

	subscribers []Listener // bag semantics: duplicates allowed

	threaded bool
	sink     ZeroRefSink
}

// NewRoot creates the tree root: a folder, never retired, refcount 1.
func NewRoot(sink ZeroRefSink) *Link {
	r := &Link{
		kind:     KindFolder,
		children: make(map[string]*Link),
		refcount: 1,
		sink:     sink,
	}
	return r
}

func newChild(parent *Link, name string, kind Kind) *Link {
	l := &Link{
		name:   name,
		kind:   kind,
		parent: parent,
		sink:   parent.sink,
	}
	if kind == KindFolder {
		l.children = make(map[string]*Link)
	}
	if parent.threaded {
		l.MarkThreaded()
	}
	return l
}

// lock/unlock are no-ops until the link is threaded, matching spec.md
// §5's "Suspension points" model: a single-threaded registry need not pay
// for locking until a second thread actually touches the tree.
func (l *Link) lock() {
	if l.mu != nil {
		l.mu.Lock()
	}
}

func (l *Link) unlock() {
	if l.mu != nil {
		l.mu.Unlock()
	}
}

// MarkThreaded marks this link and every ancestor as threaded, allocating
// a mutex on each if it doesn't have one yet. Once any handle is opened
// from a non-registry thread, the link and all its ancestors become
// threaded per spec.md §3 ("Thread flag").
func (l *Link) MarkThreaded() {
	for n := l; n != nil; n = n.parent {
		if n.mu == nil {
			n.mu = &sync.Mutex{}
		}
		n.threaded = true
	}
}

func (l *Link) Name() string { return l.name }
func (l *Link) Kind() Kind   { return l.kind }
func (l *Link) Parent() *Link { return l.parent }
func (l *Link) IsFolder() bool { return l.kind == KindFolder }
func (l *Link) IsLeaf() bool   { return l.kind == KindLeaf }

// Twin returns the paired opposite-sex link, or nil.
func (l *Link) Twin() *Link {
	l.lock()
	defer l.unlock()
	return l.twin
}

// Bidir reports whether this link has a twin.
func (l *Link) Bidir() bool {
	return l.Twin() != nil
}

// SetTwin pairs l and t symmetrically. Called once, at creation time, by
// the registry under CreateAllowed twin-auto-creation.
func (l *Link) SetTwin(t *Link) {
	l.lock()
	l.twin = t
	l.mode |= ModeBidir
	l.unlock()
	if t != nil {
		t.lock()
		t.twin = l
		t.mode |= ModeBidir
		t.unlock()
	}
}

// Mode returns the current mode bitset.
func (l *Link) Mode() Mode {
	l.lock()
	defer l.unlock()
	return l.mode
}

// SetMode ORs in extra bits (e.g. ModePipe, ModeSave) and notifies
// subscribers with a ModeChange event. Setting ModePipe implicitly forces
// bidirectional mode per spec.md's "pipe ⇒ bidir" invariant; the caller is
// responsible for having already created/attached a twin in that case.
func (l *Link) SetMode(add Mode, callerThread uint64, path string, linkID uint64) {
	l.lock()
	l.mode |= add
	newMode := l.mode
	l.unlock()
	l.dispatchLocal(ModeChangeEvent{Path: path, LinkID: linkID, Mode: newMode}, callerThread)
}

// FindChild returns the existing child by name, or nil.
func (l *Link) FindChild(name string) *Link {
	l.lock()
	defer l.unlock()
	if l.children == nil {
		return nil
	}
	return l.children[name]
}

// Children returns a snapshot slice of current children.
func (l *Link) Children() []*Link {
	l.lock()
	defer l.unlock()
	out := make([]*Link, 0, len(l.children))
	for _, c := range l.children {
		out = append(out, c)
	}
	return out
}

// CreateChild creates and links a new child under l. The caller (registry,
// on the main thread) is responsible for path validation and retirement
// checks; CreateChild itself never fails.
func (l *Link) CreateChild(name string, kind Kind) *Link {
	ch := newChild(l, name, kind)
	l.lock()
	if l.children == nil {
		l.children = make(map[string]*Link)
	}
	l.children[name] = ch
	l.unlock()
	return ch
}

// removeChildFromParent detaches ch from its parent's child map. Used by
// the registry's zero-ref collapse.
func (l *Link) removeChildFromParent() {
	if l.parent == nil {
		return
	}
	l.parent.lock()
	delete(l.parent.children, l.name)
	l.parent.unlock()
}

// ChildCount reports the number of live children.
func (l *Link) ChildCount() int {
	l.lock()
	defer l.unlock()
	return len(l.children)
}

// ---- value read/write ----

// Read returns a copy of the current value cell. Safe to read further with
// the Value.As* accessors, which cache coercions on their own copy.
func (l *Link) Read() Value {
	l.lock()
	defer l.unlock()
	return l.value
}

// LocalUpdateCount returns the per-link monotonic write counter.
func (l *Link) LocalUpdateCount() uint64 {
	l.lock()
	defer l.unlock()
	return l.localUpdateCount
}

// Write commits v as the link's new value. senderID identifies the
// originating handle (0 for internal/remote writes without a local
// handle). useUncrossed suppresses routing to the twin; otherwise a link
// with a twin commits the write on the twin. Write returns nothing; the
// committing link dispatches the resulting ValueChangeEvent.
//
// Every write bumps local_update_count unless flags.FromRemote is set,
// per spec.md §4.B.
func (l *Link) Write(v Value, senderID uint32, useUncrossed bool, flags WriteFlags, callerThread uint64) {
	target := l
	if !useUncrossed {
		if t := l.Twin(); t != nil && !l.isProviderHalf() {
			target = t
		}
	}
	target.commit(v, senderID, flags, callerThread)
}

// isProviderHalf always reports false, so Write on either half of a pair
// forwards to the twin unless the caller passes useUncrossed=true
// (package handle passes its own use-uncrossed flag).
func (l *Link) isProviderHalf() bool {
	return false
}

func (l *Link) commit(v Value, senderID uint32, flags WriteFlags, callerThread uint64) {
	l.lock()
	v.invalidateCache()
	l.value = v
	if !flags.FromRemote {
		l.localUpdateCount++
	}
	pipe := l.mode&ModePipe != 0
	l.unlock()

	var exported []byte
	if pipe {
		exported, _ = v.AsBytes()
	}
	l.dispatchLocal(ValueChangeEvent{SenderID: senderID, Exported: exported, Flags: flags, Value: v}, callerThread)
}

// Touch bumps local_update_count without changing the value or notifying
// subscribers, used by package handle's ignore-same-value path so the
// sync layer still observes that a write was attempted.
func (l *Link) Touch(callerThread uint64) {
	l.lock()
	l.localUpdateCount++
	l.unlock()
}

// ---- atomic operations ----

// SetBits applies (value & mask) into the bits selected by mask, atomically
// with respect to other atomic ops on the same provider. If this link has
// a twin and exactly one of the pair is flagged ModeAtomicOpProvider, the
// op is forwarded there; otherwise it is applied locally and an AtomicOp
// event is emitted on the twin (or, lacking a twin, dropped after local
// application) to inform peers.
func (l *Link) SetBits(mask, value int64, callerThread uint64) {
	l.applyAtomicOp(OpBitSet, mask, value, callerThread, func(cur int64) int64 {
		return (cur &^ mask) | (value & mask)
	})
}

// AddValue adds delta to the value read as an integer and stores the
// result as an Int value (a Real value is truncated first), atomically,
// using the same provider-forwarding rule as SetBits.
func (l *Link) AddValue(delta int64, callerThread uint64) {
	l.applyAtomicOp(OpAddInt, delta, 0, callerThread, func(cur int64) int64 {
		return cur + delta
	})
}

// AddValueReal is the floating-point sibling of AddValue.
func (l *Link) AddValueReal(delta float64, callerThread uint64) {
	target, twin := l.atomicTarget()
	target.lock()
	cur, _ := target.value.AsReal()
	nv := RealValue(cur + delta)
	target.value = nv
	if target == l || true {
		target.localUpdateCount++
	}
	target.unlock()
	target.dispatchLocal(ValueChangeEvent{Value: nv}, callerThread)
	if twin != nil {
		twin.dispatchLocal(AtomicOpEvent{Op: OpAddReal, Arg1: int64(delta)}, callerThread)
	}
}

func (l *Link) applyAtomicOp(kind AtomicOpKind, arg1, arg2 int64, callerThread uint64, apply func(int64) int64) {
	target, twin := l.atomicTarget()
	target.lock()
	cur, _ := target.value.AsInt()
	nv := IntValue(apply(cur))
	target.value = nv
	target.localUpdateCount++
	target.unlock()
	target.dispatchLocal(ValueChangeEvent{Value: nv}, callerThread)
	if twin != nil {
		twin.dispatchLocal(AtomicOpEvent{Op: kind, Arg1: arg1, Arg2: arg2}, callerThread)
	}
}

// atomicTarget resolves which half of a bidir pair actually executes an
// atomic op: the flagged provider half, if any; else l itself.
func (l *Link) atomicTarget() (target *Link, twin *Link) {
	t := l.Twin()
	if t == nil {
		return l, nil
	}
	lMode, tMode := l.Mode(), t.Mode()
	lProvider := lMode&ModeAtomicOpProvider != 0
	tProvider := tMode&ModeAtomicOpProvider != 0
	switch {
	case lProvider && !tProvider:
		return l, t
	case tProvider && !lProvider:
		return t, l
	default:
		return l, t
	}
}

// ---- subscription ----

func (l *Link) Subscribe(s Listener) {
	l.lock()
	l.subscribers = append(l.subscribers, s)
	l.unlock()
}

func (l *Link) Unsubscribe(s Listener) {
	l.lock()
	out := l.subscribers[:0]
	for _, sub := range l.subscribers {
		if sub.ListenerID() != s.ListenerID() {
			out = append(out, sub)
		}
	}
	l.subscribers = out
	l.unlock()
}

func (l *Link) snapshotSubscribers() []Listener {
	l.lock()
	defer l.unlock()
	return append([]Listener(nil), l.subscribers...)
}

// dispatchLocal delivers ev to l's own subscribers following spec.md
// §4.B's dispatch discipline: synchronous in subscription order if
// untreaded, direct-or-posted per-listener if threaded.
func (l *Link) dispatchLocal(ev Event, callerThread uint64) {
	subs := l.snapshotSubscribers()
	threaded := l.threaded
	for _, s := range subs {
		if !threaded || s.ThreadTag() == callerThread {
			s.OnEvent(ev)
			continue
		}
		target := NewTarget()
		s.TrackTarget(target)
		cloned := cloneForCrossThread(ev)
		h := s.Handler()
		if h == nil {
			continue
		}
		h.Post(func() {
			if target.Valid() {
				s.OnEvent(cloned)
			}
		})
	}
}

// DispatchUpward propagates an event to every ancestor in turn, rooted at
// the triggering link, for LinkCreate and is_below Retired events.
func (l *Link) DispatchUpward(ev Event, callerThread uint64) {
	for n := l.parent; n != nil; n = n.parent {
		n.dispatchLocal(ev, callerThread)
	}
}

// ---- refcount ----

// Ref increments the refcount (value half only). Returns false if the
// link is retired with refcount already at zero: a late Ref losing the
// race with deletion must not resurrect a dead link.
func (l *Link) Ref() bool {
	valueHalf := l.valueHalf()
	l.lock()
	defer l.unlock()
	if valueHalf.retirement != RetireNone && valueHalf.refcount <= 0 {
		return false
	}
	atomic.AddInt32(&valueHalf.refcount, 1)
	return true
}

// Deref decrements the refcount. If it reaches zero, the registry's sink
// is notified (always, regardless of calling thread) so the zero-ref
// collapse can run on the registry thread.
func (l *Link) Deref(callerThread uint64) {
	valueHalf := l.valueHalf()
	n := atomic.AddInt32(&valueHalf.refcount, -1)
	if n == 0 && valueHalf.sink != nil {
		valueHalf.dispatchLocal(ZeroRefEvent{Link: valueHalf}, callerThread)
		valueHalf.sink.NotifyZeroRef(valueHalf)
	}
}

func (l *Link) Refcount() int32 {
	return atomic.LoadInt32(&l.valueHalf().refcount)
}

// valueHalf returns the link that owns the shared refcount: itself, or
// its twin if it is the provider half of a pair (spec.md §4.B "the value
// half holds the shared refcount; providers never count independently").
func (l *Link) valueHalf() *Link {
	t := l.Twin()
	if t == nil {
		return l
	}
	if apathIsProvider(l.name) {
		return t
	}
	return l
}

// apathIsProvider is a name-only provider check, duplicated narrowly here
// (rather than importing apath) to keep package link dependency-free of
// the path layer; registry/handle are the callers that actually resolve
// full paths.
func apathIsProvider(name string) bool {
	if len(name) == 0 {
		return false
	}
	if name[len(name)-1] != '!' {
		return false
	}
	return len(name) < 2 || name[len(name)-2:] != "!!"
}

// ---- retirement ----

// SetRetired marks the link retired with the given kind. isGlobal is
// orthogonal to kind (folder vs. leaf): a tree destroy can carry
// isGlobal=true just as a leaf destroy can, so it is threaded through
// explicitly rather than derived from kind. Idempotent: a second call
// on an already-retired link is a no-op (the kind is kept and no event
// is emitted).
func (l *Link) SetRetired(kind Retirement, isGlobal bool, callerThread uint64) {
	l.lock()
	already := l.retirement != RetireNone
	if !already {
		l.retirement = kind
	}
	l.unlock()
	if already {
		return
	}
	ev := RetiredEvent{Origin: l, IsBelow: false, IsGlobal: isGlobal}
	l.dispatchLocal(ev, callerThread)
	belowEv := RetiredEvent{Origin: l, IsBelow: true, IsGlobal: isGlobal}
	l.DispatchUpward(belowEv, callerThread)
}

func (l *Link) IsRetired() bool {
	l.lock()
	defer l.unlock()
	return l.retirement != RetireNone
}

func (l *Link) Retirement() Retirement {
	l.lock()
	defer l.unlock()
	return l.retirement
}

// EligibleForDeletion reports the registry's zero-ref deletion predicate:
// retired, refcount<=0, no children.
func (l *Link) EligibleForDeletion() bool {
	l.lock()
	defer l.unlock()
	return l.retirement != RetireNone && l.refcount <= 0 && len(l.children) == 0
}

// Detach removes l from its parent's child map. Only called by the
// registry, on the registry thread, once EligibleForDeletion is true.
func (l *Link) Detach() {
	l.removeChildFromParent()
}

// Walk visits l and every descendant, depth-first, calling fn on each.
// Grounded on the teacher's Inode.verify() debug walk.
func (l *Link) Walk(fn func(*Link)) {
	fn(l)
	for _, c := range l.Children() {
		c.Walk(fn)
	}
}
