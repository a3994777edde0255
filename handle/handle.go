// Package handle implements the typed, per-open-instance view onto a
// shared tree node described in spec.md §4.D: echo suppression,
// ignore-same-value, pipe/save/master/auto-destroy modes, and
// atomic-operation forwarding.
//
// Grounded on the teacher's fs.FileHandle / NodeOpener / NodeReader /
// NodeWriter family (fs/api.go): a Handle plays the same role onto a
// link.Link that a FileHandle plays onto an Inode, and OnEvent's default
// dispatch is grounded on fs/default.go's "call the optional override,
// else run the default behavior" shape.
package handle

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/synctree/synctree/link"
	"github.com/synctree/synctree/registry"
)

var (
	ErrNotOpen  = errors.New("handle: not open")
	ErrBadValue = errors.New("handle: value conversion not ok")
)

// Flags controls Open.
type Flags uint32

const (
	CreateAllowed Flags = 1 << iota
	AsFolder
	SilentError
	Threaded
	LastLink
)

// SyncMode bits, cached locally per spec.md §4.D; package session reads
// and reacts to them.
type SyncMode uint32

const (
	Master SyncMode = 1 << iota
	AutoDestroy
	Monitor
)

// Callback receives the default event policy's decoded notifications. All
// methods are optional to the extent BaseCallback is embedded, matching
// the teacher's "if not defined, default/no-op" convention for optional
// node interfaces.
type Callback interface {
	OnValueChanged(v link.Value)
	OnModeChanged(m link.Mode)
	OnRetired(isGlobal bool)
	OnLinkCreate(path string, created *link.Link, isLast bool)
	OnAtomicOp(op link.AtomicOpKind, arg1, arg2 int64)
}

// BaseCallback embeds into a concrete Callback implementation to make all
// methods optional.
type BaseCallback struct{}

func (BaseCallback) OnValueChanged(link.Value)                       {}
func (BaseCallback) OnModeChanged(link.Mode)                         {}
func (BaseCallback) OnRetired(bool)                                  {}
func (BaseCallback) OnLinkCreate(string, *link.Link, bool)           {}
func (BaseCallback) OnAtomicOp(link.AtomicOpKind, int64, int64)      {}

var nextID uint32

// Handle is a lightweight, reference-counted reference to one link.
type Handle struct {
	id   uint32
	reg  *registry.Registry
	l    *link.Link
	path string

	threadTag uint64
	cb        Callback

	mu             sync.Mutex
	blockEcho      bool
	ignoreSame     bool
	useUncrossed   bool
	syncMode       SyncMode
	queueRegexp    string
	closed         bool
	pendingTargets []*link.Target
}

// Open resolves path through reg (creating it if flags has
// CreateAllowed) and subscribes. The link's mode is not copied into the
// Handle. The zero value of threadTag is the registry's main thread.
func Open(reg *registry.Registry, path string, flags Flags, threadTag uint64, cb Callback) (*Handle, error) {
	regFlags := registry.Flags(0)
	if flags&CreateAllowed != 0 {
		regFlags |= registry.CreateAllowed
	}
	if flags&AsFolder != 0 {
		regFlags |= registry.ForceFolder
	}

	l, err := reg.Resolve(path, regFlags, threadTag)
	if err != nil {
		if flags&SilentError != 0 {
			return nil, ErrNotOpen
		}
		return nil, err
	}

	if !l.Ref() {
		return nil, ErrNotOpen
	}

	h := &Handle{
		id:        atomic.AddUint32(&nextID, 1),
		reg:       reg,
		l:         l,
		path:      path,
		threadTag: threadTag,
		cb:        cb,
	}
	if flags&Threaded != 0 {
		l.MarkThreaded()
	}
	l.Subscribe(h)
	return h, nil
}

func (h *Handle) ID() uint32      { return h.id }
func (h *Handle) Path() string    { return h.path }
func (h *Handle) Link() *link.Link { return h.l }

// SetBlockEcho toggles echo suppression: writes originated by this handle
// will not re-trigger this handle's own callback.
func (h *Handle) SetBlockEcho(v bool) {
	h.mu.Lock()
	h.blockEcho = v
	h.mu.Unlock()
}

// SetIgnoreSame toggles the ignore-same-value optimization.
func (h *Handle) SetIgnoreSame(v bool) {
	h.mu.Lock()
	h.ignoreSame = v
	h.mu.Unlock()
}

// SetUseUncrossed toggles reading/writing only the near half of a bidir
// pair rather than crossing to the twin.
func (h *Handle) SetUseUncrossed(v bool) {
	h.mu.Lock()
	h.useUncrossed = v
	h.mu.Unlock()
}

// SetQueueFindRegexp attaches a pipe-coalescing regexp to future writes.
func (h *Handle) SetQueueFindRegexp(re string) {
	h.mu.Lock()
	h.queueRegexp = re
	h.mu.Unlock()
}

// SetSyncMode sets Master/AutoDestroy/Monitor. The bits are accepted at
// any time after Open; a late change to Master or AutoDestroy is not
// rejected, and no AlreadyOpen error is reported.
func (h *Handle) SetSyncMode(m SyncMode) {
	h.mu.Lock()
	h.syncMode = m
	h.mu.Unlock()
}

func (h *Handle) SyncMode() SyncMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.syncMode
}

// Value returns the link's current value.
func (h *Handle) Value() link.Value {
	return h.l.Read()
}

// SetValue writes v through this handle, honoring ignore-same-value and
// use-uncrossed. When ignore-same-value is set and v equals the currently
// held value, the write is skipped but local_update_count is still
// bumped so the sync layer still sees a "touch" (spec.md §4.D, tested by
// TestIgnoreSameStillBumpsUpdateCount in this package).
func (h *Handle) SetValue(v link.Value) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrNotOpen
	}
	ignoreSame := h.ignoreSame
	useUncrossed := h.useUncrossed
	re := h.queueRegexp
	h.mu.Unlock()

	if ignoreSame {
		held := h.l.Read()
		if held.Kind() != link.ValNull && held.Equal(v) {
			h.l.Touch(h.threadTag)
			return nil
		}
	}
	h.l.Write(v, h.id, useUncrossed, link.WriteFlags{QueueFindRegexp: re}, h.threadTag)
	return nil
}

// SetBits and Add forward to the underlying link's atomic operations.
func (h *Handle) SetBits(mask, value int64) { h.l.SetBits(mask, value, h.threadTag) }
func (h *Handle) Add(delta int64)           { h.l.AddValue(delta, h.threadTag) }
func (h *Handle) AddReal(delta float64)     { h.l.AddValueReal(delta, h.threadTag) }

// ---- link.Listener ----

func (h *Handle) ListenerID() uint32 { return h.id }
func (h *Handle) ThreadTag() uint64  { return h.threadTag }

func (h *Handle) Handler() link.EventHandler {
	return DefaultHandlerFor(h.threadTag)
}

func (h *Handle) TrackTarget(t *link.Target) {
	h.mu.Lock()
	h.pendingTargets = append(h.pendingTargets, t)
	h.mu.Unlock()
}

// OnEvent implements the default event policy from spec.md §4.D.
func (h *Handle) OnEvent(ev link.Event) {
	switch e := ev.(type) {
	case link.ValueChangeEvent:
		if e.SenderID == h.id {
			h.mu.Lock()
			block := h.blockEcho
			h.mu.Unlock()
			if block {
				return
			}
		}
		if h.cb != nil {
			h.cb.OnValueChanged(e.Value)
		}
	case link.ModeChangeEvent:
		if e.Mode&link.ModePipe != 0 {
			h.SetIgnoreSame(false)
		}
		if h.cb != nil {
			h.cb.OnModeChanged(e.Mode)
		}
	case link.RetiredEvent:
		if !e.IsBelow {
			h.closeInternal(true)
			if h.cb != nil {
				h.cb.OnRetired(e.IsGlobal)
			}
		}
	case link.LinkCreateEvent:
		if h.cb != nil {
			h.cb.OnLinkCreate(e.Path, e.Created, e.IsLast)
		}
	case link.AtomicOpEvent:
		if h.cb != nil {
			h.cb.OnAtomicOp(e.Op, e.Arg1, e.Arg2)
		}
	}
}

// Close unsubscribes, derefs, and invalidates any in-flight cross-thread
// events that still target this handle, per spec.md §5 "Cancellation and
// timeouts".
func (h *Handle) Close() {
	h.closeInternal(false)
}

func (h *Handle) closeInternal(fromRetired bool) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	targets := h.pendingTargets
	h.pendingTargets = nil
	h.mu.Unlock()

	for _, t := range targets {
		t.Invalidate()
	}
	if !fromRetired {
		h.l.Unsubscribe(h)
	}
	h.l.Deref(h.threadTag)
}

func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
