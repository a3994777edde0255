package registry

import (
	"testing"
	"time"

	"github.com/synctree/synctree/link"
)

// recordingListener is a minimal link.Listener test double that records
// every RetiredEvent it sees, used to assert on IsGlobal/IsBelow rather
// than just on the link's retirement kind.
type recordingListener struct {
	id      uint32
	retired []link.RetiredEvent
}

func (l *recordingListener) ListenerID() uint32         { return l.id }
func (l *recordingListener) ThreadTag() uint64          { return MainThread }
func (l *recordingListener) Handler() link.EventHandler { return inlineHandler{} }
func (l *recordingListener) TrackTarget(*link.Target)   {}
func (l *recordingListener) OnEvent(ev link.Event) {
	if re, ok := ev.(link.RetiredEvent); ok {
		l.retired = append(l.retired, re)
	}
}

// inlineHandler runs posted thunks synchronously, since these tests all
// operate on the registry's main thread.
type inlineHandler struct{}

func (inlineHandler) Post(thunk func()) { thunk() }

func TestResolveCreatesFolderAndLeaf(t *testing.T) {
	r := New()
	defer r.Close()

	l, err := r.Resolve("/A/b", CreateAllowed, MainThread)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !l.IsLeaf() {
		t.Fatal("expected leaf")
	}
	folder, err := r.Resolve("/A/", 0, MainThread)
	if err != nil {
		t.Fatalf("Resolve folder: %v", err)
	}
	if !folder.IsFolder() {
		t.Fatal("expected folder")
	}
}

// Scenario 1 from spec.md §8: create-twin on provider open.
func TestCreateTwinOnProviderOpen(t *testing.T) {
	r := New()
	defer r.Close()

	provider, err := r.Resolve("/A/b!", CreateAllowed, MainThread)
	if err != nil {
		t.Fatalf("Resolve provider: %v", err)
	}
	if provider.IsFolder() {
		t.Fatal("provider must be a leaf")
	}
	folder, err := r.Resolve("/A/", 0, MainThread)
	if err != nil || !folder.IsFolder() {
		t.Fatalf("expected /A/ folder to exist: %v", err)
	}
	value, err := r.Resolve("/A/b", 0, MainThread)
	if err != nil {
		t.Fatalf("Resolve value half: %v", err)
	}
	if value.Twin() != provider || provider.Twin() != value {
		t.Fatal("twins not cross-pointing")
	}
	if !value.Bidir() || !provider.Bidir() {
		t.Fatal("expected bidir on both halves")
	}
}

func TestResolveNotFoundWithoutCreateAllowed(t *testing.T) {
	r := New()
	defer r.Close()
	_, err := r.Resolve("/missing/leaf", 0, MainThread)
	if err == nil {
		t.Fatal("expected NotFound error")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Code != NotFoundCode {
		t.Fatalf("expected NotFoundCode, got %v", err)
	}
}

func TestResolveKindMismatch(t *testing.T) {
	r := New()
	defer r.Close()
	if _, err := r.Resolve("/a/leaf", CreateAllowed, MainThread); err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	if _, err := r.Resolve("/a/leaf/", CreateAllowed, MainThread); err == nil {
		t.Fatal("expected kind mismatch when reopening leaf as folder")
	}
}

func TestDestroyGlobalRetiresSubtree(t *testing.T) {
	r := New()
	defer r.Close()

	leaf, _ := r.Resolve("/T/a", CreateAllowed, MainThread)
	listener := &recordingListener{id: 1}
	leaf.Subscribe(listener)

	if err := r.Destroy("/T", link.RetireTree, true, MainThread); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if !leaf.IsRetired() {
		t.Fatal("descendant must be retired after subtree destroy")
	}
	if leaf.Retirement() != link.RetireTree {
		t.Fatalf("expected RetireTree, got %v", leaf.Retirement())
	}

	// spec.md §8 "Retirement totality": a global destroy must deliver
	// IsGlobal=true to every descendant's subscribers, regardless of
	// the folder/leaf retirement kind used to reach them.
	if len(listener.retired) != 1 {
		t.Fatalf("expected exactly one Retired event on the descendant, got %d", len(listener.retired))
	}
	if !listener.retired[0].IsGlobal {
		t.Fatal("descendant's Retired event must have IsGlobal=true for a global subtree destroy")
	}
}

func TestDestroyTreeNonGlobalKeepsIsGlobalFalse(t *testing.T) {
	r := New()
	defer r.Close()

	leaf, _ := r.Resolve("/U/a", CreateAllowed, MainThread)
	listener := &recordingListener{id: 1}
	leaf.Subscribe(listener)

	if err := r.Destroy("/U", link.RetireTree, false, MainThread); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if len(listener.retired) != 1 || listener.retired[0].IsGlobal {
		t.Fatalf("expected a local (non-global) Retired event, got %+v", listener.retired)
	}
}

func TestZeroRefCollapsesEmptyRetiredSpine(t *testing.T) {
	r := New()
	defer r.Close()

	leaf, err := r.Resolve("/Z/leaf", CreateAllowed, MainThread)
	if err != nil {
		t.Fatal(err)
	}
	leaf.Ref()
	if err := r.Destroy("/Z/leaf", link.RetireLeafLocal, false, MainThread); err != nil {
		t.Fatal(err)
	}
	leaf.Deref(MainThread)

	folder, err := r.Resolve("/Z/", 0, MainThread)
	if err != nil {
		t.Fatal(err)
	}

	// zero-ref collapse runs asynchronously on the main loop; poll briefly.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if folder.FindChild("leaf") == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected empty retired spine to collapse")
}

func TestQuickSetQuickGet(t *testing.T) {
	r := New()
	defer r.Close()
	if err := r.QuickSet("/q/v", link.StringValue("hello"), MainThread); err != nil {
		t.Fatal(err)
	}
	v, err := r.QuickGet("/q/v", MainThread)
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := v.AsString(); !ok || s != "hello" {
		t.Fatalf("got %q ok=%v", s, ok)
	}
}

func TestCrossThreadResolveProxies(t *testing.T) {
	r := New()
	defer r.Close()
	l, err := r.Resolve("/cross/leaf", CreateAllowed, 7) // non-main caller thread
	if err != nil {
		t.Fatal(err)
	}
	if !l.IsLeaf() {
		t.Fatal("expected leaf")
	}
}
