package session

import (
	"testing"

	"github.com/synctree/synctree/wire"
)

func TestPipeCoalescing(t *testing.T) {
	q := NewOutboundQueues()
	key := CompilePipeKey(`^/sensors/(\w+)/temp$`, "/sensors/oven1/temp")

	q.Push(QueueFluxPipe, wire.New("flux").WithInt("v", 1), key)
	q.Push(QueueFluxPipe, wire.New("flux").WithInt("v", 2), key)
	q.Push(QueueFluxPipe, wire.New("flux").WithInt("v", 3), key)

	if got := q.Len(); got != 1 {
		t.Fatalf("expected coalesced queue depth 1, got %d", got)
	}
	drained := q.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected exactly one record drained, got %d", len(drained))
	}
	if v, _ := drained[0].GetInt("v"); v != 3 {
		t.Fatalf("expected the latest value 3 to survive coalescing, got %d", v)
	}
}

func TestControlQueuesDrainBeforeBulk(t *testing.T) {
	q := NewOutboundQueues()
	for i := 0; i < 3; i++ {
		q.Push(QueueFluxItem, wire.New("flux").WithInt("n", int64(i)), "")
	}
	q.Push(QueueSync, wire.New("sync"), "")

	drained := q.Drain()
	if drained[0].Cmd != "sync" {
		t.Fatalf("expected sync record first, got %q", drained[0].Cmd)
	}
}

func TestSyncDrainsFullyRegardlessOfQueueDepth(t *testing.T) {
	q := NewOutboundQueues()
	for i := 0; i < 5; i++ {
		q.Push(QueueSync, wire.New("sync").WithInt("n", int64(i)), "")
	}
	q.Push(QueueMode, wire.New("mode"), "")
	q.Push(QueueFluxItem, wire.New("flux"), "")

	drained := q.Drain()
	if len(drained) != 7 {
		t.Fatalf("expected all 7 queued records drained in one round, got %d", len(drained))
	}
	for i := 0; i < 5; i++ {
		if drained[i].Cmd != "sync" {
			t.Fatalf("record %d: expected sync ahead of mode/flux, got %q", i, drained[i].Cmd)
		}
	}
	if drained[5].Cmd != "mode" {
		t.Fatalf("expected mode to drain after all 5 sync records, got %q", drained[5].Cmd)
	}
	if drained[6].Cmd != "flux" {
		t.Fatalf("expected flux to drain last, got %q", drained[6].Cmd)
	}
}

func TestFluxItemAndFluxPipeMergeByArrivalOrder(t *testing.T) {
	q := NewOutboundQueues()
	key := CompilePipeKey(`^/s/(\w+)$`, "/s/a")

	q.Push(QueueFluxPipe, wire.New("flux").With("tag", "pipe1"), key)     // seq 0
	q.Push(QueueFluxItem, wire.New("flux").With("tag", "item1"), "")      // seq 1
	q.Push(QueueFluxItem, wire.New("flux").With("tag", "item2"), "")      // seq 2
	q.Push(QueueFluxPipe, wire.New("flux").With("tag", "pipe2"), key)     // seq 3, coalesces into the pipe1 slot

	drained := q.Drain()
	var tags []string
	for _, r := range drained {
		tag, _ := r.Get("tag")
		tags = append(tags, tag)
	}
	want := []string{"item1", "item2", "pipe2"}
	if len(tags) != len(want) {
		t.Fatalf("got tags %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("got tags %v, want %v", tags, want)
		}
	}
}

func TestDistinctPipeKeysDoNotCoalesce(t *testing.T) {
	q := NewOutboundQueues()
	re := `^/sensors/(\w+)/temp$`
	k1 := CompilePipeKey(re, "/sensors/oven1/temp")
	k2 := CompilePipeKey(re, "/sensors/oven2/temp")

	q.Push(QueueFluxPipe, wire.New("flux"), k1)
	q.Push(QueueFluxPipe, wire.New("flux"), k2)

	if got := q.Len(); got != 2 {
		t.Fatalf("distinct coalescing groups should not merge, got len %d", got)
	}
}
