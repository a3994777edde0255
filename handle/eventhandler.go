package handle

import "sync"

// defaultHandler is the per-thread singleton EventHandler described in
// spec.md §4.D ("defaulting to a per-thread singleton that executes the
// default event policy"). It runs posted thunks on its own goroutine,
// draining them in FIFO order — "cross-thread events are FIFO per target
// event handler" per spec.md §5.
type defaultHandler struct {
	thread uint64
	queue  chan func()
	once   sync.Once
}

func newDefaultHandler(thread uint64) *defaultHandler {
	h := &defaultHandler{thread: thread, queue: make(chan func(), 256)}
	go h.run()
	return h
}

func (h *defaultHandler) run() {
	for thunk := range h.queue {
		thunk()
	}
}

func (h *defaultHandler) Post(thunk func()) {
	h.queue <- thunk
}

var (
	handlersMu sync.Mutex
	handlers   = map[uint64]*defaultHandler{}
)

// DefaultHandlerFor returns the singleton EventHandler for a given
// caller-thread tag, creating it on first use.
func DefaultHandlerFor(thread uint64) *defaultHandler {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	h, ok := handlers[thread]
	if !ok {
		h = newDefaultHandler(thread)
		handlers[thread] = h
	}
	return h
}
