package session

import (
	"regexp"
	"sync"

	"github.com/synctree/synctree/wire"
)

// QueueKind names the four outbound queues spec.md §4.E drains with
// strict priority: sync drains to empty, then mode drains to empty,
// before either of the two flux queues is touched at all, and the two
// flux queues are merged by arrival order rather than favoring one
// over the other — a burst on one must not let the other queue jump
// ahead of records it arrived after.
type QueueKind int

const (
	QueueSync QueueKind = iota
	QueueMode
	QueueFluxItem
	QueueFluxPipe
	numQueues
)

// pipeEntry pairs a queued flux-pipe record with its coalescing key and
// arrival sequence number, so a later Push carrying the same key can
// find and replace it by value (rather than by a position that a
// partial dequeue would invalidate) while still merging correctly by
// arrival order against QueueFluxItem.
type pipeEntry struct {
	seq uint64
	key string
	rec wire.Record
}

// queuedRecord tags a flux-item record with its arrival sequence number
// for merging against pipeItems.
type queuedRecord struct {
	seq uint64
	rec wire.Record
}

// OutboundQueues holds the four per-session send queues and implements
// pipe coalescing: a flux-pipe record queued with a coalescing key that
// matches an already-queued, not-yet-sent record replaces that record
// in place rather than appending, so a hot pipe's queue depth stays
// bounded by the number of distinct regexp groups in flight rather than
// by write rate.
type OutboundQueues struct {
	mu sync.Mutex

	syncQ []wire.Record
	modeQ []wire.Record

	fluxItems []queuedRecord
	pipeItems []pipeEntry
	nextSeq   uint64
}

func NewOutboundQueues() *OutboundQueues {
	return &OutboundQueues{}
}

// Push enqueues r onto kind. For QueueFluxPipe, findRegexp identifies
// the coalescing group; an empty findRegexp disables coalescing for
// that record. Flux writes (item or pipe) are stamped with a shared
// arrival counter so Drain can merge the two queues in true arrival
// order.
func (q *OutboundQueues) Push(kind QueueKind, r wire.Record, findRegexp string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch kind {
	case QueueSync:
		q.syncQ = append(q.syncQ, r)
	case QueueMode:
		q.modeQ = append(q.modeQ, r)
	case QueueFluxItem:
		q.fluxItems = append(q.fluxItems, queuedRecord{seq: q.nextSeq, rec: r})
		q.nextSeq++
	case QueueFluxPipe:
		seq := q.nextSeq
		q.nextSeq++
		if findRegexp != "" {
			for i, e := range q.pipeItems {
				if e.key == findRegexp {
					q.pipeItems[i].rec = r
					q.pipeItems[i].seq = seq
					return
				}
			}
		}
		q.pipeItems = append(q.pipeItems, pipeEntry{seq: seq, key: findRegexp, rec: r})
	}
}

// Drain removes and returns every currently-queued record, in spec.md
// §4.E's strict priority order: all of sync, then all of mode, then
// the flux-item and flux-pipe queues merged by shared arrival sequence
// number so neither one can cut ahead of a record the other queued
// first.
func (q *OutboundQueues) Drain() []wire.Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]wire.Record, 0, len(q.syncQ)+len(q.modeQ)+len(q.fluxItems)+len(q.pipeItems))
	out = append(out, q.syncQ...)
	q.syncQ = nil
	out = append(out, q.modeQ...)
	q.modeQ = nil

	i, j := 0, 0
	for i < len(q.fluxItems) && j < len(q.pipeItems) {
		if q.fluxItems[i].seq <= q.pipeItems[j].seq {
			out = append(out, q.fluxItems[i].rec)
			i++
		} else {
			out = append(out, q.pipeItems[j].rec)
			j++
		}
	}
	for ; i < len(q.fluxItems); i++ {
		out = append(out, q.fluxItems[i].rec)
	}
	for ; j < len(q.pipeItems); j++ {
		out = append(out, q.pipeItems[j].rec)
	}
	q.fluxItems = nil
	q.pipeItems = nil

	return out
}

// Len reports the total number of records queued across all four
// queues.
func (q *OutboundQueues) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.syncQ) + len(q.modeQ) + len(q.fluxItems) + len(q.pipeItems)
}

// CompilePipeKey turns a handle's raw QueueFindRegexp string into the
// coalescing group key: two records coalesce when their paths match
// the same compiled pattern, not when their regexp strings are
// byte-identical, so this returns the first capture match rather than
// the pattern text itself when the pattern has a capture group.
func CompilePipeKey(findRegexp, path string) string {
	if findRegexp == "" {
		return ""
	}
	re, err := regexp.Compile(findRegexp)
	if err != nil {
		return findRegexp
	}
	if m := re.FindStringSubmatch(path); len(m) > 1 {
		return m[1]
	}
	return findRegexp
}
