package scheduler

import (
	"container/heap"
	"time"
)

// Kind identifies what a timed event does when it fires. Values keep the
// classic engine numbering.
type Kind int

const (
	EventServiceCheck      Kind = 0
	EventProgramReload     Kind = 4
	EventCheckReaper       Kind = 5
	EventOrphanCheck       Kind = 6
	EventRetentionSave     Kind = 7
	EventScheduledDowntime Kind = 9
	EventSFreshnessCheck   Kind = 10
	EventExpireDowntime    Kind = 11
	EventHostCheck         Kind = 12
	EventHFreshnessCheck   Kind = 13
	EventRescheduleChecks  Kind = 14
	EventExpireComment     Kind = 15
	EventSleep             Kind = 98
	EventUserFunction      Kind = 99
)

var kindNames = map[Kind]string{
	EventServiceCheck:      "service check",
	EventProgramReload:     "program reload",
	EventCheckReaper:       "check reaper",
	EventOrphanCheck:       "orphan check",
	EventRetentionSave:     "retention save",
	EventScheduledDowntime: "scheduled downtime",
	EventSFreshnessCheck:   "service freshness check",
	EventExpireDowntime:    "expire downtime",
	EventHostCheck:         "host check",
	EventHFreshnessCheck:   "host freshness check",
	EventRescheduleChecks:  "reschedule checks",
	EventExpireComment:     "expire comment",
	EventSleep:             "sleep",
	EventUserFunction:      "user function",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// priority orders events with the same due time: results are drained
// before freshness is evaluated, and both before new checks go out.
func (k Kind) priority() int {
	switch k {
	case EventCheckReaper:
		return 0
	case EventSFreshnessCheck, EventHFreshnessCheck:
		return 1
	case EventHostCheck:
		return 3
	case EventServiceCheck:
		return 4
	default:
		return 2
	}
}

// indexed reports whether events of this kind are findable by payload.
func (k Kind) indexed() bool {
	return k != EventSleep && k != EventUserFunction
}

// Handle identifies a scheduled event. Handles are never reused.
type Handle uint64

// Event is a timed entry in the queue. Payload is the checkable, downtime
// or comment id the event refers to, or zero for global events.
type Event struct {
	Kind         Kind
	Due          time.Time
	Payload      uint64
	Recurring    bool
	Interval     time.Duration
	CheckOptions int
	// Func runs for EventUserFunction.
	Func func(now time.Time)

	handle Handle
	seq    uint64
	index  int
}

// Handle returns the handle assigned when the event was scheduled.
func (e *Event) Handle() Handle { return e.handle }

type findKey struct {
	kind    Kind
	payload uint64
}

// eventHeap implements container/heap.Interface ordered by due time, kind
// priority, then insertion order.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.Due.Equal(b.Due) {
		return a.Due.Before(b.Due)
	}
	if pa, pb := a.Kind.priority(), b.Kind.priority(); pa != pb {
		return pa < pb
	}
	return a.seq < b.seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x interface{}) {
	e := x.(*Event)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is the pending-event store. It is not safe for concurrent use;
// only the scheduler loop touches it.
type Queue struct {
	heap    eventHeap
	byID    map[Handle]*Event
	index   map[findKey]Handle
	nextID  Handle
	nextSeq uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		byID:   make(map[Handle]*Event),
		index:  make(map[findKey]Handle),
		nextID: 1,
	}
}

// Schedule inserts e and returns its handle. An event already due fires on
// the next PopDue. Scheduling an event that is still queued returns its
// existing handle.
func (q *Queue) Schedule(e *Event) Handle {
	if e.handle != 0 {
		if cur, ok := q.byID[e.handle]; ok && cur == e {
			return e.handle
		}
	}
	e.handle = q.nextID
	q.nextID++
	q.push(e)
	return e.handle
}

func (q *Queue) push(e *Event) {
	e.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, e)
	q.byID[e.handle] = e
	if e.Kind.indexed() {
		q.index[findKey{e.Kind, e.Payload}] = e.handle
	}
}

// Cancel removes the event behind h. It reports false when the event has
// already fired or been cancelled.
func (q *Queue) Cancel(h Handle) bool {
	e, ok := q.byID[h]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, e.index)
	q.forget(e)
	return true
}

func (q *Queue) forget(e *Event) {
	delete(q.byID, e.handle)
	if e.Kind.indexed() {
		k := findKey{e.Kind, e.Payload}
		if q.index[k] == e.handle {
			delete(q.index, k)
		}
	}
}

// PopDue removes and returns the earliest event due at or before now, or
// nil when nothing is due.
func (q *Queue) PopDue(now time.Time) *Event {
	if len(q.heap) == 0 || q.heap[0].Due.After(now) {
		return nil
	}
	e := heap.Pop(&q.heap).(*Event)
	q.forget(e)
	return e
}

// Requeue puts a popped recurring event back with a fresh handle.
func (q *Queue) Requeue(e *Event, due time.Time) Handle {
	e.Due = due
	e.handle = 0
	return q.Schedule(e)
}

// Find returns the handle of the queued event for (kind, payload).
func (q *Queue) Find(kind Kind, payload uint64) (Handle, bool) {
	h, ok := q.index[findKey{kind, payload}]
	return h, ok
}

// Get returns the queued event behind h.
func (q *Queue) Get(h Handle) (*Event, bool) {
	e, ok := q.byID[h]
	return e, ok
}

// Reschedule moves a queued event to a new due time, keeping its handle.
func (q *Queue) Reschedule(h Handle, due time.Time) bool {
	e, ok := q.byID[h]
	if !ok {
		return false
	}
	e.Due = due
	e.seq = q.nextSeq
	q.nextSeq++
	heap.Fix(&q.heap, e.index)
	return true
}

// Peek returns the next event without removing it.
func (q *Queue) Peek() *Event {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// Len returns the number of queued events.
func (q *Queue) Len() int { return len(q.heap) }

// Adjust shifts every queued event by delta, used after a system clock
// jump.
func (q *Queue) Adjust(delta time.Duration) {
	for _, e := range q.heap {
		e.Due = e.Due.Add(delta)
	}
}

// Events returns the queued events in no particular order.
func (q *Queue) Events() []*Event {
	out := make([]*Event, len(q.heap))
	copy(out, q.heap)
	return out
}
