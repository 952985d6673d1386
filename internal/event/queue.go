package event

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 1024

// Queue is a bounded multi-producer, single-consumer ring of events. Push
// never blocks: when the ring is full the oldest event is overwritten and
// the dropped counter is incremented.
type Queue struct {
	mu       sync.Mutex
	buf      []Event
	start    int
	count    int
	capacity int

	dropped atomic.Uint64
	pushed  atomic.Uint64
	wake    chan struct{}
}

// NewQueue returns a queue holding at most capacity events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		buf:      make([]Event, capacity),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Push enqueues ev and signals the consumer.
func (q *Queue) Push(ev Event) {
	q.mu.Lock()
	if q.count < q.capacity {
		q.buf[(q.start+q.count)%q.capacity] = ev
		q.count++
	} else {
		q.buf[q.start] = ev
		q.start = (q.start + 1) % q.capacity
		q.dropped.Add(1)
	}
	q.mu.Unlock()
	q.pushed.Add(1)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued event in FIFO order. It returns nil
// when the queue is empty.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	out := make([]Event, q.count)
	for i := 0; i < q.count; i++ {
		idx := (q.start + i) % q.capacity
		out[i] = q.buf[idx]
		q.buf[idx] = Event{}
	}
	q.start = 0
	q.count = 0
	return out
}

// Wake is signalled at least once after any Push. Pushes that happen before
// the consumer reads the channel collapse into a single wake.
func (q *Queue) Wake() <-chan struct{} { return q.wake }

// Len reports the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap reports the ring capacity.
func (q *Queue) Cap() int { return q.capacity }

// Dropped reports how many events were overwritten before being drained.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Pushed reports how many events were ever enqueued, dropped ones included.
func (q *Queue) Pushed() uint64 { return q.pushed.Load() }
