package shadow

import (
	"container/list"
	"context"
	"sync"
)

// defaultQueueCapacity matches spec.md §4.3's default bounded capacity.
const defaultQueueCapacity = 1024

// Queue is the bounded, merging FIFO of spec.md §4.3. Offer consults Merge
// against any already-queued request for the same key; Take blocks until a
// request is available. A single monitor (mu plus the empty/full signal
// channels) guards every mutation, matching the "single monitor" invariant
// — there is no separate in-flight index, since per-key uniqueness plus
// remove-on-take already gives invariants I3/I4.
type Queue struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // FIFO of Request; front = next to Take
	index    map[Key]*list.Element

	// emptyCh/fullCh are closed and replaced on every transition a blocked
	// Offer/Take might care about; waiters select on the channel they
	// captured and re-check the queue state on wake, so an extra spurious
	// wakeup is harmless.
	emptyCh chan struct{}
	fullCh  chan struct{}
}

// NewQueue creates a queue with the given bounded capacity. A
// non-positive capacity uses the spec default (1024).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}

	return &Queue{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[Key]*list.Element),
		emptyCh:  make(chan struct{}),
		fullCh:   make(chan struct{}),
	}
}

// Offer inserts req, merging it against any already-queued request for the
// same key. It blocks while the queue is at capacity and req's key is not
// already present (a merge never grows the queue length). Cooperative
// cancellation via ctx honors spec.md §5's suspension-point contract.
func (q *Queue) Offer(ctx context.Context, req Request) error {
	for {
		q.mu.Lock()

		_, exists := q.index[req.Key()]
		if !exists && q.order.Len() >= q.capacity {
			wait := q.fullCh
			q.mu.Unlock()

			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		q.applyLocked(req)
		q.mu.Unlock()

		return nil
	}
}

// applyLocked inserts req or merges it with the existing entry for its
// key. Callers must hold q.mu.
func (q *Queue) applyLocked(incoming Request) {
	key := incoming.Key()

	el, exists := q.index[key]
	if !exists {
		newEl := q.order.PushBack(incoming)
		q.index[key] = newEl
		q.signalNotEmptyLocked()

		return
	}

	existing, _ := el.Value.(Request)
	result := Merge(existing, incoming)

	switch result.Action {
	case MergeDrop, MergeKeep:
		return
	case MergeReplace:
		el.Value = result.Replacement[0]
	case MergeSplit:
		el.Value = result.Replacement[0]

		if len(result.Replacement) > 1 {
			extra := result.Replacement[1]
			if _, dup := q.index[extra.Key()]; !dup {
				q.index[extra.Key()] = q.order.InsertAfter(extra, el)
			}
		}
	}
}

// Take blocks until a request is available, then removes and returns the
// head, erasing its key index entry atomically with the removal.
func (q *Queue) Take(ctx context.Context) (Request, error) {
	for {
		q.mu.Lock()

		if q.order.Len() > 0 {
			req := q.removeFrontLocked()
			q.mu.Unlock()

			return req, nil
		}

		wait := q.emptyCh
		q.mu.Unlock()

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryTake removes and returns the head without blocking. ok is false if
// the queue is currently empty. Used by the Periodic strategy's
// drain-to-empty tick (spec.md §4.6).
func (q *Queue) TryTake() (req Request, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.order.Len() == 0 {
		return nil, false
	}

	return q.removeFrontLocked(), true
}

// removeFrontLocked pops the FIFO head and its index entry. Callers must
// hold q.mu.
func (q *Queue) removeFrontLocked() Request {
	front := q.order.Front()
	req, _ := front.Value.(Request)

	q.order.Remove(front)
	delete(q.index, req.Key())
	q.signalNotFullLocked()

	return req
}

// Clear empties the queue, discarding all pending requests.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.order.Init()
	q.index = make(map[Key]*list.Element)
	q.signalNotFullLocked()
}

// RemainingCapacity reports how many distinct-key requests may still be
// offered before Offer blocks.
func (q *Queue) RemainingCapacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.capacity - q.order.Len()
}

// Len reports the current number of queued requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.order.Len()
}

func (q *Queue) signalNotEmptyLocked() {
	close(q.emptyCh)
	q.emptyCh = make(chan struct{})
}

func (q *Queue) signalNotFullLocked() {
	close(q.fullCh)
	q.fullCh = make(chan struct{})
}
