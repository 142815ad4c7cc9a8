package seriallink

import "sync"

// OverflowPolicy selects which message a full queue sacrifices.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest queued message to make room for the
	// incoming one. With capacity 1 the queue always holds the newest
	// message.
	DropOldest OverflowPolicy = iota
	// DropNewest rejects the incoming message and keeps the queue as is.
	DropNewest
)

// String returns the configuration file spelling of the policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// messageQueue is a bounded FIFO of Messages shared by exactly one producer
// and one consumer goroutine. All operations are O(1) amortized and never
// block; a full queue resolves the conflict according to its policy.
type messageQueue struct {
	mu       sync.Mutex
	items    []Message
	capacity int
	policy   OverflowPolicy
}

func newMessageQueue(capacity int, policy OverflowPolicy) *messageQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &messageQueue{
		items:    make([]Message, 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
}

// push appends msg. accepted reports whether msg entered the queue,
// evicted whether an older message was discarded to make room. Exactly one
// of the two is false when the queue was full.
func (q *messageQueue) push(msg Message) (accepted, evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		if q.policy == DropNewest {
			return false, false
		}
		n := copy(q.items, q.items[1:])
		q.items = q.items[:n]
		evicted = true
	}
	q.items = append(q.items, msg)
	return true, evicted
}

// pop removes and returns the oldest message.
func (q *messageQueue) pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Message{}, false
	}
	msg := q.items[0]
	n := copy(q.items, q.items[1:])
	q.items = q.items[:n]
	return msg, true
}

// popAll removes and returns every queued message in arrival order.
func (q *messageQueue) popAll() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]Message, 0, q.capacity)
	return out
}

// len reports the number of queued messages.
func (q *messageQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
