package nq

import "sync"

// LockedQueue wraps a Queue with one mutex per side.
//
// The Queue itself is lock-free for a single producer and a single consumer.
// LockedQueue lets several goroutines of the same process share a side
// without breaking the single-writer rule for the counters. The peer across
// the boundary keeps using the lock-free protocol.
type LockedQueue struct {
	*Queue
	prodMu sync.Mutex
	consMu sync.Mutex
}

// NewLockedQueue wraps q.
func NewLockedQueue(q *Queue) *LockedQueue {
	return &LockedQueue{Queue: q}
}

// Enqueue serialises producers.
func (q *LockedQueue) Enqueue(sid SessionID, payload Payload) error {
	q.prodMu.Lock()
	err := q.Queue.Enqueue(sid, payload)
	q.prodMu.Unlock()
	return err
}

// Dequeue serialises consumers.
func (q *LockedQueue) Dequeue() (Notification, bool) {
	q.consMu.Lock()
	n, ok := q.Queue.Dequeue()
	q.consMu.Unlock()
	return n, ok
}
