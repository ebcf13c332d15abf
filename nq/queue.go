package nq

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	// MinCapacity is the minimum number of records in a queue.
	MinCapacity = 1
	// MaxCapacity is the maximum number of records in a queue.
	MaxCapacity = 64

	// HeaderSize is the size of Header in bytes.
	HeaderSize = 12
	// NotificationSize is the size of one record in bytes.
	NotificationSize = 8

	// MinRegionSize is the size of a queue region holding MinCapacity records.
	MinRegionSize = HeaderSize + MinCapacity*NotificationSize
	// MaxRegionSize is the size of a queue region holding MaxCapacity records.
	MaxRegionSize = HeaderSize + MaxCapacity*NotificationSize
)

var (
	// ErrInvalidCapacity is returned when a capacity is not a power of two
	// within [MinCapacity, MaxCapacity].
	ErrInvalidCapacity = errors.New("nq: invalid queue capacity")
	// ErrQueueFull is returned by Enqueue when every slot holds an unread record.
	ErrQueueFull = errors.New("nq: queue full")
	// ErrRegionSize is returned when a region is too small for the requested capacity.
	ErrRegionSize = errors.New("nq: region too small")
	// ErrMisaligned is returned when a region does not start on a 4-byte boundary.
	ErrMisaligned = errors.New("nq: region not 4-byte aligned")
	// ErrCorrupt is returned by Validate when the counters break the
	// 0 <= write-read <= capacity invariant.
	ErrCorrupt = errors.New("nq: queue counters corrupt")
)

// Header matches the shared-memory layout of the queue header.
// Every field is accessed atomically once the queue is shared.
type Header struct {
	WriteCount uint32 // Offset 0, written by the producer only
	ReadCount  uint32 // Offset 4, written by the consumer only
	QueueSize  uint32 // Offset 8, fixed at construction
}

// Producer is the write side of a queue.
type Producer interface {
	Enqueue(sid SessionID, payload Payload) error
}

// Consumer is the read side of a queue.
type Consumer interface {
	Dequeue() (Notification, bool)
}

var (
	_ Producer = (*Queue)(nil)
	_ Consumer = (*Queue)(nil)
	_ Producer = (*LockedQueue)(nil)
	_ Consumer = (*LockedQueue)(nil)
)

// Queue is one direction of notification traffic over a shared region.
//
// A Queue is safe for one producer and one consumer running concurrently,
// possibly in different processes mapping the same region. Use LockedQueue
// when several goroutines share a side.
type Queue struct {
	hdr      *Header
	ring     ring
	capacity uint32
}

// ValidCapacity reports whether c is a power of two within [MinCapacity, MaxCapacity].
func ValidCapacity(c uint32) bool {
	return c >= MinCapacity && c <= MaxCapacity && c&(c-1) == 0
}

// RegionSize returns the number of bytes needed for a queue of the given capacity.
func RegionSize(capacity uint32) (int, error) {
	if !ValidCapacity(capacity) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return HeaderSize + int(capacity)*NotificationSize, nil
}

func checkRegion(region []byte, capacity uint32) error {
	size, err := RegionSize(capacity)
	if err != nil {
		return err
	}
	if len(region) < size {
		return fmt.Errorf("%w: need %d bytes for capacity %d, have %d", ErrRegionSize, size, capacity, len(region))
	}
	if uintptr(unsafe.Pointer(&region[0]))%4 != 0 {
		return ErrMisaligned
	}
	return nil
}

// New initialises a queue in region with zeroed counters and the given capacity.
// Only the side that establishes the channel calls New; the peer calls Attach.
func New(region []byte, capacity uint32) (*Queue, error) {
	if err := checkRegion(region, capacity); err != nil {
		return nil, err
	}
	q := newQueue(region, capacity)

	// Capacity is published last so an attaching peer that sees it also sees
	// the zeroed counters.
	atomic.StoreUint32(&q.hdr.QueueSize, 0)
	atomic.StoreUint32(&q.hdr.WriteCount, 0)
	atomic.StoreUint32(&q.hdr.ReadCount, 0)
	atomic.StoreUint32(&q.hdr.QueueSize, capacity)
	return q, nil
}

// Attach interprets an already initialised region, taking the capacity from
// its header.
func Attach(region []byte) (*Queue, error) {
	if len(region) < HeaderSize {
		return nil, fmt.Errorf("%w: need %d header bytes, have %d", ErrRegionSize, HeaderSize, len(region))
	}
	if uintptr(unsafe.Pointer(&region[0]))%4 != 0 {
		return nil, ErrMisaligned
	}
	hdr := (*Header)(unsafe.Pointer(&region[0]))
	capacity := atomic.LoadUint32(&hdr.QueueSize)
	if err := checkRegion(region, capacity); err != nil {
		return nil, err
	}
	q := newQueue(region, capacity)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func newQueue(region []byte, capacity uint32) *Queue {
	return &Queue{
		hdr:      (*Header)(unsafe.Pointer(&region[0])),
		ring:     newRing(region, capacity),
		capacity: capacity,
	}
}

// Enqueue appends a notification for sid.
//
// It returns ErrQueueFull without touching the region when no slot is free.
// Enqueue does not wake the peer; that is the transport's job.
func (q *Queue) Enqueue(sid SessionID, payload Payload) error {
	w := atomic.LoadUint32(&q.hdr.WriteCount)
	r := atomic.LoadUint32(&q.hdr.ReadCount)

	// Any used count at or above capacity is full; unread records are never
	// overwritten.
	if w-r >= q.capacity {
		return ErrQueueFull
	}

	q.ring.store(w, Notification{SessionID: sid, Payload: payload})

	// Release: the record is visible before the new write counter.
	atomic.StoreUint32(&q.hdr.WriteCount, w+1)
	return nil
}

// Dequeue removes the oldest notification. It returns false when the queue
// is empty, which is the normal state of an idle queue.
func (q *Queue) Dequeue() (Notification, bool) {
	r := atomic.LoadUint32(&q.hdr.ReadCount)
	// Acquire: pairs with the producer's store of WriteCount.
	w := atomic.LoadUint32(&q.hdr.WriteCount)
	if r == w {
		return Notification{}, false
	}

	n := q.ring.load(r)

	atomic.StoreUint32(&q.hdr.ReadCount, r+1)
	return n, true
}

// Len returns the number of unread notifications. It may be stale by the
// time the caller looks at it.
func (q *Queue) Len() int {
	w := atomic.LoadUint32(&q.hdr.WriteCount)
	r := atomic.LoadUint32(&q.hdr.ReadCount)
	return int(w - r)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return int(q.capacity)
}

// IsEmpty reports whether there is nothing to read.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// IsFull reports whether an Enqueue would fail with ErrQueueFull.
func (q *Queue) IsFull() bool {
	return q.Len() >= int(q.capacity)
}

// State is a snapshot of the queue header for diagnostics.
type State struct {
	WriteCount uint32
	ReadCount  uint32
	Capacity   uint32
	Used       uint32
}

// State returns a snapshot of the header.
func (q *Queue) State() State {
	w := atomic.LoadUint32(&q.hdr.WriteCount)
	r := atomic.LoadUint32(&q.hdr.ReadCount)
	return State{
		WriteCount: w,
		ReadCount:  r,
		Capacity:   atomic.LoadUint32(&q.hdr.QueueSize),
		Used:       w - r,
	}
}

// Validate checks the header against the capacity fixed at construction and
// the counter invariant.
func (q *Queue) Validate() error {
	s := q.State()
	if s.Capacity != q.capacity {
		return fmt.Errorf("%w: capacity changed from %d to %d", ErrCorrupt, q.capacity, s.Capacity)
	}
	if s.Used > q.capacity {
		return fmt.Errorf("%w: write=%d read=%d capacity=%d", ErrCorrupt, s.WriteCount, s.ReadCount, q.capacity)
	}
	return nil
}
