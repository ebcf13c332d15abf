package nq

import (
	"sync/atomic"
	"unsafe"
)

// ring is the record array of a queue region viewed as 32-bit words.
// Slot i occupies words[2i] (session ID) and words[2i+1] (payload).
type ring struct {
	words []uint32
	mask  uint32
}

func newRing(region []byte, capacity uint32) ring {
	base := unsafe.Pointer(&region[HeaderSize])
	return ring{
		words: unsafe.Slice((*uint32)(base), 2*capacity),
		mask:  capacity - 1,
	}
}

// store writes the record for logical position pos. Both fields are written
// with atomic stores so a peer never observes a torn word.
func (r ring) store(pos uint32, n Notification) {
	i := (pos & r.mask) * 2
	atomic.StoreUint32(&r.words[i], uint32(n.SessionID))
	atomic.StoreUint32(&r.words[i+1], uint32(n.Payload))
}

func (r ring) load(pos uint32) Notification {
	i := (pos & r.mask) * 2
	return Notification{
		SessionID: SessionID(atomic.LoadUint32(&r.words[i])),
		Payload:   Payload(int32(atomic.LoadUint32(&r.words[i+1]))),
	}
}
