// Package nq implements the notification queue shared between two isolated
// execution environments.
//
// A queue region is a 12-byte Header followed by capacity 8-byte records:
//
//	offset 0   WriteCount uint32  (producer only)
//	offset 4   ReadCount  uint32  (consumer only)
//	offset 8   QueueSize  uint32  (fixed at construction)
//	offset 12  records[capacity]  {SessionID uint32, Payload int32}
//
// Fields use the host byte order. Capacity is a power of two between 1 and
// 64, so a region is between 20 and 524 bytes. Counters grow monotonically
// and wrap at 2^32; the number of unread records is WriteCount-ReadCount in
// uint32 arithmetic and the slot of logical position n is n&(capacity-1).
//
// Enqueue writes the record and then publishes it with an atomic store of
// WriteCount. Dequeue loads WriteCount atomically before reading the record
// and frees the slot with an atomic store of ReadCount. Neither operation
// blocks and no lock is shared across the boundary.
package nq
