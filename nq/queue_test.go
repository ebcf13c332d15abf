package nq

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegion(t *testing.T, capacity uint32) []byte {
	t.Helper()
	size, err := RegionSize(capacity)
	require.NoError(t, err)
	return make([]byte, size)
}

func newTestQueue(t *testing.T, capacity uint32) *Queue {
	t.Helper()
	q, err := New(newRegion(t, capacity), capacity)
	require.NoError(t, err)
	return q
}

func requireInvariant(t *testing.T, q *Queue) {
	t.Helper()
	s := q.State()
	require.LessOrEqual(t, s.WriteCount-s.ReadCount, s.Capacity, "write=%d read=%d", s.WriteCount, s.ReadCount)
}

func TestLayoutConstants(t *testing.T) {
	assert.Equal(t, uintptr(HeaderSize), unsafe.Sizeof(Header{}))
	assert.Equal(t, uintptr(NotificationSize), unsafe.Sizeof(Notification{}))
	assert.Equal(t, 20, MinRegionSize)
	assert.Equal(t, 524, MaxRegionSize)
}

func TestNew_Capacity(t *testing.T) {
	tests := []struct {
		capacity uint32
		wantErr  bool
	}{
		{capacity: 0, wantErr: true},
		{capacity: 3, wantErr: true},
		{capacity: 5, wantErr: true},
		{capacity: 100, wantErr: true},
		{capacity: 128, wantErr: true},
		{capacity: 1},
		{capacity: 2},
		{capacity: 4},
		{capacity: 64},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("capacity=%d", tc.capacity), func(t *testing.T) {
			region := make([]byte, MaxRegionSize*2)
			q, err := New(region, tc.capacity)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidCapacity)
				assert.Nil(t, q)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int(tc.capacity), q.Cap())
			assert.True(t, q.IsEmpty())
			assert.Equal(t, State{Capacity: tc.capacity}, q.State())
		})
	}
}

func TestRegionSize(t *testing.T) {
	size, err := RegionSize(1)
	require.NoError(t, err)
	assert.Equal(t, MinRegionSize, size)

	size, err = RegionSize(64)
	require.NoError(t, err)
	assert.Equal(t, MaxRegionSize, size)

	_, err = RegionSize(6)
	require.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestNew_RegionErrors(t *testing.T) {
	_, err := New(make([]byte, 19), 1)
	require.ErrorIs(t, err, ErrRegionSize)

	buf := make([]byte, 64)
	_, err = New(buf[1:], 4)
	require.ErrorIs(t, err, ErrMisaligned)
}

func TestNew_ResetsCounters(t *testing.T) {
	region := newRegion(t, 4)
	for i := range region {
		region[i] = 0xAB
	}
	q, err := New(region, 4)
	require.NoError(t, err)
	assert.Equal(t, State{Capacity: 4}, q.State())
}

func TestScenario_Capacity4(t *testing.T) {
	q := newTestQueue(t, 4)

	require.NoError(t, q.Enqueue(7, PayloadNotify))
	require.NoError(t, q.Enqueue(7, PayloadSessionClose))

	n, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, Notification{SessionID: 7, Payload: 0}, n)

	n, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, Notification{SessionID: 7, Payload: -2}, n)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestScenario_Capacity1(t *testing.T) {
	q := newTestQueue(t, 1)

	require.NoError(t, q.Enqueue(1, 5))
	require.ErrorIs(t, q.Enqueue(1, 6), ErrQueueFull)

	n, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, Notification{SessionID: 1, Payload: 5}, n)

	require.NoError(t, q.Enqueue(2, PayloadNotify))
	n, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, Notification{SessionID: 2, Payload: 0}, n)
}

func TestEnqueue_FullLeavesStateUnchanged(t *testing.T) {
	region := newRegion(t, 4)
	q, err := New(region, 4)
	require.NoError(t, err)

	for i := range 4 {
		require.NoError(t, q.Enqueue(SessionID(i+1), Payload(i)))
	}
	assert.True(t, q.IsFull())

	before := append([]byte(nil), region...)
	require.ErrorIs(t, q.Enqueue(99, 99), ErrQueueFull)
	assert.Equal(t, before, region)
}

func TestDequeue_EmptyChangesNothing(t *testing.T) {
	region := newRegion(t, 2)
	q, err := New(region, 2)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(3, 0))
	_, ok := q.Dequeue()
	require.True(t, ok)

	before := append([]byte(nil), region...)
	n, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, Notification{}, n)
	assert.Equal(t, before, region)
}

func TestFIFO(t *testing.T) {
	for _, capacity := range []uint32{1, 2, 4, 8, 16, 32, 64} {
		q := newTestQueue(t, capacity)
		var want []Notification
		for i := uint32(0); i < capacity; i++ {
			n := Notification{SessionID: SessionID(i + 10), Payload: Payload(int32(i) - 3)}
			want = append(want, n)
			require.NoError(t, q.Enqueue(n.SessionID, n.Payload))
			requireInvariant(t, q)
		}
		var got []Notification
		for {
			n, ok := q.Dequeue()
			if !ok {
				break
			}
			got = append(got, n)
			requireInvariant(t, q)
		}
		assert.Equal(t, want, got, "capacity %d", capacity)
	}
}

func TestWraparound(t *testing.T) {
	const capacity = 4
	q := newTestQueue(t, capacity)

	total := capacity*3 + 2
	for i := range total {
		sid := SessionID(i)
		require.NoError(t, q.Enqueue(sid, Payload(i)))
		n, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, Notification{SessionID: sid, Payload: Payload(i)}, n)
	}

	s := q.State()
	assert.Equal(t, uint32(total), s.WriteCount)
	assert.Equal(t, uint32(total), s.ReadCount)

	// Next record lands in slot total%capacity.
	require.NoError(t, q.Enqueue(42, 1))
	i := (total % capacity) * 2
	assert.Equal(t, uint32(42), q.ring.words[i])
}

func TestCountersWrapPastUint32(t *testing.T) {
	const capacity = 4
	region := newRegion(t, capacity)
	start := uint32(0xFFFFFFFE)
	binary.NativeEndian.PutUint32(region[0:], start)
	binary.NativeEndian.PutUint32(region[4:], start)
	binary.NativeEndian.PutUint32(region[8:], capacity)

	q, err := Attach(region)
	require.NoError(t, err)

	for i := range capacity {
		require.NoError(t, q.Enqueue(SessionID(i), Payload(i)))
		requireInvariant(t, q)
	}
	require.ErrorIs(t, q.Enqueue(9, 9), ErrQueueFull)
	assert.Equal(t, capacity, q.Len())
	assert.Equal(t, uint32(2), q.State().WriteCount)

	for i := range capacity {
		n, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, Notification{SessionID: SessionID(i), Payload: Payload(i)}, n)
		requireInvariant(t, q)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, State{WriteCount: 2, ReadCount: 2, Capacity: capacity}, q.State())
}

func TestInvariant_RandomOps(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, capacity := range []uint32{1, 4, 64} {
		q := newTestQueue(t, capacity)
		var model []Notification
		for i := range 5000 {
			if rng.IntN(2) == 0 {
				n := Notification{SessionID: SessionID(rng.Uint32()), Payload: Payload(rng.Int32() - rng.Int32())}
				err := q.Enqueue(n.SessionID, n.Payload)
				if len(model) == int(capacity) {
					require.ErrorIs(t, err, ErrQueueFull, "op %d", i)
				} else {
					require.NoError(t, err, "op %d", i)
					model = append(model, n)
				}
			} else {
				n, ok := q.Dequeue()
				if len(model) == 0 {
					require.False(t, ok, "op %d", i)
				} else {
					require.True(t, ok, "op %d", i)
					require.Equal(t, model[0], n, "op %d", i)
					model = model[1:]
				}
			}
			requireInvariant(t, q)
			require.Equal(t, len(model), q.Len())
		}
	}
}

func TestRecordLayout(t *testing.T) {
	region := newRegion(t, 2)
	q, err := New(region, 2)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(7, PayloadSessionClose))
	require.NoError(t, q.Enqueue(SessionInvalid, 12))

	assert.Equal(t, uint32(2), binary.NativeEndian.Uint32(region[0:]))
	assert.Equal(t, uint32(0), binary.NativeEndian.Uint32(region[4:]))
	assert.Equal(t, uint32(2), binary.NativeEndian.Uint32(region[8:]))

	assert.Equal(t, uint32(7), binary.NativeEndian.Uint32(region[12:]))
	assert.Equal(t, int32(-2), int32(binary.NativeEndian.Uint32(region[16:])))
	assert.Equal(t, uint32(0xFFFFFFFF), binary.NativeEndian.Uint32(region[20:]))
	assert.Equal(t, int32(12), int32(binary.NativeEndian.Uint32(region[24:])))
}

func TestAttach(t *testing.T) {
	region := newRegion(t, 8)
	producer, err := New(region, 8)
	require.NoError(t, err)
	require.NoError(t, producer.Enqueue(5, PayloadNotify))

	consumer, err := Attach(region)
	require.NoError(t, err)
	assert.Equal(t, 8, consumer.Cap())

	n, ok := consumer.Dequeue()
	require.True(t, ok)
	assert.Equal(t, Notification{SessionID: 5}, n)
	assert.True(t, producer.IsEmpty())
}

func TestAttach_Errors(t *testing.T) {
	t.Run("uninitialised", func(t *testing.T) {
		_, err := Attach(make([]byte, MaxRegionSize))
		require.ErrorIs(t, err, ErrInvalidCapacity)
	})
	t.Run("short header", func(t *testing.T) {
		_, err := Attach(make([]byte, 8))
		require.ErrorIs(t, err, ErrRegionSize)
	})
	t.Run("short ring", func(t *testing.T) {
		region := make([]byte, 28)
		binary.NativeEndian.PutUint32(region[8:], 4)
		_, err := Attach(region)
		require.ErrorIs(t, err, ErrRegionSize)
	})
	t.Run("misaligned", func(t *testing.T) {
		buf := make([]byte, 64)
		_, err := Attach(buf[2:])
		require.ErrorIs(t, err, ErrMisaligned)
	})
	t.Run("corrupt counters", func(t *testing.T) {
		region := newRegion(t, 4)
		binary.NativeEndian.PutUint32(region[0:], 10)
		binary.NativeEndian.PutUint32(region[4:], 1)
		binary.NativeEndian.PutUint32(region[8:], 4)
		_, err := Attach(region)
		require.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestEnqueue_CorruptReadCountIsFull(t *testing.T) {
	region := newRegion(t, 4)
	q, err := New(region, 4)
	require.NoError(t, err)

	// Peer moved its read counter past the write counter.
	binary.NativeEndian.PutUint32(region[4:], 3)
	require.ErrorIs(t, q.Enqueue(1, 0), ErrQueueFull)
	require.ErrorIs(t, q.Validate(), ErrCorrupt)
}

func TestQueue_SPSC(t *testing.T) {
	const count = 20000
	region := newRegion(t, 16)
	producer, err := New(region, 16)
	require.NoError(t, err)
	consumer, err := Attach(region)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < count; i++ {
			for producer.Enqueue(SessionID(i), Payload(i)) != nil {
				runtime.Gosched()
			}
		}
	}()

	for expected := 0; expected < count; {
		n, ok := consumer.Dequeue()
		if !ok {
			runtime.Gosched()
			continue
		}
		if n.SessionID != SessionID(expected) || n.Payload != Payload(expected) {
			t.Fatalf("FIFO violation: expected %d, got %v", expected, n)
		}
		expected++
	}
	<-done
	assert.True(t, consumer.IsEmpty())
}
