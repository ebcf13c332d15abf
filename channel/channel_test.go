package channel

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Hemn77/tee-mobicore-driver/internal/metrics"
	"github.com/Hemn77/tee-mobicore-driver/nq"
)

// newPair builds both sides of a channel over one in-memory region.
func newPair(t testing.TB, cfg Config, opts ...Option) (initiator, responder *Channel) {
	t.Helper()
	cfg = cfg.WithDefaults()
	size, err := RegionSize(cfg.Capacity)
	require.NoError(t, err)
	region := make([]byte, size)

	wakeInitiator := NewLocalSignaler()
	wakeResponder := NewLocalSignaler()

	initiator, err = New(region, Initiator, cfg, wakeResponder, wakeInitiator, opts...)
	require.NoError(t, err)
	responder, err = New(region, Responder, Config{}, wakeInitiator, wakeResponder, opts...)
	require.NoError(t, err)
	return initiator, responder
}

func TestRegionSize(t *testing.T) {
	size, err := RegionSize(1)
	require.NoError(t, err)
	assert.Equal(t, 2*nq.MinRegionSize, size)

	_, err = RegionSize(3)
	require.ErrorIs(t, err, nq.ErrInvalidCapacity)
}

func TestRole(t *testing.T) {
	r, err := ParseRole("initiator")
	require.NoError(t, err)
	assert.Equal(t, Initiator, r)
	assert.Equal(t, InitiatorToResponder, r.Outbound())
	assert.Equal(t, ResponderToInitiator, r.Inbound())

	r, err = ParseRole("responder")
	require.NoError(t, err)
	assert.Equal(t, Responder, r)
	assert.Equal(t, ResponderToInitiator, r.Outbound())
	assert.Equal(t, "responder", r.String())

	_, err = ParseRole("peer")
	require.Error(t, err)
}

func TestQueues_Errors(t *testing.T) {
	_, _, err := Queues(make([]byte, 64))
	require.ErrorIs(t, err, nq.ErrInvalidCapacity)

	region := make([]byte, 2*nq.MaxRegionSize)
	_, _, err = Init(region, 4)
	require.NoError(t, err)
	_, _, err = Queues(region[:nq.MinRegionSize*3])
	require.ErrorIs(t, err, nq.ErrRegionSize)

	_, _, err = Init(make([]byte, 30), 1)
	require.ErrorIs(t, err, nq.ErrRegionSize)
}

func TestChannel_Bidirectional(t *testing.T) {
	initiator, responder := newPair(t, Config{Capacity: 4})
	ctx := t.Context()

	require.NoError(t, initiator.Send(ctx, 7, nq.PayloadNotify))
	n, err := responder.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, nq.Notification{SessionID: 7}, n)

	require.NoError(t, responder.Send(ctx, 7, 3))
	n, err = initiator.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, nq.Notification{SessionID: 7, Payload: 3}, n)

	_, ok := initiator.TryRecv()
	assert.False(t, ok)
	_, ok = responder.TryRecv()
	assert.False(t, ok)
}

func TestChannel_SharesQueues(t *testing.T) {
	initiator, responder := newPair(t, Config{Capacity: 2})
	require.NoError(t, initiator.TrySend(1, 0))
	assert.Equal(t, 1, responder.Inbound().Len())
	assert.Equal(t, 1, initiator.Outbound().Len())
	assert.Equal(t, 2, responder.Outbound().Cap())
}

func TestChannel_FullPolicies(t *testing.T) {
	t.Run("fail", func(t *testing.T) {
		initiator, _ := newPair(t, Config{Capacity: 1, FullPolicy: PolicyFail})
		require.NoError(t, initiator.Send(t.Context(), 1, 0))
		require.ErrorIs(t, initiator.Send(t.Context(), 1, 0), nq.ErrQueueFull)
	})
	t.Run("drop", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		require.NoError(t, err)
		initiator, _ := newPair(t, Config{Capacity: 1, FullPolicy: PolicyDrop}, WithMetrics(m))
		require.NoError(t, initiator.Send(t.Context(), 1, 0))
		require.ErrorIs(t, initiator.Send(t.Context(), 1, 0), ErrDropped)
		assert.Equal(t, 1, initiator.Outbound().Len())
	})
	t.Run("retry until context done", func(t *testing.T) {
		initiator, _ := newPair(t, Config{Capacity: 1, FullPolicy: PolicyRetry})
		require.NoError(t, initiator.Send(t.Context(), 1, 0))

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		err := initiator.Send(ctx, 1, 0)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
	t.Run("retry succeeds after drain", func(t *testing.T) {
		initiator, responder := newPair(t, Config{Capacity: 1, FullPolicy: PolicyRetry})
		require.NoError(t, initiator.Send(t.Context(), 1, 0))

		done := make(chan error, 1)
		go func() { done <- initiator.Send(t.Context(), 2, 0) }()

		time.Sleep(5 * time.Millisecond)
		n, ok := responder.TryRecv()
		require.True(t, ok)
		assert.Equal(t, nq.SessionID(1), n.SessionID)

		require.NoError(t, <-done)
		n, err := responder.Recv(t.Context())
		require.NoError(t, err)
		assert.Equal(t, nq.SessionID(2), n.SessionID)
	})
}

func TestChannel_RecvContextCancelled(t *testing.T) {
	_, responder := newPair(t, Config{Capacity: 4, WaitTimeout: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	_, err := responder.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_Stream(t *testing.T) {
	const count = 5000
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	initiator, responder := newPair(t, Config{Capacity: 8}, WithMetrics(m))

	g, ctx := errgroup.WithContext(t.Context())
	g.Go(func() error {
		for i := 0; i < count; i++ {
			if err := initiator.Send(ctx, nq.SessionID(i%3+1), nq.Payload(i)); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < count; i++ {
			n, err := responder.Recv(ctx)
			if err != nil {
				return err
			}
			if n.Payload != nq.Payload(i) {
				t.Errorf("FIFO violation: expected %d, got %d", i, n.Payload)
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	series, err := testutil.GatherAndCount(reg, "nq_queue_enqueued_total", "nq_queue_dequeued_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

type failingSignaler struct{ err error }

func (f failingSignaler) Signal() error {
	return f.err
}

func (f failingSignaler) Wait(time.Duration) error {
	return f.err
}

func TestChannel_SignalErrors(t *testing.T) {
	size, err := RegionSize(2)
	require.NoError(t, err)
	region := make([]byte, size)
	broken := failingSignaler{err: assert.AnError}

	c, err := New(region, Initiator, Config{Capacity: 2}, broken, broken)
	require.NoError(t, err)

	err = c.TrySend(1, 0)
	require.ErrorIs(t, err, ErrSignal)
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, c.Outbound().Len())

	_, err = c.Recv(t.Context())
	require.ErrorIs(t, err, assert.AnError)
}

func TestNew_InvalidConfig(t *testing.T) {
	region := make([]byte, 2*nq.MaxRegionSize)
	_, err := New(region, Initiator, Config{Capacity: 6}, NewLocalSignaler(), NewLocalSignaler())
	require.ErrorIs(t, err, nq.ErrInvalidCapacity)

	_, err = New(region, Initiator, Config{FullPolicy: "block"}, NewLocalSignaler(), NewLocalSignaler())
	require.Error(t, err)
}

func TestAttach_KeepsQueuedNotifications(t *testing.T) {
	cfg := Config{Capacity: 4}
	size, err := RegionSize(cfg.Capacity)
	require.NoError(t, err)
	region := make([]byte, size)
	_, _, err = Init(region, cfg.Capacity)
	require.NoError(t, err)

	wakeInitiator := NewLocalSignaler()
	wakeResponder := NewLocalSignaler()
	responder, err := Attach(region, Responder, Config{}, wakeInitiator, wakeResponder)
	require.NoError(t, err)
	require.NoError(t, responder.TrySend(3, 9))

	initiator, err := Attach(region, Initiator, cfg, wakeResponder, wakeInitiator)
	require.NoError(t, err)
	n, ok := initiator.TryRecv()
	require.True(t, ok)
	assert.Equal(t, nq.Notification{SessionID: 3, Payload: 9}, n)
	assert.Equal(t, Initiator, initiator.Role())

	_, err = Attach(make([]byte, size), Initiator, cfg, wakeResponder, wakeInitiator)
	require.ErrorIs(t, err, nq.ErrInvalidCapacity)
}
