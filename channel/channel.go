package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hemn77/tee-mobicore-driver/internal/metrics"
	"github.com/Hemn77/tee-mobicore-driver/nq"
)

var (
	// ErrDropped is returned by Send under PolicyDrop when the queue is full.
	ErrDropped = errors.New("channel: notification dropped, queue full")
	// ErrSignal is returned when a notification was queued but waking the peer failed.
	ErrSignal = errors.New("channel: notification queued, peer wake failed")
)

// retryInterval is the pause between enqueue attempts under PolicyRetry.
const retryInterval = time.Millisecond

// Direction names one of the two queues of a channel region.
type Direction int

const (
	// InitiatorToResponder is the first queue in the region.
	InitiatorToResponder Direction = 0
	// ResponderToInitiator is the second queue in the region.
	ResponderToInitiator Direction = 1
)

func (d Direction) String() string {
	switch d {
	case InitiatorToResponder:
		return "i2r"
	case ResponderToInitiator:
		return "r2i"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Role is the side of the channel a process plays.
type Role int

const (
	// Initiator establishes the channel and initialises both queues.
	Initiator Role = iota
	// Responder attaches to queues set up by the initiator.
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// ParseRole parses "initiator" or "responder".
func ParseRole(s string) (Role, error) {
	switch s {
	case "initiator":
		return Initiator, nil
	case "responder":
		return Responder, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Outbound is the direction this role produces into.
func (r Role) Outbound() Direction {
	if r == Initiator {
		return InitiatorToResponder
	}
	return ResponderToInitiator
}

// Inbound is the direction this role consumes from.
func (r Role) Inbound() Direction {
	if r == Initiator {
		return ResponderToInitiator
	}
	return InitiatorToResponder
}

// RegionSize returns the size of a channel region: two queues of the given
// capacity laid out back to back.
func RegionSize(capacity uint32) (int, error) {
	size, err := nq.RegionSize(capacity)
	if err != nil {
		return 0, err
	}
	return 2 * size, nil
}

// Queues attaches to both queues of an initialised channel region, in
// Direction order.
func Queues(region []byte) (i2r, r2i *nq.Queue, err error) {
	i2r, err = nq.Attach(region)
	if err != nil {
		return nil, nil, fmt.Errorf("attach %s queue: %w", InitiatorToResponder, err)
	}
	size, err := nq.RegionSize(uint32(i2r.Cap()))
	if err != nil {
		return nil, nil, err
	}
	r2i, err = nq.Attach(region[size:])
	if err != nil {
		return nil, nil, fmt.Errorf("attach %s queue: %w", ResponderToInitiator, err)
	}
	if r2i.Cap() != i2r.Cap() {
		return nil, nil, fmt.Errorf("%w: queue capacities differ (%d, %d)", nq.ErrCorrupt, i2r.Cap(), r2i.Cap())
	}
	return i2r, r2i, nil
}

// Init initialises both queues of a channel region.
func Init(region []byte, capacity uint32) (i2r, r2i *nq.Queue, err error) {
	size, err := RegionSize(capacity)
	if err != nil {
		return nil, nil, err
	}
	if len(region) < size {
		return nil, nil, fmt.Errorf("%w: need %d bytes, have %d", nq.ErrRegionSize, size, len(region))
	}
	half := size / 2
	if i2r, err = nq.New(region[:half], capacity); err != nil {
		return nil, nil, err
	}
	if r2i, err = nq.New(region[half:size], capacity); err != nil {
		return nil, nil, err
	}
	return i2r, r2i, nil
}

// Option configures a Channel.
type Option func(*Channel)

// WithMetrics records queue activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithWaitStrategy replaces the receive spin strategy.
func WithWaitStrategy(ws *WaitStrategy) Option {
	return func(c *Channel) { c.recvWait = ws }
}

// Channel is one side of a bidirectional notification channel.
//
// Send must be called by one goroutine at a time, and so must Recv and
// TryRecv; the two sides may run concurrently.
type Channel struct {
	role   Role
	out    *nq.Queue
	in     *nq.Queue
	outSig Signaler
	inSig  Signaler

	policy      FullPolicy
	waitTimeout time.Duration
	recvWait    *WaitStrategy
	sendWait    *WaitStrategy
	metrics     *metrics.Metrics
}

// New builds one side of a channel over region.
//
// An Initiator initialises both queues with cfg.Capacity; a Responder attaches
// and takes the capacity from the region. out wakes the peer after a send and
// in is the signal this side sleeps on while its inbound queue is empty.
func New(region []byte, role Role, cfg Config, out, in Signaler, opts ...Option) (*Channel, error) {
	return build(region, role, cfg, out, in, role == Initiator, opts)
}

// Attach builds one side of a channel over a region that is already
// initialised, whichever role it plays. The queues keep their contents.
func Attach(region []byte, role Role, cfg Config, out, in Signaler, opts ...Option) (*Channel, error) {
	return build(region, role, cfg, out, in, false, opts)
}

func build(region []byte, role Role, cfg Config, out, in Signaler, initialise bool, opts []Option) (*Channel, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var i2r, r2i *nq.Queue
	var err error
	if initialise {
		i2r, r2i, err = Init(region, cfg.Capacity)
	} else {
		i2r, r2i, err = Queues(region)
	}
	if err != nil {
		return nil, err
	}

	c := &Channel{
		role:        role,
		outSig:      out,
		inSig:       in,
		policy:      cfg.FullPolicy,
		waitTimeout: cfg.WaitTimeout,
		recvWait:    NewWaitStrategy(),
		sendWait:    NewWaitStrategy(),
	}
	if role == Initiator {
		c.out, c.in = i2r, r2i
	} else {
		c.out, c.in = r2i, i2r
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Role returns the side this channel plays.
func (c *Channel) Role() Role { return c.role }

// Outbound returns the queue this side produces into.
func (c *Channel) Outbound() *nq.Queue { return c.out }

// Inbound returns the queue this side consumes from.
func (c *Channel) Inbound() *nq.Queue { return c.in }

// TrySend enqueues one notification and wakes the peer. It returns
// nq.ErrQueueFull immediately when there is no room.
func (c *Channel) TrySend(sid nq.SessionID, payload nq.Payload) error {
	dir := c.role.Outbound().String()
	if err := c.out.Enqueue(sid, payload); err != nil {
		if errors.Is(err, nq.ErrQueueFull) {
			c.metrics.IncQueueFull(dir)
		}
		return err
	}
	c.metrics.RecordEnqueue(dir, c.out.Len())

	err := c.outSig.Signal()
	c.metrics.RecordSignal(dir, err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignal, err)
	}
	return nil
}

// Send enqueues one notification, applying the configured FullPolicy when
// the outbound queue is full, and wakes the peer.
func (c *Channel) Send(ctx context.Context, sid nq.SessionID, payload nq.Payload) error {
	for {
		err := c.TrySend(sid, payload)
		if !errors.Is(err, nq.ErrQueueFull) {
			return err
		}

		switch c.policy {
		case PolicyDrop:
			c.metrics.IncDropped(c.role.Outbound().String())
			return ErrDropped
		case PolicyFail:
			return err
		}

		c.sendWait.Wait(func() bool { return !c.out.IsFull() }, func() {
			t := time.NewTimer(retryInterval)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		})
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for queue space: %w", err)
		}
	}
}

// TryRecv dequeues one notification without waiting.
func (c *Channel) TryRecv() (nq.Notification, bool) {
	n, ok := c.in.Dequeue()
	if ok {
		c.metrics.RecordDequeue(c.role.Inbound().String(), c.in.Len())
	}
	return n, ok
}

// Recv returns the next inbound notification, spinning briefly and then
// sleeping on the inbound signal until one arrives or ctx is done.
func (c *Channel) Recv(ctx context.Context) (nq.Notification, error) {
	if n, ok := c.TryRecv(); ok {
		return n, nil
	}

	start := time.Now()
	var (
		n       nq.Notification
		waitErr error
	)
	for {
		if err := ctx.Err(); err != nil {
			return nq.Notification{}, err
		}
		ok := c.recvWait.Wait(func() bool {
			var ok bool
			n, ok = c.TryRecv()
			return ok
		}, func() {
			waitErr = sleepFor(ctx, c.inSig, c.waitTimeout)
		})
		if ok {
			c.metrics.ObserveRecvWait(time.Since(start).Seconds())
			return n, nil
		}
		if waitErr != nil && ctx.Err() == nil {
			return nq.Notification{}, fmt.Errorf("waiting for peer signal: %w", waitErr)
		}
	}
}
