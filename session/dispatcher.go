package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Hemn77/tee-mobicore-driver/internal/metrics"
	"github.com/Hemn77/tee-mobicore-driver/nq"
)

// Receiver is the inbound side of a channel.
type Receiver interface {
	Recv(ctx context.Context) (nq.Notification, error)
}

// ControlHandler handles notifications on the control-plane session.
type ControlHandler func(n nq.Notification)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics records dispatch activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithControlHandler routes control-plane notifications to h.
func WithControlHandler(h ControlHandler) Option {
	return func(d *Dispatcher) { d.control = h }
}

// WithRejectUnknown answers data signals for unknown sessions with
// PayloadInvalidSID and for terminated sessions with PayloadSIDNotActive.
func WithRejectUnknown(reject bool) Option {
	return func(d *Dispatcher) { d.rejectUnknown = reject }
}

// Dispatcher routes inbound notifications to sessions.
type Dispatcher struct {
	in     Receiver
	sender *Sender

	mu       sync.Mutex
	sessions map[nq.SessionID]*Session

	log           *zap.SugaredLogger
	metrics       *metrics.Metrics
	control       ControlHandler
	rejectUnknown bool
}

// NewDispatcher creates a dispatcher reading from in. Replies and
// Session.Notify go through sender.
func NewDispatcher(in Receiver, sender *Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		in:       in,
		sender:   sender,
		sessions: make(map[nq.SessionID]*Session),
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open registers a session.
func (d *Dispatcher) Open(id nq.SessionID) (*Session, error) {
	if id == nq.SessionInvalid || id == nq.SessionMCP {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSession, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrExists, id)
	}
	s := newSession(id, d)
	d.sessions[id] = s
	d.metrics.SetOpenSessions(len(d.sessions))
	d.log.Debugw("session opened", "session", id)
	return s, nil
}

// Close unregisters a session. Later notifications for it are treated as
// addressed to an unknown session.
func (d *Dispatcher) Close(id nq.SessionID) error {
	d.mu.Lock()
	s, ok := d.sessions[id]
	if ok {
		delete(d.sessions, id)
		d.metrics.SetOpenSessions(len(d.sessions))
	}
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknown, id)
	}
	close(s.closed)
	d.log.Debugw("session closed", "session", id)
	return nil
}

// Session looks up a registered session.
func (d *Dispatcher) Session(id nq.SessionID) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	return s, ok
}

// Len returns the number of registered sessions.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// Run receives and dispatches notifications until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Infow("dispatcher started", "reject_unknown", d.rejectUnknown)
	defer d.log.Infow("dispatcher stopped")

	for {
		n, err := d.in.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive notification: %w", err)
		}
		d.dispatch(n)
	}
}

func (d *Dispatcher) dispatch(n nq.Notification) {
	if n.SessionID == nq.SessionMCP {
		d.metrics.IncControlPlane()
		if d.control != nil {
			d.control(n)
			return
		}
		d.log.Infow("control notification", "payload", n.Payload)
		return
	}

	s, ok := d.Session(n.SessionID)
	switch {
	case !ok:
		d.metrics.IncUnknownSession()
		d.log.Warnw("notification for unknown session", "session", n.SessionID, "payload", n.Payload)
		if n.SessionID != nq.SessionInvalid {
			d.reject(n, nq.PayloadInvalidSID)
		}
	case !s.Active():
		d.metrics.IncInactiveSession()
		d.log.Warnw("notification for inactive session", "session", n.SessionID, "payload", n.Payload)
		d.reject(n, nq.PayloadSIDNotActive)
	default:
		ev := Event{Session: n.SessionID, Kind: n.Payload.Kind(), Code: n.Payload}
		d.metrics.IncDispatched(ev.Kind.String())
		if ev.Kind == nq.KindUnknownTermination {
			d.log.Warnw("unknown termination reason", "session", n.SessionID, "payload", n.Payload)
		}
		s.deliver(ev)
		if ev.Terminal() {
			d.log.Infow("session terminated", "session", n.SessionID, "reason", n.Payload)
		}
	}
}

// reject answers a data signal only, so two rejecting peers never bounce
// termination codes back and forth.
func (d *Dispatcher) reject(n nq.Notification, reason nq.Payload) {
	if !d.rejectUnknown || n.Payload != nq.PayloadNotify {
		return
	}
	if err := d.sender.Post(n.SessionID, reason); err != nil {
		d.log.Errorw("failed to answer notification", "session", n.SessionID, "reason", reason, "error", err)
	}
}
