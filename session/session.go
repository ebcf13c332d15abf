// Package session interprets notification payloads on behalf of the
// sessions sharing a channel.
//
// A Dispatcher owns the inbound side of a channel. It routes every
// notification to the Session it is addressed to, answers notifications for
// sessions it does not know, and hands control-plane traffic to a separate
// handler. A Sender owns the outbound side so that any number of goroutines
// can notify through the single-producer queue.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Hemn77/tee-mobicore-driver/nq"
)

var (
	// ErrClosed is returned by a Session that has been closed locally.
	ErrClosed = errors.New("session: closed")
	// ErrNotActive is returned when notifying a session the peer has terminated.
	ErrNotActive = errors.New("session: not active")
	// ErrInvalidSession is returned by Open for SessionInvalid and the reserved control-plane session.
	ErrInvalidSession = errors.New("session: invalid session id")
	// ErrExists is returned by Open for a session that is already registered.
	ErrExists = errors.New("session: already open")
	// ErrUnknown is returned by Close for a session that is not registered.
	ErrUnknown = errors.New("session: unknown session")
)

// Event is one interpreted notification for a session.
type Event struct {
	Session nq.SessionID
	Kind    nq.PayloadKind
	Code    nq.Payload
}

func (e Event) String() string {
	return fmt.Sprintf("session=%d kind=%s code=%s", e.Session, e.Kind, e.Code)
}

// Terminal reports whether the event ends the session.
func (e Event) Terminal() bool {
	return e.Code.Terminal()
}

// Session is the local end of one session.
//
// Data signals are coalesced: several signals arriving before Wait are
// reported once, since they all mean "look at the buffer". The terminating
// event is sticky and returned by every Wait after it arrived.
type Session struct {
	id nq.SessionID
	d  *Dispatcher

	active     atomic.Bool
	signal     chan struct{}
	final      Event
	terminated chan struct{}
	closed     chan struct{}
}

func newSession(id nq.SessionID, d *Dispatcher) *Session {
	s := &Session{
		id:         id,
		d:          d,
		signal:     make(chan struct{}, 1),
		terminated: make(chan struct{}),
		closed:     make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

// ID returns the session id.
func (s *Session) ID() nq.SessionID { return s.id }

// Active reports whether the peer has not terminated the session yet.
func (s *Session) Active() bool { return s.active.Load() }

// Wait returns the next event for the session. Pending data signals are
// reported before the terminating event.
func (s *Session) Wait(ctx context.Context) (Event, error) {
	select {
	case <-s.signal:
		return s.signalEvent(), nil
	default:
	}
	select {
	case <-s.signal:
		return s.signalEvent(), nil
	case <-s.terminated:
		return s.final, nil
	case <-s.closed:
		return Event{}, ErrClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Notify tells the peer that the session's data buffer has new content.
func (s *Session) Notify(ctx context.Context) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	if !s.Active() {
		return ErrNotActive
	}
	return s.d.sender.Send(ctx, s.id, nq.PayloadNotify)
}

// Close unregisters the session from its dispatcher.
func (s *Session) Close() error {
	return s.d.Close(s.id)
}

func (s *Session) signalEvent() Event {
	return Event{Session: s.id, Kind: nq.KindSignal, Code: nq.PayloadNotify}
}

// deliver is called from the dispatch loop only.
func (s *Session) deliver(ev Event) {
	if !ev.Terminal() {
		select {
		case s.signal <- struct{}{}:
		default:
		}
		return
	}
	s.final = ev
	s.active.Store(false)
	close(s.terminated)
}
