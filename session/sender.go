package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Hemn77/tee-mobicore-driver/internal/metrics"
	"github.com/Hemn77/tee-mobicore-driver/nq"
)

// DefaultBacklog is the number of notifications a Sender buffers.
const DefaultBacklog = 256

var (
	// ErrBacklogFull is returned by Post when the sender cannot take more work.
	ErrBacklogFull = errors.New("session: sender backlog full")
	// ErrSenderStopped is returned for notifications the sender will never send.
	ErrSenderStopped = errors.New("session: sender stopped")
)

// Transmitter is the outbound side of a channel.
type Transmitter interface {
	Send(ctx context.Context, sid nq.SessionID, payload nq.Payload) error
}

type request struct {
	n    nq.Notification
	errc chan error // nil for fire-and-forget
}

// Sender serialises outbound notifications from any number of goroutines
// onto a single-producer channel with one dedicated writer goroutine.
type Sender struct {
	out  Transmitter
	reqs chan request
	done chan struct{}

	mu        sync.RWMutex
	stopped   bool
	enqueuing sync.WaitGroup

	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewSender creates a sender writing to out. A backlog of zero or less uses
// DefaultBacklog. log and m may be nil.
func NewSender(out Transmitter, backlog int, log *zap.SugaredLogger, m *metrics.Metrics) *Sender {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Sender{
		out:     out,
		reqs:    make(chan request, backlog),
		done:    make(chan struct{}),
		log:     log,
		metrics: m,
	}
}

// Run is the writer loop. It returns when ctx is done; notifications still
// queued fail with ErrSenderStopped. Run must be called once.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.stop()
			return nil
		case req := <-s.reqs:
			s.metrics.SetSenderBacklog(len(s.reqs))
			err := s.out.Send(ctx, req.n.SessionID, req.n.Payload)
			if err != nil {
				s.metrics.IncSenderErrors()
				if req.errc == nil {
					s.log.Errorw("failed to send notification", "notification", req.n, "error", err)
				}
			}
			if req.errc != nil {
				req.errc <- err
			}
		}
	}
}

// stop refuses new requests, waits for callers that are already enqueuing
// and then fails whatever is left in the backlog.
func (s *Sender) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	close(s.done)
	s.enqueuing.Wait()
	s.drain()
}

func (s *Sender) drain() {
	for {
		select {
		case req := <-s.reqs:
			if req.errc != nil {
				req.errc <- ErrSenderStopped
			} else {
				s.log.Warnw("dropped notification, sender stopped", "notification", req.n)
			}
		default:
			s.metrics.SetSenderBacklog(0)
			return
		}
	}
}

// enqueue puts req on the backlog. With wait unset it fails with
// ErrBacklogFull instead of blocking.
func (s *Sender) enqueue(ctx context.Context, req request, wait bool) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrSenderStopped
	}
	s.enqueuing.Add(1)
	s.mu.RUnlock()
	defer s.enqueuing.Done()

	if wait {
		select {
		case s.reqs <- req:
		case <-s.done:
			return ErrSenderStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		select {
		case s.reqs <- req:
		default:
			return ErrBacklogFull
		}
	}
	s.metrics.SetSenderBacklog(len(s.reqs))
	return nil
}

// Send queues a notification and waits until it is in the outbound queue.
func (s *Sender) Send(ctx context.Context, sid nq.SessionID, payload nq.Payload) error {
	req := request{n: nq.Notification{SessionID: sid, Payload: payload}, errc: make(chan error, 1)}
	if err := s.enqueue(ctx, req, true); err != nil {
		return err
	}

	select {
	case err := <-req.errc:
		return wrapSendErr(req.n, err)
	case <-s.done:
		// Requests are either answered before done closes or drained after.
		select {
		case err := <-req.errc:
			return wrapSendErr(req.n, err)
		default:
			return ErrSenderStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wrapSendErr(n nq.Notification, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("send %s: %w", n, err)
}

// Post queues a notification without waiting for it to be sent. Failures
// are logged by the writer loop.
func (s *Sender) Post(sid nq.SessionID, payload nq.Payload) error {
	return s.enqueue(context.Background(), request{n: nq.Notification{SessionID: sid, Payload: payload}}, false)
}
