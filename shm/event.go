package shm

import "time"

// Event is a named, edge-coalesced wake signal shared between processes.
//
// Exactly one process should Wait on a given event; any number may Signal.
type Event struct {
	name string
	path string
	fd   int
}

// CreateEvent creates a new named event and opens it.
func CreateEvent(dir, name string) (*Event, error) {
	path, err := objectPath(dir, name)
	if err != nil {
		return nil, err
	}
	if err := mkfifo(path); err != nil {
		return nil, err
	}
	fd, err := openFifo(path)
	if err != nil {
		_ = unlink(path)
		return nil, err
	}
	Debugw("created event", "path", path)
	return &Event{name: name, path: path, fd: fd}, nil
}

// OpenEvent opens an existing named event.
func OpenEvent(dir, name string) (*Event, error) {
	path, err := objectPath(dir, name)
	if err != nil {
		return nil, err
	}
	fd, err := openFifo(path)
	if err != nil {
		return nil, err
	}
	Debugw("opened event", "path", path)
	return &Event{name: name, path: path, fd: fd}, nil
}

// Name returns the event name.
func (e *Event) Name() string { return e.name }

// Signal wakes the waiter. It never blocks; a signal that is already
// pending absorbs this one.
func (e *Event) Signal() error {
	return signalFifo(e.fd)
}

// Wait blocks until the event is signalled or timeout elapses, then consumes
// every pending signal.
func (e *Event) Wait(timeout time.Duration) error {
	return waitFifo(e.fd, timeout)
}

// Close releases the event descriptor.
func (e *Event) Close() error {
	if e.fd < 0 {
		return nil
	}
	err := closeFd(e.fd)
	e.fd = -1
	return err
}

// UnlinkEvent removes the named event.
func UnlinkEvent(dir, name string) error {
	path, err := objectPath(dir, name)
	if err != nil {
		return err
	}
	return unlink(path)
}
