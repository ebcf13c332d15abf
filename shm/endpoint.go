package shm

import (
	"errors"
	"fmt"
)

// Endpoint is a named channel region together with one wake event per queue
// in it. Event i is signalled by the producer of queue i and waited on by its
// consumer.
type Endpoint struct {
	Region *Region
	Events [2]*Event
}

// EventName returns the name of the wake event for queue i of region name.
func EventName(name string, i int) string {
	return fmt.Sprintf("%s.ev%d", name, i)
}

// CreateEndpoint creates the region and both events. Anything created before
// a failure is removed again.
func CreateEndpoint(dir, name string, size int) (*Endpoint, error) {
	r, err := Create(dir, name, size)
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{Region: r}
	for i := range ep.Events {
		ev, err := CreateEvent(dir, EventName(name, i))
		if err != nil {
			_ = ep.Close()
			_ = Unlink(dir, name)
			for j := 0; j < i; j++ {
				_ = UnlinkEvent(dir, EventName(name, j))
			}
			return nil, err
		}
		ep.Events[i] = ev
	}
	return ep, nil
}

// OpenEndpoint opens an existing region and its events. A size of zero maps
// the whole region.
func OpenEndpoint(dir, name string, size int) (*Endpoint, error) {
	r, err := Open(dir, name, size)
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{Region: r}
	for i := range ep.Events {
		ev, err := OpenEvent(dir, EventName(name, i))
		if err != nil {
			_ = ep.Close()
			return nil, err
		}
		ep.Events[i] = ev
	}
	return ep, nil
}

// Close releases the mapping and the event descriptors.
func (e *Endpoint) Close() error {
	var errs []error
	for _, ev := range e.Events {
		if ev != nil {
			errs = append(errs, ev.Close())
		}
	}
	if e.Region != nil {
		errs = append(errs, e.Region.Close())
	}
	return errors.Join(errs...)
}

// RemoveEndpoint unlinks the region and both events.
func RemoveEndpoint(dir, name string) error {
	errs := []error{Unlink(dir, name)}
	for i := 0; i < 2; i++ {
		errs = append(errs, UnlinkEvent(dir, EventName(name, i)))
	}
	return errors.Join(errs...)
}
