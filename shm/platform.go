// Package shm maps named shared-memory regions and the wake events that go
// with them.
//
// A region is a file under a directory such as /dev/shm mapped shared into
// every process that opens it. An Event is a named FIFO: Signal writes one
// byte, Wait polls for it. Both are identified by a directory and a name so
// two unrelated processes can rendezvous without any other channel.
package shm

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupported is returned on platforms without a shared-memory implementation.
	ErrUnsupported = errors.New("shm: unsupported platform")
	// ErrInvalidName is returned for an empty name or one containing a path separator.
	ErrInvalidName = errors.New("shm: invalid name")
	// ErrTooSmall is returned by Open when the backing file is smaller than requested.
	ErrTooSmall = errors.New("shm: region smaller than requested (creator still initialising?)")
)

func objectPath(dir, name string) (string, error) {
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(dir, name), nil
}

// Region is a mapped shared-memory region.
type Region struct {
	name string
	path string
	fd   int
	data []byte
}

// Create creates the named region exclusively, sizes it and maps it.
func Create(dir, name string, size int) (*Region, error) {
	path, err := objectPath(dir, name)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid size %d", size)
	}
	fd, data, err := createRegion(path, size)
	if err != nil {
		return nil, err
	}
	Debugw("created region", "path", path, "size", size)
	return &Region{name: name, path: path, fd: fd, data: data}, nil
}

// Open maps an existing region. A size of zero maps the whole file.
func Open(dir, name string, size int) (*Region, error) {
	path, err := objectPath(dir, name)
	if err != nil {
		return nil, err
	}
	fd, data, err := openRegion(path, size)
	if err != nil {
		return nil, err
	}
	Debugw("opened region", "path", path, "size", len(data))
	return &Region{name: name, path: path, fd: fd, data: data}, nil
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// Size returns the mapped size in bytes.
func (r *Region) Size() int { return len(r.data) }

// Bytes returns the mapped memory. It is invalid after Close.
func (r *Region) Bytes() []byte { return r.data }

// Close unmaps the region and closes its descriptor. The backing object
// stays until Unlink.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := closeRegion(r.fd, r.data)
	r.data = nil
	Debugw("closed region", "path", r.path)
	return err
}

// Unlink removes the named region. Existing mappings stay valid.
func Unlink(dir, name string) error {
	path, err := objectPath(dir, name)
	if err != nil {
		return err
	}
	return unlink(path)
}
