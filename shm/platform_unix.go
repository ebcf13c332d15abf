//go:build linux || darwin || freebsd

package shm

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

func createRegion(path string, size int) (int, []byte, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return -1, nil, fmt.Errorf("shm: create %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return -1, nil, fmt.Errorf("shm: truncate %s to %d: %w", path, size, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return -1, nil, fmt.Errorf("shm: map %s: %w", path, err)
	}
	return fd, data, nil
}

func openRegion(path string, size int) (int, []byte, error) {
	if size < 0 {
		return -1, nil, fmt.Errorf("shm: invalid size %d", size)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	if size == 0 {
		size = int(st.Size)
	}
	if size == 0 || st.Size < int64(size) {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrTooSmall, path, st.Size, size)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return -1, nil, fmt.Errorf("shm: map %s: %w", path, err)
	}
	return fd, data, nil
}

func closeRegion(fd int, data []byte) error {
	return errors.Join(unix.Munmap(data), unix.Close(fd))
}

func unlink(path string) error {
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("shm: unlink %s: %w", path, err)
	}
	return nil
}

func mkfifo(path string) error {
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return fmt.Errorf("shm: mkfifo %s: %w", path, err)
	}
	return nil
}

// openFifo opens read-write so the open never blocks waiting for a peer and
// the pipe stays usable while the other side is absent.
func openFifo(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("shm: open event %s: %w", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("shm: stat event %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFIFO {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("shm: %s is not an event", path)
	}
	return fd, nil
}

func signalFifo(fd int) error {
	_, err := unix.Write(fd, []byte{1})
	if err == nil || errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return fmt.Errorf("shm: signal: %w", err)
}

func waitFifo(fd int, timeout time.Duration) error {
	ms := int(timeout / time.Millisecond)
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("shm: poll: %w", err)
	}
	if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
		return nil
	}
	return drainFifo(fd)
}

func drainFifo(fd int) error {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return nil
			}
			return fmt.Errorf("shm: drain: %w", err)
		}
		if n < len(buf) {
			return nil
		}
	}
}

func closeFd(fd int) error {
	return unix.Close(fd)
}
