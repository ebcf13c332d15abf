//go:build !(linux || darwin || freebsd)

package shm

import "time"

func createRegion(string, int) (int, []byte, error) { return -1, nil, ErrUnsupported }

func openRegion(string, int) (int, []byte, error) { return -1, nil, ErrUnsupported }

func closeRegion(int, []byte) error { return ErrUnsupported }

func unlink(string) error { return ErrUnsupported }

func mkfifo(string) error { return ErrUnsupported }

func openFifo(string) (int, error) { return -1, ErrUnsupported }

func signalFifo(int) error { return ErrUnsupported }

func waitFifo(int, time.Duration) error { return ErrUnsupported }

func closeFd(int) error { return ErrUnsupported }
