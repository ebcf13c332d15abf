//go:build !shm_debug

package shm

import "go.uber.org/zap"

// SetLogger sets the logger for the shm package.
// Without the shm_debug build tag it does nothing.
func SetLogger(*zap.SugaredLogger) {}

// Debugw is a no-op without the shm_debug build tag.
func Debugw(string, ...any) {}

// Infow is a no-op without the shm_debug build tag.
func Infow(string, ...any) {}
