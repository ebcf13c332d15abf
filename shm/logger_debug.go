//go:build shm_debug

package shm

import "go.uber.org/zap"

var defaultLogger = zap.Must(zap.NewDevelopment()).Sugar().Named("shm")

// SetLogger sets the logger for the shm package.
func SetLogger(l *zap.SugaredLogger) {
	defaultLogger = l
}

// Debugw logs a message with key-value pairs at Debug level.
func Debugw(msg string, kv ...any) {
	defaultLogger.Debugw(msg, kv...)
}

// Infow logs a message with key-value pairs at Info level.
func Infow(msg string, kv ...any) {
	defaultLogger.Infow(msg, kv...)
}
