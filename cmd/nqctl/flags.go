package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// commonFlags returns the flags every command takes
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:     "name",
			Aliases:  []string{"n"},
			Usage:    "The channel name; the region and its events are named after it",
			EnvVars:  []string{"NQ_NAME"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "The directory holding shared-memory objects (default: $NQ_SHM_DIR or /dev/shm)",
		},
	}
}

// createFlags returns the flags for the create command
func createFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.UintFlag{
			Name:    "capacity",
			Aliases: []string{"c"},
			Usage:   "Records per direction, a power of two in [1, 64] (default: $NQ_CAPACITY or 16)",
		},
	)
}

// endpointFlags returns the flags for commands that attach to a channel
func endpointFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.StringFlag{
			Name:    "role",
			Aliases: []string{"r"},
			Usage:   "The side to play: initiator or responder",
			EnvVars: []string{"NQ_ROLE"},
			Value:   "responder",
		},
		&cli.StringFlag{
			Name:  "full-policy",
			Usage: "What to do when the outbound queue is full: retry, drop or fail (default: $NQ_FULL_POLICY or retry)",
		},
		&cli.DurationFlag{
			Name:    "connect-timeout",
			Usage:   "How long to wait for the channel to be created",
			EnvVars: []string{"NQ_CONNECT_TIMEOUT"},
			Value:   0,
		},
		&cli.DurationFlag{
			Name:  "wait-timeout",
			Usage: "Longest single sleep on the wake event (default: $NQ_WAIT_TIMEOUT or 100ms)",
		},
	)
}

// listenFlags returns the flags for the listen command
func listenFlags() []cli.Flag {
	return append(endpointFlags(),
		&cli.IntSliceFlag{
			Name:    "session",
			Aliases: []string{"s"},
			Usage:   "Session id to open; may be repeated",
			EnvVars: []string{"NQ_SESSIONS"},
		},
		&cli.BoolFlag{
			Name:    "reject-unknown",
			Usage:   "Answer signals for unknown or terminated sessions with a termination code",
			EnvVars: []string{"NQ_REJECT_UNKNOWN"},
		},
		&cli.BoolFlag{
			Name:    "echo",
			Usage:   "Answer every data signal on an open session with a data signal",
			EnvVars: []string{"NQ_ECHO"},
		},
		&cli.IntFlag{
			Name:    "sender-backlog",
			Usage:   "Outbound notifications buffered for the sender goroutine",
			EnvVars: []string{"NQ_SENDER_BACKLOG"},
			Value:   256,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port for Prometheus metrics server, 0 disables it",
			EnvVars: []string{"METRICS_PORT"},
			Value:   0,
		},
	)
}

// sendFlags returns the flags for the send command
func sendFlags() []cli.Flag {
	return append(endpointFlags(),
		&cli.Int64Flag{
			Name:     "session",
			Aliases:  []string{"s"},
			Usage:    "The session id to address",
			Required: true,
		},
		&cli.Int64Flag{
			Name:    "payload",
			Aliases: []string{"p"},
			Usage:   "The payload: 0 signals data, >0 is an exit code, <0 a termination reason",
			Value:   0,
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "How long to wait for queue space under the retry policy",
			Value:   5 * time.Second,
		},
	)
}
