package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "nqctl",
		Usage: "Create, drive and inspect shared-memory notification channels",
		Commands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Create a channel region and its wake events, initialised as initiator",
				Flags:  createFlags(),
				Action: create,
			},
			{
				Name:   "listen",
				Usage:  "Attach to a channel and dispatch inbound notifications to sessions",
				Flags:  listenFlags(),
				Action: listen,
			},
			{
				Name:   "send",
				Usage:  "Send one notification to the peer",
				Flags:  sendFlags(),
				Action: send,
			},
			{
				Name:   "inspect",
				Usage:  "Print both queue headers of a channel",
				Flags:  commonFlags(),
				Action: inspect,
			},
			{
				Name:   "unlink",
				Usage:  "Remove a channel region and its wake events",
				Flags:  commonFlags(),
				Action: unlink,
			},
		},
	}
}
