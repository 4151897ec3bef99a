package main

import (
	"flag"
	"fmt"

	"github.com/shurlinet/meshnode/internal/daemon"
)

func runConnect(args []string) {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	peer := fs.String("peer", "", "node id to connect to")
	addr := fs.String("addr", "", "multiaddr to dial")
	persistent := fs.Bool("persistent", false, "reconnect automatically with exponential backoff")
	trusted := fs.Bool("trusted", false, "bypass the inbound connection rate limit for this address")
	fs.Parse(args)

	if *peer == "" || *addr == "" {
		fatal("usage: meshnoded connect --peer <node-id> --addr <multiaddr> [--persistent] [--trusted]")
	}

	c := daemonClient()
	if err := c.Connect(daemon.ConnectRequest{
		NodeID:     *peer,
		Address:    *addr,
		Persistent: *persistent,
		Trusted:    *trusted,
	}); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Connecting to %s at %s...\n", *peer, *addr)
}
