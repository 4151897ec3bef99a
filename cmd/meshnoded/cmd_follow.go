package main

import (
	"flag"
	"fmt"

	"github.com/shurlinet/meshnode/internal/daemon"
)

func runFollow(args []string) {
	fs := flag.NewFlagSet("follow", flag.ExitOnError)
	peer := fs.String("peer", "", "node id to follow")
	alias := fs.String("alias", "", "human-readable alias for this node")
	fs.Parse(args)

	if *peer == "" {
		fatal("usage: meshnoded follow --peer <node-id> [--alias name]")
	}

	c := daemonClient()
	if err := c.Follow(daemon.FollowRequest{NodeID: *peer, Alias: *alias}); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Following %s\n", *peer)
}
