package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/shurlinet/meshnode/internal/daemon"
)

func runFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	rid := fs.String("rid", "", "repository id to fetch")
	from := fs.String("from", "", "node id to fetch from")
	timeoutStr := fs.String("timeout", "9s", "fetch timeout")
	fs.Parse(args)

	if *rid == "" || *from == "" {
		fatal("usage: meshnoded fetch --rid <rid> --from <node-id> [--timeout 9s]")
	}
	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		fatal("invalid timeout %q: %v", *timeoutStr, err)
	}

	c := daemonClient()
	resp, err := c.Fetch(daemon.FetchRequest{Rid: *rid, From: *from, TimeoutMs: int(timeout.Milliseconds())})
	if err != nil {
		fatal("%v", err)
	}
	if !resp.Ok {
		fatal("fetch failed: %s", resp.Error)
	}
	fmt.Printf("Fetched %s from %s: %d ref(s) updated\n", resp.Rid, resp.From, resp.RefTips)
}
