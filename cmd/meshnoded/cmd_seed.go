package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/shurlinet/meshnode/internal/daemon"
)

func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	rid := fs.String("rid", "", "repository id to seed")
	scope := fs.String("scope", "all", "namespace scope: all or followed")
	preferred := fs.String("preferred", "", "comma-separated node ids preferred as fetch sources")
	fs.Parse(args)

	if *rid == "" {
		fatal("usage: meshnoded seed --rid <rid> [--scope all|followed] [--preferred <id>,...]")
	}

	var pref []string
	if *preferred != "" {
		pref = strings.Split(*preferred, ",")
	}

	c := daemonClient()
	if err := c.Seed(daemon.SeedRequest{Rid: *rid, Scope: *scope, Preferred: pref}); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Seeding %s (scope: %s)\n", *rid, *scope)
}
