package main

import "fmt"

func runUnfollow(args []string) {
	if len(args) < 1 {
		fatal("usage: meshnoded unfollow <node-id>")
	}
	c := daemonClient()
	if err := c.Unfollow(args[0]); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Unfollowed %s\n", args[0])
}
