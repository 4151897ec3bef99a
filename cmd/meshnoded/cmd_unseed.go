package main

import "fmt"

func runUnseed(args []string) {
	if len(args) < 1 {
		fatal("usage: meshnoded unseed <rid>")
	}
	c := daemonClient()
	if err := c.Unseed(args[0]); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Unseeded %s\n", args[0])
}
