package main

import "fmt"

func runDisconnect(args []string) {
	if len(args) < 1 {
		fatal("usage: meshnoded disconnect <node-id>")
	}
	c := daemonClient()
	if err := c.Disconnect(args[0]); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Disconnected %s\n", args[0])
}
