package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func runSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	c := daemonClient()
	sessions, err := c.Sessions()
	if err != nil {
		fatal("%v", err)
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(sessions)
		return
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions.")
		return
	}
	fmt.Printf("%-56s %-5s %-10s %-11s %s\n", "NODE ID", "LINK", "STATE", "PERSISTENT", "ADDRESS")
	for _, s := range sessions {
		fmt.Printf("%-56s %-5s %-10s %-11v %s\n", s.NodeID, s.Direction, s.State, s.Persistent, s.Address)
	}
}
