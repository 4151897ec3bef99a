package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	c := daemonClient()
	resp, err := c.Status()
	if err != nil {
		fatal("%v", err)
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
		return
	}

	fmt.Printf("Node id:   %s\n", resp.NodeID)
	fmt.Printf("Alias:     %s\n", resp.Alias)
	fmt.Printf("Version:   %s\n", resp.Version)
	fmt.Printf("Uptime:    %s\n", (time.Duration(resp.UptimeSeconds) * time.Second).String())
	fmt.Println("Listening:")
	for _, a := range resp.ListenAddrs {
		fmt.Printf("  %s\n", a)
	}
}
