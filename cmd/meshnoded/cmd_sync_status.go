package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func runSyncStatus(args []string) {
	fs := flag.NewFlagSet("sync-status", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fatal("usage: meshnoded sync-status [--json] <rid>")
	}

	c := daemonClient()
	resp, err := c.SyncStatus(remaining[0])
	if err != nil {
		fatal("%v", err)
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
		return
	}
	fmt.Printf("%s: %s\n", resp.Rid, resp.Status)
}
