package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func runSeeds(args []string) {
	fs := flag.NewFlagSet("seeds", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fatal("usage: meshnoded seeds [--json] <rid>")
	}

	c := daemonClient()
	resp, err := c.SeedsFor(remaining[0])
	if err != nil {
		fatal("%v", err)
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
		return
	}

	if len(resp.Seeds) == 0 {
		fmt.Printf("No known seeders for %s\n", resp.Rid)
		return
	}
	for _, s := range resp.Seeds {
		fmt.Println(s)
	}
}
