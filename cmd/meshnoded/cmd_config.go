package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

func runConfig(args []string) {
	if len(args) < 1 || args[0] != "show" {
		fatal("usage: meshnoded config show [--json]")
	}
	jsonFlag := false
	for _, a := range args[1:] {
		if a == "--json" {
			jsonFlag = true
		}
	}

	c := daemonClient()
	raw, err := c.Config()
	if err != nil {
		fatal("%v", err)
	}

	if jsonFlag {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			fmt.Println(string(raw))
			return
		}
		fmt.Println(buf.String())
		return
	}
	os.Stdout.Write(raw)
	fmt.Println()
}
