package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shurlinet/meshnode/internal/config"
	"github.com/shurlinet/meshnode/internal/identity"
)

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dirFlag := fs.String("dir", "", "config directory (default: ~/.config/meshnoded)")
	listenFlag := fs.String("listen", "/ip4/0.0.0.0/tcp/8776", "comma-separated listen multiaddrs")
	fs.Parse(args)

	fmt.Println("Welcome to meshnoded!")
	fmt.Println()

	configDir := *dirFlag
	if configDir == "" {
		d, err := config.DefaultConfigDir()
		if err != nil {
			fatal("cannot determine config directory: %v", err)
		}
		configDir = d
	}

	configFile := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		fatal("config already exists: %s\nDelete it first if you want to reinitialize", configFile)
	}

	fmt.Printf("Creating config directory: %s\n", configDir)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		fatal("failed to create directory: %v", err)
	}

	keyFile := filepath.Join(configDir, "identity.key")
	fmt.Println("Generating identity...")
	peerID, err := identity.PeerIDFromKeyFile(keyFile)
	if err != nil {
		fatal("failed to generate identity: %v", err)
	}
	fmt.Printf("Your node id: %s\n", peerID)
	fmt.Println()

	content := fmt.Sprintf(initConfigTemplate, *listenFlag)
	if err := os.WriteFile(configFile, []byte(content), 0600); err != nil {
		fatal("failed to write config: %v", err)
	}

	fmt.Printf("Config written to:   %s\n", configFile)
	fmt.Printf("Identity saved to:   %s\n", keyFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Start the node:     meshnoded daemon")
	fmt.Println("  2. Connect to a peer:  meshnoded connect --peer <id> --addr <multiaddr>")
}

const initConfigTemplate = `version: 1
alias: ""
relay: true

identity:
  key_file: identity.key

network:
  listen_addresses:
    - %s
  target_outbound: 8

peers: []

seeding: []

following: []

limits: {}

scheduling: {}

telemetry:
  metrics:
    enabled: false
    listen_address: "127.0.0.1:9090"

cli:
  allow_standalone: false
`
