// Command meshnoded runs a mesh collaboration node: a libp2p host
// driven by the single-threaded service in pkg/node, fronted by a
// Unix-socket control API (internal/daemon) for local tooling.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD)" -o meshnoded ./cmd/meshnoded
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "daemon", "serve":
		runDaemon(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "sessions":
		runSessions(os.Args[2:])
	case "connect":
		runConnect(os.Args[2:])
	case "disconnect":
		runDisconnect(os.Args[2:])
	case "fetch":
		runFetch(os.Args[2:])
	case "seed":
		runSeed(os.Args[2:])
	case "unseed":
		runUnseed(os.Args[2:])
	case "seeds":
		runSeeds(os.Args[2:])
	case "follow":
		runFollow(os.Args[2:])
	case "unfollow":
		runUnfollow(os.Args[2:])
	case "sync-status":
		runSyncStatus(os.Args[2:])
	case "config":
		runConfig(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("meshnoded %s (%s)\n", version, commit)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: meshnoded <command> [options]")
	fmt.Println()
	fmt.Println("  init                                    Generate identity and a starter config")
	fmt.Println("  daemon [--config path]                  Start the node in the foreground")
	fmt.Println("  status [--json]                         Query the running daemon")
	fmt.Println("  sessions [--json]                       List current peer sessions")
	fmt.Println("  connect --peer <id> --addr <multiaddr> [--persistent]")
	fmt.Println("  disconnect <node-id>")
	fmt.Println("  fetch --rid <rid> --from <node-id> [--timeout 9s]")
	fmt.Println("  seed --rid <rid> [--scope all|followed] [--preferred <id>,...]")
	fmt.Println("  unseed <rid>")
	fmt.Println("  seeds <rid>                             List known seeders for a repository")
	fmt.Println("  follow --peer <id> [--alias name]")
	fmt.Println("  unfollow <node-id>")
	fmt.Println("  sync-status <rid>")
	fmt.Println("  config show [--json]")
	fmt.Println("  version")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
