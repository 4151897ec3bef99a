package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/shurlinet/meshnode/internal/config"
	"github.com/shurlinet/meshnode/internal/daemon"
	"github.com/shurlinet/meshnode/internal/identity"
	"github.com/shurlinet/meshnode/internal/store"
	"github.com/shurlinet/meshnode/internal/transport"
	"github.com/shurlinet/meshnode/pkg/node"
)

func daemonSocketPath(configDir string) string {
	return filepath.Join(configDir, "meshnoded.sock")
}

func daemonCookiePath(configDir string) string {
	return filepath.Join(configDir, ".daemon-cookie")
}

func daemonClient() *daemon.Client {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		fatal("cannot determine config directory: %v", err)
	}
	c, err := daemon.NewClient(daemonSocketPath(dir), daemonCookiePath(dir))
	if err != nil {
		fatal("%v", err)
	}
	return c
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to config file")
	fs.Parse(args)

	fmt.Printf("meshnoded %s (%s)\n", version, commit)
	fmt.Println()

	cfgFile, err := config.FindConfigFile(*configFlag)
	if err != nil {
		fatal("%v", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))
	if err := config.ValidateNodeConfig(cfg); err != nil {
		fatal("invalid configuration: %v", err)
	}
	fmt.Printf("Loaded configuration from %s\n", cfgFile)

	priv, err := identity.LoadOrCreateIdentity(cfg.Identity.KeyFile)
	if err != nil {
		fatal("failed to load identity: %v", err)
	}
	signer, err := node.NewSigner(priv)
	if err != nil {
		fatal("failed to derive signer: %v", err)
	}
	fmt.Printf("Node id: %s\n", signer.NodeId())

	svcCfg, err := config.ToServiceConfig(cfg)
	if err != nil {
		fatal("invalid scheduling/limits configuration: %v", err)
	}
	svcCfg.Alias = cfg.Alias

	storage := store.NewStorage()
	routing := store.NewRouting()
	addresses := store.NewAddresses()
	gossip := store.NewGossip()
	seeds := store.NewSeeds()
	policy := store.NewPolicy()
	metrics := node.NewMetrics()

	if seeding, err := config.ResolveSeeding(cfg); err != nil {
		fatal("%v", err)
	} else {
		for _, sc := range seeding {
			policy.Seed(sc.Rid, sc.Scope, sc.Preferred)
		}
	}
	if following, err := config.ResolveFollowing(cfg); err != nil {
		fatal("%v", err)
	} else {
		for _, f := range following {
			policy.Follow(f.Id, f.Alias)
		}
	}

	peers, err := config.ResolvePeers(cfg)
	if err != nil {
		fatal("%v", err)
	}
	configuredPeers := make([]node.ConfiguredPeer, len(peers))
	for i, p := range peers {
		configuredPeers[i] = node.ConfiguredPeer{Nid: p.Id, Addr: p.Addr, Persistent: p.Persistent}
	}

	svc := node.NewService(svcCfg, node.Deps{
		Signer:    signer,
		Storage:   storage,
		Routing:   routing,
		Addresses: addresses,
		Gossip:    gossip,
		Seeds:     seeds,
		Policy:    policy,
		Metrics:   metrics,
		Peers:     configuredPeers,
	})

	h, err := transport.NewHost(transport.HostConfig{
		Identity:           priv,
		ListenAddresses:    cfg.Network.ListenAddresses,
		EnableRelay:        cfg.Relay,
		EnableNATPortMap:   cfg.Relay,
		EnableHolePunching: cfg.Relay,
	})
	if err != nil {
		fatal("failed to create libp2p host: %v", err)
	}
	defer h.Close()

	reactor := transport.NewReactor(h, svc, storage, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reactor.Run(ctx)

	rt := transport.NewRuntime(reactor, signer.NodeId(), cfg.Alias, version, func() []string {
		addrs := make([]string, 0, len(h.Addrs()))
		for _, a := range h.Addrs() {
			addrs = append(addrs, a.String()+"/p2p/"+h.ID().String())
		}
		return addrs
	})

	configDir := filepath.Dir(cfgFile)
	srv := daemon.NewServer(rt, daemonSocketPath(configDir), daemonCookiePath(configDir))
	srv.SetInstrumentation(metrics, daemon.NewAuditLogger(slog.Default().Handler()))
	if err := srv.Start(); err != nil {
		fatal("daemon API failed to start: %v", err)
	}

	fmt.Printf("Daemon API: %s\n", daemonSocketPath(configDir))
	fmt.Println("Listening:")
	for _, a := range h.Addrs() {
		fmt.Printf("  %s/p2p/%s\n", a, h.ID())
	}
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case <-srv.ShutdownCh():
		fmt.Println("\nShutdown requested via API")
	}

	srv.Stop()
	cancel()
	fmt.Println("meshnoded stopped.")
}
