package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testConfigYAML = `
version: 1
alias: seedling
relay: true
identity:
  key_file: identity.key
network:
  listen_addresses:
    - /ip4/0.0.0.0/tcp/8776
    - /ip6/::/tcp/8776
  target_outbound: 12
peers:
  - address: /ip4/203.0.113.5/tcp/8776/p2p/12D3KooWGzJgmCP6b65B1JgCqsscM8oHWyTCHzrSsxKfeNNDdCTY
    persistent: true
    trusted: true
seeding:
  - rid: bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi
    scope: followed
    preferred:
      - 12D3KooWGzJgmCP6b65B1JgCqsscM8oHWyTCHzrSsxKfeNNDdCTY
following:
  - id: 12D3KooWGzJgmCP6b65B1JgCqsscM8oHWyTCHzrSsxKfeNNDdCTY
    alias: alice
limits:
  fetch_concurrency: 5
  routing_max_age: 240h
scheduling:
  idle_interval: 15s
  sync_interval: 45s
  fetch_timeout: 5s
telemetry:
  metrics:
    enabled: true
    listen_address: 127.0.0.1:9100
cli:
  allow_standalone: false
`

func writeTestConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "meshnoded.yaml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadNodeConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}

	if cfg.Alias != "seedling" {
		t.Errorf("Alias = %q, want %q", cfg.Alias, "seedling")
	}
	if !cfg.Relay {
		t.Error("Relay = false, want true")
	}
	if cfg.Identity.KeyFile != "identity.key" {
		t.Errorf("Identity.KeyFile = %q", cfg.Identity.KeyFile)
	}
	if len(cfg.Network.ListenAddresses) != 2 {
		t.Fatalf("ListenAddresses = %v", cfg.Network.ListenAddresses)
	}
	if cfg.Network.TargetOutbound != 12 {
		t.Errorf("TargetOutbound = %d, want 12", cfg.Network.TargetOutbound)
	}
	if len(cfg.Peers) != 1 || !cfg.Peers[0].Persistent || !cfg.Peers[0].Trusted {
		t.Fatalf("Peers = %+v", cfg.Peers)
	}
	if len(cfg.Seeding) != 1 || cfg.Seeding[0].Scope != "followed" {
		t.Fatalf("Seeding = %+v", cfg.Seeding)
	}
	if len(cfg.Seeding[0].Preferred) != 1 {
		t.Fatalf("Seeding[0].Preferred = %v", cfg.Seeding[0].Preferred)
	}
	if len(cfg.Following) != 1 || cfg.Following[0].Alias != "alice" {
		t.Fatalf("Following = %+v", cfg.Following)
	}
	if cfg.Limits.FetchConcurrency != 5 || cfg.Limits.RoutingMaxAge != "240h" {
		t.Fatalf("Limits = %+v", cfg.Limits)
	}
	if cfg.Scheduling.IdleInterval != "15s" || cfg.Scheduling.FetchTimeout != "5s" {
		t.Fatalf("Scheduling = %+v", cfg.Scheduling)
	}
	if !cfg.Telemetry.Metrics.Enabled || cfg.Telemetry.Metrics.ListenAddress != "127.0.0.1:9100" {
		t.Fatalf("Telemetry.Metrics = %+v", cfg.Telemetry.Metrics)
	}
}

func TestLoadNodeConfigDefaultsVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "identity:\n  key_file: k\nnetwork:\n  listen_addresses: [/ip4/0.0.0.0/tcp/0]\n")

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
}

func TestLoadNodeConfigRejectsFutureVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "version: 99\nidentity:\n  key_file: k\n")

	_, err := LoadNodeConfig(path)
	if err == nil {
		t.Fatal("expected error for future config version")
	}
}

func TestLoadNodeConfigRejectsPermissiveMode(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	_, err := LoadNodeConfig(path)
	if err == nil {
		t.Fatal("expected error for world-readable config file")
	}
}

func TestLoadNodeConfigMissingFile(t *testing.T) {
	_, err := LoadNodeConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateNodeConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)
	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}
	if err := ValidateNodeConfig(cfg); err != nil {
		t.Fatalf("ValidateNodeConfig: %v", err)
	}
}

func TestValidateNodeConfigRequiresKeyFile(t *testing.T) {
	cfg := &NodeConfig{Network: NetworkConfig{ListenAddresses: []string{"/ip4/0.0.0.0/tcp/0"}}}
	if err := ValidateNodeConfig(cfg); err == nil {
		t.Fatal("expected error for missing identity.key_file")
	}
}

func TestValidateNodeConfigRequiresListenAddresses(t *testing.T) {
	cfg := &NodeConfig{Identity: IdentityConfig{KeyFile: "k"}}
	if err := ValidateNodeConfig(cfg); err == nil {
		t.Fatal("expected error for missing network.listen_addresses")
	}
}

func TestValidateNodeConfigRejectsBadSeedingScope(t *testing.T) {
	cfg := &NodeConfig{
		Identity: IdentityConfig{KeyFile: "k"},
		Network:  NetworkConfig{ListenAddresses: []string{"/ip4/0.0.0.0/tcp/0"}},
		Seeding:  []SeedingConfig{{Rid: "r", Scope: "bogus"}},
	}
	if err := ValidateNodeConfig(cfg); err == nil {
		t.Fatal("expected error for invalid seeding scope")
	}
}

func TestValidateNodeConfigRejectsBadDuration(t *testing.T) {
	cfg := &NodeConfig{
		Identity:   IdentityConfig{KeyFile: "k"},
		Network:    NetworkConfig{ListenAddresses: []string{"/ip4/0.0.0.0/tcp/0"}},
		Scheduling: SchedulingConfig{IdleInterval: "not-a-duration"},
	}
	if err := ValidateNodeConfig(cfg); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestFindConfigFileExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)

	found, err := FindConfigFile(path)
	if err != nil {
		t.Fatalf("FindConfigFile: %v", err)
	}
	if found != path {
		t.Errorf("found = %q, want %q", found, path)
	}
}

func TestFindConfigFileExplicitPathMissing(t *testing.T) {
	_, err := FindConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit path")
	}
}

func TestResolveConfigPaths(t *testing.T) {
	cfg := &NodeConfig{Identity: IdentityConfig{KeyFile: "identity.key"}}
	ResolveConfigPaths(cfg, "/home/user/.config/meshnoded")
	want := filepath.Join("/home/user/.config/meshnoded", "identity.key")
	if cfg.Identity.KeyFile != want {
		t.Errorf("KeyFile = %q, want %q", cfg.Identity.KeyFile, want)
	}
}

func TestResolveConfigPathsLeavesAbsolute(t *testing.T) {
	cfg := &NodeConfig{Identity: IdentityConfig{KeyFile: "/etc/meshnoded/identity.key"}}
	ResolveConfigPaths(cfg, "/home/user/.config/meshnoded")
	if cfg.Identity.KeyFile != "/etc/meshnoded/identity.key" {
		t.Errorf("KeyFile was rewritten: %q", cfg.Identity.KeyFile)
	}
}
