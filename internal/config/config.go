package config

import "time"

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// NodeConfig is the on-disk configuration for a meshnoded instance.
type NodeConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Alias     string          `yaml:"alias,omitempty"`
	Relay     bool            `yaml:"relay"`
	Identity  IdentityConfig  `yaml:"identity"`
	Network   NetworkConfig   `yaml:"network"`
	Peers     []PeerConfig    `yaml:"peers,omitempty"`
	Seeding   []SeedingConfig `yaml:"seeding,omitempty"`
	Following []FollowConfig  `yaml:"following,omitempty"`
	Limits    LimitsConfig    `yaml:"limits,omitempty"`
	Scheduling SchedulingConfig `yaml:"scheduling,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
	CLI       CLIConfig       `yaml:"cli,omitempty"`
}

// IdentityConfig locates the Ed25519 key file backing the node's
// NodeId, mirroring the key-file convention used throughout the
// example corpus.
type IdentityConfig struct {
	KeyFile string `yaml:"key_file"`
}

// NetworkConfig controls the libp2p host: where it listens and how
// many outbound sessions the service tries to maintain.
type NetworkConfig struct {
	ListenAddresses []string `yaml:"listen_addresses"`
	TargetOutbound  int      `yaml:"target_outbound,omitempty"`
}

// PeerConfig is one explicitly configured dial target. Persistent
// peers are redialed with backoff after every disconnection (spec
// section 4.2).
type PeerConfig struct {
	Address    string `yaml:"address"`
	Persistent bool   `yaml:"persistent,omitempty"`
	Trusted    bool   `yaml:"trusted,omitempty"`
}

// SeedingConfig is one repository this node seeds at startup, with its
// namespace scope and preferred upstream seeds (spec section 6
// supplement).
type SeedingConfig struct {
	Rid       string   `yaml:"rid"`
	Scope     string   `yaml:"scope,omitempty"` // "all" (default) or "followed"
	Preferred []string `yaml:"preferred,omitempty"`
}

// FollowConfig is one peer explicitly followed at startup, gating the
// ScopeFollowed namespace computation.
type FollowConfig struct {
	Id    string `yaml:"id"`
	Alias string `yaml:"alias,omitempty"`
}

// LimitsConfig bounds in-memory state size; zero fields fall back to
// pkg/node's defaults at load time.
type LimitsConfig struct {
	FetchConcurrency int    `yaml:"fetch_concurrency,omitempty"`
	AddressLimit     int    `yaml:"address_limit,omitempty"`
	InventoryLimit   int    `yaml:"inventory_limit,omitempty"`
	RoutingMaxSize   int    `yaml:"routing_max_size,omitempty"`
	RoutingMaxAge    string `yaml:"routing_max_age,omitempty"`
	GossipMaxAge     string `yaml:"gossip_max_age,omitempty"`
	MaxPongZeroes    int    `yaml:"max_pong_zeroes,omitempty"`
}

// SchedulingConfig overrides the periodic task intervals and protocol
// timeouts (spec section 6's tuning constants). Every string field
// accepts a Go duration string ("30s", "1h"); zero/empty falls back to
// pkg/node's default.
type SchedulingConfig struct {
	IdleInterval            string `yaml:"idle_interval,omitempty"`
	SyncInterval            string `yaml:"sync_interval,omitempty"`
	AnnounceInterval        string `yaml:"announce_interval,omitempty"`
	PruneInterval           string `yaml:"prune_interval,omitempty"`
	StaleConnectionTimeout  string `yaml:"stale_connection_timeout,omitempty"`
	KeepAliveInterval       string `yaml:"keep_alive_interval,omitempty"`
	MaxTimeDelta            string `yaml:"max_time_delta,omitempty"`
	MaxConnectionAttempts   int    `yaml:"max_connection_attempts,omitempty"`
	InitialSubscribeBacklog string `yaml:"initial_subscribe_backlog,omitempty"`
	MinReconnectionDelta    string `yaml:"min_reconnection_delta,omitempty"`
	MaxReconnectionDelta    string `yaml:"max_reconnection_delta,omitempty"`
	ConnectionRetryDelta    string `yaml:"connection_retry_delta,omitempty"`
	FetchTimeout            string `yaml:"fetch_timeout,omitempty"`
}

// TelemetryConfig holds observability settings. Disabled by default,
// matching the teacher's opt-in posture for anything that opens an
// extra listener.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig holds Prometheus metrics exposure settings. They are
// parsed but not read by meshnoded: no metrics listener is started and
// no default listen address is applied.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address,omitempty"`
}

// CLIConfig holds settings for CLI subcommand behavior.
type CLIConfig struct {
	// AllowStandalone is parsed but not read by any subcommand: every
	// subcommand other than init and daemon talks to a running daemon
	// and fails when none is running, whatever this is set to.
	AllowStandalone bool `yaml:"allow_standalone,omitempty"`
}

func durationOr(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
