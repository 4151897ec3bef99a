package node

import "time"

// Defaults mirror the reference implementation's tuning constants
// (spec section 6). They are overridable per field through Config, and
// ultimately through the YAML node configuration in internal/config.
const (
	DefaultIdleInterval           = 30 * time.Second
	DefaultSyncInterval           = 60 * time.Second
	DefaultAnnounceInterval       = 60 * time.Minute
	DefaultPruneInterval          = 30 * time.Minute
	DefaultStaleConnectionTimeout = 2 * time.Minute
	DefaultKeepAliveInterval      = time.Minute
	DefaultMaxTimeDelta           = 60 * time.Minute
	DefaultMaxConnectionAttempts  = 3
	DefaultInitialSubscribeBacklog = 24 * time.Hour
	DefaultMinReconnectionDelta   = 3 * time.Second
	DefaultMaxReconnectionDelta   = 60 * time.Minute
	DefaultConnectionRetryDelta   = 10 * time.Minute
	DefaultFetchTimeout           = 9 * time.Second
	DefaultMaxPongZeroes          = 512
	DefaultFetchConcurrency       = 3
	DefaultAddressLimit           = 8
	DefaultInventoryLimit         = 10_000
	DefaultRoutingMaxSize         = 100_000
	DefaultRoutingMaxAge          = 30 * 24 * time.Hour
	DefaultGossipMaxAge           = 48 * time.Hour
	DefaultTargetOutbound         = 8
	DefaultReplicationLowerBound  = 3
	DefaultReplicationUpperBound  = 8
)

// FeatureSeed is the NodeAnnouncement feature bit indicating the peer
// relays inventory and will serve fetches (spec section 3/4.3).
const FeatureSeed uint64 = 1 << 0

// Limits bound the size of in-memory state the service is willing to
// accumulate, independent of the scheduling windows in Config.
type Limits struct {
	FetchConcurrency int
	AddressLimit     int
	InventoryLimit   int
	RoutingMaxSize   int
	RoutingMaxAge    time.Duration
	GossipMaxAge     time.Duration
	MaxPongZeroes    int
}

func DefaultLimits() Limits {
	return Limits{
		FetchConcurrency: DefaultFetchConcurrency,
		AddressLimit:     DefaultAddressLimit,
		InventoryLimit:   DefaultInventoryLimit,
		RoutingMaxSize:   DefaultRoutingMaxSize,
		RoutingMaxAge:    DefaultRoutingMaxAge,
		GossipMaxAge:     DefaultGossipMaxAge,
		MaxPongZeroes:    DefaultMaxPongZeroes,
	}
}

// ReplicationFactor sets how many distinct seeds a repository should be
// fetched from (spec section 6 supplement: preferred seeds and
// replication factor). Only LowerBound is read: syncTick stops seeking
// more seeds once it is reached, and SyncStatus reports ReplicationMet
// against it. UpperBound is not read by the service.
type ReplicationFactor struct {
	LowerBound int
	UpperBound int
}

func DefaultReplicationFactor() ReplicationFactor {
	return ReplicationFactor{LowerBound: DefaultReplicationLowerBound, UpperBound: DefaultReplicationUpperBound}
}

// Config holds the full set of tunables for a Service instance. The
// zero value is not valid; use DefaultConfig and override fields.
type Config struct {
	Alias   string
	Relay   bool
	Persist bool

	TargetOutbound int

	IdleInterval            time.Duration
	SyncInterval            time.Duration
	AnnounceInterval        time.Duration
	PruneInterval           time.Duration
	StaleConnectionTimeout  time.Duration
	KeepAliveInterval       time.Duration
	MaxTimeDelta            time.Duration
	MaxConnectionAttempts   int
	InitialSubscribeBacklog time.Duration
	MinReconnectionDelta    time.Duration
	MaxReconnectionDelta    time.Duration
	ConnectionRetryDelta    time.Duration
	FetchTimeout            time.Duration

	Limits             Limits
	DefaultReplication ReplicationFactor
}

func DefaultConfig() Config {
	return Config{
		Relay:                   true,
		TargetOutbound:          DefaultTargetOutbound,
		IdleInterval:            DefaultIdleInterval,
		SyncInterval:            DefaultSyncInterval,
		AnnounceInterval:        DefaultAnnounceInterval,
		PruneInterval:           DefaultPruneInterval,
		StaleConnectionTimeout:  DefaultStaleConnectionTimeout,
		KeepAliveInterval:       DefaultKeepAliveInterval,
		MaxTimeDelta:            DefaultMaxTimeDelta,
		MaxConnectionAttempts:   DefaultMaxConnectionAttempts,
		InitialSubscribeBacklog: DefaultInitialSubscribeBacklog,
		MinReconnectionDelta:    DefaultMinReconnectionDelta,
		MaxReconnectionDelta:    DefaultMaxReconnectionDelta,
		ConnectionRetryDelta:    DefaultConnectionRetryDelta,
		FetchTimeout:            DefaultFetchTimeout,
		Limits:                  DefaultLimits(),
		DefaultReplication:      DefaultReplicationFactor(),
	}
}
