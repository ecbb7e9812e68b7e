package domain

import "time"

// Config holds the complete CarrierWatch pipeline configuration.
type Config struct {
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Logging    LoggingConfig    `json:"logging"`
	Pipeline   PipelineConfig   `json:"pipeline"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// PipelineConfig holds every tunable of the detection and scoring passes.
// The caps and thresholds are deliberate heuristics carried over from the
// production pipeline; changing them trades precision for completeness.
type PipelineConfig struct {
	// OfficerBatchSize is how many officer names the identity resolver
	// fetches and commits per batch. Affects throughput and restart
	// granularity only, never correctness.
	OfficerBatchSize int `json:"officerBatchSize"`

	// PairCap bounds partner enumeration inside one signal/identity group.
	// Very common names or addresses would otherwise produce quadratic
	// pair counts; beyond the cap the internal linkage is knowingly
	// incomplete.
	PairCap int `json:"pairCap"`

	// ChunkSize bounds every bulk carrier mutation; each chunk commits
	// independently so a concurrently-reading store never waits long.
	ChunkSize int `json:"chunkSize"`

	// SignalWorkers bounds the read-only fan-out computing signal sets
	// for disjoint officer names within a batch.
	SignalWorkers int `json:"signalWorkers"`

	// MaxGapDays is the chameleon deactivation→activation window.
	MaxGapDays int `json:"maxGapDays"`

	// MinSharedIdentities and MinRingSize gate fraud-ring edges and
	// component size.
	MinSharedIdentities int `json:"minSharedIdentities"`
	MinRingSize         int `json:"minRingSize"`

	// Ledger rule thresholds.
	NewAuthorityDays      int     `json:"newAuthorityDays"`
	ELDViolationThreshold int     `json:"eldViolationThreshold"`
	VehicleOOSThreshold   float64 `json:"vehicleOosThreshold"`
	DriverOOSThreshold    float64 `json:"driverOosThreshold"`
	PPPLargeLoanFloor     float64 `json:"pppLargeLoanFloor"`
	HighCrashThreshold    int     `json:"highCrashThreshold"`
	MinAddressClusterSize int     `json:"minAddressClusterSize"`
}

// RepositoryConfig holds configuration for store initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// CacheConfig holds configuration for the co-officer lookup cache.
type CacheConfig struct {
	Type          string        `json:"type"` // memory, redis
	LocalMaxSize  int           `json:"localMaxSize"`
	LocalTTL      time.Duration `json:"localTTL"`
	RedisAddr     string        `json:"redisAddr"`
	RedisPassword string        `json:"redisPassword"`
	RedisDB       int           `json:"redisDB"`
}

// EventBusConfig holds configuration for the audit event bus.
type EventBusConfig struct {
	Type              string `json:"type"` // channel, nats
	ChannelBufferSize int    `json:"channelBufferSize"`
	NATSUrl           string `json:"natsUrl"`
	NATSMaxReconnects int    `json:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait"` // seconds
}

// DefaultConfig returns the single-node configuration: SQLite store,
// in-memory cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./carrierwatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100000,
			LocalTTL:     30 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Pipeline: defaultPipelineConfig(),
	}
}

// ProConfig returns the shared-store configuration: PostgreSQL, Redis
// co-officer cache, NATS audit bus.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "carrierwatch",
	}
	cfg.Cache = CacheConfig{
		Type:         "redis",
		RedisAddr:    "localhost:6379",
		LocalMaxSize: 100000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	return cfg
}

func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		OfficerBatchSize:      500,
		PairCap:               50,
		ChunkSize:             5000,
		SignalWorkers:         8,
		MaxGapDays:            365,
		MinSharedIdentities:   2,
		MinRingSize:           3,
		NewAuthorityDays:      180,
		ELDViolationThreshold: 5,
		VehicleOOSThreshold:   40.0,
		DriverOOSThreshold:    10.0,
		PPPLargeLoanFloor:     150000,
		HighCrashThreshold:    3,
		MinAddressClusterSize: 5,
	}
}
