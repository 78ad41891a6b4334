// Package config loads the YAML configuration shared by cmd/simulator and
// cmd/client.
package config

// Config is the complete application configuration for a single stream.
type Config struct {
	Live      LiveConfig      `yaml:"live"`
	Redis     RedisConfig     `yaml:"redis"`
	Disk      DiskConfig      `yaml:"disk"`
	Storage   StorageConfig   `yaml:"storage"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LiveConfig describes the endpoints and stream identity the coordinator
// and simulator both need to agree on.
type LiveConfig struct {
	LivePub  string `yaml:"live_pub"`
	ChunkRep string `yaml:"chunk_rep"`
	SourceID string `yaml:"source_id"`
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
}

// RedisConfig configures the store's Memory backend.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// DiskConfig configures the store's SQLite-backed Disk backend.
type DiskConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig selects which store backend(s) are active.
type StorageConfig struct {
	Mode string `yaml:"mode"` // "memory", "disk", or "both"
}

// SimulatorConfig holds the replay service's generation and fault-injection
// knobs. Fault injection is part of the service's contract, not a test-only
// hook, so these are ordinary config fields.
type SimulatorConfig struct {
	TickMs      int     `yaml:"tick_ms"`
	JitterMs    int     `yaml:"jitter_ms"`
	BatchSize   int     `yaml:"batch_size"`
	DropPercent float64 `yaml:"drop_percent"`
	GapEvery    int     `yaml:"gap_every"`
	Seed        int64   `yaml:"seed"`
}

// MetricsConfig configures the optional /metrics HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RedisAddress returns "host:port" for dialing go-redis.
func (c *Config) RedisAddress() string {
	return addr(c.Redis.Host, c.Redis.Port)
}
