package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and patches in defaults.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

func (l *Loader) Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Live.LivePub == "" {
		cfg.Live.LivePub = "ws://127.0.0.1:5556/pub"
	}
	if cfg.Live.ChunkRep == "" {
		cfg.Live.ChunkRep = "ws://127.0.0.1:5557/req"
	}
	if cfg.Live.SourceID == "" {
		cfg.Live.SourceID = "SIM"
	}
	if cfg.Live.Interval == "" {
		cfg.Live.Interval = "1s"
	}
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = "memory"
	}
	if cfg.Simulator.TickMs == 0 {
		cfg.Simulator.TickMs = 1000
	}
	if cfg.Simulator.BatchSize == 0 {
		cfg.Simulator.BatchSize = 1
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// ApplyEnvOverrides patches environment variables onto an already-loaded
// config, applied after the YAML file so the environment always wins.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv("P9CANDLES_LIVE_PUB"); v != "" {
		cfg.Live.LivePub = v
	}
	if v := getenv("P9CANDLES_CHUNK_REP"); v != "" {
		cfg.Live.ChunkRep = v
	}
	if v := getenv("P9CANDLES_SOURCE_ID"); v != "" {
		cfg.Live.SourceID = v
	}
	if v := getenv("P9CANDLES_INTERVAL"); v != "" {
		cfg.Live.Interval = v
	}
}

func addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
