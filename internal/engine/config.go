package engine

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a single engine process, loaded
// via viper/mapstructure and shaped around spec.md §6's flag table.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Pacing   PacingConfig   `mapstructure:"pacing"`
	Workload WorkloadConfig `mapstructure:"workload"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Restart  RestartConfig  `mapstructure:"restart"`
}

// ServerConfig describes the target ensemble and per-process shape.
type ServerConfig struct {
	Address       string `mapstructure:"address"`
	NumClients    int    `mapstructure:"num_clients"`
	NumProcs      int    `mapstructure:"num_procs"`
	NumWorkers    int    `mapstructure:"num_workers"`
	MaxEvents     int    `mapstructure:"max_events"`
	WaitTimeMS    int    `mapstructure:"wait_time_ms"`
	SwitchUID     bool   `mapstructure:"switch_uid"`
	UIDPrefix     string `mapstructure:"uid_prefix"`
}

// SessionConfig describes per-session ZooKeeper parameters.
type SessionConfig struct {
	TimeoutMS int `mapstructure:"timeout_ms"`
}

// PacingConfig governs the creator's ramp-up pacing (spec.md §4.2).
type PacingConfig struct {
	SleepAfterClients  int `mapstructure:"sleep_after_clients"`
	SleepInBetweenSecs int `mapstructure:"sleep_in_between_secs"`
}

// WorkloadConfig selects and configures the session workload.
type WorkloadConfig struct {
	Kind string `mapstructure:"kind"` // "ephemeral" or "children"
	Path string `mapstructure:"path"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus HTTP endpoint in
// internal/engine/metrics.go.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Path     string `mapstructure:"path"`
}

// RestartConfig governs the bounded backoff used on establish-session
// connection-loss retries (SPEC_FULL §4).
type RestartConfig struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
}

// LoadConfig loads configuration from environment variables
// (ZKSOAK_*), an optional file, and defaults, in that order of
// precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("zksoak")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/zksoak")
	}

	v.SetEnvPrefix("ZKSOAK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.max_events", 100)
	v.SetDefault("server.num_clients", 500)
	v.SetDefault("server.num_procs", 20)
	v.SetDefault("server.num_workers", 1)
	v.SetDefault("server.wait_time_ms", 50)
	v.SetDefault("server.switch_uid", false)
	v.SetDefault("server.uid_prefix", "zk-client")

	v.SetDefault("session.timeout_ms", 10000)

	v.SetDefault("pacing.sleep_after_clients", 0)
	v.SetDefault("pacing.sleep_in_between_secs", 5)

	v.SetDefault("workload.kind", "ephemeral")
	v.SetDefault("workload.path", "/")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("restart.initial_backoff", 200*time.Millisecond)
	v.SetDefault("restart.max_backoff", 10*time.Second)
	v.SetDefault("restart.multiplier", 2.0)
}
