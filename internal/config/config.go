// Package config handles collector configuration loading using viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/espsense/csicollect/internal/log"
	"github.com/espsense/csicollect/internal/queue"
)

// Config is the top-level collector configuration. YAML keys map via
// mapstructure; env vars use the CSICOLLECT_ prefix (for example
// CSICOLLECT_LISTEN_PORT).
type Config struct {
	Listen  ListenConfig      `mapstructure:"listen"`
	Output  OutputConfig      `mapstructure:"output"`
	Queue   QueueConfig       `mapstructure:"queue"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
	Log     *log.LoggerConfig `mapstructure:"log"`
}

// ListenConfig contains the UDP ingress settings.
type ListenConfig struct {
	Address     string        `mapstructure:"address"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// OutputConfig contains the sink location. When File is empty the
// collector generates a timestamped name inside Dir.
type OutputConfig struct {
	Dir  string `mapstructure:"dir"`
	File string `mapstructure:"file"`
}

// Path resolves the sink file path, generating a timestamped filename
// when none is configured.
func (o OutputConfig) Path(now time.Time) string {
	file := o.File
	if file == "" {
		file = fmt.Sprintf("csi_data_%s.csv", now.Format("20060102_150405"))
	}
	return filepath.Join(o.Dir, file)
}

// QueueConfig bounds the ingestion queue. Capacity 0 preserves the
// historical unbounded behavior.
type QueueConfig struct {
	Capacity int    `mapstructure:"capacity"`
	Policy   string `mapstructure:"policy"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from path. An empty path loads defaults and
// environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("CSICOLLECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	// Listen defaults: the device firmware sends to port 9999.
	v.SetDefault("listen.address", "0.0.0.0")
	v.SetDefault("listen.port", 9999)
	v.SetDefault("listen.read_timeout", "1s")

	// Output defaults
	v.SetDefault("output.dir", "csi_data")
	v.SetDefault("output.file", "")

	// Queue defaults: unbounded, matching the historical collector.
	v.SetDefault("queue.capacity", 0)
	v.SetDefault("queue.policy", string(queue.PolicyBlock))

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9091")
	v.SetDefault("metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	if cfg.Listen.Port < 1 || cfg.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen port: %d", cfg.Listen.Port)
	}
	if cfg.Listen.ReadTimeout <= 0 {
		cfg.Listen.ReadTimeout = time.Second
	}

	if cfg.Queue.Capacity < 0 {
		return fmt.Errorf("invalid queue capacity: %d", cfg.Queue.Capacity)
	}
	if !queue.Policy(cfg.Queue.Policy).Valid() {
		return fmt.Errorf("invalid queue policy: %s (must be block/drop-oldest/drop-newest)", cfg.Queue.Policy)
	}
	if cfg.Queue.Capacity == 0 && queue.Policy(cfg.Queue.Policy) != queue.PolicyBlock {
		return fmt.Errorf("queue policy %s requires a bounded capacity", cfg.Queue.Policy)
	}

	if cfg.Output.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}

	if cfg.Log == nil {
		cfg.Log = log.DefaultConfig()
	}

	return nil
}
