package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bilal/netvelocimeter/internal/xdg"
)

// EnvPrefix prefixes every environment override, e.g.
// NETVELOCIMETER_LOGGING_LEVEL.
const EnvPrefix = "NETVELOCIMETER"

// FileName is the config file looked up in the config root.
const FileName = "config.yaml"

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type PathsConfig struct {
	BinRoot    string `mapstructure:"bin_root"`
	ConfigRoot string `mapstructure:"config_root"`
}

type TimeoutsConfig struct {
	Download time.Duration `mapstructure:"download"`
	Version  time.Duration `mapstructure:"version"`
	Measure  time.Duration `mapstructure:"measure"`
}

type BinaryConfig struct {
	DownloadAttempts int  `mapstructure:"download_attempts"`
	TrustOnFirstUse  bool `mapstructure:"trust_on_first_use"`
	// Checksums pins executables: provider → "<goos>_<goarch>" → sha256.
	Checksums map[string]map[string]string `mapstructure:"checksums"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type LedgerConfig struct {
	Backend string      `mapstructure:"backend"` // file or redis
	Redis   RedisConfig `mapstructure:"redis"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type HTTPSinkConfig struct {
	URL                string        `mapstructure:"url"`
	TokenEnv           string        `mapstructure:"token_env"` // e.g. NETVELOCIMETER_SINK_TOKEN
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
	SendInterval       time.Duration `mapstructure:"send_interval"`
}

type KafkaSinkConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type SinkConfig struct {
	HTTP  HTTPSinkConfig  `mapstructure:"http"`
	Kafka KafkaSinkConfig `mapstructure:"kafka"`
}

type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Provider string         `mapstructure:"provider"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Binary   BinaryConfig   `mapstructure:"binary"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	History  HistoryConfig  `mapstructure:"history"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Health   HealthConfig   `mapstructure:"health"`
}

// New returns a viper instance with defaults and environment overrides
// registered. Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	// env overrides: NETVELOCIMETER_PROVIDER, NETVELOCIMETER_TIMEOUTS_MEASURE etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configRoot, _ := xdg.ConfigRoot()
	binRoot, _ := xdg.BinRoot()
	dataRoot, _ := xdg.DataRoot()

	// Defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("provider", "ookla")
	v.SetDefault("paths.bin_root", binRoot)
	v.SetDefault("paths.config_root", configRoot)
	v.SetDefault("timeouts.download", 5*time.Minute)
	v.SetDefault("timeouts.version", 15*time.Second)
	v.SetDefault("timeouts.measure", 3*time.Minute)
	v.SetDefault("binary.download_attempts", 3)
	v.SetDefault("binary.trust_on_first_use", true)
	v.SetDefault("ledger.backend", "file")
	v.SetDefault("ledger.redis.addr", "localhost:6379")
	v.SetDefault("ledger.redis.password", "")
	v.SetDefault("ledger.redis.db", 0)
	v.SetDefault("ledger.redis.prefix", "netvelocimeter:legal:")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", filepath.Join(dataRoot, "history.db"))
	v.SetDefault("sink.http.url", "")
	v.SetDefault("sink.http.token_env", "NETVELOCIMETER_SINK_TOKEN")
	v.SetDefault("sink.http.timeout", 5*time.Second)
	v.SetDefault("sink.http.insecure_skip_verify", false)
	v.SetDefault("sink.http.max_queue_size", 1000)
	v.SetDefault("sink.http.send_interval", 30*time.Second)
	v.SetDefault("sink.kafka.brokers", []string{})
	v.SetDefault("sink.kafka.topic", "netvelocimeter.measurements")
	v.SetDefault("watch.interval", 15*time.Minute)
	v.SetDefault("health.addr", "")

	return v
}

// Load reads .env, then the config file at path, or FileName in the config
// root when path is empty. Only an explicitly named file must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if root := v.GetString("paths.config_root"); root != "" {
		candidate := filepath.Join(root, FileName)
		if _, err := os.Stat(candidate); err == nil {
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values Load cannot fix up.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.New("config: provider must not be empty")
	}
	if c.Paths.BinRoot == "" || c.Paths.ConfigRoot == "" {
		return errors.New("config: paths.bin_root and paths.config_root must be set")
	}
	switch c.Ledger.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}

	// quick sanity checks
	if c.Binary.DownloadAttempts < 1 {
		c.Binary.DownloadAttempts = 1
	}
	if c.Watch.Interval < time.Second {
		c.Watch.Interval = time.Second
	}
	if c.Sink.HTTP.MaxQueueSize < 1 {
		c.Sink.HTTP.MaxQueueSize = 1000
	}
	return nil
}

// Checksums returns the pinned checksums for provider.
func (c *Config) Checksums(provider string) map[string]string {
	return c.Binary.Checksums[strings.ToLower(provider)]
}
