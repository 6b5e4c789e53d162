// Package config loads and validates swarm configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix namespaces environment overrides, e.g. SWARM_STORE_BACKEND.
const EnvPrefix = "SWARM"

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures every setting of both subcommands.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects the key-value backend shared by crawl and serve.
type StoreConfig struct {
	Backend     string      `mapstructure:"backend"`
	Path        string      `mapstructure:"path"`
	Compression bool        `mapstructure:"compression"`
	Redis       RedisConfig `mapstructure:"redis"`
}

// RedisConfig addresses the redis backend.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// CrawlerConfig governs discovery and the run as a whole.
type CrawlerConfig struct {
	// Domains are root URLs. Only the first is crawled per run.
	Domains       []string      `mapstructure:"domains"`
	HostFilter    string        `mapstructure:"host_filter"`
	PathPrefix    string        `mapstructure:"path_prefix"`
	UserAgent     string        `mapstructure:"user_agent"`
	MaxDepth      int           `mapstructure:"max_depth"`
	Parallelism   int           `mapstructure:"parallelism"`
	Delay         time.Duration `mapstructure:"delay"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
}

// FetchConfig bounds the content fetch stage.
type FetchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RatePerHost float64       `mapstructure:"rate_per_host"`
	Burst       int           `mapstructure:"burst"`
}

// ArchiveConfig controls raw page archiving.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// Enabled reports whether pages are archived.
func (a ArchiveConfig) Enabled() bool {
	return a.Backend != "" && a.Backend != ArchiveNone
}

// LedgerConfig points at the Postgres run ledger. An empty DSN disables it.
type LedgerConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// NotifyConfig names the Pub/Sub topic for run-completed notices. Empty values disable it.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether run notices are published.
func (n NotifyConfig) Enabled() bool {
	return n.ProjectID != "" && n.Topic != ""
}

// ServerConfig controls the data service listeners.
type ServerConfig struct {
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPAddr is the gateway listen address.
func (s ServerConfig) HTTPAddr() string {
	return fmt.Sprintf(":%d", s.HTTPPort)
}

// TelemetryConfig configures the tracer provider.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from defaults, an optional file and SWARM_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("store.backend", StoreSQLite)
	v.SetDefault("store.path", "data/swarm.db")
	v.SetDefault("store.compression", false)
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "swarm:kv:")

	v.SetDefault("crawler.domains", []string{"https://www.abc.net.au/news"})
	v.SetDefault("crawler.host_filter", "www.abc.net.au")
	v.SetDefault("crawler.path_prefix", "/news")
	v.SetDefault("crawler.user_agent", "swarm-bot/0.1")
	v.SetDefault("crawler.max_depth", 0)
	v.SetDefault("crawler.parallelism", 4)
	v.SetDefault("crawler.delay", 250*time.Millisecond)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.run_timeout", 30*time.Minute)

	v.SetDefault("fetch.concurrency", 8)
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.rate_per_host", 4.0)
	v.SetDefault("fetch.burst", 2)

	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.dir", "data/pages")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")

	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.table", "crawl_runs")

	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")

	v.SetDefault("server.grpc_addr", "[::1]:6666")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("telemetry.service_name", "swarm")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}

	switch c.Store.Backend {
	case StoreSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case StoreRedis:
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address is required for the redis backend")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("store.backend must be one of sqlite, redis, memory; got %q", c.Store.Backend)
	}

	if len(c.Crawler.Domains) == 0 || strings.TrimSpace(c.Crawler.Domains[0]) == "" {
		return fmt.Errorf("crawler.domains must name at least one root url")
	}
	if c.Crawler.Parallelism < 0 || c.Crawler.MaxDepth < 0 || c.Crawler.Delay < 0 {
		return fmt.Errorf("crawler.parallelism, crawler.max_depth and crawler.delay must not be negative")
	}
	if c.Crawler.RunTimeout <= 0 {
		return fmt.Errorf("crawler.run_timeout must be > 0")
	}

	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.RatePerHost < 0 {
		return fmt.Errorf("fetch.rate_per_host must not be negative")
	}

	switch c.Archive.Backend {
	case "", ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir is required for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs; got %q", c.Archive.Backend)
	}

	if (c.Notify.ProjectID == "") != (c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set together")
	}

	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("server.grpc_addr is required")
	}
	if c.Server.HTTPPort <= 0 {
		return fmt.Errorf("server.http_port must be > 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// Root returns the root URL crawled by a run.
func (c CrawlerConfig) Root() string {
	if len(c.Domains) == 0 {
		return ""
	}
	return c.Domains[0]
}
