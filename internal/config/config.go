// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Store() StoreConfig
	Fingerprint() FingerprintConfig
	Behavior() BehaviorConfig
	Proxy() ProxyConfig
	Cookies() CookieConfig
	API() APIConfig

	// Setters used by CLI flag overrides.
	SetBrowserHeadless(bool)
	SetProxyEnabled(bool)
	SetStoreType(string)
	SetAPIAddr(string)
}

// Config holds the entire application configuration.
// Fields are exported for viper's mapstructure decoding; callers go through the getters.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	NetworkCfg     NetworkConfig     `mapstructure:"network" yaml:"network"`
	StoreCfg       StoreConfig       `mapstructure:"store" yaml:"store"`
	FingerprintCfg FingerprintConfig `mapstructure:"fingerprint" yaml:"fingerprint"`
	BehaviorCfg    BehaviorConfig    `mapstructure:"behavior" yaml:"behavior"`
	ProxyCfg       ProxyConfig       `mapstructure:"proxy" yaml:"proxy"`
	CookiesCfg     CookieConfig      `mapstructure:"cookies" yaml:"cookies"`
	APICfg         APIConfig         `mapstructure:"api" yaml:"api"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig         { return c.NetworkCfg }
func (c *Config) Store() StoreConfig             { return c.StoreCfg }
func (c *Config) Fingerprint() FingerprintConfig { return c.FingerprintCfg }
func (c *Config) Behavior() BehaviorConfig       { return c.BehaviorCfg }
func (c *Config) Proxy() ProxyConfig             { return c.ProxyCfg }
func (c *Config) Cookies() CookieConfig          { return c.CookiesCfg }
func (c *Config) API() APIConfig                 { return c.APICfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetProxyEnabled(b bool)    { c.ProxyCfg.Enabled = b }
func (c *Config) SetStoreType(s string)     { c.StoreCfg.Type = s }
func (c *Config) SetAPIAddr(addr string)    { c.APICfg.Addr = addr }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the launched browser.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// NetworkConfig tunes the outbound HTTP client used for proxy discovery and probing.
type NetworkConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	// Type is one of "file", "postgres", "redis", "sqlite".
	Type          string `mapstructure:"type" yaml:"type"`
	Dir           string `mapstructure:"dir" yaml:"dir"`
	PostgresURL   string `mapstructure:"postgres_url" yaml:"postgres_url"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"-"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix" yaml:"key_prefix"`
	SQLitePath    string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// FingerprintConfig configures the synthetic identity catalog.
type FingerprintConfig struct {
	CatalogSize int `mapstructure:"catalog_size" yaml:"catalog_size"`
	// Seed of 0 means time-seeded.
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// BehaviorConfig holds the distribution parameters for synthesized input behavior.
type BehaviorConfig struct {
	KeyIntervalMeanMs   float64 `mapstructure:"key_interval_mean_ms" yaml:"key_interval_mean_ms"`
	KeyIntervalStdDevMs float64 `mapstructure:"key_interval_stddev_ms" yaml:"key_interval_stddev_ms"`
	KeyIntervalFloorMs  float64 `mapstructure:"key_interval_floor_ms" yaml:"key_interval_floor_ms"`
	PointerStepMeanMs   float64 `mapstructure:"pointer_step_mean_ms" yaml:"pointer_step_mean_ms"`
	PointerStepStdDevMs float64 `mapstructure:"pointer_step_stddev_ms" yaml:"pointer_step_stddev_ms"`
	PointerStepFloorMs  float64 `mapstructure:"pointer_step_floor_ms" yaml:"pointer_step_floor_ms"`
	ErrorRateMin        float64 `mapstructure:"error_rate_min" yaml:"error_rate_min"`
	ErrorRateMax        float64 `mapstructure:"error_rate_max" yaml:"error_rate_max"`
	PerlinAmplitude     float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	// MinActionGap is the spacing below which BeforeAction inserts a cooling pause.
	MinActionGap   time.Duration `mapstructure:"min_action_gap" yaml:"min_action_gap"`
	ActionPauseMin time.Duration `mapstructure:"action_pause_min" yaml:"action_pause_min"`
	ActionPauseMax time.Duration `mapstructure:"action_pause_max" yaml:"action_pause_max"`
	ScrollAfterAct bool          `mapstructure:"scroll_after_action" yaml:"scroll_after_action"`
}

// ProxySourceConfig describes one proxy discovery endpoint.
type ProxySourceConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
	// Format is one of "json", "text", "xml".
	Format string `mapstructure:"format" yaml:"format"`
	// Protocol is assumed for entries that do not carry one.
	Protocol string `mapstructure:"protocol" yaml:"protocol"`
}

// ProxyConfig configures discovery, verification and rotation of egress proxies.
type ProxyConfig struct {
	Enabled          bool                `mapstructure:"enabled" yaml:"enabled"`
	Sources          []ProxySourceConfig `mapstructure:"sources" yaml:"sources"`
	EchoURL          string              `mapstructure:"echo_url" yaml:"echo_url"`
	ProbeTimeout     time.Duration       `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	ProbeConcurrency int                 `mapstructure:"probe_concurrency" yaml:"probe_concurrency"`
	ProbesPerSecond  float64             `mapstructure:"probes_per_second" yaml:"probes_per_second"`
	RotationInterval time.Duration       `mapstructure:"rotation_interval" yaml:"rotation_interval"`
	GeoIPDatabase    string              `mapstructure:"geoip_database" yaml:"geoip_database"`
}

// CookieConfig configures cookie jar rotation.
type CookieConfig struct {
	// Strategy is one of "sequential", "random", "weighted".
	Strategy           string        `mapstructure:"strategy" yaml:"strategy"`
	SequentialInterval time.Duration `mapstructure:"sequential_interval" yaml:"sequential_interval"`
	RandomIntervalMin  time.Duration `mapstructure:"random_interval_min" yaml:"random_interval_min"`
	RandomIntervalMax  time.Duration `mapstructure:"random_interval_max" yaml:"random_interval_max"`
	WeightedInterval   time.Duration `mapstructure:"weighted_interval" yaml:"weighted_interval"`
	VariantsPerCookie  int           `mapstructure:"variants_per_cookie" yaml:"variants_per_cookie"`
}

// APIConfig configures the optional HTTP control surface.
type APIConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"-"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mimic")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.ignore_tls_errors", false)

	// -- Store --
	v.SetDefault("store.type", "file")
	v.SetDefault("store.dir", "~/.mimic")
	v.SetDefault("store.key_prefix", "mimic:")
	v.SetDefault("store.sqlite_path", "~/.mimic/mimic.db")

	// -- Fingerprint --
	v.SetDefault("fingerprint.catalog_size", 100)
	v.SetDefault("fingerprint.seed", 0)

	// -- Behavior --
	setBehaviorDefaults(v)

	// -- Proxy --
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.echo_url", "https://api.ipify.org?format=json")
	v.SetDefault("proxy.probe_timeout", "10s")
	v.SetDefault("proxy.probe_concurrency", 32)
	v.SetDefault("proxy.probes_per_second", 20.0)
	v.SetDefault("proxy.rotation_interval", "10m")

	// -- Cookies --
	v.SetDefault("cookies.strategy", "sequential")
	v.SetDefault("cookies.sequential_interval", "30m")
	v.SetDefault("cookies.random_interval_min", "15m")
	v.SetDefault("cookies.random_interval_max", "45m")
	v.SetDefault("cookies.weighted_interval", "20m")
	v.SetDefault("cookies.variants_per_cookie", 3)

	// -- API --
	v.SetDefault("api.addr", "127.0.0.1:8740")
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "30s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("api.jwt_secret", "MIMIC_API_JWT_SECRET")
	_ = v.BindEnv("store.redis_password", "MIMIC_REDIS_PASSWORD")
	_ = v.BindEnv("store.postgres_url", "MIMIC_POSTGRES_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.FingerprintCfg.CatalogSize <= 0 {
		return fmt.Errorf("fingerprint.catalog_size must be a positive integer")
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if err := c.BehaviorCfg.Validate(); err != nil {
		return fmt.Errorf("behavior configuration invalid: %w", err)
	}
	if err := c.ProxyCfg.Validate(); err != nil {
		return fmt.Errorf("proxy configuration invalid: %w", err)
	}
	if err := c.CookiesCfg.Validate(); err != nil {
		return fmt.Errorf("cookies configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the store backend selection.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case "file":
		if s.Dir == "" {
			return fmt.Errorf("dir is required for the file store")
		}
	case "postgres":
		if s.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for the postgres store (hint: MIMIC_POSTGRES_URL)")
		}
	case "redis":
		if s.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis store")
		}
	case "sqlite":
		if s.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store type %q", s.Type)
	}
	return nil
}

// Validate checks the ProxyConfig settings.
func (p *ProxyConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.EchoURL == "" {
		return fmt.Errorf("echo_url is required when proxies are enabled")
	}
	if p.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be a positive duration")
	}
	if p.ProbeConcurrency <= 0 {
		return fmt.Errorf("probe_concurrency must be a positive integer")
	}
	if p.RotationInterval <= 0 {
		return fmt.Errorf("rotation_interval must be a positive duration")
	}
	for i, src := range p.Sources {
		if src.URL == "" {
			return fmt.Errorf("sources[%d].url is required", i)
		}
	}
	return nil
}

// Validate checks the CookieConfig settings.
func (c *CookieConfig) Validate() error {
	switch c.Strategy {
	case "sequential", "random", "weighted":
	default:
		return fmt.Errorf("unknown rotation strategy %q", c.Strategy)
	}
	if c.RandomIntervalMax < c.RandomIntervalMin {
		return fmt.Errorf("random_interval_max must not be below random_interval_min")
	}
	if c.VariantsPerCookie < 0 {
		return fmt.Errorf("variants_per_cookie must not be negative")
	}
	return nil
}
