// Package config provides configuration management for adminrelay.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the full service configuration.
//
// INI format:
//
//	[platform]
//	url = https://analyticsadmin.example.com/v1alpha
//	token = <bearer-token>
//
//	[server]
//	listen = :8080
//
//	[storage]
//	sqlite_path = /var/lib/adminrelay/ledger.db
//	cache_path = /var/lib/adminrelay/cache
//	cache_domain = ga
//
//	[ratelimit]
//	tokens_per_second = 1.6
//	burst = 150
//	wait_timeout_seconds = 30
//
//	[scheduler]
//	max_in_flight = 32
//
//	[retry]
//	max_retries = 3
//	initial_delay_ms = 1000
//	jitter_ms = 200
//
//	[proxy]
//	mode = no-proxy
type Config struct {
	// Remote admin API connection settings
	PlatformURL string `ini:"url"`
	APIToken    string `ini:"token"`

	// Inbound HTTP listener
	ListenAddr string `ini:"listen"`

	Storage   StorageConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
	Retry     RetryConfig
	Proxy     ProxyConfig
}

// StorageConfig locates the quota ledger and the results cache.
type StorageConfig struct {
	// SQLitePath is the quota ledger database file.
	SQLitePath string `ini:"sqlite_path"`

	// CachePath is the badger directory for the results cache.
	CachePath string `ini:"cache_path"`

	// CacheDomain prefixes every cache key ("<domain>:<resource>:userId:<id>").
	CacheDomain string `ini:"cache_domain"`
}

// RateLimitConfig shapes the per-user token bucket.
type RateLimitConfig struct {
	// TokensPerSecond is the bucket refill rate per user.
	TokensPerSecond float64 `ini:"tokens_per_second"`

	// Burst is the bucket capacity per user.
	Burst float64 `ini:"burst"`

	// WaitTimeout bounds how long a wave waits for a token before treating
	// the condition as rate-limited.
	WaitTimeout time.Duration `ini:"-"`
}

// SchedulerConfig caps total in-flight outbound calls across all users.
type SchedulerConfig struct {
	MaxInFlight int64 `ini:"max_in_flight"`
}

// RetryConfig bounds the wave-level retry controller.
type RetryConfig struct {
	// MaxRetries is the bounded attempt count after the first wave.
	MaxRetries int `ini:"max_retries"`

	// InitialDelay is the first backoff delay; it doubles every retry.
	InitialDelay time.Duration `ini:"-"`

	// JitterMax is the upper bound of the random jitter added to each delay.
	JitterMax time.Duration `ini:"-"`
}

// ProxyConfig configures the outbound proxy, when one is required.
type ProxyConfig struct {
	// Mode is one of: no-proxy, system, basic, ntlm.
	Mode     string `ini:"mode"`
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
	NoProxy  string `ini:"no_proxy"`
}

// Validation errors
var (
	ErrMissingPlatformURL = errors.New("platform url is required")
	ErrMissingAPIToken    = errors.New("platform token is required")
	ErrInvalidRate        = errors.New("ratelimit tokens_per_second must be positive")
	ErrInvalidBurst       = errors.New("ratelimit burst must be positive")
	ErrInvalidCeiling     = errors.New("scheduler max_in_flight must be positive")
	ErrInvalidRetries     = errors.New("retry max_retries must be between 0 and 10")
)

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Storage: StorageConfig{
			SQLitePath:  "adminrelay.db",
			CachePath:   "adminrelay-cache",
			CacheDomain: "ga",
		},
		RateLimit: RateLimitConfig{
			TokensPerSecond: 1.6,
			Burst:           150,
			WaitTimeout:     30 * time.Second,
		},
		Scheduler: SchedulerConfig{MaxInFlight: 32},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Second,
			JitterMax:    200 * time.Millisecond,
		},
		Proxy: ProxyConfig{Mode: "no-proxy"},
	}
}

// DefaultPath returns the default path for the config file.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "adminrelay", "config.ini"), nil
}

// Load reads configuration from an INI file, then applies environment
// overrides. A missing file yields defaults and no error; a malformed file is
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			applyEnv(cfg)
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnv(cfg)
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	platform := iniFile.Section("platform")
	cfg.PlatformURL = platform.Key("url").MustString(cfg.PlatformURL)
	cfg.APIToken = platform.Key("token").String()

	server := iniFile.Section("server")
	cfg.ListenAddr = server.Key("listen").MustString(cfg.ListenAddr)

	storage := iniFile.Section("storage")
	cfg.Storage.SQLitePath = storage.Key("sqlite_path").MustString(cfg.Storage.SQLitePath)
	cfg.Storage.CachePath = storage.Key("cache_path").MustString(cfg.Storage.CachePath)
	cfg.Storage.CacheDomain = storage.Key("cache_domain").MustString(cfg.Storage.CacheDomain)

	rl := iniFile.Section("ratelimit")
	cfg.RateLimit.TokensPerSecond = rl.Key("tokens_per_second").MustFloat64(cfg.RateLimit.TokensPerSecond)
	cfg.RateLimit.Burst = rl.Key("burst").MustFloat64(cfg.RateLimit.Burst)
	cfg.RateLimit.WaitTimeout = time.Duration(rl.Key("wait_timeout_seconds").MustInt(30)) * time.Second

	sched := iniFile.Section("scheduler")
	cfg.Scheduler.MaxInFlight = sched.Key("max_in_flight").MustInt64(cfg.Scheduler.MaxInFlight)

	retry := iniFile.Section("retry")
	cfg.Retry.MaxRetries = retry.Key("max_retries").MustInt(cfg.Retry.MaxRetries)
	cfg.Retry.InitialDelay = time.Duration(retry.Key("initial_delay_ms").MustInt(1000)) * time.Millisecond
	cfg.Retry.JitterMax = time.Duration(retry.Key("jitter_ms").MustInt(200)) * time.Millisecond

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = proxy.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(0)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.Password = proxy.Key("password").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv applies ADMINRELAY_* environment overrides on top of file values.
// The token commonly arrives via environment in container deployments.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ADMINRELAY_PLATFORM_URL"); v != "" {
		cfg.PlatformURL = v
	}
	if v := os.Getenv("ADMINRELAY_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("ADMINRELAY_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ADMINRELAY_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ADMINRELAY_CACHE_PATH"); v != "" {
		cfg.Storage.CachePath = v
	}
}

// Validate checks that the configuration can run the service.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.PlatformURL) == "" {
		return ErrMissingPlatformURL
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return ErrMissingAPIToken
	}
	if cfg.RateLimit.TokensPerSecond <= 0 {
		return ErrInvalidRate
	}
	if cfg.RateLimit.Burst <= 0 {
		return ErrInvalidBurst
	}
	if cfg.Scheduler.MaxInFlight <= 0 {
		return ErrInvalidCeiling
	}
	if cfg.Retry.MaxRetries < 0 || cfg.Retry.MaxRetries > 10 {
		return ErrInvalidRetries
	}
	return nil
}
