package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"xtick/internal/domain"
)

type Config struct {
	App struct {
		PrintEveryMin   int    `toml:"print_every_min"`
		LogLevel        string `toml:"log_level"`
		FlushIntervalMs int    `toml:"flush_interval_ms"`
	} `toml:"app"`

	Symbols struct {
		Domestic []string `toml:"domestic"`
		Overseas []string `toml:"overseas"`
	} `toml:"symbols"`

	Connector ConnectorConfig `toml:"connector"`
	Staleness StalenessConfig `toml:"staleness"`

	// 未出现在配置中的连接器按默认地址启用
	Exchanges map[string]ExchangeConfig `toml:"exchanges"`

	HTTP struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"http"`

	Storage struct {
		Redis    RedisConfig    `toml:"redis"`
		SQLite   SQLiteConfig   `toml:"sqlite"`
		Postgres PostgresConfig `toml:"postgres"`
	} `toml:"storage"`
}

type ConnectorConfig struct {
	BackoffInitialMs int     `toml:"backoff_initial_ms"`
	BackoffMaxMs     int     `toml:"backoff_max_ms"`
	BackoffFactor    float64 `toml:"backoff_factor"`
	HeartbeatSec     int     `toml:"heartbeat_sec"`
	IdleTimeoutSec   int     `toml:"idle_timeout_sec"`
	FallbackGraceMs  int     `toml:"fallback_grace_ms"`
	PollIntervalMs   int     `toml:"poll_interval_ms"`
	DialTimeoutSec   int     `toml:"dial_timeout_sec"`
}

type StalenessConfig struct {
	PriceMaxAgeSec     int `toml:"price_max_age_sec"`
	ExtendedMaxAgeSec  int `toml:"extended_max_age_sec"`
	MinExtendedSamples int `toml:"min_extended_samples"`
}

type ExchangeConfig struct {
	Enabled *bool  `toml:"enabled"`
	WsURL   string `toml:"ws_url"`
	RestURL string `toml:"rest_url"`
}

// IsEnabled 未设置 enabled 视为启用
func (e ExchangeConfig) IsEnabled() bool { return e.Enabled == nil || *e.Enabled }

type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	Prefix       string `toml:"prefix"`
	TTLSeconds   int    `toml:"ttl_seconds"`
	Channel      string `toml:"channel"`
	ReportStream string `toml:"report_stream"`
}

type SQLiteConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type PostgresConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse 从字符串加载（测试与嵌入配置用）
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.PrintEveryMin <= 0 {
		cfg.App.PrintEveryMin = 5
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.FlushIntervalMs <= 0 {
		cfg.App.FlushIntervalMs = 1000
	}

	c := &cfg.Connector
	if c.BackoffInitialMs <= 0 {
		c.BackoffInitialMs = 1000
	}
	if c.BackoffMaxMs <= 0 {
		c.BackoffMaxMs = 30000
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2
	}
	if c.HeartbeatSec <= 0 {
		c.HeartbeatSec = 25
	}
	if c.IdleTimeoutSec <= 0 {
		c.IdleTimeoutSec = 60
	}
	if c.FallbackGraceMs <= 0 {
		c.FallbackGraceMs = 5000
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = 2000
	}
	if c.DialTimeoutSec <= 0 {
		c.DialTimeoutSec = 10
	}

	s := &cfg.Staleness
	if s.PriceMaxAgeSec <= 0 {
		s.PriceMaxAgeSec = 15
	}
	if s.ExtendedMaxAgeSec <= 0 {
		s.ExtendedMaxAgeSec = 20
	}
	if s.MinExtendedSamples <= 0 {
		s.MinExtendedSamples = 2
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	r := &cfg.Storage.Redis
	if r.Prefix == "" {
		r.Prefix = "xtick"
	}
	if r.Channel == "" {
		r.Channel = r.Prefix + ":ticker"
	}
	if r.ReportStream == "" {
		r.ReportStream = r.Prefix + ":report"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/xtick.db"
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.Domestic = normalizeSymbols(cfg.Symbols.Domestic)
	cfg.Symbols.Overseas = normalizeSymbols(cfg.Symbols.Overseas)
	if len(cfg.Symbols.Domestic) == 0 && len(cfg.Symbols.Overseas) == 0 {
		return errors.New("symbols.domestic and symbols.overseas are both empty")
	}

	switch strings.ToLower(cfg.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level %q invalid", cfg.App.LogLevel)
	}

	if cfg.Connector.BackoffFactor < 1 {
		return errors.New("connector.backoff_factor must be >= 1")
	}
	if cfg.Connector.BackoffMaxMs < cfg.Connector.BackoffInitialMs {
		return errors.New("connector.backoff_max_ms < backoff_initial_ms")
	}
	if cfg.Connector.IdleTimeoutSec <= cfg.Connector.HeartbeatSec {
		return errors.New("connector.idle_timeout_sec must exceed heartbeat_sec")
	}

	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return errors.New("http.addr empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Exchange 连接器配置；未配置时返回零值（启用，默认地址）
func (c *Config) Exchange(id string) ExchangeConfig {
	if c.Exchanges == nil {
		return ExchangeConfig{}
	}
	return c.Exchanges[id]
}

// SymbolsFor 分组对应的订阅币种
func (c *Config) SymbolsFor(g domain.Group) []string {
	if g == domain.GroupDomestic {
		return c.Symbols.Domestic
	}
	return c.Symbols.Overseas
}

func ms(v int) time.Duration  { return time.Duration(v) * time.Millisecond }
func sec(v int) time.Duration { return time.Duration(v) * time.Second }

func (c ConnectorConfig) BackoffInitial() time.Duration { return ms(c.BackoffInitialMs) }
func (c ConnectorConfig) BackoffMax() time.Duration     { return ms(c.BackoffMaxMs) }
func (c ConnectorConfig) Heartbeat() time.Duration      { return sec(c.HeartbeatSec) }
func (c ConnectorConfig) IdleTimeout() time.Duration    { return sec(c.IdleTimeoutSec) }
func (c ConnectorConfig) FallbackGrace() time.Duration  { return ms(c.FallbackGraceMs) }
func (c ConnectorConfig) PollInterval() time.Duration   { return ms(c.PollIntervalMs) }
func (c ConnectorConfig) DialTimeout() time.Duration    { return sec(c.DialTimeoutSec) }

func (s StalenessConfig) PriceMaxAge() time.Duration    { return sec(s.PriceMaxAgeSec) }
func (s StalenessConfig) ExtendedMaxAge() time.Duration { return sec(s.ExtendedMaxAgeSec) }

func (c *Config) FlushInterval() time.Duration { return ms(c.App.FlushIntervalMs) }
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.App.PrintEveryMin) * time.Minute
}
