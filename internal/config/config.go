package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"index-anomaly-alerts/internal/detector"
	"index-anomaly-alerts/internal/logging"
	"index-anomaly-alerts/internal/market"
)

// Storage drivers understood by the checkpoint store factory.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Market    MarketConfig    `mapstructure:"market"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Quote     QuoteConfig     `mapstructure:"quote"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MarketConfig lists the tracked indices and the exchange timezone.
type MarketConfig struct {
	Timezone    string             `mapstructure:"timezone"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
}

// InstrumentConfig is one row of the threshold table.
type InstrumentConfig struct {
	Code     string  `mapstructure:"code"`
	Name     string  `mapstructure:"name"`
	RapidPct float64 `mapstructure:"rapid_pct"`
	LargePct float64 `mapstructure:"large_pct"`
}

// DetectorConfig tunes the window engine.
type DetectorConfig struct {
	Window            time.Duration `mapstructure:"window"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	VThreshold        float64       `mapstructure:"v_threshold"`
	RiseFallThreshold float64       `mapstructure:"rise_fall_threshold"`
	FlatThreshold     float64       `mapstructure:"flat_threshold"`
	VolumeChangePct   float64       `mapstructure:"volume_change_pct"`
}

// QuoteConfig captures the quote API connectivity.
type QuoteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// StorageConfig selects the checkpoint store.
type StorageConfig struct {
	Driver         string        `mapstructure:"driver"`
	Path           string        `mapstructure:"path"`
	Key            string        `mapstructure:"key"`
	LockStaleAfter time.Duration `mapstructure:"lock_stale_after"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig encapsulates Redis connectivity for the checkpoint store.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Cron            string        `mapstructure:"cron"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	DingTalk DingTalkConfig `mapstructure:"dingtalk"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DingTalkConfig 描述钉钉机器人参数。Secret 为空时不加签。
type DingTalkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Webhook string `mapstructure:"webhook"`
	Secret  string `mapstructure:"secret"`
	Title   string `mapstructure:"title"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "indexwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("market.timezone", "Asia/Shanghai")
	v.SetDefault("market.instruments", defaultInstruments())

	def := detector.DefaultConfig()
	v.SetDefault("detector.window", def.Window.String())
	v.SetDefault("detector.stale_after", "20m")
	v.SetDefault("detector.v_threshold", def.VThreshold)
	v.SetDefault("detector.rise_fall_threshold", def.RiseFallThreshold)
	v.SetDefault("detector.flat_threshold", def.FlatThreshold)
	v.SetDefault("detector.volume_change_pct", def.VolumeChangePct)

	v.SetDefault("quote.base_url", "https://qt.gtimg.cn")
	v.SetDefault("quote.request_timeout", "10s")
	v.SetDefault("quote.user_agent", "indexwatch/1.0")

	v.SetDefault("storage.driver", DriverFile)
	v.SetDefault("storage.path", "data/index_window_state.json")
	v.SetDefault("storage.key", "indexwatch:checkpoints")
	v.SetDefault("storage.lock_stale_after", "2m")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("redis.lock_ttl", "2m")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x69647877))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.cron", "")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.channels", []string{"console"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.dingtalk.enabled", false)
	v.SetDefault("alerting.dingtalk.webhook", "")
	v.SetDefault("alerting.dingtalk.secret", "")
	v.SetDefault("alerting.dingtalk.title", "市场总结")
}

func defaultInstruments() []map[string]any {
	defaults := market.DefaultInstruments()
	rows := make([]map[string]any, 0, len(defaults))
	for _, inst := range defaults {
		rows = append(rows, map[string]any{
			"code":      inst.Code,
			"name":      inst.Name,
			"rapid_pct": inst.RapidPct,
			"large_pct": inst.LargePct,
		})
	}
	return rows
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Market.Instruments) == 0 {
		return fmt.Errorf("market.instruments must not be empty")
	}
	for i, inst := range c.Market.Instruments {
		if inst.Code == "" {
			return fmt.Errorf("market.instruments[%d].code is required", i)
		}
		if inst.RapidPct < 0 || inst.LargePct < 0 {
			return fmt.Errorf("market.instruments[%d] thresholds cannot be negative", i)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Detector.Window <= 0 {
		return fmt.Errorf("detector.window must be greater than zero")
	}
	if c.Detector.StaleAfter <= 0 {
		return fmt.Errorf("detector.stale_after must be greater than zero")
	}
	if c.Detector.VThreshold < 0 || c.Detector.RiseFallThreshold < 0 ||
		c.Detector.FlatThreshold < 0 || c.Detector.VolumeChangePct < 0 {
		return fmt.Errorf("detector thresholds cannot be negative")
	}
	if c.Quote.RequestTimeout <= 0 {
		return fmt.Errorf("quote.request_timeout must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the file driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.DingTalk.Enabled && c.Alerting.DingTalk.Webhook == "" {
		return fmt.Errorf("alerting.dingtalk.webhook 必须配置")
	}
	return nil
}

// Location resolves the market timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market.timezone %q: %w", c.Market.Timezone, err)
	}
	return loc, nil
}

// Universe builds the instrument universe from the threshold table. A row
// that leaves a threshold unset (zero) gets the fallback value for it.
func (c *Config) Universe() market.Universe {
	instruments := make([]market.Instrument, 0, len(c.Market.Instruments))
	for _, row := range c.Market.Instruments {
		name := row.Name
		if name == "" {
			name = row.Code
		}
		th := market.Thresholds{RapidPct: row.RapidPct, LargePct: row.LargePct}
		if th.RapidPct <= 0 {
			th.RapidPct = market.FallbackThresholds.RapidPct
		}
		if th.LargePct <= 0 {
			th.LargePct = market.FallbackThresholds.LargePct
		}
		instruments = append(instruments, market.Instrument{
			Code:       row.Code,
			Name:       name,
			Thresholds: th,
		})
	}
	return market.NewUniverse(instruments)
}

// EngineConfig maps the detector section onto the engine configuration.
func (c *Config) EngineConfig(loc *time.Location) detector.Config {
	return detector.Config{
		Window:            c.Detector.Window,
		VThreshold:        c.Detector.VThreshold,
		RiseFallThreshold: c.Detector.RiseFallThreshold,
		FlatThreshold:     c.Detector.FlatThreshold,
		VolumeChangePct:   c.Detector.VolumeChangePct,
		Location:          loc,
	}
}
