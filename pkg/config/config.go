package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"NiftyPulse/pkg/util"
)

// ErrSessionOverlap is returned by Validate when two session windows intersect.
var ErrSessionOverlap = errors.New("session windows overlap")

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps" default:"20"`
		RateLimitBurst  int           `yaml:"rate_limit_burst" default:"40"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Market      MarketConfig      `yaml:"market"`
	Instruments InstrumentsConfig `yaml:"instruments"`
	Sessions    []SessionConfig   `yaml:"sessions"`
	Detection   DetectionConfig   `yaml:"detection"`
	Ticks       TicksConfig       `yaml:"ticks"`
	Signals     struct {
		Backend string `yaml:"backend" default:"postgres"` // postgres | memory
	} `yaml:"signals"`
	Broadcast struct {
		Kafka        bool   `yaml:"kafka" default:"true"`
		Redis        bool   `yaml:"redis" default:"false"`
		Topic        string `yaml:"topic" default:"niftypulse.signals"`
		Channel      string `yaml:"channel" default:"niftypulse:events"`
		Stream       string `yaml:"stream" default:"niftypulse:events:stream"`
		StreamMaxLen int64  `yaml:"stream_max_len" default:"10000"`
	} `yaml:"broadcast"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"niftypulse.ticks"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"niftypulse-ticks"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"niftypulse.ticks.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"niftypulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns" default:"10"`
		MinConns        int32         `yaml:"min_conns" default:"1"`
		MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"1h"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"10s"`
	} `yaml:"postgres"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"niftypulse"`
	} `yaml:"redis"`
	Feed FeedConfig `yaml:"feed"`
}

type MarketConfig struct {
	Timezone    string   `yaml:"timezone" default:"Asia/Kolkata"`
	Open        string   `yaml:"open" default:"09:15"`
	Close       string   `yaml:"close" default:"15:30"`
	TradingDays []string `yaml:"trading_days" default:"[\"Mon\",\"Tue\",\"Wed\",\"Thu\",\"Fri\"]"`
}

type InstrumentsConfig struct {
	Index   string `yaml:"index" default:"NIFTY"`
	Futures string `yaml:"futures" default:"NIFTY28AUG25FUT"`
}

// SessionConfig is one named intraday window, start and end as HH:MM.
type SessionConfig struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type DetectionConfig struct {
	ActiveInterval   time.Duration `yaml:"active_interval" default:"10s"`
	IdleInterval     time.Duration `yaml:"idle_interval" default:"60s"`
	CandleWindow     time.Duration `yaml:"candle_window" default:"5m"`
	HistorySize      int           `yaml:"history_size" default:"100"`
	Staleness        time.Duration `yaml:"staleness" default:"4h"`
	SweepInterval    time.Duration `yaml:"sweep_interval" default:"30m"`
	PriceLookback    time.Duration `yaml:"price_lookback" default:"5m"`
	StoreTimeout     time.Duration `yaml:"store_timeout" default:"5s"`
	RetryMax         int           `yaml:"retry_max" default:"3"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" default:"200ms"`
	ConfirmationGate bool          `yaml:"confirmation_gate"`
	PeakHourStart    int           `yaml:"peak_hour_start" default:"10"`
	PeakHourEnd      int           `yaml:"peak_hour_end" default:"14"`
	VWAPDeviation    float64       `yaml:"vwap_deviation" default:"0.005"`
	VolumeThreshold  float64       `yaml:"volume_threshold" default:"10000"`
}

type TicksConfig struct {
	Backend         string        `yaml:"backend" default:"clickhouse"` // clickhouse | memory
	MinPriceChange  float64       `yaml:"min_price_change" default:"0.5"`
	MinTimeInterval time.Duration `yaml:"min_time_interval" default:"500ms"`
	Retention       time.Duration `yaml:"retention" default:"168h"`
	PurgeInterval   time.Duration `yaml:"purge_interval" default:"1h"`
	MaxRPS          int           `yaml:"max_rps" default:"50"`
	Burst           int           `yaml:"burst" default:"100"`
	BufferSize      int           `yaml:"buffer_size" default:"2000"`
	MarketHoursOnly bool          `yaml:"market_hours_only" default:"true"`
}

type FeedConfig struct {
	Enabled        bool              `yaml:"enabled"`
	WebSocketURL   string            `yaml:"websocket_url"`
	AuthToken      string            `yaml:"auth_token"`
	Tokens         map[string]string `yaml:"tokens"` // broker token -> symbol
	ReconnectDelay time.Duration     `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration     `yaml:"ping_interval" default:"30s"`
}

// DefaultSessions are used when the config file lists none.
func DefaultSessions() []SessionConfig {
	return []SessionConfig{
		{Name: "Morning Opening", Start: "09:30", End: "09:35"},
		{Name: "Mid Morning", Start: "09:45", End: "09:55"},
		{Name: "Pre Lunch", Start: "10:30", End: "10:45"},
		{Name: "Lunch Break", Start: "11:50", End: "12:20"},
	}
}

// Default returns a config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.Sessions = DefaultSessions()
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.Sessions) == 0 {
		c.Sessions = DefaultSessions()
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("FUTURES_SYMBOL"); v != "" {
		c.Instruments.Futures = v
	}
	if v := os.Getenv("TICKS_BACKEND"); v != "" {
		c.Ticks.Backend = v
	}
	if v := os.Getenv("SIGNALS_BACKEND"); v != "" {
		c.Signals.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("FEED_AUTH_TOKEN"); v != "" {
		c.Feed.AuthToken = v
	}
	if v := os.Getenv("CONFIRMATION_GATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Detection.ConfirmationGate = b
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Ticks.Backend != "clickhouse" && c.Ticks.Backend != "memory" {
		return fmt.Errorf("ticks.backend must be 'clickhouse' or 'memory', got '%s'", c.Ticks.Backend)
	}
	if c.Signals.Backend != "postgres" && c.Signals.Backend != "memory" {
		return fmt.Errorf("signals.backend must be 'postgres' or 'memory', got '%s'", c.Signals.Backend)
	}
	if c.Signals.Backend == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when signals.backend is postgres")
	}
	if c.Instruments.Index == "" || c.Instruments.Futures == "" {
		return fmt.Errorf("instruments.index and instruments.futures are required")
	}
	if c.Instruments.Index == c.Instruments.Futures {
		return fmt.Errorf("instruments.index and instruments.futures must differ")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone: %w", err)
	}
	open, err := util.ParseClock(c.Market.Open)
	if err != nil {
		return fmt.Errorf("market.open: %w", err)
	}
	closeAt, err := util.ParseClock(c.Market.Close)
	if err != nil {
		return fmt.Errorf("market.close: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("market.close must be after market.open")
	}
	if _, err := util.ParseWeekdays(c.Market.TradingDays); err != nil {
		return fmt.Errorf("market.trading_days: %w", err)
	}
	if c.Detection.ActiveInterval <= 0 || c.Detection.IdleInterval <= 0 {
		return fmt.Errorf("detection intervals must be positive")
	}
	if c.Detection.CandleWindow <= 0 {
		return fmt.Errorf("detection.candle_window must be positive")
	}
	if c.Detection.HistorySize <= 0 {
		return fmt.Errorf("detection.history_size must be positive")
	}
	if c.Detection.RetryMax < 1 {
		return fmt.Errorf("detection.retry_max must be at least 1")
	}
	return ValidateSessions(c.Sessions)
}

// ValidateSessions rejects malformed, duplicate or overlapping session windows.
func ValidateSessions(sessions []SessionConfig) error {
	if len(sessions) == 0 {
		return fmt.Errorf("at least one session is required")
	}
	type window struct {
		name       string
		start, end time.Duration
	}
	seen := make(map[string]struct{}, len(sessions))
	windows := make([]window, 0, len(sessions))
	for _, s := range sessions {
		if s.Name == "" {
			return fmt.Errorf("session name is required")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate session name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		start, err := util.ParseClock(s.Start)
		if err != nil {
			return fmt.Errorf("session %q start: %w", s.Name, err)
		}
		end, err := util.ParseClock(s.End)
		if err != nil {
			return fmt.Errorf("session %q end: %w", s.Name, err)
		}
		if end <= start {
			return fmt.Errorf("session %q must end after it starts", s.Name)
		}
		windows = append(windows, window{name: s.Name, start: start, end: end})
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].start < windows[j].start })
	for i := 1; i < len(windows); i++ {
		if windows[i].start <= windows[i-1].end {
			return fmt.Errorf("%w: %q and %q", ErrSessionOverlap, windows[i-1].name, windows[i].name)
		}
	}
	return nil
}
