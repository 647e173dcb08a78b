package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Feed struct {
		WebSocketURL      string        `yaml:"websocket_url"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		ConnectTimeout    time.Duration `yaml:"connect_timeout"`
		ReconnectBackoff  time.Duration `yaml:"reconnect_backoff"`
		MaxReconnects     int           `yaml:"max_reconnects"`
		StaleAfter        time.Duration `yaml:"stale_after"`
		TickBufferSize    int           `yaml:"tick_buffer_size"`
		MaxProcessErrors  int           `yaml:"max_process_errors"`
	} `yaml:"feed"`
	Auth struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"auth"`
	Gateway struct {
		HostURL string        `yaml:"host_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"gateway"`
	Scheduler struct {
		TokenRefreshInterval time.Duration `yaml:"token_refresh_interval"`
		TokenMaxAge          time.Duration `yaml:"token_max_age"`
		MonitorInterval      time.Duration `yaml:"monitor_interval"`
		StoreRetryAfter      time.Duration `yaml:"store_retry_after"`
	} `yaml:"scheduler"`
	Runtime struct {
		CycleInterval   time.Duration `yaml:"cycle_interval"`
		ErrorInterval   time.Duration `yaml:"error_interval"`
		SignalThrottle  time.Duration `yaml:"signal_throttle"`
		WindowSize      int           `yaml:"window_size"`
		HistoryLookback time.Duration `yaml:"history_lookback"`
		ScriptTimeout   time.Duration `yaml:"script_timeout"`
	} `yaml:"runtime"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

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

	if v := os.Getenv("FEED_WS_URL"); v != "" {
		c.Feed.WebSocketURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("GATEWAY_HOST_URL"); v != "" {
		c.Gateway.HostURL = v
	}

	return c, nil
}

// applyDefaults fills zero values with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Feed.HeartbeatInterval == 0 {
		c.Feed.HeartbeatInterval = 30 * time.Second
	}
	if c.Feed.ConnectTimeout == 0 {
		c.Feed.ConnectTimeout = 10 * time.Second
	}
	if c.Feed.ReconnectBackoff == 0 {
		c.Feed.ReconnectBackoff = 2 * time.Second
	}
	if c.Feed.MaxReconnects == 0 {
		c.Feed.MaxReconnects = 5
	}
	if c.Feed.StaleAfter == 0 {
		c.Feed.StaleAfter = 300 * time.Second
	}
	if c.Feed.TickBufferSize == 0 {
		c.Feed.TickBufferSize = 1000
	}
	if c.Feed.MaxProcessErrors == 0 {
		c.Feed.MaxProcessErrors = 10
	}
	if c.Scheduler.TokenRefreshInterval == 0 {
		c.Scheduler.TokenRefreshInterval = time.Hour
	}
	if c.Scheduler.TokenMaxAge == 0 {
		c.Scheduler.TokenMaxAge = 6 * time.Hour
	}
	if c.Scheduler.MonitorInterval == 0 {
		c.Scheduler.MonitorInterval = 60 * time.Second
	}
	if c.Scheduler.StoreRetryAfter == 0 {
		c.Scheduler.StoreRetryAfter = 300 * time.Second
	}
	if c.Runtime.CycleInterval == 0 {
		c.Runtime.CycleInterval = 10 * time.Second
	}
	if c.Runtime.ErrorInterval == 0 {
		c.Runtime.ErrorInterval = 30 * time.Second
	}
	if c.Runtime.SignalThrottle == 0 {
		c.Runtime.SignalThrottle = 60 * time.Second
	}
	if c.Runtime.WindowSize == 0 {
		c.Runtime.WindowSize = 500
	}
	if c.Runtime.HistoryLookback == 0 {
		c.Runtime.HistoryLookback = 48 * time.Hour
	}
	if c.Runtime.ScriptTimeout == 0 {
		c.Runtime.ScriptTimeout = 5 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka is enabled")
	}
	return nil
}
