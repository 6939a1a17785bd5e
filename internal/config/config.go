package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime knob for the workforce service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type LLMConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type SearchConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type AgentsConfig struct {
	// MaxRetries is the number of additional attempts after a failed turn.
	MaxRetries  int           `mapstructure:"max_retries"`
	TurnTimeout time.Duration `mapstructure:"turn_timeout"`
}

type StreamingConfig struct {
	RingCapacity     int           `mapstructure:"ring_capacity"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongTimeout      time.Duration `mapstructure:"pong_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.path", "data/workforce.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.burst", 4)
	v.SetDefault("search.base_url", "https://api.tavily.com")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("agents.max_retries", 2)
	v.SetDefault("agents.turn_timeout", 120*time.Second)
	v.SetDefault("streaming.ring_capacity", 256)
	v.SetDefault("streaming.subscriber_buffer", 64)
	v.SetDefault("streaming.ping_interval", 20*time.Second)
	v.SetDefault("streaming.pong_timeout", 60*time.Second)
	v.SetDefault("logging.level", "info")
}

// Load reads workforce.yaml from CONFIG_PATH (optional) and applies
// WORKFORCE_* environment overrides, e.g. WORKFORCE_LLM_API_KEY.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WORKFORCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgPath := os.Getenv("CONFIG_PATH"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Agents.MaxRetries < 0 {
		return fmt.Errorf("agents.max_retries must be >= 0")
	}
	if c.Streaming.RingCapacity <= 0 {
		return fmt.Errorf("streaming.ring_capacity must be > 0")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
