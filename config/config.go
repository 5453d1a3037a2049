// Package config loads planner settings from defaults, an optional
// messplanner.yaml and MESS_* environment variables (MESS_SERVER_ADDR for
// server.addr and so on), in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/planner"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "MESS"

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	App     AppConfig     `mapstructure:"app"`
	Model   ModelConfig   `mapstructure:"model"`
	Runner  RunnerConfig  `mapstructure:"runner"`
	Session SessionConfig `mapstructure:"session"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Search  SearchConfig  `mapstructure:"search"`
	Planner PlannerConfig `mapstructure:"planner"`
	Log     LogConfig     `mapstructure:"log"`
	Chat    ChatConfig    `mapstructure:"chat"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	CORS         bool          `mapstructure:"cors"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	PlanTimeout  time.Duration `mapstructure:"plan_timeout"`
	Debug        bool          `mapstructure:"debug"`
}

type AppConfig struct {
	Name           string `mapstructure:"name"`
	DefaultUser    string `mapstructure:"default_user"`
	DefaultSession string `mapstructure:"default_session"`
	DefaultMessage string `mapstructure:"default_message"`
}

type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
	Streaming   bool    `mapstructure:"streaming"`
}

type RunnerConfig struct {
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
	MaxModelCalls     int `mapstructure:"max_model_calls"`
}

type SessionConfig struct {
	Backend  string        `mapstructure:"backend"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MemoryConfig struct {
	Backend      string `mapstructure:"backend"`
	MySQLDSN     string `mapstructure:"mysql_dsn"`
	PreloadLimit int    `mapstructure:"preload_limit"`
}

type SearchConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Endpoint  string        `mapstructure:"endpoint"`
	CacheSize int           `mapstructure:"cache_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type PlannerConfig struct {
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ChatConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Backoff  float64       `mapstructure:"backoff"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// New returns a viper instance with defaults and environment binding. Flags
// may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors", true)
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.plan_timeout", time.Duration(0))
	v.SetDefault("server.debug", false)

	v.SetDefault("app.name", "mess_planner")
	v.SetDefault("app.default_user", "user1")
	v.SetDefault("app.default_session", "session1")
	v.SetDefault("app.default_message", "Plan kar do bhai")

	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.name", "")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.max_tokens", 2048)
	v.SetDefault("model.streaming", false)

	v.SetDefault("runner.max_concurrent_runs", 10)
	v.SetDefault("runner.max_model_calls", 25)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.redis_url", "")
	v.SetDefault("session.ttl", 7*24*time.Hour)

	v.SetDefault("memory.backend", "memory")
	v.SetDefault("memory.mysql_dsn", "")
	v.SetDefault("memory.preload_limit", 5)

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.cache_size", 128)
	v.SetDefault("search.timeout", 10*time.Second)

	v.SetDefault("planner.mode", string(planner.ModeCoordinator))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("chat.base_url", "http://localhost:8080")
	v.SetDefault("chat.attempts", 3)
	v.SetDefault("chat.delay", 5*time.Second)
	v.SetDefault("chat.backoff", 1.0)
	v.SetDefault("chat.timeout", 120*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file and decodes v into a validated Config.
// An empty file searches messplanner.{yaml,json,toml} in the working directory
// and $HOME/.config/messplanner; a missing file is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("messplanner")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/messplanner")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks enumerations and required companions of the backends.
func (c Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		errs = append(errs, fmt.Errorf("model.provider: unknown provider %q", c.Model.Provider))
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			errs = append(errs, errors.New("session.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend: unknown backend %q", c.Session.Backend))
	}

	switch c.Memory.Backend {
	case "memory":
	case "mysql":
		if c.Memory.MySQLDSN == "" {
			errs = append(errs, errors.New("memory.mysql_dsn is required for the mysql backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.backend: unknown backend %q", c.Memory.Backend))
	}

	if _, err := planner.ParseMode(c.Planner.Mode); err != nil {
		errs = append(errs, fmt.Errorf("planner.mode: %w", err))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Runner.MaxConcurrentRuns < 1 {
		errs = append(errs, errors.New("runner.max_concurrent_runs must be at least 1"))
	}
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name must not be empty"))
	}

	return errors.Join(errs...)
}
