// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/mohans/resultx/resultx"
)

// Config is the process configuration. Library packages never read the
// environment; the CLI converts Config into explicit option structs.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Broker     BrokerConfig     `envPrefix:"BROKER_"`
	Results    ResultsConfig    `envPrefix:"RESULT_"`
	Ledger     LedgerConfig     `envPrefix:"LEDGER_"`
	Classifier ClassifierConfig `envPrefix:"CLASSIFIER_"`
}

// RedisConfig locates the Redis server used as broker and result store.
type RedisConfig struct {
	// Addr is host:port or a redis:// URL.
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// BrokerConfig controls task routing and worker concurrency.
type BrokerConfig struct {
	Queue       string `env:"QUEUE"       envDefault:"celery"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"1"`
}

// ResultsConfig controls where outcomes are stored and how clients wait.
// Wait and Cleanup are nil unless set; each task definition's own policy
// applies then.
type ResultsConfig struct {
	KeyPrefix    string         `env:"KEY_PREFIX"    envDefault:"celery-task-meta-"`
	Wait         *time.Duration `env:"WAIT"`
	PollInterval time.Duration  `env:"POLL_INTERVAL" envDefault:"50ms"`
	Cleanup      *bool          `env:"CLEANUP"`
	Expires      time.Duration  `env:"EXPIRES"       envDefault:"24h"`
}

// LedgerConfig enables the SQL lifecycle ledger. An empty Driver disables it.
type LedgerConfig struct {
	Driver string `env:"DRIVER" envDefault:""`
	DSN    string `env:"DSN"    envDefault:""`
}

// ClassifierConfig extends the failure classification table.
type ClassifierConfig struct {
	// Markers maps traceback substrings to a failure kind, e.g.
	// "MyBusinessError:expected,Traceback:other".
	Markers map[string]string `env:"MARKERS" envSeparator:"," envKeyValSeparator:":"`
	// TimeLimitTypes are exception type names reported as time-limit faults.
	TimeLimitTypes []string `env:"TIME_LIMIT_TYPES" envSeparator:"," envDefault:"TimeLimitExceeded,SoftTimeLimitExceeded"`
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from the environment.
func (c *Config) Sanitize() {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Broker.Queue == "" {
		c.Broker.Queue = resultx.DefaultQueue
	}
	if c.Broker.Concurrency < 1 {
		c.Broker.Concurrency = 1
	}
	if c.Results.Wait != nil && *c.Results.Wait <= 0 {
		c.Results.Wait = nil
	}
	if c.Results.PollInterval <= 0 {
		c.Results.PollInterval = resultx.DefaultPollInterval
	}
	if c.Results.Expires < 0 {
		c.Results.Expires = 0
	}
	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
}

// SlogLevel parses LogLevel, falling back to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// StoreConfig is the result store configuration.
func (c Config) StoreConfig() resultx.StoreConfig {
	return resultx.StoreConfig{
		Addr:      c.Redis.Addr,
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		KeyPrefix: c.Results.KeyPrefix,
		Expires:   c.Results.Expires,
	}
}

// AsynqOpt is the broker connection.
func (c RedisConfig) AsynqOpt() (asynq.RedisConnOpt, error) {
	if strings.Contains(c.Addr, "://") {
		opt, err := asynq.ParseRedisURI(c.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis uri: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: c.Addr, Password: c.Password, DB: c.DB}, nil
}

// Classifier builds the failure classifier: native rules first, then
// time-limit type names, then traceback markers.
func (c ClassifierConfig) Classifier() (*resultx.Classifier, error) {
	rules := resultx.NativeRules()
	rules = append(rules, resultx.TimeLimitRules(c.TimeLimitTypes...)...)
	markers, err := resultx.MarkerRules(c.Markers)
	if err != nil {
		return nil, fmt.Errorf("classifier markers: %w", err)
	}
	rules = append(rules, markers...)
	return resultx.NewClassifier(rules...), nil
}
