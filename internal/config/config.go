package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. TUTOR_REDIS__ADDR.
const EnvPrefix = "TUTOR_"

// ErrInvalidConfig is returned when the merged configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server struct {
		Port         string        `koanf:"port"`
		ReadTimeout  time.Duration `koanf:"read_timeout"`
		WriteTimeout time.Duration `koanf:"write_timeout"`
	} `koanf:"server"`
	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`
	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		DB       int           `koanf:"db"`
		TTL      time.Duration `koanf:"ttl"`
	} `koanf:"redis"`
	Postgres struct {
		URL string `koanf:"url"`
	} `koanf:"postgres"`
	Quiz struct {
		// TTL bounds how long stored question sets are kept.
		TTL time.Duration `koanf:"ttl"`
		// QuestionTimeout enables server-side per-question deadlines when > 0.
		QuestionTimeout time.Duration `koanf:"question_timeout"`
		ResultsTTL      time.Duration `koanf:"results_ttl"`
	} `koanf:"quiz"`
	Events struct {
		KafkaBrokers  []string `koanf:"kafka_brokers"`
		ResultsTopic  string   `koanf:"results_topic"`
		ConsumerGroup string   `koanf:"consumer_group"`
	} `koanf:"events"`
	Chat struct {
		// HistoryLimit caps the messages sent to a user joining a doubt chat.
		HistoryLimit int `koanf:"history_limit"`
	} `koanf:"chat"`
	Auth struct {
		Casdoor CasdoorConfig `koanf:"casdoor"`
	} `koanf:"auth"`
	Seed struct {
		Path string `koanf:"path"`
	} `koanf:"seed"`
}

// CasdoorConfig configures JWT verification against a Casdoor instance.
type CasdoorConfig struct {
	Endpoint     string `koanf:"endpoint"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	Certificate  string `koanf:"certificate"`
	Organization string `koanf:"organization"`
	Application  string `koanf:"application"`
}

// Enabled reports whether enough is configured to verify tokens.
func (c CasdoorConfig) Enabled() bool {
	return c.Endpoint != "" && c.Certificate != ""
}

// New returns the defaults.
func New() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Redis.TTL = 10 * time.Minute
	cfg.Quiz.TTL = 24 * time.Hour
	cfg.Quiz.ResultsTTL = time.Hour
	cfg.Events.ResultsTopic = "quiz.results"
	cfg.Events.ConsumerGroup = "tutor-live-results"
	cfg.Chat.HistoryLimit = 50
	return cfg
}

// Load layers defaults, the YAML file at path (skipped when path is empty or
// missing) and TUTOR_ environment variables, in that order.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server.port must not be empty", ErrInvalidConfig)
	}
	if c.Quiz.QuestionTimeout < 0 {
		return fmt.Errorf("%w: quiz.question_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Events.ResultsTopic == "" {
		return fmt.Errorf("%w: events.results_topic must not be empty", ErrInvalidConfig)
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("%w: chat.history_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// TTLDuration returns d, or fallback when d is not positive.
func TTLDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
