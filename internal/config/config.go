package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env string `yaml:"env" env:"APP_ENV"`

	Server struct {
		Port            string `yaml:"port" env:"PORT"`
		ShutdownTimeout string `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		TTL      string `yaml:"ttl" env:"REDIS_SESSION_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"POSTGRES_URL"`
	} `yaml:"postgres"`
	QuestionSets struct {
		TTL string `yaml:"ttl" env:"QUESTION_SET_TTL"`
	} `yaml:"questionSets"`
	Game struct {
		MaxPlayers       int    `yaml:"maxPlayers" env:"GAME_MAX_PLAYERS"`
		TimeBudget       string `yaml:"timeBudget" env:"GAME_TIME_BUDGET"`
		WatchdogInterval string `yaml:"watchdogInterval" env:"GAME_WATCHDOG_INTERVAL"`
		BroadcastTimeout string `yaml:"broadcastTimeout" env:"GAME_BROADCAST_TIMEOUT"`
		Retention        string `yaml:"retention" env:"GAME_RETENTION"`
		ReapInterval     string `yaml:"reapInterval" env:"GAME_REAP_INTERVAL"`
	} `yaml:"game"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	} `yaml:"cors"`
}

// Default returns the configuration used when no file or env override is present.
func Default() Config {
	cfg := Config{Env: "development"}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = "5s"
	cfg.Log.Level = "info"
	cfg.Log.Pretty = true
	cfg.Redis.TTL = "30m"
	cfg.QuestionSets.TTL = "10m"
	cfg.Game.MaxPlayers = 4
	cfg.Game.TimeBudget = "10m"
	cfg.Game.WatchdogInterval = "10s"
	cfg.Game.BroadcastTimeout = "2s"
	cfg.Game.Retention = "30m"
	cfg.Game.ReapInterval = "1m"
	cfg.CORS.AllowedOrigins = []string{"*"}
	return cfg
}

// Load reads YAML config from path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
