package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds everything the server needs to start. Values come from an
// optional YAML file first, then environment variables override.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Game     GameConfig     `yaml:"game"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Port       int    `yaml:"port"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	JWTSecret     string   `yaml:"jwt_secret"`
	TokenDuration Duration `yaml:"token_duration"`
}

type GameConfig struct {
	PairInterval Duration `yaml:"pair_interval"`
}

// Duration decodes YAML strings like "24h" or "500ms"; yaml.v3 cannot
// unmarshal into time.Duration directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load builds the configuration. path may be empty when everything comes
// from the environment.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{
		Server: ServerConfig{ListenAddr: "0.0.0.0", Port: 3000},
		Auth:   AuthConfig{TokenDuration: Duration(24 * time.Hour)},
		Game:   GameConfig{PairInterval: Duration(5 * time.Second)},
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.Redis.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("TOKEN_DURATION")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Auth.TokenDuration = Duration(d)
		}
	}
	if v := strings.TrimSpace(os.Getenv("PAIR_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Game.PairInterval = Duration(d)
		}
	}

	if cfg.Redis.URL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddr, c.Server.Port)
}
