package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("PORT", "4000")
	t.Setenv("PAIR_INTERVAL", "2s")
	t.Setenv("TOKEN_DURATION", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4000 || cfg.Addr() != "0.0.0.0:4000" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Game.PairInterval.Std() != 2*time.Second {
		t.Fatalf("pair interval override lost: %v", cfg.Game.PairInterval)
	}
	if cfg.Auth.TokenDuration.Std() != 24*time.Hour {
		t.Fatalf("token duration default lost: %v", cfg.Auth.TokenDuration)
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("PORT", "5000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  listen_addr: 127.0.0.1
  port: 3100
redis:
  url: redis://localhost:6379/1
auth:
  jwt_secret: from-file
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1" || cfg.Server.Port != 5000 {
		t.Fatalf("env must override file: %+v", cfg.Server)
	}
	if cfg.Redis.URL != "redis://localhost:6379/1" || cfg.Auth.JWTSecret != "from-file" {
		t.Fatalf("file values lost: %+v", cfg)
	}
}

func TestLoadParsesYAMLDurations(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TOKEN_DURATION", "")
	t.Setenv("PAIR_INTERVAL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
redis:
  url: redis://localhost:6379/0
auth:
  jwt_secret: from-file
  token_duration: 12h
game:
  pair_interval: 750ms
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.TokenDuration.Std() != 12*time.Hour {
		t.Fatalf("token duration = %v, want 12h", cfg.Auth.TokenDuration)
	}
	if cfg.Game.PairInterval.Std() != 750*time.Millisecond {
		t.Fatalf("pair interval = %v, want 750ms", cfg.Game.PairInterval)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("game:\n  pair_interval: soon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected error for unparseable duration")
	}
}

func TestLoadRequiresRedisAndSecret(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}
