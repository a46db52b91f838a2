package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(envMap(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
}

func TestLoadEnv(t *testing.T) {
	cfg, err := load(envMap(map[string]string{
		"PORT":           "9000",
		"DB_PATH":        "/tmp/x.db",
		"JWT_SECRET":     "s3cret",
		"MATCH_DURATION": "90s",
		"DEBUG":          "true",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" || cfg.DBPath != "/tmp/x.db" || cfg.JWTSecret != "s3cret" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.MatchDuration != 90*time.Second {
		t.Fatalf("expected 90s, got %v", cfg.MatchDuration)
	}
	if !cfg.Debug {
		t.Fatal("expected debug")
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"duration": {"MATCH_DURATION": "soon"},
		"bool":     {"DEBUG": "maybe"},
		"port":     {"PORT": "http"},
		"negative": {"SESSION_MAX_AGE": "-1m"},
	} {
		if _, err := load(envMap(env)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"port":"7000","scores_dsn":"postgres://x","match_duration":"3m","debug":true}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := load(envMap(map[string]string{
		"CONFIG_FILE": path,
		"PORT":        "7001",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7001" {
		t.Fatalf("expected env to override file, got %s", cfg.Port)
	}
	if cfg.ScoresDSN != "postgres://x" || cfg.MatchDuration != 3*time.Minute || !cfg.Debug {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.DBPath != "tetrisduel.db" {
		t.Fatalf("expected default db path, got %s", cfg.DBPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(envMap(map[string]string{"CONFIG_FILE": "/does/not/exist.json"}))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
