package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the server settings.
type Config struct {
	Port            string
	DBPath          string
	ScoresDSN       string // empty keeps scores in the SQLite database
	JWTSecret       string // empty accepts guests only
	MatchDuration   time.Duration
	CleanupInterval time.Duration
	SessionMaxAge   time.Duration
	Debug           bool
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:            "8080",
		DBPath:          "tetrisduel.db",
		MatchDuration:   2 * time.Minute,
		CleanupInterval: time.Minute,
		SessionMaxAge:   time.Hour,
	}
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }

// fileConfig is the JSON form. Durations use time.ParseDuration syntax.
type fileConfig struct {
	Port            *string `json:"port"`
	DBPath          *string `json:"db_path"`
	ScoresDSN       *string `json:"scores_dsn"`
	JWTSecret       *string `json:"jwt_secret"`
	MatchDuration   *string `json:"match_duration"`
	CleanupInterval *string `json:"cleanup_interval"`
	SessionMaxAge   *string `json:"session_max_age"`
	Debug           *bool   `json:"debug"`
}

// Load reads the configuration from the environment. If CONFIG_FILE names a
// JSON file it is applied first; environment variables override it.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("unmarshal config file: %w", err)
	}
	setString(&c.Port, fc.Port)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.ScoresDSN, fc.ScoresDSN)
	setString(&c.JWTSecret, fc.JWTSecret)
	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	for _, d := range []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"match_duration", fc.MatchDuration, &c.MatchDuration},
		{"cleanup_interval", fc.CleanupInterval, &c.CleanupInterval},
		{"session_max_age", fc.SessionMaxAge, &c.SessionMaxAge},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("config file %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for name, dst := range map[string]*string{
		"PORT":       &c.Port,
		"DB_PATH":    &c.DBPath,
		"SCORES_DSN": &c.ScoresDSN,
		"JWT_SECRET": &c.JWTSecret,
	} {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	for name, dst := range map[string]*time.Duration{
		"MATCH_DURATION":   &c.MatchDuration,
		"CLEANUP_INTERVAL": &c.CleanupInterval,
		"SESSION_MAX_AGE":  &c.SessionMaxAge,
	} {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = d
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

func (c Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.MatchDuration <= 0 || c.CleanupInterval <= 0 || c.SessionMaxAge <= 0 {
		return fmt.Errorf("durations must be positive")
	}
	return nil
}
