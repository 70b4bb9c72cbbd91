// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every server setting.
type Config struct {
	Port            string
	DBPath          string
	RedisURL        string
	PostgresDSN     string
	JWTSecret       string
	TokenTTL        time.Duration
	LogLevel        logrus.Level
	LogFormat       string
	RoundEndDelay   time.Duration
	AIDelayScale    float64
	SessionMaxAge   time.Duration
	CleanupInterval time.Duration
}

// Load reads files (".env" when none are given) into the environment, without
// overriding variables already set, and then parses the environment.
// Missing files are not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	c := Config{
		Port:            p.str("PORT", "8080"),
		DBPath:          p.str("DB_PATH", "climax.db"),
		RedisURL:        p.str("REDIS_URL", ""),
		PostgresDSN:     p.str("POSTGRES_DSN", ""),
		JWTSecret:       p.str("JWT_SECRET", ""),
		TokenTTL:        p.duration("TOKEN_TTL", 24*time.Hour),
		LogFormat:       p.str("LOG_FORMAT", "text"),
		RoundEndDelay:   p.duration("ROUND_END_DELAY", 4*time.Second),
		AIDelayScale:    p.float("AI_DELAY_SCALE", 1),
		SessionMaxAge:   p.duration("SESSION_MAX_AGE", time.Hour),
		CleanupInterval: p.duration("CLEANUP_INTERVAL", time.Minute),
	}
	lvl, err := logrus.ParseLevel(p.str("LOG_LEVEL", "info"))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	c.LogLevel = lvl
	if c.AIDelayScale < 0 {
		p.errs = append(p.errs, fmt.Errorf("AI_DELAY_SCALE: must not be negative"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		p.errs = append(p.errs, fmt.Errorf("LOG_FORMAT: want text or json, got %q", c.LogFormat))
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return c, nil
}

// NewLogger returns a logrus logger set up from c.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) float(key string, def float64) float64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}
