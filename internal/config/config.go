// Package config parses tunnel pool configuration from flags and
// environment variables, following the same env-default-then-flag
// layering the rest of this module's ancestry uses.
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// PoolConfig configures a single tunnel pool instance.
type PoolConfig struct {
	CachePath        string
	MaxActiveTunnels int
	MaxRetries       int
	MaxIdleTimeout   time.Duration
	AdminListen      string
	DebugListen      string
	LogLevel         string
}

const (
	defaultCachePath        = "./TUNNELS"
	defaultMaxActiveTunnels = 8
	defaultMaxRetries       = 3
	defaultMaxIdleTimeout   = 5 * time.Minute
	defaultAdminListen      = ":8181"
)

// ParsePoolFlags parses args into a PoolConfig, seeded from environment
// variables and overridable by flags.
func ParsePoolFlags(args []string) (PoolConfig, error) {
	cfg := PoolConfig{
		CachePath:        envOrDefault("TUNNELPOOL_CACHE_PATH", defaultCachePath),
		MaxActiveTunnels: envIntOrDefault("TUNNELPOOL_MAX_ACTIVE", defaultMaxActiveTunnels),
		MaxRetries:       envIntOrDefault("TUNNELPOOL_MAX_RETRIES", defaultMaxRetries),
		MaxIdleTimeout:   defaultMaxIdleTimeout,
		AdminListen:      envOrDefault("TUNNELPOOL_ADMIN_LISTEN", defaultAdminListen),
		DebugListen:      envOrDefault("TUNNELPOOL_DEBUG_LISTEN", ""),
		LogLevel:         envOrDefault("TUNNELPOOL_LOG_LEVEL", "info"),
	}

	fs := flag.NewFlagSet("tunnelpool", flag.ContinueOnError)
	fs.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "Tunnel cache file path")
	fs.IntVar(&cfg.MaxActiveTunnels, "max-active", cfg.MaxActiveTunnels, "Maximum concurrently active tunnels")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum open retries per activation attempt")
	fs.StringVar(&cfg.AdminListen, "admin-listen", cfg.AdminListen, "Admin HTTP listen address")
	fs.StringVar(&cfg.DebugListen, "debug-listen", cfg.DebugListen, "Optional pprof debug listen address (empty disables it)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.MaxActiveTunnels <= 0 {
		return cfg, errors.New("max-active must be > 0")
	}
	if cfg.MaxRetries <= 0 {
		return cfg, errors.New("max-retries must be > 0")
	}
	if strings.TrimSpace(cfg.CachePath) == "" {
		return cfg, errors.New("cache path must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
