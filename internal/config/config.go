package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr   string // API bind address, e.g., ":8080"
	LogDir string // logs directory

	DatabaseDriver string // "memory" | "sqlite" | "postgres"
	DatabaseURL    string // sqlite file path or postgres DSN

	LightTimeout  time.Duration // per-probe timeout for heartbeat checks
	RetryGetOn405 bool          // retry HEAD-405 as GET in light checks
	MaxConcurrent int           // bounded worker pool size per batch

	DeepTick      time.Duration // how often the deep gate is consulted
	LightTick     time.Duration // how often a light batch runs
	RetentionTick time.Duration // how often the log sweep runs

	PublicAPIKeys []string
	AdminAPIKeys  []string
	PublicRPM     int
	PublicBurst   int
	AdminRPM      int
	AdminBurst    int
}

func FromEnv() Config {
	return Config{
		Addr:   envStr("ADDR", ":8080"),
		LogDir: envStr("LOG_DIR", "logs"),

		DatabaseDriver: envStr("DATABASE_DRIVER", "memory"),
		DatabaseURL:    envStr("DATABASE_URL", "sitewatch.db"),

		LightTimeout:  envMS("LIGHT_TIMEOUT_MS", 10*time.Second),
		RetryGetOn405: envBool("LIGHT_RETRY_GET_ON_405", false),
		MaxConcurrent: envInt("MAX_CONCURRENT_CHECKS", 8),

		DeepTick:      envMS("DEEP_TICK_MS", time.Minute),
		LightTick:     envMS("LIGHT_TICK_MS", time.Minute),
		RetentionTick: envMS("RETENTION_TICK_MS", time.Hour),

		PublicAPIKeys: envList("PUBLIC_API_KEYS"),
		AdminAPIKeys:  envList("ADMIN_API_KEYS"),
		PublicRPM:     envInt("PUBLIC_RPM", 120),
		PublicBurst:   envInt("PUBLIC_BURST", 60),
		AdminRPM:      envInt("ADMIN_RPM", 60),
		AdminBurst:    envInt("ADMIN_BURST", 30),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envMS(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
