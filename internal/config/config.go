package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string

	DB struct {
		// Driver selects the storage backend: "postgres" (default) or
		// "memory" for local runs without a database.
		Driver string
		DSN    string
	}

	JWT struct {
		Secret   string
		TokenTTL time.Duration
	}

	PrometheusEnabled  bool
	TrustedProxies     []string
	CORSAllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.DB.Driver = getenvDefault("APP_DB_DRIVER", "postgres")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.JWT.Secret = os.Getenv("APP_JWT_SECRET")
	ttlMinutes, err := getenvInt("APP_TOKEN_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.JWT.TokenTTL = time.Duration(ttlMinutes) * time.Minute

	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")
	cfg.CORSAllowedOrigins = getenvList("APP_CORS_ALLOWED_ORIGINS")

	switch cfg.DB.Driver {
	case "postgres":
		if cfg.DB.DSN == "" {
			return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown APP_DB_DRIVER %q (expected postgres or memory)", cfg.DB.Driver)
	}

	if cfg.JWT.Secret == "" {
		return nil, errors.New("APP_JWT_SECRET is required")
	}
	if len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("APP_JWT_SECRET must be at least 32 characters long (got %d)", len(cfg.JWT.Secret))
	}
	if cfg.JWT.TokenTTL <= 0 {
		return nil, errors.New("APP_TOKEN_TTL_MINUTES must be positive")
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No APP_TRUSTED_PROXIES configured. The server will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
