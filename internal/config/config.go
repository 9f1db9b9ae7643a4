package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBaseURL        = "https://www.ana.gov.br/hidrowebservice"
	defaultRequestTimeout = 60 * time.Second
	defaultWindowDays     = 30
	defaultRequestDelay   = time.Second
	defaultRecentDays     = 2
	defaultPort           = 8080
)

// Config holds environment-driven settings shared by the API and the watcher.
type Config struct {
	DatabaseURL string

	BaseURL        string
	Identifier     string
	Secret         string
	RequestTimeout time.Duration
	CircuitBreaker bool

	WindowDays   int
	RequestDelay time.Duration
	Stations     []string
	Schedule     string
	RecentDays   int

	Port        int
	BearerToken string

	LogLevel  string
	LogFormat string
	DryRun    bool
}

// Load reads configuration from environment variables (optionally .env).
// Missing HidroWeb credentials are not a load error; a sync run reports them.
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		BaseURL:        defaultBaseURL,
		RequestTimeout: defaultRequestTimeout,
		WindowDays:     defaultWindowDays,
		RequestDelay:   defaultRequestDelay,
		RecentDays:     defaultRecentDays,
		Port:           defaultPort,
	}

	dryRun := env("DRY_RUN")
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	cfg.DatabaseURL = env("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		if !cfg.DryRun {
			return cfg, errors.New("DATABASE_URL is required")
		}
		cfg.DatabaseURL = "memory://"
	}

	if v := env("HIDRO_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	cfg.Identifier = env("HIDRO_IDENTIFICADOR")
	cfg.Secret = env("HIDRO_SENHA")

	var err error
	if cfg.RequestTimeout, err = durationEnv("HIDRO_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return cfg, err
	}
	if cfg.CircuitBreaker, err = boolEnv("HIDRO_CIRCUIT_BREAKER", false); err != nil {
		return cfg, err
	}
	if cfg.WindowDays, err = positiveIntEnv("SYNC_WINDOW_DAYS", cfg.WindowDays); err != nil {
		return cfg, err
	}
	if cfg.RequestDelay, err = durationEnv("SYNC_REQUEST_DELAY", cfg.RequestDelay); err != nil {
		return cfg, err
	}
	if cfg.RecentDays, err = positiveIntEnv("SYNC_RECENT_DAYS", cfg.RecentDays); err != nil {
		return cfg, err
	}
	cfg.Stations = SplitList(env("SYNC_STATIONS"))
	cfg.Schedule = env("SYNC_SCHEDULE")

	if portStr := env("PORT"); portStr != "" {
		if cfg.Port, err = strconv.Atoi(portStr); err != nil || cfg.Port <= 0 {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := env("API_PORT"); portStr != "" {
		if cfg.Port, err = strconv.Atoi(portStr); err != nil || cfg.Port <= 0 {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}
	cfg.BearerToken = env("API_BEARER_TOKEN")

	cfg.LogLevel = env("LOG_LEVEL")
	cfg.LogFormat = env("LOG_FORMAT")

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return def, fmt.Errorf("invalid %s: negative duration", key)
	}
	return d, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return def, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
