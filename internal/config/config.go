package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Route set names understood by the API client.
const (
	RoutesCurrent = "current"
	RoutesLegacy  = "legacy"
)

// Config captures the runtime configuration for the Subscribr web frontend.
type Config struct {
	AppPort        int
	APIBaseURL     string
	APIRoutes      string
	LogLevel       string
	RequestTimeout time.Duration
	EventRetry     time.Duration
	MountIdleTTL   time.Duration
	LaunchLimit    RateLimitConfig
	MountLimit     RateLimitConfig
	MountsPerUser  int
	MaxMounts      int
	TrustedProxies []netip.Prefix
}

// RateLimitConfig bounds how often a single client may perform an action.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// Load reads configuration from environment variables, applying sensible defaults
// for local development. Variables from an optional .env file (SUBSCRIBR_ENV_FILE,
// default ".env") are applied first without overriding the real environment.
func Load() (Config, error) {
	envFile := getString("SUBSCRIBR_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := Config{
		AppPort:        getInt("SUBSCRIBR_PORT", 3000),
		APIBaseURL:     getString("SUBSCRIBR_API_BASE_URL", "http://localhost:8080"),
		APIRoutes:      strings.ToLower(getString("SUBSCRIBR_API_ROUTES", RoutesCurrent)),
		LogLevel:       getString("SUBSCRIBR_LOG_LEVEL", "info"),
		RequestTimeout: getDuration("SUBSCRIBR_REQUEST_TIMEOUT", 0),
		EventRetry:     getDuration("SUBSCRIBR_EVENT_RETRY", 3*time.Second),
		MountIdleTTL:   getDuration("SUBSCRIBR_MOUNT_IDLE_TTL", 10*time.Minute),
		LaunchLimit: RateLimitConfig{
			Requests: getInt("SUBSCRIBR_LAUNCH_RATE_REQUESTS", 10),
			Window:   getDuration("SUBSCRIBR_LAUNCH_RATE_WINDOW", time.Minute),
			Burst:    getInt("SUBSCRIBR_LAUNCH_RATE_BURST", 5),
		},
		MountLimit: RateLimitConfig{
			Requests: getInt("SUBSCRIBR_MOUNT_RATE_REQUESTS", 30),
			Window:   getDuration("SUBSCRIBR_MOUNT_RATE_WINDOW", time.Minute),
			Burst:    getInt("SUBSCRIBR_MOUNT_RATE_BURST", 10),
		},
		MountsPerUser: getInt("SUBSCRIBR_MOUNTS_PER_USER", 8),
		MaxMounts:     getInt("SUBSCRIBR_MAX_MOUNTS", 1000),
	}

	proxies, err := parsePrefixes(getString("SUBSCRIBR_TRUSTED_PROXIES", ""))
	if err != nil {
		return Config{}, err
	}
	cfg.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("invalid SUBSCRIBR_API_BASE_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid SUBSCRIBR_API_BASE_URL %q: expected absolute http(s) url", c.APIBaseURL)
	}

	switch c.APIRoutes {
	case RoutesCurrent, RoutesLegacy:
	default:
		return fmt.Errorf("unknown SUBSCRIBR_API_ROUTES %q", c.APIRoutes)
	}

	if c.AppPort <= 0 || c.AppPort > 65535 {
		return fmt.Errorf("invalid SUBSCRIBR_PORT %d", c.AppPort)
	}

	if c.MountsPerUser <= 0 || c.MaxMounts <= 0 {
		return fmt.Errorf("invalid mount caps: per user %d, total %d", c.MountsPerUser, c.MaxMounts)
	}

	return nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// parsePrefixes reads a comma separated list of CIDR prefixes or single addresses.
func parsePrefixes(value string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid SUBSCRIBR_TRUSTED_PROXIES entry %q: %w", raw, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SUBSCRIBR_TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
