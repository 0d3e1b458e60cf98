package config

import (
	"flag"
	"os"
	"strings"
	"time"
)

// WatcherConfig holds configuration for the trade watcher daemon
type WatcherConfig struct {
	BackendURL    string
	AuthToken     string
	MaxTrades     int
	CacheDir      string
	QuoteInterval time.Duration
	QuoteTTL      time.Duration
	QuoteTimeout  time.Duration
	StatusEvery   time.Duration
}

// ParseWatcherFlags parses command line flags for the watcher daemon.
// Environment variables provide defaults so deployments can avoid long
// command lines; flags win when both are set.
func ParseWatcherFlags() *WatcherConfig {
	var (
		backendURL    = flag.String("backend", envOr("TRADEWATCH_BACKEND_URL", "http://127.0.0.1:8080"), "Trading backend base URL")
		authToken     = flag.String("token", os.Getenv("TRADEWATCH_AUTH_TOKEN"), "Bearer token for the backend API")
		maxTrades     = flag.Int("max-trades", 50, "Maximum retained trade records")
		cacheDir      = flag.String("cache-dir", envOr("TRADEWATCH_CACHE_DIR", defaultCacheDir()), "Directory for the persistent local cache")
		quoteInterval = flag.Duration("quote-interval", 5*time.Second, "SOL price refresh interval")
		quoteTTL      = flag.Duration("quote-ttl", 30*time.Second, "Quote cache freshness window")
		quoteTimeout  = flag.Duration("quote-timeout", 5*time.Second, "Per-source quote request timeout")
		statusEvery   = flag.Duration("status-every", 30*time.Second, "Status log interval")
	)
	flag.Parse()

	return &WatcherConfig{
		BackendURL:    strings.TrimRight(*backendURL, "/"),
		AuthToken:     *authToken,
		MaxTrades:     *maxTrades,
		CacheDir:      *cacheDir,
		QuoteInterval: *quoteInterval,
		QuoteTTL:      *quoteTTL,
		QuoteTimeout:  *quoteTimeout,
		StatusEvery:   *statusEvery,
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tradewatch"
	}
	return home + "/.tradewatch"
}
