package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds all configuration for the chartdesk server.
type ServerConfig struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	LogLevel string
	LogFile  string

	// Annotation record storage
	StorageBackend string
	DataDir        string
	BadgerPath     string
	DatabaseURL    string
	PoolMaxConns   int

	// Journal of saves that did not reach storage
	JournalDir        string
	JournalBufferSize int
	JournalMaxSizeMB  int

	StylePath string

	// Optional Chart.js tab driven over CDP
	CDPEnabled    bool
	CDPAddress    string
	CDPPort       int
	CDPTabFilter  string
	EvalTimeoutMS int

	// Launch Chromium with the dashboard when nothing listens on the CDP port
	BrowserLaunch   bool
	BrowserPath     string
	BrowserProfile  string
	BrowserHeadless bool
	DashboardURL    string

	// ntfy topic receiving save failure alerts
	NotifyURL      string
	NotifyInterval time.Duration

	// Market data
	AlpacaFeed      string
	UpstreamDataURL string

	MoveIntervalMS  int
	ShutdownTimeout time.Duration
}

// LoadServer reads configuration from environment variables and an optional
// .env file.
func LoadServer() (*ServerConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &ServerConfig{
		BindAddr:          getEnvOrDefault("CHARTDESK_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:    getEnvListOrDefault("CHARTDESK_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:  getEnvBoolOrDefault("CHARTDESK_PORT_AUTO_FALLBACK", true),
		LogLevel:          strings.ToLower(getEnvOrDefault("CHARTDESK_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("CHARTDESK_LOG_FILE", "logs/chartdesk.log"),
		StorageBackend:    strings.ToLower(getEnvOrDefault("CHARTDESK_STORAGE", "file")),
		DataDir:           getEnvOrDefault("CHARTDESK_DATA_DIR", "./chartdesk_data/records"),
		BadgerPath:        getEnvOrDefault("CHARTDESK_BADGER_PATH", "./chartdesk_data/badger"),
		DatabaseURL:       getEnvOrDefault("CHARTDESK_DATABASE_URL", ""),
		PoolMaxConns:      getEnvIntOrDefault("CHARTDESK_DB_MAX_CONNS", 10),
		JournalDir:        getEnvOrDefault("CHARTDESK_JOURNAL_DIR", "./chartdesk_data/journal"),
		JournalBufferSize: getEnvIntOrDefault("CHARTDESK_JOURNAL_BUFFER_SIZE", 256),
		JournalMaxSizeMB:  getEnvIntOrDefault("CHARTDESK_JOURNAL_MAX_SIZE_MB", 50),
		StylePath:         getEnvOrDefault("CHARTDESK_STYLE_FILE", "./config/style.yaml"),
		CDPEnabled:        getEnvBoolOrDefault("CHARTDESK_CDP_ENABLED", false),
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		CDPTabFilter:      getEnvOrDefault("CHARTDESK_CDP_TAB_FILTER", "chartdesk"),
		EvalTimeoutMS:     getEnvIntOrDefault("CHARTDESK_EVAL_TIMEOUT_MS", 5000),
		BrowserLaunch:     getEnvBoolOrDefault("CHARTDESK_BROWSER_LAUNCH", false),
		BrowserPath:       getEnvOrDefault("CHARTDESK_BROWSER_PATH", ""),
		BrowserProfile:    getEnvOrDefault("CHARTDESK_BROWSER_PROFILE_DIR", "./chartdesk_data/browser-profile"),
		BrowserHeadless:   getEnvBoolOrDefault("CHARTDESK_BROWSER_HEADLESS", true),
		DashboardURL:      getEnvOrDefault("CHARTDESK_DASHBOARD_URL", ""),
		NotifyURL:         getEnvOrDefault("CHARTDESK_NTFY_URL", ""),
		NotifyInterval:    time.Duration(getEnvIntOrDefault("CHARTDESK_NTFY_INTERVAL_S", 60)) * time.Second,
		AlpacaFeed:        strings.ToLower(getEnvOrDefault("CHARTDESK_ALPACA_FEED", "iex")),
		UpstreamDataURL:   getEnvOrDefault("CHARTDESK_UPSTREAM_DATA_URL", ""),
		MoveIntervalMS:    getEnvIntOrDefault("CHARTDESK_MOVE_INTERVAL_MS", 16),
		ShutdownTimeout:   time.Duration(getEnvIntOrDefault("CHARTDESK_SHUTDOWN_TIMEOUT_S", 10)) * time.Second,
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.MoveIntervalMS < 1 {
		cfg.MoveIntervalMS = 1
	}

	switch cfg.StorageBackend {
	case "file", "badger", "postgres", "memory":
	default:
		return nil, fmt.Errorf("config: CHARTDESK_STORAGE=%q (want file, badger, postgres or memory)", cfg.StorageBackend)
	}
	if cfg.BrowserLaunch && !cfg.CDPEnabled {
		return nil, fmt.Errorf("config: CHARTDESK_BROWSER_LAUNCH requires CHARTDESK_CDP_ENABLED")
	}
	if cfg.StorageBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: CHARTDESK_DATABASE_URL is required for the postgres backend")
	}
	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint used by the chromedp remote allocator.
func (c *ServerConfig) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *ServerConfig) MoveInterval() time.Duration {
	return time.Duration(c.MoveIntervalMS) * time.Millisecond
}

func (c *ServerConfig) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
