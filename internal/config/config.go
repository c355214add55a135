package config

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server-side settings
	DatabaseDSN string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`

	// Shared settings
	BaseURL     string `env:"BASE_URL"`
	EnableHTTPS bool   `env:"ENABLE_HTTPS"`

	// Sync tuning
	SyncPageLimit    int           `env:"SYNC_PAGE_LIMIT"`
	SSEHeartbeat     time.Duration `env:"SSE_HEARTBEAT"`
	EventBufferSize  int           `env:"EVENT_BUFFER_SIZE"`
	ReplayMaxAttempt int           `env:"REPLAY_MAX_ATTEMPTS"`

	// Client-side settings
	ServerURL      string        `env:"-"`
	ClientDBPath   string        `env:"CLIENT_DB_PATH"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	Version        bool          `env:"-"` // show client version and exit (flag only)
}

func NewConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	_ = env.Parse(cfg)

	// flags работают ТОЛЬКО если переменные из env не заданы
	// Server flags
	flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "строка подключения к БД")
	flag.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "секрет для подписи JWT")
	// Shared/client flags
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "base URL of the Kladovka server (host:port)")
	flag.BoolVar(&cfg.EnableHTTPS, "https", cfg.EnableHTTPS, "enable HTTPS (client: prefer https scheme for BaseURL)")
	// Client flags
	flag.StringVar(&cfg.ClientDBPath, "client-db", cfg.ClientDBPath, "path to client SQLite DB directory")
	flag.BoolVar(&cfg.Version, "version", cfg.Version, "Show client version and exit")

	flag.Parse()

	// Defaults
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "dev-secret-key"
	}
	if cfg.SyncPageLimit <= 0 || cfg.SyncPageLimit > 1000 {
		cfg.SyncPageLimit = 500
	}
	if cfg.SSEHeartbeat <= 0 {
		cfg.SSEHeartbeat = 25 * time.Second
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 32
	}
	if cfg.ReplayMaxAttempt <= 0 {
		cfg.ReplayMaxAttempt = 8
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	// validate BaseURL: must be in "address:port" (no scheme, no path). Otherwise use default.
	hostPortRe := regexp.MustCompile(`^[A-Za-z0-9\.\-]+:\d{1,5}$`)
	if !hostPortRe.MatchString(cfg.BaseURL) {
		cfg.BaseURL = "localhost:8081"
	}

	if cfg.EnableHTTPS {
		cfg.ServerURL = "https://" + cfg.BaseURL
	} else {
		cfg.ServerURL = "http://" + cfg.BaseURL
	}

	// Fill client defaults if empty
	home, _ := os.UserHomeDir()
	if cfg.ClientDBPath == "" {
		cfg.ClientDBPath = filepath.Join(home, ".kladovka")
	}

	return cfg
}
