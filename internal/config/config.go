// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable via DEVBOT_STORE_BACKEND.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreNATS   = "nats"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SessionID string

	StoreBackend string
	DBPath       string
	StoreDir     string
	NATSURL      string
	NATSBucket   string

	SendTime        string
	Timezone        string
	ScheduleEnabled bool
	Destinations    []string
	PlanPath        string
	ShortenerURL    string

	ListenAddr     string
	ReconnectDelay time.Duration
}

// Load reads configuration from the environment and returns a validated
// Config. A .env file in the working directory is loaded first when present.
// DEVBOT_DESTINATIONS and DEVBOT_PLAN_PATH are required when the schedule is
// enabled; everything else has a default.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		SessionID:       getDefault("DEVBOT_SESSION_ID", "primary"),
		StoreBackend:    getDefault("DEVBOT_STORE_BACKEND", StoreSQLite),
		DBPath:          getDefault("DEVBOT_DB_PATH", "devbot.db"),
		StoreDir:        getDefault("DEVBOT_STORE_DIR", "devbot-store"),
		NATSURL:         getDefault("DEVBOT_NATS_URL", "nats://127.0.0.1:4222"),
		NATSBucket:      getDefault("DEVBOT_NATS_BUCKET", "devbot-sessions"),
		SendTime:        getDefault("DEVBOT_SEND_TIME", "06:00"),
		Timezone:        getDefault("DEVBOT_TIMEZONE", "America/Sao_Paulo"),
		ScheduleEnabled: true,
		PlanPath:        os.Getenv("DEVBOT_PLAN_PATH"),
		ShortenerURL:    os.Getenv("DEVBOT_SHORTENER_URL"),
		ListenAddr:      getDefault("DEVBOT_LISTEN_ADDR", "127.0.0.1:8080"),
		ReconnectDelay:  5 * time.Second,
	}

	switch cfg.StoreBackend {
	case StoreSQLite, StoreFile, StoreNATS:
	default:
		return nil, fmt.Errorf("DEVBOT_STORE_BACKEND has unknown backend %q (want %s, %s, or %s)",
			cfg.StoreBackend, StoreSQLite, StoreFile, StoreNATS)
	}

	if v, ok := os.LookupEnv("DEVBOT_SCHEDULE_ENABLED"); ok {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			cfg.ScheduleEnabled = true
		case "false", "0", "no":
			cfg.ScheduleEnabled = false
		default:
			return nil, fmt.Errorf("DEVBOT_SCHEDULE_ENABLED has invalid boolean %q", v)
		}
	}

	if v, ok := os.LookupEnv("DEVBOT_RECONNECT_DELAY"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("DEVBOT_RECONNECT_DELAY has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("DEVBOT_RECONNECT_DELAY must be positive, got %q", v)
		}
		cfg.ReconnectDelay = parsed
	}

	if v, ok := os.LookupEnv("DEVBOT_DESTINATIONS"); ok && v != "" {
		for _, dest := range strings.Split(v, ",") {
			dest = strings.TrimSpace(dest)
			if dest != "" {
				cfg.Destinations = append(cfg.Destinations, dest)
			}
		}
	}
	if cfg.Destinations == nil {
		cfg.Destinations = []string{}
	}

	if cfg.ScheduleEnabled {
		if len(cfg.Destinations) == 0 {
			return nil, fmt.Errorf("DEVBOT_DESTINATIONS is required when the schedule is enabled")
		}
		if cfg.PlanPath == "" {
			return nil, fmt.Errorf("DEVBOT_PLAN_PATH is required when the schedule is enabled")
		}
	}

	return cfg, nil
}

func getDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
