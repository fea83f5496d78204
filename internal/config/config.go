package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	APIBaseURL       string
	QueuePath        string
	BatchCachePath   string
	TenantID         string
	DeviceID         string
	DeviceNodeID     int64
	ListenAddr       string
	AuthToken        string
	DeviceSecret     string
	TokenTTL         time.Duration
	SubmitTimeout    time.Duration
	ProbeTimeout     time.Duration
	SyncInterval     time.Duration
	DefaultBinWeight float64
}

func Load() (*Config, error) {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Log error but continue, as .env file is optional if variables are set elsewhere
		logger := log.NewLogger()
		logger.Warn("Failed to load .env file", zap.Error(err))
	}

	logger := log.NewLogger()
	cfg := &Config{
		APIBaseURL:       os.Getenv("API_URL"),
		QueuePath:        os.Getenv("QUEUE_PATH"),
		BatchCachePath:   os.Getenv("BATCH_CACHE_PATH"),
		TenantID:         os.Getenv("TENANT_ID"),
		DeviceID:         os.Getenv("DEVICE_ID"),
		ListenAddr:       os.Getenv("LISTEN_ADDR"),
		AuthToken:        os.Getenv("AUTH_TOKEN"),
		DeviceSecret:     os.Getenv("DEVICE_SECRET"),
		TokenTTL:         envDuration("TOKEN_TTL", 5*time.Minute),
		SubmitTimeout:    envDuration("SUBMIT_TIMEOUT", 10*time.Second),
		ProbeTimeout:     envDuration("PROBE_TIMEOUT", 3*time.Second),
		SyncInterval:     envDuration("SYNC_INTERVAL", 30*time.Second),
		DefaultBinWeight: 20.0,
	}

	if cfg.APIBaseURL == "" {
		logger.Error("API_URL is required")
		return nil, fmt.Errorf("API_URL is required")
	}
	if cfg.QueuePath == "" {
		logger.Error("QUEUE_PATH is required")
		return nil, fmt.Errorf("QUEUE_PATH is required")
	}
	if cfg.TenantID == "" {
		logger.Error("TENANT_ID is required")
		return nil, fmt.Errorf("TENANT_ID is required")
	}
	if cfg.AuthToken == "" && cfg.DeviceSecret == "" {
		logger.Error("AUTH_TOKEN or DEVICE_SECRET is required")
		return nil, fmt.Errorf("AUTH_TOKEN or DEVICE_SECRET is required")
	}
	if cfg.BatchCachePath == "" {
		cfg.BatchCachePath = filepath.Join(filepath.Dir(cfg.QueuePath), "batches.json")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8081"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "device-1"
		logger.Info("Using default DeviceID", zap.String("device_id", cfg.DeviceID))
	}

	if raw := os.Getenv("DEVICE_NODE_ID"); raw != "" {
		nodeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logger.Error("Invalid DEVICE_NODE_ID", zap.String("value", raw), zap.Error(err))
			return nil, fmt.Errorf("invalid DEVICE_NODE_ID %q: %w", raw, err)
		}
		cfg.DeviceNodeID = nodeID
	}

	if raw := os.Getenv("DEFAULT_BIN_WEIGHT"); raw != "" {
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			logger.Error("Invalid DEFAULT_BIN_WEIGHT", zap.String("value", raw), zap.Error(err))
			return nil, fmt.Errorf("invalid DEFAULT_BIN_WEIGHT %q: %w", raw, err)
		}
		cfg.DefaultBinWeight = weight
	}

	logger.Info("Config loaded successfully")
	return cfg, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
