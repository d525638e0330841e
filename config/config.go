// Package config provides application configuration management.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerPort string

	// Backend service group configuration
	BackendBaseURL    string
	BackendToken      string
	GroupManifestPath string

	// HTTP client behavior
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	MaxBackoff     time.Duration

	// Event stream configuration
	EventStreamURL       string
	StreamMaxReconnects  int
	StreamInitialBackoff time.Duration
	StreamMaxBackoff     time.Duration

	// Health validation configuration
	LatencyBudget      time.Duration
	ValidationInterval time.Duration

	// Persistence configuration
	StatePath        string
	DataStoreDriver  string
	DataStoreDSN     string
	EventJournalSize int

	// Redis / events configuration
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	EventsChannel    string
	RedisJobStream   string
	RedisJobGroup    string

	// Gateway API auth
	APIToken string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	statePath := getEnv("STATE_PATH", "/app/state")
	dataStoreDriver := getEnv("DATASTORE_DRIVER", "sqlite")
	dataStoreDSN := getEnv("DATASTORE_DSN", "")
	if dataStoreDSN == "" {
		if dataStoreDriver == "postgres" {
			dataStoreDSN = os.Getenv("POSTGRES_DSN")
		} else {
			dataStoreDSN = filepath.Join(statePath, "governance-gateway.db")
		}
	}
	return &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		BackendBaseURL:       getEnv("BACKEND_BASE_URL", "http://localhost:9000"),
		BackendToken:         os.Getenv("BACKEND_API_TOKEN"),
		GroupManifestPath:    getEnv("GROUP_MANIFEST_PATH", ""),
		RequestTimeout:       getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		MaxRetries:           getEnvInt("HTTP_MAX_RETRIES", 3),
		RetryBackoff:         getEnvDuration("HTTP_RETRY_BACKOFF", 500*time.Millisecond),
		MaxBackoff:           getEnvDuration("HTTP_MAX_BACKOFF", 10*time.Second),
		EventStreamURL:       getEnv("EVENT_STREAM_URL", ""),
		StreamMaxReconnects:  getEnvInt("STREAM_MAX_RECONNECTS", 10),
		StreamInitialBackoff: getEnvDuration("STREAM_INITIAL_BACKOFF", 1*time.Second),
		StreamMaxBackoff:     getEnvDuration("STREAM_MAX_BACKOFF", 30*time.Second),
		LatencyBudget:        getEnvDuration("PROBE_LATENCY_BUDGET", 2*time.Second),
		ValidationInterval:   getEnvDuration("VALIDATION_INTERVAL", 5*time.Minute),
		StatePath:            statePath,
		DataStoreDriver:      dataStoreDriver,
		DataStoreDSN:         dataStoreDSN,
		EventJournalSize:     getEnvInt("EVENT_JOURNAL_SIZE", 10000),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisUsername:        getEnv("REDIS_USERNAME", ""),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:      getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure:     getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		EventsChannel:        getEnv("EVENTS_CHANNEL", "governance-gateway-events"),
		RedisJobStream:       getEnv("REDIS_JOB_STREAM", "governance-gateway:jobs"),
		RedisJobGroup:        getEnv("REDIS_JOB_GROUP", "gateway-workers"),
		APIToken:             os.Getenv("GATEWAY_API_TOKEN"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s: %s, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Printf("Invalid bool for %s: %s, using default %t", key, value, defaultValue)
		}
	}
	return defaultValue
}
