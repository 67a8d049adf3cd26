package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Realtime   RealtimeConfig
	Ride       RideConfig
	Chat       ChatConfig
	API        APIConfig
	Bridge     BridgeConfig
	Credential CredentialConfig
	Redis      RedisConfig
	Archive    ArchiveConfig
	Database   DatabaseConfig
	NewRelic   NewRelicConfig
	Location   LocationConfig
	Log        LogConfig
}

type RealtimeConfig struct {
	// URL is empty when no session should ever be opened.
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
}

type RideConfig struct {
	OfferDefaultTimeout time.Duration
	CompletionRadiusM   float64
}

type ChatConfig struct {
	TypingDebounce time.Duration
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type BridgeConfig struct {
	Host string
	Port string
	Env  string
}

// Credential backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type CredentialConfig struct {
	Backend string
	Prefix  string
}

type RedisConfig struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	MinIdleConn int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

type ArchiveConfig struct {
	Enabled bool
}

type DatabaseConfig struct {
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
	MaxIdleConns   int
}

type NewRelicConfig struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

type LocationConfig struct {
	// MaxAge is how old a fix may be before it counts as unavailable.
	MaxAge time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load loads configuration from the environment. Files in envFiles are read
// first; a missing default .env is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Realtime: RealtimeConfig{
			URL:               getEnv("REALTIME_URL", ""),
			ReconnectAttempts: getEnvAsInt("REALTIME_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:    parseDuration(getEnv("REALTIME_RECONNECT_DELAY", "1s"), time.Second),
			PingInterval:      parseDuration(getEnv("REALTIME_PING_INTERVAL", "25s"), 25*time.Second),
		},
		Ride: RideConfig{
			OfferDefaultTimeout: parseDuration(getEnv("OFFER_DEFAULT_TIMEOUT", "30s"), 30*time.Second),
			CompletionRadiusM:   getEnvAsFloat64("COMPLETION_RADIUS_METERS", 100),
		},
		Chat: ChatConfig{
			TypingDebounce: parseDuration(getEnv("TYPING_DEBOUNCE", "1.5s"), 1500*time.Millisecond),
		},
		API: APIConfig{
			BaseURL: getEnv("API_BASE_URL", ""),
			Timeout: parseDuration(getEnv("API_TIMEOUT", "10s"), 10*time.Second),
		},
		Bridge: BridgeConfig{
			Host: getEnv("BRIDGE_HOST", "127.0.0.1"),
			Port: getEnv("BRIDGE_PORT", "8090"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Credential: CredentialConfig{
			Backend: getEnv("CREDENTIAL_BACKEND", BackendMemory),
			Prefix:  getEnv("CREDENTIAL_PREFIX", "ride-realtime:cred"),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", ""),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			MaxRetries:  getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConn: 2,
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled: getEnvAsBool("ARCHIVE_ENABLED", false),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvAsInt("DB_PORT", 5432),
			Name:           getEnv("DB_NAME", "ride_realtime"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 5),
			MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 2),
		},
		NewRelic: NewRelicConfig{
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ride-realtime"),
			Enabled:    getEnvAsBool("NEW_RELIC_ENABLED", false),
		},
		Location: LocationConfig{
			MaxAge: parseDuration(getEnv("LOCATION_MAX_AGE", "2m"), 2*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Realtime.URL != "" {
		u, err := url.Parse(c.Realtime.URL)
		if err != nil {
			return fmt.Errorf("REALTIME_URL is not a valid URL: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return fmt.Errorf("REALTIME_URL scheme must be ws, wss, http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("REALTIME_URL has no host")
		}
	}
	if c.Realtime.ReconnectAttempts <= 0 {
		return fmt.Errorf("REALTIME_RECONNECT_ATTEMPTS must be positive")
	}
	if c.Realtime.ReconnectDelay <= 0 {
		return fmt.Errorf("REALTIME_RECONNECT_DELAY must be positive")
	}
	if c.Realtime.PingInterval <= 0 {
		return fmt.Errorf("REALTIME_PING_INTERVAL must be positive")
	}
	if c.Ride.OfferDefaultTimeout <= 0 {
		return fmt.Errorf("OFFER_DEFAULT_TIMEOUT must be positive")
	}
	if c.Ride.CompletionRadiusM <= 0 {
		return fmt.Errorf("COMPLETION_RADIUS_METERS must be positive")
	}
	if c.Chat.TypingDebounce <= 0 {
		return fmt.Errorf("TYPING_DEBOUNCE must be positive")
	}
	switch c.Credential.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("REDIS_HOST is required for the redis credential backend")
		}
	default:
		return fmt.Errorf("CREDENTIAL_BACKEND must be %q or %q", BackendMemory, BackendRedis)
	}
	if c.Archive.Enabled && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required when ARCHIVE_ENABLED is set")
	}
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		return fmt.Errorf("NEW_RELIC_LICENSE_KEY is required when NEW_RELIC_ENABLED is set")
	}
	return nil
}

// Address is the render bridge listen address
func (c *Config) Address() string {
	return c.Bridge.Host + ":" + c.Bridge.Port
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
