package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// NotificationWindow is how long a chat interaction token stays usable.
// The await-start deadline must end before it.
const NotificationWindow = 15 * time.Minute

// Config holds all configuration for the application
type Config struct {
	// Server configuration (webhook + admin API)
	Server ServerConfig

	// Discord configuration
	Discord DiscordConfig

	// Provisioning backend configuration
	Provisioning ProvisioningConfig

	// Booking lifecycle configuration
	Booking BookingConfig

	// Database configuration (audit trail, optional)
	Database DatabaseConfig

	// JWT configuration (admin API, optional)
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Background jobs
	Jobs JobsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	LogFile     string // optional rotating log file
}

// DiscordConfig holds chat platform configuration
type DiscordConfig struct {
	Disabled  bool
	BotToken  string
	GuildID   string
	ChannelID string // broadcast channel for "server emptied" notices
}

// ProvisioningConfig holds the provisioning backend configuration
type ProvisioningConfig struct {
	BaseURL       string
	Token         string // empty token short-circuits create/end to status 0
	Timeout       time.Duration
	WebhookURL    string
	WebhookBearer string
	Provider      string
	ProviderName  string
}

// BookingConfig holds lifecycle limits
type BookingConfig struct {
	MaxBookable  int
	PollInterval time.Duration
	StartTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AuditRetention     time.Duration
}

// JWTConfig holds admin token configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// JobsConfig holds cron schedules
type JobsConfig struct {
	RegionRefreshSchedule string
	AuditCleanupSchedule  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	provider := getEnv("PROVIDER", "")

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "5000"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFile:     getEnv("LOG_FILE", ""),
		},
		Discord: DiscordConfig{
			Disabled:  getEnvAsBool("DISCORD_DISABLED", false),
			BotToken:  getEnv("BOT_TOKEN", ""),
			GuildID:   getEnv("GUILD", ""),
			ChannelID: getEnv("CHANNEL_ID", ""),
		},
		Provisioning: ProvisioningConfig{
			BaseURL:       strings.TrimRight(getEnv("MATCHA_API_URL", ""), "/"),
			Token:         getEnv("MATCHA_API_TOKEN", ""),
			Timeout:       time.Duration(getEnvAsInt("MATCHA_API_TIMEOUT", 30)) * time.Second,
			WebhookURL:    getEnv("WEBHOOK_URL", ""),
			WebhookBearer: getEnv("WEBHOOK_BEARER", ""),
			Provider:      provider,
			ProviderName:  getEnv("PROVIDER_NAME", provider),
		},
		Booking: BookingConfig{
			MaxBookable:  getEnvAsInt("MAX_BOOKABLE", 0),
			PollInterval: time.Duration(getEnvAsInt("BOOKING_POLL_INTERVAL", 10)) * time.Second,
			StartTimeout: time.Duration(getEnvAsInt("BOOKING_START_TIMEOUT", 600)) * time.Second,
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AuditRetention:     time.Duration(getEnvAsInt("AUDIT_RETENTION_DAYS", 30)) * 24 * time.Hour,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Jobs: JobsConfig{
			RegionRefreshSchedule: getEnv("REGION_REFRESH_CRON", "0 */30 * * * *"),
			AuditCleanupSchedule:  getEnv("AUDIT_CLEANUP_CRON", "0 0 4 * * *"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %s", c.Server.Port)
	}

	if c.Provisioning.BaseURL == "" {
		return fmt.Errorf("MATCHA_API_URL is required")
	}

	if c.Provisioning.Provider == "" {
		return fmt.Errorf("PROVIDER is required")
	}

	if c.Booking.MaxBookable < 1 {
		return fmt.Errorf("MAX_BOOKABLE must be at least 1, got: %d", c.Booking.MaxBookable)
	}

	if c.Booking.PollInterval <= 0 {
		return fmt.Errorf("BOOKING_POLL_INTERVAL must be positive")
	}

	if c.Booking.StartTimeout <= 0 || c.Booking.StartTimeout >= NotificationWindow {
		return fmt.Errorf("BOOKING_START_TIMEOUT must be positive and below %s, got: %s", NotificationWindow, c.Booking.StartTimeout)
	}

	if !c.Discord.Disabled {
		if c.Discord.BotToken == "" {
			return fmt.Errorf("BOT_TOKEN is required unless DISCORD_DISABLED=true")
		}
		if c.Discord.GuildID == "" {
			return fmt.Errorf("GUILD is required unless DISCORD_DISABLED=true")
		}
		if c.Discord.ChannelID == "" {
			return fmt.Errorf("CHANNEL_ID is required unless DISCORD_DISABLED=true")
		}
	}

	return nil
}

// AuditEnabled reports whether the Postgres audit trail is configured
func (c *Config) AuditEnabled() bool {
	return c.Database.URL != ""
}

// AdminAPIEnabled reports whether operator tokens can be validated
func (c *Config) AdminAPIEnabled() bool {
	return c.JWT.Secret != ""
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
