package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const VERSION = "1.0"

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	SMTP      SMTPConfig
	Sending   SendingConfig
	Bounce    BounceConfig
	Webhook   WebhookConfig
	PublicURL string
	LogLevel  string
	Version   string
}

type ServerConfig struct {
	Port int
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// SendingConfig controls the delivery pipeline.
type SendingConfig struct {
	// EmailBackend selects the transport, "smtp" or "console".
	EmailBackend string

	// MaxSendingRate is the global emission cap in messages per second.
	MaxSendingRate int

	// MaxConcurrentSenders is the number of sender workers.
	MaxConcurrentSenders int

	// MaxMessagesPerConnection bounds connection reuse before recycling.
	MaxMessagesPerConnection int

	// PollingInterval is the supervisor and queue poll period.
	PollingInterval time.Duration

	// SubscriberModel names the registered subscriber repository.
	SubscriberModel string
}

// BounceConfig holds the reputation policy knobs.
type BounceConfig struct {
	// Consecutive is how many trailing bounces are tolerated before the
	// recent history is consulted.
	Consecutive int

	// Duration is the look-back horizon in days.
	Duration int

	// Limit is the bounce count tolerated within the look-back horizon.
	Limit int
}

// WebhookConfig bounds the event ingest endpoint.
type WebhookConfig struct {
	// MaxEventsPerSecond caps ingest throughput, 0 means unlimited.
	MaxEventsPerSecond int
}

// LoadOptions contains options for loading configuration
type LoadOptions struct {
	EnvFile string // Optional environment file to load (e.g., ".env", ".env.test")
}

// Load loads the configuration with default options
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads the configuration with the specified options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "nuntius")
	v.SetDefault("DB_SSLMODE", "require")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("VERSION", VERSION)

	v.SetDefault("SMTP_PORT", 25)
	v.SetDefault("SMTP_USE_TLS", false)

	v.SetDefault("EMAIL_BACKEND", "smtp")
	v.SetDefault("MAX_SENDING_RATE", 50)
	v.SetDefault("MAX_CONCURRENT_SENDERS", 4)
	v.SetDefault("MAX_MESSAGES_PER_CONNECTION", 500)
	v.SetDefault("POLLING_INTERVAL", 2)
	v.SetDefault("SUBSCRIBER_MODEL", "postgres")

	v.SetDefault("BOUNCE_CONSECUTIVE", 1)
	v.SetDefault("BOUNCE_DURATION", 7)
	v.SetDefault("BOUNCE_LIMIT", 3)

	v.SetDefault("WEBHOOK_MAX_EVENTS_PER_SECOND", 0)

	// Load environment file if specified
	if opts.EnvFile != "" {
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")

		currentPath, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("error getting current directory: %w", err)
		}

		v.AddConfigPath(currentPath)

		if err := v.ReadInConfig(); err != nil {
			// It's okay if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	publicURL := v.GetString("PUBLIC_URL")
	if publicURL == "" {
		return nil, fmt.Errorf("PUBLIC_URL is required")
	}
	publicURL = strings.TrimRight(publicURL, "/")

	if rate := v.GetInt("MAX_SENDING_RATE"); rate <= 0 {
		return nil, fmt.Errorf("MAX_SENDING_RATE must be positive, got %d", rate)
	}
	if senders := v.GetInt("MAX_CONCURRENT_SENDERS"); senders <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_SENDERS must be positive, got %d", senders)
	}

	config := &Config{
		Server: ServerConfig{
			Port: v.GetInt("SERVER_PORT"),
			Host: v.GetString("SERVER_HOST"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			UseTLS:   v.GetBool("SMTP_USE_TLS"),
		},
		Sending: SendingConfig{
			EmailBackend:             v.GetString("EMAIL_BACKEND"),
			MaxSendingRate:           v.GetInt("MAX_SENDING_RATE"),
			MaxConcurrentSenders:     v.GetInt("MAX_CONCURRENT_SENDERS"),
			MaxMessagesPerConnection: v.GetInt("MAX_MESSAGES_PER_CONNECTION"),
			PollingInterval:          time.Duration(v.GetInt("POLLING_INTERVAL")) * time.Second,
			SubscriberModel:          v.GetString("SUBSCRIBER_MODEL"),
		},
		Bounce: BounceConfig{
			Consecutive: v.GetInt("BOUNCE_CONSECUTIVE"),
			Duration:    v.GetInt("BOUNCE_DURATION"),
			Limit:       v.GetInt("BOUNCE_LIMIT"),
		},
		Webhook: WebhookConfig{
			MaxEventsPerSecond: v.GetInt("WEBHOOK_MAX_EVENTS_PER_SECOND"),
		},
		PublicURL: publicURL,
		LogLevel:  v.GetString("LOG_LEVEL"),
		Version:   v.GetString("VERSION"),
	}

	return config, nil
}

// ConnectionString builds the postgres DSN.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
