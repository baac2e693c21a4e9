package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/felo/inbox-library/internal/newsletters"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host string `validate:"required"`
	Port string `validate:"required,numeric"`

	// Database settings
	DBPath string `validate:"required"`

	// Directory of .eml files imported at startup
	EmailsPath string

	// Mail ingress multipart boundary; empty means take it from the request
	IngressBoundary string

	// Queue settings. An empty RedisAddr keeps queues in memory.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int    `validate:"gte=0"`
	FallbackTopic  string `validate:"required"`
	ThumbnailQueue string `validate:"required"`

	FetchTimeout time.Duration `validate:"gt=0"`
	LogLevel     string        `validate:"oneof=trace debug info warn warning error fatal panic"`
	SentryDSN    string

	// Ordered newsletter handler names and confirmation senders,
	// optionally overridden by HandlersFile
	HandlersFile        string
	Handlers            []string `validate:"dive,required"`
	ConfirmationSenders []string

	// Read-later sync run at startup for SyncUserID. Readwise receives an
	// export of the library, Pocket is imported from.
	SyncUserID        string `validate:"required_with=ReadwiseToken PocketAccessToken"`
	ReadwiseToken     string
	PocketConsumerKey string `validate:"required_with=PocketAccessToken"`
	PocketAccessToken string
}

// HandlersConfig is the layout of the handlers YAML file
type HandlersConfig struct {
	Handlers            []string `yaml:"handlers"`
	ConfirmationSenders []string `yaml:"confirmationSenders"`
}

// Default returns default configuration
func Default() *Config {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	// Use ~/.inbox-library for data directory
	dataDir := filepath.Join(homeDir, ".inbox-library")

	return &Config{
		Host:                "localhost",
		Port:                "8080",
		DBPath:              filepath.Join(dataDir, "library.db"),
		EmailsPath:          "./emails",
		FallbackTopic:       "nonNewsletterEmailReceived",
		ThumbnailQueue:      "thumbnail",
		FetchTimeout:        5 * time.Second,
		LogLevel:            "info",
		Handlers:            append([]string(nil), newsletters.DefaultOrder...),
		ConfirmationSenders: []string{"forwarding-noreply@google.com"},
	}
}

// Load builds the configuration from defaults, a .env file if present, the
// environment and the optional handlers file, then validates it
func Load() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg := Default()
	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.EmailsPath = getEnv("EMAILS_PATH", cfg.EmailsPath)
	cfg.IngressBoundary = getEnv("INGRESS_BOUNDARY", cfg.IngressBoundary)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvAsInt("REDIS_DB", cfg.RedisDB)
	cfg.FallbackTopic = getEnv("FALLBACK_TOPIC", cfg.FallbackTopic)
	cfg.ThumbnailQueue = getEnv("THUMBNAIL_QUEUE", cfg.ThumbnailQueue)
	cfg.FetchTimeout = getEnvAsDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.SentryDSN = getEnv("SENTRY_DSN", cfg.SentryDSN)
	cfg.HandlersFile = getEnv("HANDLERS_FILE", cfg.HandlersFile)
	cfg.SyncUserID = getEnv("SYNC_USER_ID", cfg.SyncUserID)
	cfg.ReadwiseToken = getEnv("READWISE_TOKEN", cfg.ReadwiseToken)
	cfg.PocketConsumerKey = getEnv("POCKET_CONSUMER_KEY", cfg.PocketConsumerKey)
	cfg.PocketAccessToken = getEnv("POCKET_ACCESS_TOKEN", cfg.PocketAccessToken)

	if cfg.HandlersFile != "" {
		hc, err := LoadHandlersFile(cfg.HandlersFile)
		if err != nil {
			return nil, err
		}
		cfg.ApplyHandlers(hc)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadHandlersFile reads the handlers YAML file
func LoadHandlersFile(path string) (*HandlersConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read handlers file: %w", err)
	}
	var hc HandlersConfig
	if err := yaml.Unmarshal(b, &hc); err != nil {
		return nil, fmt.Errorf("failed to parse handlers file %s: %w", path, err)
	}
	return &hc, nil
}

// ApplyHandlers overrides the handler order and confirmation senders with
// whatever the file sets
func (c *Config) ApplyHandlers(hc *HandlersConfig) {
	if hc == nil {
		return
	}
	if len(hc.Handlers) > 0 {
		c.Handlers = hc.Handlers
	}
	if hc.ConfirmationSenders != nil {
		c.ConfirmationSenders = hc.ConfirmationSenders
	}
}

var validate = validator.New()

// Validate checks field constraints and that every handler name is known
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
	}
	if _, err := newsletters.ByName(c.Handlers); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SyncEnabled reports whether any read-later integration is configured
func (c *Config) SyncEnabled() bool {
	return c.ReadwiseToken != "" || c.PocketAccessToken != ""
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
