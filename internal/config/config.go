package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Lead generation backend
	BackendURL     string
	BackendTimeout time.Duration

	// Generation sessions
	GenerationPollInterval    time.Duration // Time between job status polls (default: 2s)
	GenerationPollTimeout     time.Duration // Wall-clock ceiling for a single job (default: 30m)
	GenerationMaxPollFailures int           // Consecutive transport failures tolerated, 0 = unbounded
	GenerationMaxSessions     int           // Maximum live conversation sessions (default: 100)
	GenerationSessionIdleTTL  time.Duration // Idle sessions are closed after this, 0 = never (default: 2h)
	DefaultRequestedCount     int           // Fallback when the count answer does not parse (default: 10)

	// Auth session persistence
	AuthStateFile string

	// Leads refresh schedule, empty disables it (cron spec, minute resolution)
	LeadsRefreshCron string

	// Events
	NatsURL string

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string

	// Server
	ServerShutdownTimeoutSeconds int

	// Conversation script and view defaults, loaded from the YAML config file.
	Conversation *ConversationConfig `yaml:"conversation"`
}

// ConversationConfig overrides the question script of the generation assistant.
type ConversationConfig struct {
	Questions   []QuestionConfig `yaml:"questions"`
	DefaultSort SortConfig       `yaml:"default_sort"`
}

// QuestionConfig is a single prompt of the question script.
type QuestionConfig struct {
	Key    string `yaml:"key"`
	Prompt string `yaml:"prompt"`
}

// SortConfig is the initial sort of the leads view.
type SortConfig struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction"`
}

var (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 30 * time.Minute

	DefaultSessionIdleTTL = 2 * time.Hour
)

// Load reads configuration from the environment (and an optional .env file),
// then overlays the YAML config file when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		BackendURL:     strings.TrimRight(getEnvOrDefault("BACKEND_URL", "http://localhost:9876"), "/"),
		BackendTimeout: time.Duration(getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 30)) * time.Second,

		GenerationPollInterval:    getEnvAsDuration("GENERATION_POLL_INTERVAL", DefaultPollInterval),
		GenerationPollTimeout:     getEnvAsDuration("GENERATION_POLL_TIMEOUT", DefaultPollTimeout),
		GenerationMaxPollFailures: getEnvAsInt("GENERATION_MAX_POLL_FAILURES", 0),
		GenerationMaxSessions:     getEnvAsInt("GENERATION_MAX_SESSIONS", 100),
		GenerationSessionIdleTTL:  getEnvAsDuration("GENERATION_SESSION_IDLE_TTL", DefaultSessionIdleTTL),
		DefaultRequestedCount:     getEnvAsInt("DEFAULT_REQUESTED_COUNT", 10),

		AuthStateFile: getEnvOrDefault("AUTH_STATE_FILE", ".leadgen-auth.json"),

		LeadsRefreshCron: strings.TrimSpace(getEnvOrDefault("LEADS_REFRESH_CRON", "")),

		NatsURL: getEnvOrDefault("NATS_URL", ""),

		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),
	}

	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config file %s not found, using built-in conversation script", configFilePath)
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer configFile.Close()
		if err := LoadConfigFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("BACKEND_URL must not be empty")
	}
	if c.GenerationPollInterval <= 0 {
		return fmt.Errorf("GENERATION_POLL_INTERVAL must be positive, got %v", c.GenerationPollInterval)
	}
	if c.DefaultRequestedCount <= 0 {
		return fmt.Errorf("DEFAULT_REQUESTED_COUNT must be positive, got %d", c.DefaultRequestedCount)
	}
	if c.Conversation != nil {
		for i, q := range c.Conversation.Questions {
			if q.Key == "" || q.Prompt == "" {
				return fmt.Errorf("conversation question %d needs both key and prompt", i)
			}
		}
	}
	return nil
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		return err
	}

	return nil
}
