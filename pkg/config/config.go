package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Presence key modes
const (
	PresencePerRole    = "per_role"
	PresenceSingleSlot = "single_slot"
)

// Typing key scopes
const (
	TypingScopeSession = "session"
	TypingScopeRole    = "role"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port        string        `env:"PORT" envDefault:"8000"`
		Env         string        `env:"APP_ENV" envDefault:"development"`
		Timeout     time.Duration `env:"SERVER_TIMEOUT" envDefault:"30s"`
		BaseURL     string        `env:"WEBHOOK_HOST" envDefault:"http://localhost:8000"`
		CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:","`
	}

	// Database configuration
	Database struct {
		Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
		Host       string `env:"DB_HOST" envDefault:"localhost"`
		Port       string `env:"DB_PORT" envDefault:"5432"`
		User       string `env:"DB_USER" envDefault:"postgres"`
		Password   string `env:"DB_PASSWORD" envDefault:"postgres"`
		Name       string `env:"DB_NAME" envDefault:"support_chat"`
		SSLMode    string `env:"DB_SSL_MODE" envDefault:"disable"`
		MaxConns   int    `env:"DB_MAX_CONNS" envDefault:"20"`
		SQLitePath string `env:"SQLITE_PATH" envDefault:"support_chat.db"`
	}

	// Redis holds the ephemeral store connection; an empty URL selects the in-process cache
	Redis struct {
		URL      string `env:"REDIS_URL"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	// Chat holds session, presence and typing timings
	Chat struct {
		TypingTTL          time.Duration `env:"TYPING_TTL" envDefault:"3s"`
		TypingScope        string        `env:"TYPING_SCOPE" envDefault:"session"`
		PresenceTTL        time.Duration `env:"PRESENCE_TTL" envDefault:"35s"`
		PresenceFreshness  time.Duration `env:"PRESENCE_FRESHNESS" envDefault:"30s"`
		PresenceMode       string        `env:"PRESENCE_MODE" envDefault:"per_role"`
		InactiveDays       int           `env:"CHAT_INACTIVE_DAYS" envDefault:"3"`
		ReaperInterval     time.Duration `env:"REAPER_INTERVAL" envDefault:"1h"`
		ReaperRunOnStart   bool          `env:"REAPER_RUN_ON_START" envDefault:"false"`
		AllowEmptyMessages bool          `env:"ALLOW_EMPTY_MESSAGES" envDefault:"false"`
	}

	// Notify configures operator alerts
	Notify struct {
		BotToken       string        `env:"TELEGRAM_BOT_TOKEN"`
		Listener       bool          `env:"TELEGRAM_LISTENER" envDefault:"true"`
		OperatorChats  []int64       `env:"OPERATOR_CHAT_IDS" envSeparator:","`
		Queue          string        `env:"NOTIFY_QUEUE" envDefault:"memory"`
		Workers        int           `env:"NOTIFY_WORKERS" envDefault:"2"`
		QueueSize      int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
		MaxAttempts    int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3"`
		Rate           float64       `env:"NOTIFY_RATE" envDefault:"30"`
		SendTimeout    time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"10s"`
		NATSURL        string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
		NATSSubject    string        `env:"NATS_SUBJECT" envDefault:"support.notifications"`
		NATSQueueGroup string        `env:"NATS_QUEUE_GROUP" envDefault:"notifiers"`
	}

	// Security configuration
	Security struct {
		OperatorAPIKeys []string `env:"OPERATOR_API_KEYS" envSeparator:","`
		RateLimit       float64  `env:"RATE_LIMIT" envDefault:"5"`
		RateLimitBurst  int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	}

	// Uploads configures attachment storage
	Uploads struct {
		Dir     string `env:"UPLOAD_DIR" envDefault:"./uploads"`
		MaxSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"`
	}

	// Logging configuration
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
	}

	// Vault holds the optional secret store; secrets fall back to the environment
	Vault struct {
		Enabled   bool          `env:"VAULT_ENABLED" envDefault:"false"`
		Address   string        `env:"VAULT_ADDR"`
		Token     string        `env:"VAULT_TOKEN"`
		Namespace string        `env:"VAULT_NAMESPACE"`
		Mount     string        `env:"VAULT_MOUNT" envDefault:"secret"`
		Path      string        `env:"VAULT_SECRETS_PATH" envDefault:"support-chat"`
		Timeout   time.Duration `env:"VAULT_TIMEOUT" envDefault:"10s"`
	}

	Observability struct {
		TracingEnabled    bool   `env:"TRACING_ENABLED" envDefault:"false"`
		ServiceName       string `env:"SERVICE_NAME" envDefault:"support-chat"`
		OpenAPISchemaPath string `env:"OPENAPI_SCHEMA_PATH"`
	}
}

var (
	instance *Config
	once     sync.Once
)

// Load reads configuration from the environment (and a .env file when present)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New creates the singleton Config from the environment.
// It panics when the environment cannot be parsed, since nothing can start without it.
func New() *Config {
	once.Do(func() {
		cfg, err := Load()
		if err != nil {
			panic(err)
		}
		instance = cfg
	})
	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Validate checks enum-like settings
func (c *Config) Validate() error {
	switch c.Chat.PresenceMode {
	case PresencePerRole, PresenceSingleSlot:
	default:
		return fmt.Errorf("invalid PRESENCE_MODE %q", c.Chat.PresenceMode)
	}
	switch c.Chat.TypingScope {
	case TypingScopeSession, TypingScopeRole:
	default:
		return fmt.Errorf("invalid TYPING_SCOPE %q", c.Chat.TypingScope)
	}
	switch c.Notify.Queue {
	case "memory", "nats":
	default:
		return fmt.Errorf("invalid NOTIFY_QUEUE %q", c.Notify.Queue)
	}
	if c.Chat.PresenceFreshness > c.Chat.PresenceTTL {
		return fmt.Errorf("PRESENCE_FRESHNESS (%s) must not exceed PRESENCE_TTL (%s)", c.Chat.PresenceFreshness, c.Chat.PresenceTTL)
	}
	if c.Chat.InactiveDays <= 0 {
		return fmt.Errorf("CHAT_INACTIVE_DAYS must be positive, got %d", c.Chat.InactiveDays)
	}
	return nil
}

// InactivityWindow returns the silence window after which the reaper deactivates a session
func (c *Config) InactivityWindow() time.Duration {
	return time.Duration(c.Chat.InactiveDays) * 24 * time.Hour
}

// IsProduction reports whether the app runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
