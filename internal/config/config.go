package config // package config loads application configuration from environment variables

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; defaults cover everything except the JWT secret.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`   // application environment (dev, test, prod)
	Port string `env:"APP_PORT" envDefault:"8080"` // HTTP port to listen on

	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"` // mysql or sqlite
	DBUser   string `env:"DB_USER" envDefault:"root"`
	DBPass   string `env:"DB_PASS"` // empty allowed
	DBHost   string `env:"DB_HOST" envDefault:"localhost"`
	DBPort   string `env:"DB_PORT" envDefault:"3306"`
	DBName   string `env:"DB_NAME" envDefault:"contacts"`
	DBPath   string `env:"DB_PATH" envDefault:"contacts.db"` // sqlite file, used when DBDriver is sqlite

	JWTSecret  string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`

	AdminName     string `env:"ADMIN_NAME" envDefault:"Administrator"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	UploadDir      string   `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	RabbitMQURL    string `env:"RABBITMQ_URL"`
	EventsExchange string `env:"EVENTS_EXCHANGE" envDefault:"contacts.events"`
	AuditConsumer  bool   `env:"AUDIT_CONSUMER_ENABLED" envDefault:"false"`
	AuditLogPath   string `env:"AUDIT_LOG_PATH" envDefault:"logs/audit.log"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Redis     RedisConfig     `envPrefix:"REDIS_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
}

// Load reads an optional .env file and then parses the environment into a
// Config.  A missing .env is not an error; a missing JWT_SECRET is.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch cfg.DBDriver {
	case "mysql", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	cfg.RateLimit.normalize()
	cfg.Cache.normalize()
	return cfg, nil
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}
