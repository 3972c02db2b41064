package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/modahaus/storefront/internal/storagemode"
)

type Config struct {
	Env  string `validate:"required,oneof=development stage production"`
	Http Http

	Cors CORS `validate:"required"`

	Kafka Kafka

	Postgres Postgres

	Storage Storage `validate:"required"`

	Cache Cache
}

type Http struct {
	Host string `validate:"required,hostname|ip"`
	Port string `validate:"required,gt=0,lte=65535"`
}

type CORS struct {
	AllowedOrigins []string `validate:"required,min=1,dive,url"`
}

// Kafka configures the optional admitted-order feed. Empty Brokers disables it.
type Kafka struct {
	Brokers []string `validate:"omitempty,dive,hostname_port"`
	Topic   string   `validate:"required_with=Brokers"`

	BatchTimeout time.Duration `validate:"gte=0"`
}

func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Postgres describes the relational backend. An empty Host means no
// relational backend is configured and the document store runs alone.
type Postgres struct {
	Host     string `validate:"omitempty,hostname|ip"`
	Port     int    `validate:"omitempty,gt=0,lte=65535"`
	DBName   string `validate:"required_with=Host"`
	User     string `validate:"required_with=Host"`
	Password string

	SSLMode string `validate:"omitempty,oneof=disable require verify-ca verify-full"`

	MaxOpenConns    int           `validate:"gte=0"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
}

func (p Postgres) Configured() bool {
	return p.Host != ""
}

// Storage selects which backend is authoritative and whether writes are
// mirrored during a migration window.
type Storage struct {
	Mode        string `validate:"required,oneof=document relational"`
	DualWrite   bool
	ReadOnlyFS  bool
	DocstoreDir string `validate:"required"`
	OrderPrefix string `validate:"required,alphanum,uppercase,max=8"`
}

type Cache struct {
	Capacity int           `validate:"gte=1"`
	TTL      time.Duration `validate:"gt=0"`
}

func New() Config {
	return Config{
		Env: env("ENV", "development"),

		Http: Http{
			Host: env("HOST", "localhost"),
			Port: env("PORT", "8080"),
		},

		Cors: CORS{
			AllowedOrigins: strings.Split(env("ALLOWED_CORS_ORIGINS", "http://localhost:3000"), ","),
		},

		Kafka: Kafka{
			Brokers: splitNonEmpty(env("KAFKA_BROKERS", "")),
			Topic:   env("KAFKA_TOPIC", "orders.admitted"),

			BatchTimeout: envDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),
		},

		Postgres: Postgres{
			Host:     env("POSTGRES_HOST", ""),
			Port:     envInt("POSTGRES_PORT", 5432),
			DBName:   env("POSTGRES_DB", "storefront"),
			User:     env("POSTGRES_USER", ""),
			Password: env("POSTGRES_PASSWORD", ""),

			SSLMode: env("POSTGRES_SSL_MODE", "disable"),

			MaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Storage: Storage{
			Mode:        env("STORAGE_MODE", "document"),
			DualWrite:   envBool("DUAL_WRITE", false),
			ReadOnlyFS:  envBool("READONLY_FS", false),
			DocstoreDir: env("DOCSTORE_DIR", "data"),
			OrderPrefix: env("ORDER_PREFIX", "MH"),
		},

		Cache: Cache{
			Capacity: envInt("CACHE_CAPACITY", 1000),
			TTL:      envDuration("CACHE_TTL", 10*time.Minute),
		},
	}
}

// ModeSettings projects the config onto the storage mode resolver's input.
func (c Config) ModeSettings() storagemode.Settings {
	return storagemode.Settings{
		RelationalConfigured: c.Postgres.Configured(),
		ReadOnlyFS:           c.Storage.ReadOnlyFS,
		Preference:           storagemode.Preference(c.Storage.Mode),
		DualWrite:            c.Storage.DualWrite,
	}
}

func (c Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func env(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if len(fallback) == 0 {
		return ""
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
