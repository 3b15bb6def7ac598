package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_PORT"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Store      StoreConfig
	Postgres   PostgresConfig
	Cache      CacheConfig
	Pagination PaginationConfig
	Retry      RetryConfig
	Admin      AdminConfig
	CORS       CORSConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080" validate:"required,numeric"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s" validate:"gt=0"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s" validate:"gt=0"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s" validate:"gt=0"`
}

// GrpcServerConfig holds the gRPC health endpoint settings.
type GrpcServerConfig struct {
	Enabled bool   `envconfig:"GRPC_SERVER_ENABLED" default:"true"`
	Port    string `envconfig:"GRPC_SERVER_PORT" default:"9090" validate:"required,numeric"`
}

// StoreConfig selects and tunes the catalog database.
type StoreConfig struct {
	Driver       string        `envconfig:"STORE_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres"`
	SQLitePath   string        `envconfig:"SQLITE_PATH" default:"./data/catalog.db"`
	BusyTimeout  time.Duration `envconfig:"SQLITE_BUSY_TIMEOUT" default:"5s" validate:"gte=0"`
	MaxOpenConns int           `envconfig:"STORE_MAX_OPEN_CONNS" default:"8" validate:"gte=1"`
}

// PostgresConfig holds PostgreSQL database connection details.
// The fields are only checked when STORE_DRIVER=postgres.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	DBName   string `envconfig:"POSTGRES_DBNAME"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// CacheConfig selects the response cache and its per-payload TTLs.
type CacheConfig struct {
	Enabled         bool          `envconfig:"CACHE_ENABLED" default:"true"`
	Driver          string        `envconfig:"CACHE_DRIVER" default:"file" validate:"oneof=file memory redis"`
	Dir             string        `envconfig:"CACHE_DIR" default:"./data/cache"`
	RedisURL        string        `envconfig:"CACHE_REDIS_URL" default:"redis://localhost:6379/0"`
	KeyPrefix       string        `envconfig:"CACHE_KEY_PREFIX" default:"catalog:"`
	CleanupInterval time.Duration `envconfig:"CACHE_CLEANUP_INTERVAL" default:"1m" validate:"gt=0"`
	SearchTTL       time.Duration `envconfig:"CACHE_SEARCH_TTL" default:"60s" validate:"gte=0"`
	ListingTTL      time.Duration `envconfig:"CACHE_LISTING_TTL" default:"5m" validate:"gte=0"`
	ProductTTL      time.Duration `envconfig:"CACHE_PRODUCT_TTL" default:"10m" validate:"gte=0"`
	CategoriesTTL   time.Duration `envconfig:"CACHE_CATEGORIES_TTL" default:"1h" validate:"gte=0"`
	TagsTTL         time.Duration `envconfig:"CACHE_TAGS_TTL" default:"1h" validate:"gte=0"`
	HomeTTL         time.Duration `envconfig:"CACHE_HOME_TTL" default:"2h" validate:"gte=0"`
}

// PaginationConfig bounds the public listing parameters.
type PaginationConfig struct {
	DefaultPerPage int `envconfig:"PAGINATION_DEFAULT_PER_PAGE" default:"20" validate:"gte=1"`
	MaxPerPage     int `envconfig:"PAGINATION_MAX_PER_PAGE" default:"200" validate:"gtefield=DefaultPerPage"`
	MaxPage        int `envconfig:"PAGINATION_MAX_PAGE" default:"1000" validate:"gte=1"`
}

// RetryConfig controls how transient store errors are retried.
type RetryConfig struct {
	MaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3" validate:"gte=1,lte=10"`
	Backoff     time.Duration `envconfig:"RETRY_BACKOFF" default:"200ms" validate:"gte=0"`
	Doubling    bool          `envconfig:"RETRY_DOUBLING" default:"false"`
}

// AdminConfig protects the admin API.
type AdminConfig struct {
	APIKey string `envconfig:"ADMIN_API_KEY"`
}

// CORSConfig lists the storefront origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

var cfg Config
var loaded bool

// Load initializes the configuration from environment variables, after
// reading an optional .env file. It should be called once during startup.
func Load() (*Config, error) {
	log.Println("INFO: Loading service configuration...")
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg = c
	loaded = true
	log.Printf("INFO: Configuration loaded successfully for APP_ENV: %s (store=%s, cache=%s)",
		cfg.AppEnv, cfg.Store.Driver, cfg.Cache.Driver)
	return &cfg, nil
}

// Validate checks field constraints and the cross-field rules envconfig cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Store.Driver == "postgres" {
		var missing []string
		for name, v := range map[string]string{
			"POSTGRES_HOST": c.Postgres.Host, "POSTGRES_USER": c.Postgres.User,
			"POSTGRES_PASSWORD": c.Postgres.Password, "POSTGRES_DBNAME": c.Postgres.DBName,
		} {
			if v == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("invalid configuration: postgres driver requires %s", strings.Join(missing, ", "))
		}
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return errors.New("invalid configuration: SQLITE_PATH is required for the sqlite driver")
	}
	if c.Cache.Enabled && c.Cache.Driver == "file" && c.Cache.Dir == "" {
		return errors.New("invalid configuration: CACHE_DIR is required for the file cache")
	}
	return nil
}

// Get returns the loaded configuration.
// Exits the process if Load() has not been called successfully.
func Get() *Config {
	if !loaded {
		log.Fatal("ERROR: Configuration has not been loaded. Call config.Load() first.")
	}
	return &cfg
}
