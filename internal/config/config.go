// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Identity providers.
const (
	IdentityJWT      = "jwt"
	IdentityFirebase = "firebase"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	StoreBackend   string `mapstructure:"STORE_BACKEND"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`
	FirestoreProj  string `mapstructure:"FIRESTORE_PROJECT_ID"`
	FirebaseCreds  string `mapstructure:"FIREBASE_CREDENTIALS_PATH"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	IdentityProv   string `mapstructure:"IDENTITY_PROVIDER"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	ModeratorIDs   string `mapstructure:"MODERATOR_IDS"`
	StatePath      string `mapstructure:"STATE_PATH"`

	FeedWindow        int           `mapstructure:"FEED_WINDOW"`
	FeedLoadTimeout   time.Duration `mapstructure:"FEED_LOAD_TIMEOUT"`
	DiscoveryCacheTTL time.Duration `mapstructure:"DISCOVERY_CACHE_TTL"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	setDefaults(v)

	// The base config file is optional.
	_ = v.ReadInConfig()

	env := v.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) || env == "production" {
				return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
			}
		} else {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8375")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("STORE_BACKEND", BackendSQLite)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "pawfeed")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "pawfeed.db")
	v.SetDefault("FIRESTORE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_CREDENTIALS_PATH", "")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("IDENTITY_PROVIDER", IdentityJWT)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("FEATURE_FLAGS", "personalized_discovery=on,feed_seed_fallback=on")
	v.SetDefault("MODERATOR_IDS", "")
	v.SetDefault("STATE_PATH", "pawfeed-state.yml")
	v.SetDefault("FEED_WINDOW", 100)
	v.SetDefault("FEED_LOAD_TIMEOUT", "8s")
	v.SetDefault("DISCOVERY_CACHE_TTL", "30s")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

// IsProduction reports whether the config targets production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Moderators returns the configured moderator ids.
func (c *Config) Moderators() map[string]bool {
	out := make(map[string]bool)
	for _, id := range strings.Split(c.ModeratorIDs, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			out[id] = true
		}
	}
	return out
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.StoreBackend {
	case BackendPostgres, BackendSQLite:
	case BackendFirestore:
		if c.FirestoreProj == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.IdentityProv {
	case IdentityJWT:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required")
		}
	case IdentityFirebase:
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProv)
	}

	if c.FeedWindow <= 0 {
		return errors.New("FEED_WINDOW must be positive")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.StoreBackend == BackendSQLite {
			return errors.New("the sqlite backend is not supported in production")
		}
		if c.IdentityProv == IdentityJWT {
			if c.JWTSecret == defaultJWTSecret {
				return errors.New("JWT_SECRET must be changed from the default value in production")
			}
			if len(c.JWTSecret) < 32 {
				return errors.New("JWT_SECRET must be at least 32 characters in production")
			}
		}
		if c.StoreBackend == BackendPostgres && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if c.IdentityProv == IdentityJWT && len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
