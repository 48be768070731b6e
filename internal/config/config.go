// Package config loads server settings from an optional .env file, a YAML
// file and POLLEN_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/soaringjerry/Pollen/internal/utils"
)

const (
	DefaultAppID = "default-forms-app"
	DefaultAddr  = ":8080"

	EnvConfigFile = "POLLEN_CONFIG"
)

type Config struct {
	AppID        string `yaml:"app_id" validate:"required,excludesall=/"`
	Addr         string `yaml:"addr" validate:"required"`
	ShareBaseURL string `yaml:"share_base_url"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl" validate:"gte=0"`
	} `yaml:"auth"`

	Builder struct {
		DebounceWindow time.Duration `yaml:"debounce_window" validate:"gte=0"`
		SnapshotPolicy string        `yaml:"snapshot_policy" validate:"oneof=overwrite pending-wins"`
		WriteTimeout   time.Duration `yaml:"write_timeout" validate:"gte=0"`
	} `yaml:"builder"`

	Viewer struct {
		ValidationMode string `yaml:"validation_mode" validate:"oneof=first all"`
	} `yaml:"viewer"`

	Store StoreConfig `yaml:"store"`

	RateLimit struct {
		PerSecond float64 `yaml:"per_second" validate:"gte=0"`
		Burst     int     `yaml:"burst" validate:"gte=0"`
	} `yaml:"rate_limit"`

	AllowOrigins []string `yaml:"allow_origins"`

	Logging utils.LoggerConfig `yaml:"logging"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver" validate:"oneof=memory sqlite mongo"`
	SQLitePath    string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	MigrationsDir string `yaml:"migrations_dir"`

	Mongo struct {
		URI         string        `yaml:"uri"`
		Database    string        `yaml:"database"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxPoolSize uint64        `yaml:"max_pool_size"`
	} `yaml:"mongo"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	var c Config
	c.AppID = DefaultAppID
	c.Addr = DefaultAddr
	c.Auth.TokenTTL = 30 * 24 * time.Hour
	c.Builder.DebounceWindow = 500 * time.Millisecond
	c.Builder.SnapshotPolicy = "pending-wins"
	c.Builder.WriteTimeout = 10 * time.Second
	c.Viewer.ValidationMode = "first"
	c.Store.Driver = "memory"
	c.Store.SQLitePath = "./data/pollen.db"
	c.Store.MigrationsDir = "./migrations"
	c.Store.Mongo.Database = "pollen"
	c.Store.Mongo.Timeout = 10 * time.Second
	c.RateLimit.PerSecond = 5
	c.RateLimit.Burst = 20
	c.Logging.Level = "info"
	return c
}

// Load reads path (or $POLLEN_CONFIG when path is empty); a missing file is
// not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	c := Default()
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := Parse(b, &c); err != nil {
				return Config{}, err
			}
		}
	}
	applyEnv(&c)
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Parse decodes YAML over c; unknown keys are rejected.
func Parse(b []byte, c *Config) error {
	if err := yaml.UnmarshalStrict(b, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.AppID = utils.SafeEnv("POLLEN_APP_ID", c.AppID)
	c.Addr = utils.SafeEnv("POLLEN_ADDR", c.Addr)
	c.ShareBaseURL = utils.SafeEnv("POLLEN_SHARE_BASE_URL", c.ShareBaseURL)
	c.Auth.JWTSecret = utils.SafeEnv("POLLEN_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = utils.SafeEnvDuration("POLLEN_TOKEN_TTL", c.Auth.TokenTTL)
	c.Builder.DebounceWindow = utils.SafeEnvDuration("POLLEN_DEBOUNCE_WINDOW", c.Builder.DebounceWindow)
	c.Builder.SnapshotPolicy = utils.SafeEnv("POLLEN_SNAPSHOT_POLICY", c.Builder.SnapshotPolicy)
	c.Viewer.ValidationMode = utils.SafeEnv("POLLEN_VALIDATION_MODE", c.Viewer.ValidationMode)
	c.Store.Driver = utils.SafeEnv("POLLEN_STORE_DRIVER", c.Store.Driver)
	c.Store.SQLitePath = utils.SafeEnv("POLLEN_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.MigrationsDir = utils.SafeEnv("POLLEN_MIGRATIONS_DIR", c.Store.MigrationsDir)
	c.Store.Mongo.URI = utils.SafeEnv("POLLEN_MONGO_URI", c.Store.Mongo.URI)
	c.Store.Mongo.Database = utils.SafeEnv("POLLEN_MONGO_DB", c.Store.Mongo.Database)
	c.RateLimit.Burst = utils.SafeEnvInt("POLLEN_RATE_BURST", c.RateLimit.Burst)
	c.Logging.Level = utils.SafeEnv("POLLEN_LOG_LEVEL", c.Logging.Level)
	c.Logging.LogToFile = utils.SafeEnvBool("POLLEN_LOG_TO_FILE", c.Logging.LogToFile)
	c.Logging.Filename = utils.SafeEnv("POLLEN_LOG_FILE", c.Logging.Filename)
}

var validate = validator.New()

func Validate(c Config) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == "mongo" && c.Store.Mongo.URI == "" {
		return errors.New("invalid config: store.mongo.uri is required for the mongo driver")
	}
	return nil
}
