package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/clinicdesk/clinicdesk/internal/platform/storage"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DataDir        string   `mapstructure:"DATA_DIR"`
	StorageDriver  string   `mapstructure:"STORAGE_DRIVER"`
	SQLitePath     string   `mapstructure:"SQLITE_PATH"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	DefaultActor   string   `mapstructure:"DEFAULT_ACTOR"`
	RequestTimeout string   `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`
	ImportLimit    string   `mapstructure:"IMPORT_LIMIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8600")
	v.SetDefault("ENV", "development")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("STORAGE_DRIVER", "sqlite")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEFAULT_ACTOR", "reception")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("IMPORT_LIMIT", "25M")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATA_DIR")
	v.BindEnv("STORAGE_DRIVER")
	v.BindEnv("SQLITE_PATH")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("DEFAULT_ACTOR")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("IMPORT_LIMIT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Driver returns the configured storage driver.
func (c *Config) Driver() storage.Driver {
	return storage.Driver(c.StorageDriver)
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.Driver() {
	case storage.DriverSQLite, storage.DriverFile, storage.DriverMemory, "":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be \"sqlite\", \"file\", or \"memory\", got %q", c.StorageDriver)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	return nil
}
