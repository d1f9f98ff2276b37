// Package config loads the application configuration from a yaml file,
// environment variables, and an optional .env file.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Backend names accepted for store.backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

type Config struct {
	// Port is the port number to listen on. The default is 8080.
	Port int `validate:"required,port"`
	// Hostname is the hostname to listen on. The default is 0.0.0.0.
	Hostname string `validate:"required"`
	Store    struct {
		// Backend selects the store implementation: file, sqlite, or pebble.
		Backend string `validate:"required,oneof=file sqlite pebble"`
		// Path is the store location: a JSON file for the file backend, a
		// database file for sqlite, a directory for pebble.
		Path string `validate:"required"`
		// Migrations is the directory holding goose migrations, used by the
		// sqlite backend.
		Migrations string
	}
	Auth struct {
		// Secret signs session tokens. It must be a base64 encoded string;
		// the default is a random 32 byte value.
		Secret Base64Encoded `validate:"required"`
		// TokenExp is the session token lifetime.
		TokenExp time.Duration
	}
	Poll struct {
		// Interval is the polling refresher interval. The default is 1s.
		Interval time.Duration `validate:"required"`
	}
	// AllowedOrigins is a list of origins allowed to call the API.
	AllowedOrigins []string
	Log            struct {
		Level  string
		Pretty bool
	}
}

type Base64Encoded []byte

func (b *Base64Encoded) UnmarshalText(text []byte) error {
	dec, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("base64 decode: %w", err)
	}
	*b = dec
	return nil
}

var validate = validator.New()

func init() {
	validate.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		port, ok := fl.Field().Interface().(int)
		if !ok {
			return false
		}
		return port > 0 && port <= 65535
	})
}

// Load reads the configuration. Values come from config.yaml in the working
// directory when present, overridden by environment variables (dots become
// underscores); a .env file is folded into the environment first. Missing
// values fall back to defaults.
func Load() (*Config, error) {
	// Best effort: running without a .env file is normal.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "./chatrooms.json")
	v.SetDefault("store.migrations", "./migrations")
	v.SetDefault("auth.tokenexp", 24*time.Hour)
	v.SetDefault("poll.interval", time.Second)
	v.SetDefault("allowedorigins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	v.SetDefault("auth.secret", base64.StdEncoding.EncodeToString(secret))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config,
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(",")),
		),
	); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}
