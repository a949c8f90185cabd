package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// SettingsEnv names an optional env-format file overlaid on top of the environment.
const SettingsEnv = "DIARY_SETTINGS"

type Config struct {
	DBDriver       string        `validate:"required,oneof=sqlite3 postgres"`
	DBConn         string        `validate:"required"`
	SecretKey      string        `validate:"required"`
	Username       string        `validate:"required"`
	Password       string
	PasswordHash   string
	Port           string        `validate:"required,numeric"`
	SessionStore   string        `validate:"required,oneof=memory redis"`
	RedisURI       string        `validate:"required_if=SessionStore redis"`
	SessionTTL     time.Duration `validate:"gt=0"`
	RequireAuth    bool
	TrustProxy     bool
	LoginRateRPS   float64 `validate:"gte=0"`
	LoginRateBurst int     `validate:"gte=1"`
	LogDir         string
	LogLevel       string
}

// Load reads .env and DIARY_SETTINGS if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path := os.Getenv(SettingsEnv); path != "" {
		if err := godotenv.Overload(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", SettingsEnv, err)
		}
	}
	return FromEnv()
}

// FromEnv builds the config from the current environment with defaults. A
// variable that is set but does not parse is an error, not a silent default.
func FromEnv() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		DBDriver:     getEnv("DB_DRIVER", "sqlite3"),
		DBConn:       getEnv("DB_CONN", "./diary.db"),
		SecretKey:    getEnv("SECRET_KEY", "development key"),
		Username:     getEnv("DIARY_USERNAME", "admin"),
		Password:     getEnv("DIARY_PASSWORD", "default"),
		PasswordHash: getEnv("DIARY_PASSWORD_HASH", ""),
		Port:         getEnv("PORT", "8080"),
		SessionStore: getEnv("SESSION_STORE", "memory"),
		RedisURI:     getEnv("REDIS_URI", "redis://localhost:6379/0"),
		LogDir:       getEnv("LOG_DIR", ""),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
	}

	var err error
	cfg.SessionTTL, err = getDurationEnv("SESSION_TTL", 7*24*time.Hour)
	collect(err)
	cfg.RequireAuth, err = getBoolEnv("REQUIRE_AUTH", false)
	collect(err)
	cfg.TrustProxy, err = getBoolEnv("TRUSTED_PROXY", false)
	collect(err)
	cfg.LoginRateRPS, err = getFloatEnv("LOGIN_RATE_RPS", 1)
	collect(err)
	cfg.LoginRateBurst, err = getIntEnv("LOGIN_RATE_BURST", 5)
	collect(err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s=%q: not a duration", key, v)
	}
	return d, nil
}

func getIntEnv(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s=%q: not an integer", key, v)
	}
	return i, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s=%q: not a number", key, v)
	}
	return f, nil
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s=%q: not a boolean", key, v)
	}
	return b, nil
}
