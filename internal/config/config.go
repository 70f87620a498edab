package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigins        []string
	DatabaseURL           string
	DBMigrate             bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	Timezone              string
	RequestTimeoutSeconds int
	LedgerTimeoutSeconds  int
	DayLockTTLSeconds     int
	LogLevel              string
	LogPretty             bool
}

// Load reads .env when present, then the process environment. Values already
// set in the environment win over .env.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:                  getEnv("PORT", "5005"),
		AllowedOrigins:        splitList(getEnv("ALLOWED_ORIGINS", "*")),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMigrate:             getBool("DB_MIGRATE", true),
		RedisAddr:             strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0, 0),
		Timezone:              getEnv("APP_TIMEZONE", "Local"),
		RequestTimeoutSeconds: getInt("REQUEST_TIMEOUT_SECONDS", 15, 1),
		LedgerTimeoutSeconds:  getInt("LEDGER_TIMEOUT_SECONDS", 5, 1),
		DayLockTTLSeconds:     getInt("DAY_LOCK_TTL_SECONDS", 10, 1),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogPretty:             getBool("LOG_PRETTY", false),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) LedgerTimeout() time.Duration {
	return time.Duration(c.LedgerTimeoutSeconds) * time.Second
}

func (c Config) DayLockTTL() time.Duration {
	return time.Duration(c.DayLockTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, floor int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < floor {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
