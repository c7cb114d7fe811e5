package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	GeminiAPIKey    string
	GeminiModel     string
	DatabaseURL     string
	HTTPPort        string
	LogLevel        string
	LogFormat       string
	JWTSecret       string
	TokenTTL        time.Duration
	HistoryLimit    int
	Temperature     float32
	MaxOutputTokens int
	RewardTimezone  string
	BannedWords     []string
	RateLimitRPS    float64
	RateLimitBurst  int
	AccrualTimeout  time.Duration
}

var AppConfig Config

// LoadConfig loads .env (if present) and the environment into AppConfig.
func LoadConfig() error {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (Config, error) {
	cfg := Config{
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		DatabaseURL:     getEnv("DATABASE_URL", "streak_chat.db"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTL:        getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		HistoryLimit:    getEnvAsInt("HISTORY_LIMIT", 10),
		Temperature:     float32(getEnvAsFloat("TEMPERATURE", 0.7)),
		MaxOutputTokens: getEnvAsInt("MAX_OUTPUT_TOKENS", 1024),
		RewardTimezone:  getEnv("REWARD_TIMEZONE", "UTC"),
		BannedWords:     getEnvAsList("BANNED_WORDS"),
		RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 5),
		AccrualTimeout:  getEnvAsDuration("ACCRUAL_TIMEOUT", 10*time.Second),
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.HistoryLimit < 0 {
		return Config{}, fmt.Errorf("HISTORY_LIMIT must not be negative, got %d", cfg.HistoryLimit)
	}
	if _, err := time.LoadLocation(cfg.RewardTimezone); err != nil {
		return Config{}, fmt.Errorf("invalid REWARD_TIMEZONE %q: %w", cfg.RewardTimezone, err)
	}
	return cfg, nil
}

// Location returns the time zone that defines a reward "day".
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.RewardTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
