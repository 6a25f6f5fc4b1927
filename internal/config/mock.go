package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// MockConfig holds the settings of the mock horde server.
type MockConfig struct {
	// Server
	ServerAddr string

	// Auth
	APIKeys    []string // keys accepted on pop and async
	AdminToken string   // Bearer token for the job enqueue endpoint

	// Generations
	ChecksToComplete int           // check calls before a generation reports finished
	GenerationTTL    time.Duration // unfinished generations are forgotten after this
	KudosPerJob      float64

	// Redis (optional job queue; in-memory when empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoadMock reads the mock horde configuration from environment variables.
func LoadMock() *MockConfig {
	return &MockConfig{
		ServerAddr:       envOr("MOCKHORDE_ADDR", ":7001"),
		APIKeys:          envListOr("MOCKHORDE_API_KEYS", []string{"0000000000"}),
		AdminToken:       envOr("MOCKHORDE_ADMIN_TOKEN", ""),
		ChecksToComplete: envIntOr("MOCKHORDE_CHECKS_TO_COMPLETE", 3),
		GenerationTTL:    envDurationOr("MOCKHORDE_GENERATION_TTL", 10*time.Minute),
		KudosPerJob:      envFloatOr("MOCKHORDE_KUDOS_PER_JOB", 10),
		RedisAddr:        envOr("REDIS_ADDR", ""),
		RedisPassword:    envOr("REDIS_PASSWORD", ""),
		RedisDB:          envIntOr("REDIS_DB", 0),
	}
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envListOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
