package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	Runner         string
	LogLevel       string
	ScratchRoot    string
	LanguagesFile  string
	DefaultTimeout time.Duration
	DockerMemoryMB int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8123"),
		Runner:        getEnv("RUNNER", "local"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		ScratchRoot:   getEnv("SCRATCH_ROOT", ""),
		LanguagesFile: getEnv("LANGUAGES_CONFIG", "./languages.yaml"),
	}

	// Scratch dirs fall back to the system temp location when no root is
	// configured.
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = os.TempDir()
	}

	timeout, err := time.ParseDuration(getEnv("DEFAULT_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("parsing DEFAULT_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("DEFAULT_TIMEOUT must be positive, got %s", timeout)
	}
	cfg.DefaultTimeout = timeout

	cfg.DockerMemoryMB, err = strconv.Atoi(getEnv("DOCKER_MEMORY_MB", "256"))
	if err != nil {
		return nil, fmt.Errorf("parsing DOCKER_MEMORY_MB: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
