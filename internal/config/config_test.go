package config_test

import (
	"testing"
	"time"

	"github.com/vanillastudio/console/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "RUNNER", "LOG_LEVEL", "SCRATCH_ROOT",
		"LANGUAGES_CONFIG", "DEFAULT_TIMEOUT", "DOCKER_MEMORY_MB",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8123" {
		t.Errorf("expected default port 8123, got %s", cfg.Port)
	}
	if cfg.Runner != "local" {
		t.Errorf("expected default runner local, got %s", cfg.Runner)
	}
	if cfg.DefaultTimeout != 60*time.Second {
		t.Errorf("expected default timeout 60s, got %s", cfg.DefaultTimeout)
	}
	if cfg.DockerMemoryMB != 256 {
		t.Errorf("expected default memory 256, got %d", cfg.DockerMemoryMB)
	}
	if cfg.ScratchRoot == "" {
		t.Error("scratch root should fall back to the system temp dir")
	}
	if cfg.LanguagesFile != "./languages.yaml" {
		t.Errorf("expected default languages file, got %s", cfg.LanguagesFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("RUNNER", "docker")
	t.Setenv("SCRATCH_ROOT", "/var/tmp/console")
	t.Setenv("DEFAULT_TIMEOUT", "90s")
	t.Setenv("DOCKER_MEMORY_MB", "512")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Port)
	}
	if cfg.Runner != "docker" {
		t.Errorf("expected runner docker, got %s", cfg.Runner)
	}
	if cfg.ScratchRoot != "/var/tmp/console" {
		t.Errorf("expected configured scratch root, got %s", cfg.ScratchRoot)
	}
	if cfg.DefaultTimeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %s", cfg.DefaultTimeout)
	}
	if cfg.DockerMemoryMB != 512 {
		t.Errorf("expected memory 512, got %d", cfg.DockerMemoryMB)
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("DEFAULT_TIMEOUT", "not-a-duration")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for malformed DEFAULT_TIMEOUT")
	}

	t.Setenv("DEFAULT_TIMEOUT", "-5s")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for non-positive DEFAULT_TIMEOUT")
	}
}

func TestLoadRejectsBadMemory(t *testing.T) {
	t.Setenv("DOCKER_MEMORY_MB", "lots")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for malformed DOCKER_MEMORY_MB")
	}
}
