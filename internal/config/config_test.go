package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"CHROMIUM_CDP_PORT", "LINKGRABBER_HANDOFF_TIMEOUT_MS", "LINKGRABBER_BIND_FALLBACKS", "LINKGRABBER_PASSIVE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GetCDPURL() != "http://127.0.0.1:9222" {
		t.Fatalf("GetCDPURL() = %q", cfg.GetCDPURL())
	}
	if cfg.HandoffTimeout() != 5*time.Second {
		t.Fatalf("HandoffTimeout() = %v; want 5s", cfg.HandoffTimeout())
	}
	if cfg.Passive {
		t.Fatalf("Passive defaulted to true")
	}
	if len(cfg.PortCandidates) != 2 {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("LINKGRABBER_HANDOFF_TIMEOUT_MS", "10")
	t.Setenv("LINKGRABBER_BIND_FALLBACKS", " 127.0.0.1:9001, ,127.0.0.1:9002 ")
	t.Setenv("LINKGRABBER_PASSIVE", "true")
	t.Setenv("LINKGRABBER_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPPort != 9333 {
		t.Fatalf("CDPPort = %d; want 9333", cfg.CDPPort)
	}
	if cfg.HandoffTimeoutMS != 500 {
		t.Fatalf("HandoffTimeoutMS = %d; want clamp to 500", cfg.HandoffTimeoutMS)
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:9002" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
	if !cfg.Passive || cfg.LogLevel != "debug" {
		t.Fatalf("Passive = %v, LogLevel = %q", cfg.Passive, cfg.LogLevel)
	}
}

func TestLoadRejectsBadCDPPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHROMIUM_CDP_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil; want invalid port")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LINKGRABBER_POLICY_FILE", "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LINKGRABBER_POLICY_FILE=custom.yaml\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv does not override variables that are already set.
	if err := os.Unsetenv("LINKGRABBER_POLICY_FILE"); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PolicyFile != "custom.yaml" {
		t.Fatalf("PolicyFile = %q; want custom.yaml", cfg.PolicyFile)
	}
}
