package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleTOML = `
bin_path = "/usr/libexec/usbsas"
sandbox = "seccomp"

[workers]
device_reader = "/usr/libexec/usbsas/usbsas-device-reader"
fs_builder    = "/usr/libexec/usbsas/usbsas-fs-builder"

[analyzer]
upload_url = "https://av.example.internal/upload"
poll_interval = "3s"

[[filters]]
mode = "end"
pattern = ".tmp"
action = "reject"

[[filters]]
mode = "start"
pattern = "/.git"
action = "filter"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "usbsas.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesValuesAndDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BinPath != "/usr/libexec/usbsas" {
		t.Errorf("BinPath = %q", cfg.BinPath)
	}
	if cfg.Workers["device_reader"] != "/usr/libexec/usbsas/usbsas-device-reader" {
		t.Errorf("Workers[device_reader] = %q", cfg.Workers["device_reader"])
	}
	if cfg.Analyzer.PollInterval != 3*time.Second {
		t.Errorf("Analyzer.PollInterval = %v, want 3s", cfg.Analyzer.PollInterval)
	}
	// Timeout was left unset in the TOML and must fall back to the default.
	if cfg.Analyzer.Timeout == 0 {
		t.Error("Analyzer.Timeout should have received a default, got 0")
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat default = %q, want text", cfg.LogFormat)
	}
}

func TestFilterSetRejectsUnknownMode(t *testing.T) {
	path := writeTempConfig(t, `
[[filters]]
mode = "regex"
pattern = ".*"
action = "reject"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.FilterSet(); err == nil {
		t.Error("FilterSet: expected error for unknown mode, got nil")
	}
}

func TestFilterSetBuildsRules(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	set, err := cfg.FilterSet()
	if err != nil {
		t.Fatalf("FilterSet: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("len(set) = %d, want 2", len(set))
	}
}
