package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	v := New()
	v.Set("paths.config_root", t.TempDir())
	v.Set("paths.bin_root", t.TempDir())

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Provider != "ookla" {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Timeouts.Measure != 3*time.Minute || cfg.Timeouts.Download != 5*time.Minute {
		t.Errorf("Timeouts = %+v", cfg.Timeouts)
	}
	if !cfg.Binary.TrustOnFirstUse || cfg.Binary.DownloadAttempts != 3 {
		t.Errorf("Binary = %+v", cfg.Binary)
	}
	if cfg.Ledger.Backend != "file" || cfg.Ledger.Redis.Prefix != "netvelocimeter:legal:" {
		t.Errorf("Ledger = %+v", cfg.Ledger)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, `
provider: static
logging:
  level: debug
timeouts:
  measure: 45s
binary:
  checksums:
    ookla:
      linux_amd64: abc123
sink:
  kafka:
    brokers: ["localhost:9092"]
`)
	t.Setenv("NETVELOCIMETER_LOGGING_LEVEL", "error")

	v := New()
	v.Set("paths.config_root", dir)
	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Provider != "static" {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("env override ignored, level = %q", cfg.Logging.Level)
	}
	if cfg.Timeouts.Measure != 45*time.Second {
		t.Errorf("Measure = %v", cfg.Timeouts.Measure)
	}
	if got := cfg.Checksums("Ookla")["linux_amd64"]; got != "abc123" {
		t.Errorf("checksum = %q", got)
	}
	if len(cfg.Sink.Kafka.Brokers) != 1 || cfg.Sink.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("Brokers = %v", cfg.Sink.Kafka.Brokers)
	}
}

func TestLoadDefaultFileInConfigRoot(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "provider: static\n")

	v := New()
	v.Set("paths.config_root", dir)
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "static" {
		t.Errorf("Provider = %q, want static from %s", cfg.Provider, FileName)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, ".env"), "NETVELOCIMETER_PROVIDER=static\n")
	t.Cleanup(func() { os.Unsetenv("NETVELOCIMETER_PROVIDER") })

	v := New()
	v.Set("paths.config_root", t.TempDir())
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "static" {
		t.Errorf("Provider = %q, want static from .env", cfg.Provider)
	}
}

func TestLoadErrors(t *testing.T) {
	chdir(t, t.TempDir())

	if _, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing explicit config file should fail")
	}

	v := New()
	v.Set("paths.config_root", t.TempDir())
	v.Set("ledger.backend", "postgres")
	if _, err := Load(v, ""); err == nil {
		t.Error("unknown ledger backend should fail")
	}
}
