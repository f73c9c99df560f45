package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Target.Port != 22 {
		t.Errorf("Target.Port = %d, want 22", cfg.Target.Port)
	}
	if cfg.Target.Shell != "bash" {
		t.Errorf("Target.Shell = %q, want %q", cfg.Target.Shell, "bash")
	}
	if cfg.Security.MaxSessions != 100 {
		t.Errorf("Security.MaxSessions = %d, want 100", cfg.Security.MaxSessions)
	}
	if cfg.Security.SessionTimeout != 600*time.Second {
		t.Errorf("Security.SessionTimeout = %v, want 600s", cfg.Security.SessionTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if !cfg.Logging.Sanitize {
		t.Error("Logging.Sanitize = false, want true")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Target.Port != 22 {
		t.Errorf("Target.Port = %d, want 22 (default)", cfg.Target.Port)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load(missing) error: %v, want nil (defaults)", err)
	}
	if cfg.Security.MaxSessions != 100 {
		t.Errorf("MaxSessions = %d, want 100 (default)", cfg.Security.MaxSessions)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "bad.yaml")
	if err := os.WriteFile(path, []byte(":::invalid:::yaml{{{"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load(invalid YAML) expected error, got nil")
	}
}

func TestLoadValidConfig(t *testing.T) {
	yamlText := `
target:
  host: 10.0.0.1
  port: 2222
  username: deploy
  private_key_path: ~/.ssh/id_rsa
  passphrase_env: DEPLOY_KEY_PASS
  shell: sh
security:
  allowed_commands:
    - "^ls"
  max_sessions: 5
  session_timeout: 1h
  max_connections_per_host: 3
  max_auth_failures: 5
  auth_lockout_duration: 15m
  use_keyring: true
logging:
  level: debug
  sanitize: false
  include_commands: true
  max_response_length: 8192
  audit:
    enabled: true
    path: /var/log/ssh-control-mcp/audit.log
`
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Target.Host != "10.0.0.1" {
		t.Errorf("Target.Host = %q, want %q", cfg.Target.Host, "10.0.0.1")
	}
	if cfg.Target.Port != 2222 {
		t.Errorf("Target.Port = %d, want 2222", cfg.Target.Port)
	}
	if cfg.Target.Shell != "sh" {
		t.Errorf("Target.Shell = %q, want %q", cfg.Target.Shell, "sh")
	}
	if len(cfg.Security.AllowedCommands) != 1 {
		t.Fatalf("AllowedCommands len = %d, want 1", len(cfg.Security.AllowedCommands))
	}
	if cfg.Security.MaxSessions != 5 {
		t.Errorf("MaxSessions = %d, want 5", cfg.Security.MaxSessions)
	}
	if cfg.Security.SessionTimeout != time.Hour {
		t.Errorf("SessionTimeout = %v, want 1h", cfg.Security.SessionTimeout)
	}
	if !cfg.Security.UseKeyring {
		t.Error("UseKeyring = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Sanitize {
		t.Error("Logging.Sanitize = true, want false")
	}
	if !cfg.Logging.Audit.Enabled {
		t.Error("Logging.Audit.Enabled = false, want true")
	}
	if cfg.Logging.Audit.Path != "/var/log/ssh-control-mcp/audit.log" {
		t.Errorf("Logging.Audit.Path = %q, unexpected", cfg.Logging.Audit.Path)
	}
}

func TestLoadPartialConfigPreservesDefaults(t *testing.T) {
	yamlText := "target:\n  host: localhost\n"
	tmp := t.TempDir()
	path := filepath.Join(tmp, "partial.yaml")
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Target.Host != "localhost" {
		t.Errorf("Target.Host = %q, want %q", cfg.Target.Host, "localhost")
	}
	if cfg.Security.MaxSessions != 100 {
		t.Errorf("MaxSessions = %d, want default 100", cfg.Security.MaxSessions)
	}
}

func TestValidateFixesZeroPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target.Port = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Target.Port != 22 {
		t.Errorf("Target.Port = %d, want 22 (corrected)", cfg.Target.Port)
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for out-of-range port")
	}
}

func TestValidateRejectsMaxSessionsAboveBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.MaxSessions = 101
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for max_sessions above 100")
	}
}

func TestValidateFixesNegativeMaxSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.MaxSessions = -5
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Security.MaxSessions != 100 {
		t.Errorf("MaxSessions = %d, want 100 (corrected)", cfg.Security.MaxSessions)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target.Host = "example.com"
	cfg.Security.MaxSessions = 42

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Target.Host != "example.com" {
		t.Errorf("Target.Host = %q, want %q", loaded.Target.Host, "example.com")
	}
	if loaded.Security.MaxSessions != 42 {
		t.Errorf("MaxSessions = %d, want 42", loaded.Security.MaxSessions)
	}
}

// --- Watcher tests ---

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewWatcher(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "target:\n  host: localhost\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	if w.Config().Target.Host != "localhost" {
		t.Errorf("Config().Target.Host = %q, want %q", w.Config().Target.Host, "localhost")
	}
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "target:\n  host: localhost\n")

	var mu sync.Mutex
	var changed *Config

	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		changed = cfg
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, "target:\n  host: example.com\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		c := changed
		mu.Unlock()
		if c != nil && c.Target.Host == "example.com" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if w.Config().Target.Host != "example.com" {
		t.Errorf("Config().Target.Host = %q after reload, want %q", w.Config().Target.Host, "example.com")
	}
}

func TestWatcherReloadInvalidConfigPreservesOld(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "target:\n  host: localhost\n")

	callCount := 0
	var mu sync.Mutex

	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, ":::invalid{{{")
	time.Sleep(500 * time.Millisecond)

	if w.Config().Target.Host != "localhost" {
		t.Errorf("Config().Target.Host = %q, want preserved %q", w.Config().Target.Host, "localhost")
	}
	mu.Lock()
	if callCount > 0 {
		t.Errorf("onChange called %d times, want 0 (invalid config should not trigger)", callCount)
	}
	mu.Unlock()
}

func TestWatcherClose(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "target:\n  host: localhost\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
