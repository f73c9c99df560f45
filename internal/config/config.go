// Package config handles configuration loading and validation for the
// ssh-control-mcp engine's construction-time surface (spec.md §6): target,
// timeouts, buffers, security policy, and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
)

// DefaultConfigPath returns $XDG_CONFIG_HOME/ssh-control-mcp/config.yaml, or
// ~/.config/ssh-control-mcp/config.yaml if XDG_CONFIG_HOME is unset.
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ssh-control-mcp", "config.yaml")
}

// Config is the top-level construction-time configuration spec.md §6 names.
type Config struct {
	Target    TargetConfig    `yaml:"target"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Buffers   BuffersConfig   `yaml:"buffers"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TargetConfig is the default SSH target new sessions inherit unless a
// caller overrides them per-call.
type TargetConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PassphraseEnv  string `yaml:"passphrase_env"` // env var holding the key passphrase
	Shell          string `yaml:"shell"`          // bash, sh, powershell, cmd
}

// TimeoutsConfig mirrors spec.md §5's default timeouts (ms in the spec,
// time.Duration here).
type TimeoutsConfig struct {
	DefaultCommand time.Duration `yaml:"default_command"`
	DefaultSession time.Duration `yaml:"default_session"`
	Connection     time.Duration `yaml:"connection"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ForceClose     time.Duration `yaml:"force_close"`
	SessionClose   time.Duration `yaml:"session_close"`
}

// BuffersConfig bounds the Persistent Session output buffer.
type BuffersConfig struct {
	MaxSize int `yaml:"max_size"`
	TrimTo  int `yaml:"trim_to"`
}

// SecurityConfig is spec.md §6's security surface: command policy and
// per-pool/per-host caps.
type SecurityConfig struct {
	AllowedCommands       []string      `yaml:"allowed_commands"`
	BlockedCommands       []string      `yaml:"blocked_commands"`
	MaxSessions           int           `yaml:"max_sessions"`
	SessionTimeout        time.Duration `yaml:"session_timeout"`
	MaxConnectionsPerHost int           `yaml:"max_connections_per_host"`
	MaxAuthFailures       int           `yaml:"max_auth_failures"`
	AuthLockoutDuration   time.Duration `yaml:"auth_lockout_duration"`
	UseKeyring            bool          `yaml:"use_keyring"`
}

// LoggingConfig is spec.md §6's logging surface.
type LoggingConfig struct {
	Level             string      `yaml:"level"`
	IncludeCommands   bool        `yaml:"include_commands"`
	IncludeResponses  bool        `yaml:"include_responses"`
	MaxResponseLength int         `yaml:"max_response_length"`
	Sanitize          bool        `yaml:"sanitize"`
	Audit             AuditConfig `yaml:"audit"`
}

// AuditConfig configures the audit-log collaborator (spec.md §1 treats
// audit logging as an external consumer of the core's event stream, not a
// core responsibility; this struct is the construction-time contract that
// collaborator reads).
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig mirrors spec.md §5's defaults.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Port:  22,
			Shell: "bash",
		},
		Timeouts: TimeoutsConfig{
			DefaultCommand: 30 * time.Second,
			DefaultSession: 600 * time.Second,
			Connection:     30 * time.Second,
			KeepAlive:      30 * time.Second,
			ForceClose:     3 * time.Second,
			SessionClose:   5 * time.Second,
		},
		Buffers: BuffersConfig{
			MaxSize: 10000,
			TrimTo:  5000,
		},
		Security: SecurityConfig{
			MaxSessions:           100,
			SessionTimeout:        600 * time.Second,
			MaxConnectionsPerHost: 10,
			MaxAuthFailures:       3,
			AuthLockoutDuration:   5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:             "info",
			MaxResponseLength: 4096,
			Sanitize:          true,
		},
	}
}

// Load reads and parses a YAML config file. A missing file is not an error;
// Load returns defaults. fsys is optional, defaulting to the real OS
// filesystem when omitted — the same variadic-fallback shape the pool and
// auth code use for ports.FileSystem elsewhere.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory if needed.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if len(fsys) > 0 && fsys[0] != nil {
		if err := fsys[0].MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		return fsys[0].WriteFile(path, data, 0o644)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the bounds spec.md §5/§6 name and fills in any zero
// values with their documented defaults rather than rejecting them, mirroring
// the teacher's forgiving Validate that repairs an obviously-unset field
// instead of failing startup over it.
func (c *Config) Validate() error {
	if c.Target.Port == 0 {
		c.Target.Port = 22
	}
	if c.Target.Port < 1 || c.Target.Port > 65535 {
		return fmt.Errorf("target.port %d out of range [1,65535]", c.Target.Port)
	}
	if c.Security.MaxSessions <= 0 {
		c.Security.MaxSessions = 100
	}
	if c.Security.MaxSessions > 100 {
		return fmt.Errorf("security.max_sessions %d exceeds bound 100", c.Security.MaxSessions)
	}
	if c.Buffers.MaxSize <= 0 {
		c.Buffers.MaxSize = 10000
	}
	if c.Buffers.MaxSize > 100000 {
		return fmt.Errorf("buffers.max_size %d exceeds bound 100000", c.Buffers.MaxSize)
	}
	if c.Buffers.TrimTo <= 0 || c.Buffers.TrimTo > c.Buffers.MaxSize {
		c.Buffers.TrimTo = c.Buffers.MaxSize / 2
	}
	for name, d := range map[string]time.Duration{
		"timeouts.default_command": c.Timeouts.DefaultCommand,
		"timeouts.default_session": c.Timeouts.DefaultSession,
		"timeouts.connection":      c.Timeouts.Connection,
	} {
		if d < 0 || d > time.Hour {
			return fmt.Errorf("%s %s out of bounds (0, 1h]", name, d)
		}
	}
	return nil
}
