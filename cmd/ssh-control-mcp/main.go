// ssh-control-mcp is an MCP server exposing a Connection Pool, a Session
// Manager, and their Persistent Sessions over a line-delimited JSON control
// channel (stdio transport).
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/adapters/realclock"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/adapters/realfs"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/adapters/realsshdialer"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/config"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/logging"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/mcpserver"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/pssession"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/security"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/sessionmgr"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/sshpool"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  string
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("ssh-control-mcp version %s\n", Version)
		fmt.Printf("  build time: %s\n", BuildTime)
		fmt.Printf("  git commit: %s\n", GitCommit)
		os.Exit(0)
	}

	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)

	slog.Info("starting ssh-control-mcp",
		slog.String("version", Version),
		slog.String("config", configPath),
	)

	manager, err := buildManager(cfg)
	if err != nil {
		slog.Error("failed to build session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := mcpserver.New(manager, cfg)

	var watcher *config.Watcher
	if configPath != "" {
		watcher, err = config.NewWatcher(configPath, func(newCfg *config.Config) {
			if debug {
				newCfg.Logging.Level = "debug"
			}
			slog.Info("configuration reloaded", slog.String("path", configPath))
		})
		if err != nil {
			slog.Warn("config hot-reload disabled", slog.String("error", err.Error()))
		} else {
			slog.Info("config hot-reload enabled", slog.String("path", configPath))
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal")
		manager.CloseAll()
		if watcher != nil {
			watcher.Close()
		}
		os.Exit(0)
	}()

	if err := srv.Run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		manager.CloseAll()
		if watcher != nil {
			watcher.Close()
		}
		os.Exit(1)
	}
}

// buildManager wires the Connection Pool and Session Manager from cfg,
// using the real (non-fake) adapters: an actual clock, filesystem, and SSH
// dialer, plus the OS keyring for passphrase fallback when configured.
func buildManager(cfg *config.Config) (*sessionmgr.Manager, error) {
	clock := realclock.New()
	fs := realfs.New()
	dialer := realsshdialer.New()

	var keyring *security.KeyringStore
	if cfg.Security.UseKeyring {
		keyring = security.NewKeyringStore()
	}

	poolCfg := sshpool.DefaultConfig()
	poolCfg.ReadyTimeout = cfg.Timeouts.Connection
	poolCfg.KeepaliveInterval = cfg.Timeouts.KeepAlive
	poolCfg.ForceCloseTimeout = cfg.Timeouts.ForceClose
	poolCfg.MaxAuthFailures = cfg.Security.MaxAuthFailures
	poolCfg.LockoutDuration = cfg.Security.AuthLockoutDuration
	if cfg.Security.MaxConnectionsPerHost > 0 {
		poolCfg.MaxEntries = cfg.Security.MaxConnectionsPerHost
	}

	pool := sshpool.New(poolCfg, dialer, clock, fs, keyring)

	policy, err := sessionmgr.NewPolicy(cfg.Security.AllowedCommands, cfg.Security.BlockedCommands)
	if err != nil {
		return nil, err
	}

	sessionDefaults := pssession.DefaultConfig()
	sessionDefaults.DefaultCommandTimeout = cfg.Timeouts.DefaultCommand
	sessionDefaults.SessionTimeout = cfg.Timeouts.DefaultSession
	sessionDefaults.KeepAliveInterval = cfg.Timeouts.KeepAlive
	sessionDefaults.MaxBufferSize = cfg.Buffers.MaxSize
	sessionDefaults.BufferTrimTo = cfg.Buffers.TrimTo

	mgrCfg := sessionmgr.DefaultConfig()
	mgrCfg.MaxSessions = cfg.Security.MaxSessions
	mgrCfg.SessionDefaults = sessionDefaults
	mgrCfg.CloseWaitTimeout = cfg.Timeouts.SessionClose

	return sessionmgr.New(pool, policy, mgrCfg, clock), nil
}
