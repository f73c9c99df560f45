package sshpool

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/ports"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/security"
)

// AuthConfig holds the authentication inputs for one Acquire call. Grounded
// on the teacher's internal/ssh.AuthConfig; UseAgent and Password remain
// available as fallbacks (an ssh.AuthMethod the underlying library already
// offers) even though key-based auth is the primary, spec-named path.
type AuthConfig struct {
	KeyPath        string
	KeyPassphrase  string
	UseAgent       bool
	Password       string
	KnownHostsPath string                 // optional: defaults to ~/.ssh/known_hosts
	Keyring        *security.KeyringStore // optional: passphrase fallback lookup
	FS             ports.FileSystem       // optional: defaults to the real filesystem
}

// buildAuthMethods constructs the ssh.AuthMethod list for one connection
// attempt. A missing or unreadable key file surfaces as errs.KeyUnavailable
// per spec.md §4.2.
func buildAuthMethods(cfg AuthConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.UseAgent {
		if am, err := sshAgentAuth(); err == nil {
			methods = append(methods, am)
		}
	}

	if cfg.KeyPath != "" {
		passphrase := cfg.KeyPassphrase
		if passphrase == "" && cfg.Keyring != nil && cfg.Keyring.IsEnabled() {
			if secret, err := cfg.Keyring.GetSSHPassphrase(cfg.KeyPath); err == nil && len(secret) > 0 {
				sb := security.NewSecureBytes(secret)
				defer sb.Wipe()
				passphrase = sb.String()
			}
		}

		keyAuth, err := privateKeyAuth(cfg.FS, cfg.KeyPath, passphrase)
		if err != nil {
			return nil, errs.Wrap(errs.KeyUnavailable, err, "read private key %s", cfg.KeyPath)
		}
		methods = append(methods, keyAuth)
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
		methods = append(methods, ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = cfg.Password
			}
			return answers, nil
		}))
	}

	if len(methods) == 0 {
		return nil, errs.New(errs.KeyUnavailable, "no authentication method available")
	}

	return methods, nil
}

func sshAgentAuth() (ssh.AuthMethod, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}
	client := agent.NewClient(conn)
	return ssh.PublicKeysCallback(client.Signers), nil
}

func privateKeyAuth(fs ports.FileSystem, keyPath, passphrase string) (ssh.AuthMethod, error) {
	expanded := expandPath(keyPath)
	var keyData []byte
	var err error
	if fs != nil {
		keyData, err = fs.ReadFile(expanded)
	} else {
		keyData, err = os.ReadFile(expanded)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

// buildHostKeyCallback loads ~/.ssh/known_hosts (or the given path); when
// missing it falls back to accepting any host key, matching the teacher's
// internal/ssh.BuildHostKeyCallback behavior for a first-connection UX.
func buildHostKeyCallback(knownHostsPath string) ssh.HostKeyCallback {
	if knownHostsPath == "" {
		knownHostsPath = "~/.ssh/known_hosts"
	}
	expanded := expandPath(knownHostsPath)

	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		return ssh.InsecureIgnoreHostKey()
	}

	callback, err := knownhosts.New(expanded)
	if err != nil {
		return ssh.InsecureIgnoreHostKey()
	}
	return callback
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
