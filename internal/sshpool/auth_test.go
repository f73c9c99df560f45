package sshpool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
)

func TestBuildAuthMethodsNoneConfigured(t *testing.T) {
	if _, err := buildAuthMethods(AuthConfig{}); errs.KindOf(err) != errs.KeyUnavailable {
		t.Fatalf("expected KeyUnavailable, got %v", err)
	}
}

func TestBuildAuthMethodsPassword(t *testing.T) {
	methods, err := buildAuthMethods(AuthConfig{Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 2 {
		t.Fatalf("expected password + keyboard-interactive methods, got %d", len(methods))
	}
}

func TestBuildAuthMethodsMissingKeyFile(t *testing.T) {
	_, err := buildAuthMethods(AuthConfig{KeyPath: "/nonexistent/path/id_rsa"})
	if errs.KindOf(err) != errs.KeyUnavailable {
		t.Fatalf("expected KeyUnavailable for missing key file, got %v", err)
	}
}

func TestBuildHostKeyCallbackFallsBackWithoutKnownHosts(t *testing.T) {
	dir := t.TempDir()
	cb := buildHostKeyCallback(filepath.Join(dir, "does_not_exist"))
	if cb == nil {
		t.Fatal("expected a non-nil callback even with no known_hosts file")
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	got := expandPath("~/foo")
	want := filepath.Join(home, "foo")
	if got != want {
		t.Fatalf("expandPath(~/foo) = %q, want %q", got, want)
	}
}
