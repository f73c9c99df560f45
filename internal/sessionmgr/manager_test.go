package sessionmgr

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/adapters/realsshdialer"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/pssession"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/shellfmt"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/sshpool"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/testing/fakes/fakeclock"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/testing/mockssh"
)

func mustPort(t *testing.T, srv *mockssh.Server) int {
	t.Helper()
	port, err := strconv.Atoi(srv.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return port
}

func newTestManager(t *testing.T, srv *mockssh.Server, policy *Policy) *Manager {
	t.Helper()
	pool := sshpool.New(sshpool.DefaultConfig(), realsshdialer.New(), fakeclock.New(time.Now()), nil, nil)
	cfg := DefaultConfig()
	cfg.SessionDefaults.StartupSettleDelay = time.Millisecond
	mgr := New(pool, policy, cfg, fakeclock.New(time.Now()))
	t.Cleanup(mgr.CloseAll)
	return mgr
}

func TestCreateSessionAndExecute(t *testing.T) {
	srv, err := mockssh.New(mockssh.WithUser("alice", "secret"))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	mgr := newTestManager(t, srv, nil)

	sess, err := mgr.CreateSession(context.Background(), CreateSessionParams{
		ID:       "s1",
		Host:     srv.Host(),
		User:     "alice",
		Port:     mustPort(t, srv),
		Password: "secret",
		Type:     pssession.Interactive,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID() != "s1" {
		t.Fatalf("expected session id s1, got %s", sess.ID())
	}
	if mgr.SessionCount() != 1 {
		t.Fatalf("expected 1 registered session, got %d", mgr.SessionCount())
	}
}

func TestCreateSessionDuplicateID(t *testing.T) {
	srv, err := mockssh.New(mockssh.WithUser("alice", "secret"))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	mgr := newTestManager(t, srv, nil)
	params := CreateSessionParams{ID: "dup", Host: srv.Host(), User: "alice", Port: mustPort(t, srv), Password: "secret"}

	if _, err := mgr.CreateSession(context.Background(), params); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := mgr.CreateSession(context.Background(), params); errs.KindOf(err) != errs.Duplicate {
		t.Fatalf("expected Duplicate, got %v", err)
	}
}

func TestCreateSessionLimitExceeded(t *testing.T) {
	srv, err := mockssh.New(mockssh.WithUser("alice", "secret"))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	mgr := newTestManager(t, srv, nil)
	mgr.cfg.MaxSessions = 1

	if _, err := mgr.CreateSession(context.Background(), CreateSessionParams{ID: "a", Host: srv.Host(), User: "alice", Port: mustPort(t, srv), Password: "secret"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := mgr.CreateSession(context.Background(), CreateSessionParams{ID: "b", Host: srv.Host(), User: "alice", Port: mustPort(t, srv), Password: "secret"}); errs.KindOf(err) != errs.LimitExceeded {
		t.Fatalf("expected LimitExceeded, got %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	mgr := newTestManager(t, nil, nil)
	if _, err := mgr.GetSession("missing"); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCloseSessionIdempotentAndRemovesFromRegistry(t *testing.T) {
	srv, err := mockssh.New(mockssh.WithUser("alice", "secret"))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	mgr := newTestManager(t, srv, nil)
	if _, err := mgr.CreateSession(context.Background(), CreateSessionParams{ID: "c1", Host: srv.Host(), User: "alice", Port: mustPort(t, srv), Password: "secret"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if ok := mgr.CloseSession("c1"); !ok {
		t.Fatal("expected CloseSession to return true for a registered session")
	}
	if _, err := mgr.GetSession("c1"); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("expected session removed from registry, got %v", err)
	}
	if ok := mgr.CloseSession("c1"); ok {
		t.Fatal("expected a second CloseSession on an absent session to return false")
	}
}

func TestExecuteInSessionPolicyDenied(t *testing.T) {
	srv, err := mockssh.New(mockssh.WithUser("alice", "secret"), mockssh.WithShell("/bin/sh"))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	policy, err := NewPolicy([]string{`^ls`}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mgr := newTestManager(t, srv, policy)

	if _, err := mgr.CreateSession(context.Background(), CreateSessionParams{ID: "s1", Host: srv.Host(), User: "alice", Port: mustPort(t, srv), Password: "secret", ShellKind: shellfmt.Sh}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = mgr.ExecuteInSession(context.Background(), "s1", "rm -rf /", 2*time.Second)
	if errs.KindOf(err) != errs.PolicyDenied {
		t.Fatalf("expected PolicyDenied, got %v", err)
	}
}

func TestGetSessionOutputOnFreshBackgroundSession(t *testing.T) {
	srv, err := mockssh.New(mockssh.WithUser("alice", "secret"))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	mgr := newTestManager(t, srv, nil)
	if _, err := mgr.CreateSession(context.Background(), CreateSessionParams{ID: "bg", Host: srv.Host(), User: "alice", Port: mustPort(t, srv), Password: "secret", Type: pssession.Background}); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := mgr.GetSessionOutput("bg", nil, false)
	if err != nil {
		t.Fatalf("GetSessionOutput: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output on a fresh session, got %v", out)
	}
}

func TestOneShotExecuteCommand(t *testing.T) {
	srv, err := mockssh.New(mockssh.WithUser("alice", "secret"), mockssh.WithShell("/bin/sh"))
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	mgr := newTestManager(t, srv, nil)

	res, err := mgr.ExecuteCommand(context.Background(), OneShotParams{
		Host:     srv.Host(),
		User:     "alice",
		Port:     mustPort(t, srv),
		Password: "secret",
		Command:  "echo one-shot",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %+v", res.ExitCode)
	}
}

func TestOneShotExecuteCommandPolicyDenied(t *testing.T) {
	policy, err := NewPolicy(nil, []string{`^rm\s`})
	if err != nil {
		t.Fatal(err)
	}
	mgr := newTestManager(t, nil, policy)

	_, err = mgr.ExecuteCommand(context.Background(), OneShotParams{
		Host: "unused", User: "unused", Command: "rm -rf /", Timeout: 5 * time.Second,
	})
	if errs.KindOf(err) != errs.PolicyDenied {
		t.Fatalf("expected PolicyDenied, got %v", err)
	}
}

func TestOneShotExecuteCommandRejectsNonPositiveTimeout(t *testing.T) {
	mgr := newTestManager(t, nil, nil)

	_, err := mgr.ExecuteCommand(context.Background(), OneShotParams{
		Host: "unused", User: "unused", Command: "echo hi", Timeout: 0,
	})
	if errs.KindOf(err) != errs.InvalidArgument {
		t.Fatalf("expected InvalidArgument for zero timeout, got %v", err)
	}

	_, err = mgr.ExecuteCommand(context.Background(), OneShotParams{
		Host: "unused", User: "unused", Command: "echo hi", Timeout: -time.Second,
	})
	if errs.KindOf(err) != errs.InvalidArgument {
		t.Fatalf("expected InvalidArgument for negative timeout, got %v", err)
	}
}
