package sessionmgr

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/pssession"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/sshpool"
)

// OneShotParams is the input to ExecuteCommand's one-shot path: an SSH exec
// channel distinct from any Persistent Session's shell channel (spec.md
// §6's ssh_execute tool).
type OneShotParams struct {
	Host          string
	User          string
	Port          int
	KeyPath       string
	KeyPassphrase string
	Password      string
	Command       string
	Timeout       time.Duration
}

// ExecuteCommand runs cmd once over its own SSH exec channel on a pooled
// transport, applying policy before dispatch. It does not retry; per
// spec.md §7, retry is the caller's responsibility.
func (m *Manager) ExecuteCommand(ctx context.Context, p OneShotParams) (pssession.Result, error) {
	if p.Command == "" {
		return pssession.Result{}, errs.New(errs.InvalidArgument, "command must not be empty")
	}
	if p.Timeout <= 0 {
		return pssession.Result{}, errs.New(errs.InvalidArgument, "timeout must be > 0")
	}
	if m.policy != nil && !m.policy.Allows(p.Command) {
		return pssession.Result{}, errs.New(errs.PolicyDenied, "command rejected by policy")
	}
	if p.Port == 0 {
		p.Port = 22
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	client, err := m.pool.Acquire(p.User, p.Host, p.Port, p.KeyPath, sshpool.AuthConfig{
		KeyPath:       p.KeyPath,
		KeyPassphrase: p.KeyPassphrase,
		Password:      p.Password,
	})
	if err != nil {
		return pssession.Result{}, err
	}

	sess, err := client.NewSession()
	if err != nil {
		return pssession.Result{}, errs.Wrap(errs.ShellFailure, err, "open exec channel to %s@%s:%d", p.User, p.Host, p.Port)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	type runResult struct{ err error }
	doneCh := make(chan runResult, 1)
	go func() {
		doneCh <- runResult{err: sess.Run(p.Command)}
	}()

	select {
	case r := <-doneCh:
		return resultFromRunErr(stdout.String(), stderr.String(), r.err), nil
	case <-ctx.Done():
		sess.Close()
		return pssession.Result{}, errs.New(errs.CommandTimeout, "one-shot command timed out")
	}
}

func resultFromRunErr(stdout, stderr string, err error) pssession.Result {
	res := pssession.Result{Stdout: stdout, Stderr: stderr}
	if err == nil {
		zero := 0
		res.ExitCode = &zero
		return res
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		code := exitErr.ExitStatus()
		res.ExitCode = &code
		if sig := exitErr.Signal(); sig != "" {
			s := fmt.Sprint(sig)
			res.Signal = &s
		}
		return res
	}
	// Connection-level failure running the command (channel closed, etc).
	// Leave ExitCode nil to signal "unknown" rather than fabricate 0/1.
	return res
}
