// Package shellfmt wraps user commands with per-shell start/end markers so a
// Persistent Session can recover stdout and exit code from an unstructured
// byte stream, and provides the idle keep-alive line for each shell kind.
//
// Grounded on the marker/echo approach in the teacher's
// internal/session.Session.Exec and extractExitCode, generalized from a
// single hardcoded bash dialect to the four shell kinds the engine supports.
package shellfmt

import (
	"regexp"
	"strconv"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/errs"
)

// Kind identifies the remote shell dialect a Persistent Session talks to.
type Kind string

const (
	Bash       Kind = "bash"
	Sh         Kind = "sh"
	PowerShell Kind = "powershell"
	Cmd        Kind = "cmd"
)

// Formatter wraps commands for one shell dialect and recovers their exit
// code from the accumulated output.
type Formatter interface {
	// Wrap returns the text to write to the shell channel: a start marker,
	// the user command, and an end marker carrying the shell's exit-status
	// expression.
	Wrap(cmd, start, end string) (string, error)

	// KeepAlive returns a no-op line for this shell, emitted while the
	// session is idle to defeat intermediary connection timeouts.
	KeepAlive() string

	// ExtractExitCode scans accumulated output for "<end>:<digits>" and
	// returns the first capture, or ok=false if no such marker is present.
	ExtractExitCode(output, end string) (code int, ok bool)
}

// New returns the Formatter for the given shell kind, or an error if kind is
// unrecognized.
func New(kind Kind) (Formatter, error) {
	switch kind {
	case Bash, Sh:
		return posixFormatter{}, nil
	case PowerShell:
		return powershellFormatter{}, nil
	case Cmd:
		return cmdFormatter{}, nil
	default:
		return nil, errs.New(errs.InvalidArgument, "unknown shell kind %q", kind)
	}
}

func validate(cmd, start, end string) error {
	if start == "" || end == "" {
		return errs.New(errs.InvalidArgument, "start and end markers must not be empty")
	}
	if cmd == "" {
		return errs.New(errs.InvalidArgument, "command must not be empty")
	}
	return nil
}

// exitCodePattern extracts the digits following "<end>:" for a given marker.
// The marker is unique per command (spec: per-session random delimiter stem
// plus per-command id), so a literal prefix match is safe here — no regex
// metacharacter escaping concerns arise from marker content we generate
// ourselves.
func extractWithPrefix(output, end string) (int, bool) {
	re := regexp.MustCompile(regexp.QuoteMeta(end) + `:(\d+)`)
	matches := re.FindStringSubmatch(output)
	if matches == nil {
		return 0, false
	}
	code, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

type posixFormatter struct{}

func (posixFormatter) Wrap(cmd, start, end string) (string, error) {
	if err := validate(cmd, start, end); err != nil {
		return "", err
	}
	return `echo "` + start + `"; ` + cmd + `; echo "` + end + `:$?"`, nil
}

func (posixFormatter) KeepAlive() string { return "\n" }

func (posixFormatter) ExtractExitCode(output, end string) (int, bool) {
	return extractWithPrefix(output, end)
}

type powershellFormatter struct{}

func (powershellFormatter) Wrap(cmd, start, end string) (string, error) {
	if err := validate(cmd, start, end); err != nil {
		return "", err
	}
	return `Write-Output "` + start + `"; ` + cmd + `; Write-Output "` + end + `:$LASTEXITCODE"`, nil
}

func (powershellFormatter) KeepAlive() string { return "Write-Output \"\"\n" }

func (powershellFormatter) ExtractExitCode(output, end string) (int, bool) {
	return extractWithPrefix(output, end)
}

type cmdFormatter struct{}

func (cmdFormatter) Wrap(cmd, start, end string) (string, error) {
	if err := validate(cmd, start, end); err != nil {
		return "", err
	}
	// The redirected echo forces evaluation of %ERRORLEVEL% before the
	// terminating marker line is emitted; cmd.exe otherwise defers variable
	// expansion in a way that races the marker echo.
	return "echo " + start + " & " + cmd + " & echo %ERRORLEVEL% > NUL & echo " + end + ":%ERRORLEVEL%", nil
}

func (cmdFormatter) KeepAlive() string { return "echo.\n" }

func (cmdFormatter) ExtractExitCode(output, end string) (int, bool) {
	return extractWithPrefix(output, end)
}
