package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/pssession"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/sessionmgr"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/shellfmt"
)

// registerTools wires spec.md §6's six tools onto the MCP server. Names are
// part of the wire contract and must not change.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(sshExecuteTool(), s.handleSSHExecute)
	s.mcpServer.AddTool(sshSessionCreateTool(), s.handleSSHSessionCreate)
	s.mcpServer.AddTool(sshSessionExecuteTool(), s.handleSSHSessionExecute)
	s.mcpServer.AddTool(sshSessionListTool(), s.handleSSHSessionList)
	s.mcpServer.AddTool(sshSessionCloseTool(), s.handleSSHSessionClose)
	s.mcpServer.AddTool(sshSessionOutputTool(), s.handleSSHSessionOutput)
}

func sshExecuteTool() mcp.Tool {
	return mcp.NewTool("ssh_execute",
		mcp.WithDescription("Run a single command over a one-shot SSH exec channel"),
		mcp.WithString("host", mcp.Required(), mcp.Description("SSH host")),
		mcp.WithString("username", mcp.Required(), mcp.Description("SSH username")),
		mcp.WithString("privateKeyPath", mcp.Description("Path to the private key file")),
		mcp.WithString("passphrase", mcp.Description("Passphrase for the private key, if encrypted")),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command to run")),
		mcp.WithNumber("port", mcp.Description("SSH port (default 22)")),
		mcp.WithNumber("timeout", mcp.Description("Command timeout in milliseconds (default 30000)")),
	)
}

func sshSessionCreateTool() mcp.Tool {
	return mcp.NewTool("ssh_session_create",
		mcp.WithDescription("Open a Persistent Session's interactive shell over SSH"),
		mcp.WithString("sessionId", mcp.Description("Caller-supplied session id; generated if omitted")),
		mcp.WithString("host", mcp.Required(), mcp.Description("SSH host")),
		mcp.WithString("username", mcp.Required(), mcp.Description("SSH username")),
		mcp.WithString("privateKeyPath", mcp.Description("Path to the private key file")),
		mcp.WithString("passphrase", mcp.Description("Passphrase for the private key, if encrypted")),
		mcp.WithString("type", mcp.Description("interactive or background"), mcp.DefaultString("interactive")),
		mcp.WithNumber("port", mcp.Description("SSH port (default 22)")),
		mcp.WithString("mode", mcp.Description("normal or raw"), mcp.DefaultString("normal")),
		mcp.WithString("shellType", mcp.Description("bash, sh, powershell, or cmd"), mcp.DefaultString("bash")),
	)
}

func sshSessionExecuteTool() mcp.Tool {
	return mcp.NewTool("ssh_session_execute",
		mcp.WithDescription("Run a command inside an existing Persistent Session"),
		mcp.WithString("sessionId", mcp.Required(), mcp.Description("Session id returned by ssh_session_create")),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command to run")),
		mcp.WithNumber("timeout", mcp.Description("Command timeout in milliseconds (default 30000)")),
	)
}

func sshSessionListTool() mcp.Tool {
	return mcp.NewTool("ssh_session_list",
		mcp.WithDescription("List every live Persistent Session"),
	)
}

func sshSessionCloseTool() mcp.Tool {
	return mcp.NewTool("ssh_session_close",
		mcp.WithDescription("Close a Persistent Session"),
		mcp.WithString("sessionId", mcp.Required(), mcp.Description("Session id")),
	)
}

func sshSessionOutputTool() mcp.Tool {
	return mcp.NewTool("ssh_session_output",
		mcp.WithDescription("Read a Persistent Session's buffered background output"),
		mcp.WithString("sessionId", mcp.Required(), mcp.Description("Session id")),
		mcp.WithNumber("lines", mcp.Description("Number of most recent lines to return (1..50000)")),
		mcp.WithBoolean("clear", mcp.Description("Clear the buffer after reading (default false)")),
	)
}

func (s *Server) handleSSHExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := mcp.ParseString(req, "host", "")
	username := mcp.ParseString(req, "username", "")
	command := mcp.ParseString(req, "command", "")
	if host == "" || username == "" || command == "" {
		return mcp.NewToolResultError("host, username, and command are required"), nil
	}

	timeoutMs := mcp.ParseInt(req, "timeout", 30000)
	if timeoutMs <= 0 {
		return mcp.NewToolResultError("timeout must be > 0"), nil
	}

	slog.Info("ssh_execute", slog.String("host", host), slog.String("command", s.sanitizer.RedactCommand(command)))

	result, err := s.manager.ExecuteCommand(ctx, sessionmgr.OneShotParams{
		Host:          host,
		User:          username,
		Port:          mcp.ParseInt(req, "port", 22),
		KeyPath:       mcp.ParseString(req, "privateKeyPath", ""),
		KeyPassphrase: mcp.ParseString(req, "passphrase", ""),
		Command:       command,
		Timeout:       time.Duration(timeoutMs) * time.Millisecond,
	})
	if err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]any{
		"stdout": result.Stdout,
		"stderr": result.Stderr,
		"code":   result.ExitCode,
		"signal": result.Signal,
	})
}

func (s *Server) handleSSHSessionCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := mcp.ParseString(req, "host", "")
	username := mcp.ParseString(req, "username", "")
	if host == "" || username == "" {
		return mcp.NewToolResultError("host and username are required"), nil
	}

	sess, err := s.manager.CreateSession(ctx, sessionmgr.CreateSessionParams{
		ID:            mcp.ParseString(req, "sessionId", ""),
		Host:          host,
		User:          username,
		Port:          mcp.ParseInt(req, "port", 22),
		KeyPath:       mcp.ParseString(req, "privateKeyPath", ""),
		KeyPassphrase: mcp.ParseString(req, "passphrase", ""),
		Type:          pssession.Type(mcp.ParseString(req, "type", string(pssession.Interactive))),
		Mode:          pssession.Mode(mcp.ParseString(req, "mode", string(pssession.Normal))),
		ShellKind:     shellfmt.Kind(mcp.ParseString(req, "shellType", string(shellfmt.Bash))),
	})
	if err != nil {
		return toolError(err)
	}

	return jsonResult(sessionInfoView(sess.Info()))
}

func (s *Server) handleSSHSessionExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "sessionId", "")
	command := mcp.ParseString(req, "command", "")
	if sessionID == "" || command == "" {
		return mcp.NewToolResultError("sessionId and command are required"), nil
	}
	timeoutMs := mcp.ParseInt(req, "timeout", 30000)
	if timeoutMs <= 0 {
		return mcp.NewToolResultError("timeout must be > 0"), nil
	}

	result, err := s.manager.ExecuteInSession(ctx, sessionID, command, time.Duration(timeoutMs)*time.Millisecond)
	if err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]any{
		"stdout": result.Stdout,
		"stderr": result.Stderr,
		"code":   result.ExitCode,
		"signal": result.Signal,
	})
}

func (s *Server) handleSSHSessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := s.manager.ListSessions()
	views := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		views = append(views, sessionInfoView(info))
	}
	return jsonResult(views)
}

func (s *Server) handleSSHSessionClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "sessionId", "")
	if sessionID == "" {
		return mcp.NewToolResultError("sessionId is required"), nil
	}
	ok := s.manager.CloseSession(sessionID)
	return jsonResult(map[string]any{"success": ok})
}

func (s *Server) handleSSHSessionOutput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := mcp.ParseString(req, "sessionId", "")
	if sessionID == "" {
		return mcp.NewToolResultError("sessionId is required"), nil
	}

	var lines *int
	if raw := mcp.ParseInt(req, "lines", 0); raw > 0 {
		if raw < 1 || raw > 50000 {
			return mcp.NewToolResultError("lines must be in [1, 50000]"), nil
		}
		lines = &raw
	}
	clear := mcp.ParseBoolean(req, "clear", false)

	output, err := s.manager.GetSessionOutput(sessionID, lines, clear)
	if err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]any{"output": output})
}

// sessionInfoView renders pssession.Info as the wire-shaped SessionInfo,
// which already excludes environmentVars/commandHistory/workingDirectory
// per spec.md §6's information-minimization requirement.
func sessionInfoView(info pssession.Info) map[string]any {
	return map[string]any{
		"sessionId":    info.ID,
		"host":         info.Host,
		"username":     info.User,
		"port":         info.Port,
		"type":         info.Type,
		"mode":         info.Mode,
		"shellType":    info.ShellKind,
		"createdAt":    info.CreatedAt,
		"lastActivity": info.LastActivity,
		"isActive":     info.IsActive,
	}
}

// toolError maps a core *errs.Error to an MCP tool-level error result.
// *errs.Error already renders its Kind as the message's leading segment
// (see errs.Error.Error), so the taxonomy is visible to a caller doing
// string matching without any extra formatting here.
func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
