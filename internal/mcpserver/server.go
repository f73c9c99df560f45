// Package mcpserver exposes the Session Manager over the MCP protocol's
// line-delimited JSON control channel, grounded on the teacher's
// internal/mcp.Server: a thin translation layer between the wire tool
// contract (spec.md §6) and internal/sessionmgr.Manager.
package mcpserver

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Brad-Edwards/ssh-control-mcp/internal/config"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/sanitize"
	"github.com/Brad-Edwards/ssh-control-mcp/internal/sessionmgr"
)

// serverName/serverVersion identify this process to MCP clients during the
// initialize handshake.
const (
	serverName    = "ssh-control-mcp"
	serverVersion = "1.0.0"
)

// Server wraps the MCP server and its dependency on the Session Manager.
type Server struct {
	mcpServer *server.MCPServer
	manager   *sessionmgr.Manager
	sanitizer *sanitize.Sanitizer
	cfg       *config.Config
}

// New constructs a Server bound to manager, applying cfg.Logging to
// decide whether the Sanitizer captures command output for its (currently
// log-only) event view.
func New(manager *sessionmgr.Manager, cfg *config.Config) *Server {
	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	var sanOpts []sanitize.Option
	if cfg.Logging.IncludeResponses {
		maxLen := cfg.Logging.MaxResponseLength
		if maxLen <= 0 {
			maxLen = 4096
		}
		sanOpts = append(sanOpts, sanitize.WithOutputCapture(maxLen))
	}

	s := &Server{
		mcpServer: mcpServer,
		manager:   manager,
		sanitizer: sanitize.New(sanOpts...),
		cfg:       cfg,
	}

	s.registerTools()

	return s
}

// Run serves the MCP protocol on stdio until the transport closes.
func (s *Server) Run() error {
	slog.Info("starting MCP server on stdio transport", slog.String("name", serverName))
	return server.ServeStdio(s.mcpServer)
}
