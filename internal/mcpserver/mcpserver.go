// Package mcpserver exposes reachability analysis as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/reaper/pkg/config"
)

// Server wraps the MCP server and registers the reaper tools.
type Server struct {
	server *mcp.Server
	config *config.Config
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithConfig fixes the configuration used by every tool call. Without it each
// call loads the configuration found in the analyzed directory.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithLogger sets the logger handed to the analysis pipeline.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new MCP server with all reaper tools registered.
func NewServer(version string, opts ...Option) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "reaper",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_reachability",
		Description: describeReachability(),
	}, s.handleAnalyzeReachability)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "explain_symbol",
		Description: describeExplain(),
	}, s.handleExplainSymbol)
}
