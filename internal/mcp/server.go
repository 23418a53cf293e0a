// Package mcp provides an MCP (Model Context Protocol) server for refback.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/refback/internal/config"
	"github.com/nvandessel/refback/internal/logging"
	"github.com/nvandessel/refback/internal/ratelimit"
	"github.com/nvandessel/refback/internal/store"
)

// Server wraps the MCP SDK server and provides refback tools.
type Server struct {
	server    *sdk.Server
	store     store.SessionStore
	cfg       *config.RefbackConfig
	logger    *slog.Logger
	searchLog *logging.SearchLog
	audit     *AuditLogger
	limiters  ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "refback")
	Version string // Server version

	// Settings supplies generation defaults and the database location.
	Settings *config.RefbackConfig

	// Logger receives operational output. Defaults to stderr at the
	// configured level; stdout belongs to the stdio transport.
	Logger *slog.Logger

	// SearchLog receives search traces. May be nil.
	SearchLog *logging.SearchLog

	// AuditDir holds audit.jsonl. Empty disables the audit log.
	AuditDir string
}

// NewServer creates a new MCP server with refback tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(settings.Logging.Level, os.Stderr)
	}

	dbPath, err := settings.DBPath()
	if err != nil {
		return nil, err
	}
	sessionStore, err := store.NewSQLiteSessionStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:    mcpServer,
		store:     sessionStore,
		cfg:       settings,
		logger:    logger,
		searchLog: cfg.SearchLog,
		limiters:  ratelimit.NewToolLimiters(),
	}
	if cfg.AuditDir != "" {
		s.audit = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()

	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	s.audit.Close()
	return s.store.Close()
}
