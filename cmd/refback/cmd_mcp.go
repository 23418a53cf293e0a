package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/refback/internal/config"
	"github.com/nvandessel/refback/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run an MCP server over stdio",
		Long: `Serve refback tools over the Model Context Protocol on stdin/stdout.

Tools:
  refback_generate_block   generate one block and return its trial table
  refback_create_session   generate and store a multi-block session
  refback_list_sessions    list stored sessions

Tool calls are rate limited and recorded in ~/.refback/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			searchLog := openSearchLog(cfg)
			defer searchLog.Close()

			auditDir, err := config.Dir()
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:      "refback",
				Version:   version,
				Settings:  cfg,
				Logger:    newLogger(cmd, cfg),
				SearchLog: searchLog,
				AuditDir:  auditDir,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			return server.Run(cmd.Context())
		},
	}
}
