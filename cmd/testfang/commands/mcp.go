package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/internal/mcp"
	"github.com/Sumatoshi-tech/testfang/internal/run"
	"github.com/Sumatoshi-tech/testfang/pkg/cache"
)

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   mcpCommandName,
		Short: "Start an MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes these tools:
  - testfang_prioritize: order the test cases of a coverage file
  - testfang_changeset: summarize a changeset file
  - testfang_algorithms: list the prioritization algorithms

Runs recorded through the prioritize tool go to the configured history
database. Loaded coverage files are cached between calls. Logs are written
as JSON to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			runner := a.runner(s)
			runner.Cache = run.NewCoverageCache(cache.DefaultSize)

			srv := mcp.NewServer(mcp.ServerDeps{
				Runner:  runner,
				Logger:  a.logger,
				Metrics: a.providers.Metrics,
				Tracer:  a.providers.Tracer,
			})

			a.logger.Info("mcp server starting", "tools", srv.ListToolNames())

			return srv.Run(cmd.Context())
		},
	}
}
