package cli

import (
	"github.com/spf13/cobra"

	"github.com/kirillkom/it-support-rag/internal/adapters/mcp"
	"github.com/kirillkom/it-support-rag/internal/bootstrap"
)

func newMCPCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve ask and retrieve as MCP tools over stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout so AI assistants
can query the knowledge base. Logs go to stderr.

Example client configuration:
  {
    "mcpServers": {
      "it-support": {"command": "/path/to/ragctl", "args": ["mcp"]}
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.app(cmd, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			server, err := mcp.NewServer(app.QueryUC)
			if err != nil {
				return err
			}
			return server.Run(cmd.Context(), rt.stdin, cmd.OutOrStdout())
		},
	}
}
