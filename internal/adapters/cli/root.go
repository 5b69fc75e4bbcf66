// Package cli implements ragctl, the operator command line for the knowledge base.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/it-support-rag/internal/bootstrap"
	"github.com/kirillkom/it-support-rag/internal/config"
)

// AppFactory builds the pipeline on demand so offline commands never touch providers.
type AppFactory func(ctx context.Context, cfg config.Config, opts bootstrap.Options) (*bootstrap.App, error)

type runtime struct {
	cfg    config.Config
	newApp AppFactory
	stdin  io.Reader
}

func (rt *runtime) app(cmd *cobra.Command, opts bootstrap.Options) (*bootstrap.App, error) {
	app, err := rt.newApp(cmd.Context(), rt.cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}

func NewRootCommand(cfg config.Config, newApp AppFactory) *cobra.Command {
	if newApp == nil {
		newApp = bootstrap.New
	}
	rt := &runtime{cfg: cfg, newApp: newApp, stdin: os.Stdin}

	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Operate the IT support knowledge base",
		Long: `ragctl prepares, indexes and evaluates the IT support knowledge base
and answers questions against it.

Typical flow:
  ragctl prepare            # raw sources -> chunks.jsonl
  ragctl ingest             # chunks.jsonl -> vector store
  ragctl ask "vpn not connecting"
  ragctl eval --queries data/eval/queries_typos.json`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newPrepareCmd(rt),
		newIngestCmd(rt),
		newAskCmd(rt),
		newRetrieveCmd(rt),
		newEvalCmd(rt),
		newRunsCmd(rt),
		newMCPCmd(rt),
	)
	return root
}
