package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/it-support-rag/internal/bootstrap"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/chunking"
)

func newIngestCmd(rt *runtime) *cobra.Command {
	var (
		path      string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed chunks.jsonl and upsert it into the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open chunks: %w", err)
			}
			defer f.Close()

			chunks, invalid, err := chunking.ReadJSONL(f)
			if err != nil {
				return err
			}
			for _, rec := range invalid {
				cmd.PrintErrf("skipping line %d: %s\n", rec.Line, rec.Reason)
			}

			app, err := rt.app(cmd, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.IndexUC.Index(cmd.Context(), chunks, batchSize)
			if err != nil {
				return err
			}

			cmd.Printf("Indexed %d/%d chunks into %s\n", report.Indexed, report.Total, rt.cfg.QdrantCollection)
			for _, failure := range report.Failures {
				cmd.PrintErrf("  failed %s: %s\n", failure.ChunkID, failure.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "chunks", "c", rt.cfg.ChunksPath, "JSONL file produced by prepare")
	cmd.Flags().IntVar(&batchSize, "batch-size", rt.cfg.IngestBatchSize, "chunks per embedding request")
	return cmd
}
