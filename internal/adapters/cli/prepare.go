package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/it-support-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/loader"
)

func newPrepareCmd(rt *runtime) *cobra.Command {
	var (
		rawDir    string
		out       string
		chunkSize int
		overlap   int
	)

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Load raw sources and write chunks.jsonl",
		Long: `Loads faqs.yaml, tickets.json and the runbooks/ and policies/ directories
(markdown and PDF) from the raw data directory, splits every document into
overlapping chunks and writes them as JSON lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			splitter, err := chunking.NewSplitter(chunkSize, overlap)
			if err != nil {
				return err
			}
			docs, err := loader.LoadCorpus(rawDir)
			if err != nil {
				return fmt.Errorf("load corpus: %w", err)
			}
			chunks := chunking.BuildChunks(docs, splitter)

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer f.Close()
			if err := chunking.WriteJSONL(f, chunks); err != nil {
				return err
			}

			cmd.Printf("Loaded %d documents, wrote %d chunks to %s\n", len(docs), len(chunks), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&rawDir, "raw-dir", rt.cfg.RawDataDir, "directory with raw knowledge base sources")
	cmd.Flags().StringVarP(&out, "out", "o", rt.cfg.ChunksPath, "output JSONL file")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", rt.cfg.ChunkSize, "maximum characters per chunk")
	cmd.Flags().IntVar(&overlap, "overlap", rt.cfg.ChunkOverlap, "characters shared by consecutive chunks")
	return cmd
}
