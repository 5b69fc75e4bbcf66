package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/it-support-rag/internal/bootstrap"
	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

func newAskCmd(rt *runtime) *cobra.Command {
	var (
		topK     int
		jsonMode bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.app(cmd, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			answer, err := app.QueryUC.Answer(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if jsonMode {
				return printJSON(cmd, answer)
			}

			cmd.Println(answer.Text)
			if len(answer.Chunks) > 0 {
				cmd.Println()
				cmd.Println("Sources:")
				printResults(cmd, answer.Chunks)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", rt.cfg.RAGTopK, "number of chunks to ground the answer on")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "output the answer as JSON")
	return cmd
}

func newRetrieveCmd(rt *runtime) *cobra.Command {
	var (
		topK           int
		raw            bool
		categoryFilter bool
		jsonMode       bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve [question]",
		Short: "Show the chunks a question retrieves",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.app(cmd, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			mode := domain.RetrievalMode{Normalize: !raw, CategoryFilter: categoryFilter}
			results, category, err := app.QueryUC.RetrieveTrace(cmd.Context(), strings.Join(args, " "), topK, mode)
			if err != nil {
				return err
			}
			if jsonMode {
				return printJSON(cmd, results)
			}

			if category != "" {
				cmd.Printf("Category: %s\n", category)
			}
			if len(results) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			printResults(cmd, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", rt.cfg.RAGTopK, "maximum number of chunks")
	cmd.Flags().BoolVar(&raw, "raw", false, "skip typo normalization")
	cmd.Flags().BoolVar(&categoryFilter, "category-filter", false, "restrict results to the predicted category")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "output results as JSON")
	return cmd
}

func printResults(cmd *cobra.Command, results []domain.RetrievalResult) {
	for i, res := range results {
		title := domain.MetadataString(res.Metadata, domain.MetaTitle)
		if title == "" {
			title = res.ID
		}
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, title, res.Score)
		cmd.Printf("      source: %s\n", res.SourceID())
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
