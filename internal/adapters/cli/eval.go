package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/it-support-rag/internal/bootstrap"
	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/usecase"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/it-support-rag/internal/infrastructure/loader"
)

func newEvalCmd(rt *runtime) *cobra.Command {
	var (
		queryFiles []string
		ks         []int
		baseline   string
		xlsxPath   string
		save       bool
		verbose    bool
		jsonMode   bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure Hit@k for raw, baseline and category-aware retrieval",
		Long: `Runs every query through three retrieval configurations:
  raw             no typo normalization, no category filter
  baseline        normalized, no category filter
  category-aware  normalized and filtered by the predicted category

A query is a hit at k when its gold source appears among the first k results.
Relative improvements are reported as raw -> baseline and baseline -> category-aware,
or against --baseline when it is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var queries []domain.EvalQuery
			for _, path := range queryFiles {
				loaded, err := loader.LoadEvalQueries(path)
				if err != nil {
					return err
				}
				queries = append(queries, loaded...)
			}
			if len(queries) == 0 {
				return errors.New("no evaluation queries loaded")
			}

			app, err := rt.app(cmd, bootstrap.Options{EvalRepository: save})
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.EvalUC.Evaluate(cmd.Context(), queries, ks, usecase.DefaultRetrievalConfigs())
			if err != nil {
				return err
			}
			comparisons, err := comparisonsFor(report, baseline)
			if err != nil {
				return err
			}

			if jsonMode {
				if err := printJSON(cmd, map[string]any{"report": report, "comparisons": comparisons}); err != nil {
					return err
				}
			} else {
				if verbose {
					printQueryOutcomes(cmd, report)
				}
				printSummary(cmd, report, comparisons)
			}

			if xlsxPath != "" {
				if err := writeWorkbook(xlsxPath, report, comparisons); err != nil {
					return err
				}
				cmd.PrintErrf("Wrote %s\n", xlsxPath)
			}
			if save {
				if app.EvalRepo == nil {
					return errors.New("--save requires POSTGRES_DSN")
				}
				if err := app.EvalRepo.SaveReport(cmd.Context(), report); err != nil {
					return fmt.Errorf("save report: %w", err)
				}
				cmd.PrintErrf("Saved run %s\n", report.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&queryFiles, "queries", "q", []string{filepath.Join(rt.cfg.EvalDir, "queries.json")}, "JSON or YAML query files")
	cmd.Flags().IntSliceVar(&ks, "k", usecase.DefaultKs, "cutoffs for Hit@k")
	cmd.Flags().StringVar(&baseline, "baseline", "", "compare every configuration against this one")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write the report to an XLSX workbook")
	cmd.Flags().BoolVar(&save, "save", false, "store the run in Postgres")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every query outcome")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "output the report as JSON")
	return cmd
}

// comparisonsFor returns the standard raw->baseline and baseline->category-aware
// steps, or everything against baseline when one is named.
func comparisonsFor(report *domain.EvalReport, baseline string) ([]domain.Comparison, error) {
	if baseline != "" {
		return usecase.Compare(report, baseline)
	}

	steps := [][2]string{
		{usecase.ConfigRaw, usecase.ConfigBaseline},
		{usecase.ConfigBaseline, usecase.ConfigCategoryAware},
	}
	var out []domain.Comparison
	for _, step := range steps {
		all, err := usecase.Compare(report, step[0])
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			if c.Variant == step[1] {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func printQueryOutcomes(cmd *cobra.Command, report *domain.EvalReport) {
	maxK := report.Ks[len(report.Ks)-1]
	for _, res := range report.Results {
		cmd.Printf("== %s\n", res.Config.Name)
		for _, q := range res.Queries {
			mark := "miss"
			if q.Hits[maxK] == 1 {
				mark = "hit"
			}
			line := fmt.Sprintf("  %-4s %s %q gold=%s top=%s", mark, q.QueryID, q.Question, q.GoldSourceID, strings.Join(q.RetrievedSources, ","))
			if q.PredictedCategory != "" {
				line += " category=" + q.PredictedCategory
			}
			cmd.Println(line)
		}
	}
}

func printSummary(cmd *cobra.Command, report *domain.EvalReport, comparisons []domain.Comparison) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	header := []string{"config"}
	for _, k := range report.Ks {
		header = append(header, fmt.Sprintf("Hit@%d", k))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, res := range report.Results {
		row := []string{res.Config.Name}
		for _, k := range report.Ks {
			rate, _ := res.Rate(k)
			row = append(row, fmt.Sprintf("%.3f", rate))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()

	if len(comparisons) == 0 {
		return
	}
	cmd.Println()
	for _, c := range comparisons {
		improvement := "n/a"
		if c.Improvement.Defined {
			improvement = fmt.Sprintf("%+.1f%%", c.Improvement.Value*100)
		}
		cmd.Printf("%s -> %s Hit@%d: %.3f -> %.3f (%s)\n", c.Baseline, c.Variant, c.K, c.BaselineRate, c.VariantRate, improvement)
	}
	cmd.Printf("\n%d queries, run %s\n", report.Total, report.ID)
}

func writeWorkbook(path string, report *domain.EvalReport, comparisons []domain.Comparison) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := xlsx.WriteReport(f, report, comparisons); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
