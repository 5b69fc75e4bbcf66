package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/it-support-rag/internal/bootstrap"
)

func newRunsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored evaluation runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent evaluation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.app(cmd, bootstrap.Options{EvalRepository: true})
			if err != nil {
				return err
			}
			defer app.Close()
			if app.EvalRepo == nil {
				return errors.New("run history requires POSTGRES_DSN")
			}

			runs, err := app.EvalRepo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				cmd.Println("No runs stored.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "id\tstarted\tqueries\tconfigs")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", run.ID, run.StartedAt.Format(time.RFC3339), run.Total, strings.Join(run.Configs, ","))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")

	show := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print a stored evaluation report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.app(cmd, bootstrap.Options{EvalRepository: true})
			if err != nil {
				return err
			}
			defer app.Close()
			if app.EvalRepo == nil {
				return errors.New("run history requires POSTGRES_DSN")
			}

			report, err := app.EvalRepo.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			comparisons, err := comparisonsFor(report, "")
			if err != nil {
				comparisons = nil
			}
			printSummary(cmd, report, comparisons)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
