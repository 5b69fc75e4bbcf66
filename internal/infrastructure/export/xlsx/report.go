package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

const (
	SummarySheet     = "Summary"
	ComparisonSheet  = "Comparison"
	queriesSheetName = "Queries"
)

// WriteReport renders an evaluation report as a workbook with a Hit@k summary,
// pairwise comparisons against the baseline and per-query outcomes.
func WriteReport(w io.Writer, report *domain.EvalReport, comparisons []domain.Comparison) error {
	if report == nil {
		return domain.WrapError(domain.ErrInvalidInput, "export xlsx", fmt.Errorf("report is nil"))
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SummarySheet)
	if err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	if err := writeSummary(f, report); err != nil {
		return err
	}
	if err := writeComparisons(f, comparisons); err != nil {
		return err
	}
	if err := writeQueries(f, report); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, report *domain.EvalReport) error {
	header := []any{"Config"}
	for _, k := range report.Ks {
		header = append(header, fmt.Sprintf("Hit@%d", k))
	}
	if err := setRow(f, SummarySheet, 1, header); err != nil {
		return err
	}

	for i, res := range report.Results {
		row := []any{res.Config.Name}
		for _, k := range report.Ks {
			rate, _ := res.Rate(k)
			row = append(row, rate)
		}
		if err := setRow(f, SummarySheet, i+2, row); err != nil {
			return err
		}
	}

	footer := len(report.Results) + 3
	if err := setRow(f, SummarySheet, footer, []any{"Run ID", report.ID}); err != nil {
		return err
	}
	return setRow(f, SummarySheet, footer+1, []any{"Queries", report.Total})
}

func writeComparisons(f *excelize.File, comparisons []domain.Comparison) error {
	if _, err := f.NewSheet(ComparisonSheet); err != nil {
		return fmt.Errorf("create comparison sheet: %w", err)
	}
	if err := setRow(f, ComparisonSheet, 1, []any{"Baseline", "Variant", "K", "Baseline rate", "Variant rate", "Improvement"}); err != nil {
		return err
	}
	for i, c := range comparisons {
		var improvement any = "undefined"
		if c.Improvement.Defined {
			improvement = c.Improvement.Value
		}
		row := []any{c.Baseline, c.Variant, c.K, c.BaselineRate, c.VariantRate, improvement}
		if err := setRow(f, ComparisonSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeQueries(f *excelize.File, report *domain.EvalReport) error {
	if _, err := f.NewSheet(queriesSheetName); err != nil {
		return fmt.Errorf("create queries sheet: %w", err)
	}
	header := []any{"Config", "Query ID", "Question", "Gold source", "Predicted category", "Retrieved sources"}
	for _, k := range report.Ks {
		header = append(header, fmt.Sprintf("Hit@%d", k))
	}
	if err := setRow(f, queriesSheetName, 1, header); err != nil {
		return err
	}

	rowNum := 2
	for _, res := range report.Results {
		for _, q := range res.Queries {
			row := []any{
				res.Config.Name, q.QueryID, q.Question, q.GoldSourceID,
				q.PredictedCategory, strings.Join(q.RetrievedSources, ", "),
			}
			for _, k := range report.Ks {
				row = append(row, q.Hits[k])
			}
			if err := setRow(f, queriesSheetName, rowNum, row); err != nil {
				return err
			}
			rowNum++
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
