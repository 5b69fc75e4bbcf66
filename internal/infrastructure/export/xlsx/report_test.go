package xlsx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

func sampleReport() *domain.EvalReport {
	return &domain.EvalReport{
		ID:    "run-1",
		Ks:    []int{1, 3},
		Total: 1,
		Results: []domain.ConfigResult{
			{
				Config:   domain.RetrievalConfig{Name: "raw"},
				HitRates: []domain.KHitRate{{K: 1, Hits: 0, Rate: 0}, {K: 3, Hits: 1, Rate: 1}},
				Queries: []domain.QueryOutcome{{
					QueryID: "q1", Question: "wfi down", GoldSourceID: "runbook_wifi",
					RetrievedSources: []string{"faq_001", "runbook_wifi"},
					Hits:             map[int]int{1: 0, 3: 1},
				}},
			},
			{
				Config:   domain.RetrievalConfig{Name: "baseline", Mode: domain.RetrievalMode{Normalize: true}},
				HitRates: []domain.KHitRate{{K: 1, Hits: 1, Rate: 1}, {K: 3, Hits: 1, Rate: 1}},
			},
		},
	}
}

func TestWriteReportSheets(t *testing.T) {
	comparisons := []domain.Comparison{
		{Baseline: "raw", Variant: "baseline", K: 1, BaselineRate: 0, VariantRate: 1},
		{Baseline: "raw", Variant: "baseline", K: 3, BaselineRate: 1, VariantRate: 1, Improvement: domain.Improvement{Value: 0, Defined: true}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), comparisons))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, ComparisonSheet, queriesSheetName}, f.GetSheetList())

	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Config", "Hit@1", "Hit@3"}, rows[0])
	assert.Equal(t, []string{"raw", "0", "1"}, rows[1])
	assert.Equal(t, []string{"baseline", "1", "1"}, rows[2])

	cmp, err := f.GetRows(ComparisonSheet)
	require.NoError(t, err)
	require.Len(t, cmp, 3)
	assert.Equal(t, "undefined", cmp[1][5])

	queries, err := f.GetRows(queriesSheetName)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "faq_001, runbook_wifi", queries[1][5])
}

func TestWriteReportNil(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteReport(&buf, nil, nil))
}
