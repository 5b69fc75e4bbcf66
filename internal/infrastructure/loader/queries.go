package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

// LoadEvalQueries reads a JSON or YAML list of {id, question, gold_source_id}.
func LoadEvalQueries(path string) ([]domain.EvalQuery, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read eval queries: %w", err)
	}

	var queries []domain.EvalQuery
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &queries)
	default:
		err = json.Unmarshal(raw, &queries)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "parse eval queries", err)
	}

	for i, q := range queries {
		if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.GoldSourceID) == "" {
			return nil, domain.WrapError(domain.ErrValidation, "parse eval queries",
				fmt.Errorf("query %d (%s) needs question and gold_source_id", i, q.ID))
		}
		if q.ID == "" {
			queries[i].ID = fmt.Sprintf("q%03d", i+1)
		}
	}
	return queries, nil
}
