package loader

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

type faqEntry struct {
	ID       string `yaml:"id"`
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
	Category string `yaml:"category"`
}

func LoadFAQs(path string) ([]domain.Document, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read faqs: %w", err)
	}

	var entries []faqEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "parse faqs", err)
	}

	docs := make([]domain.Document, 0, len(entries))
	for i, entry := range entries {
		if entry.ID == "" {
			return nil, domain.WrapError(domain.ErrValidation, "parse faqs", fmt.Errorf("entry %d has no id", i))
		}
		docs = append(docs, domain.Document{
			ID:       entry.ID,
			Text:     fmt.Sprintf("Question: %s\n\nAnswer:\n%s", entry.Question, entry.Answer),
			Metadata: baseMetadata(SourceFAQ, entry.ID, entry.Category, entry.Question),
		})
	}
	return docs, nil
}
