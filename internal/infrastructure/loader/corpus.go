package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

const (
	SourceFAQ     = "faq"
	SourceTicket  = "ticket"
	SourceRunbook = "runbook"
	SourcePolicy  = "policy"

	defaultCategory = "other"
	defaultLanguage = "en"
)

// LoadCorpus reads every known source under rawDir. Missing sources are skipped.
func LoadCorpus(rawDir string) ([]domain.Document, error) {
	var docs []domain.Document

	faqs, err := LoadFAQs(filepath.Join(rawDir, "faqs.yaml"))
	if err != nil {
		return nil, err
	}
	docs = append(docs, faqs...)

	tickets, err := LoadTickets(filepath.Join(rawDir, "tickets.json"))
	if err != nil {
		return nil, err
	}
	docs = append(docs, tickets...)

	for _, dir := range []struct{ subdir, sourceType string }{
		{"runbooks", SourceRunbook},
		{"policies", SourcePolicy},
	} {
		loaded, err := LoadDocumentDir(filepath.Join(rawDir, dir.subdir), dir.sourceType)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", dir.subdir, err)
		}
		docs = append(docs, loaded...)
	}

	slog.Info("corpus_loaded", "dir", rawDir, "documents", len(docs))
	return docs, nil
}

func baseMetadata(sourceType, sourceID, category, title string) map[string]any {
	if category == "" {
		category = defaultCategory
	}
	return map[string]any{
		domain.MetaSourceType: sourceType,
		domain.MetaSourceID:   sourceID,
		domain.MetaCategory:   category,
		domain.MetaTitle:      title,
		domain.MetaLanguage:   defaultLanguage,
	}
}
