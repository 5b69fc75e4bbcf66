package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

// LoadDocumentDir loads *.md and *.pdf files. The category is the file-name
// prefix before the first underscore; the title is the first "# " heading.
func LoadDocumentDir(dir, sourceType string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var docs []domain.Document
	for _, name := range names {
		path := filepath.Join(dir, name)
		var (
			text string
			err  error
		)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".md":
			text, err = readMarkdown(path)
		case ".pdf":
			text, err = ExtractPDFText(path)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		docs = append(docs, fileDocument(name, text, sourceType))
	}
	return docs, nil
}

func fileDocument(filename, text, sourceType string) domain.Document {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	category := strings.ToLower(strings.SplitN(stem, "_", 2)[0])
	docID := fmt.Sprintf("%s_%s", sourceType, stem)

	meta := baseMetadata(sourceType, docID, category, markdownTitle(text, stem))
	meta[domain.MetaFilename] = filename
	return domain.Document{ID: docID, Text: text, Metadata: meta}
}

func readMarkdown(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrValidation, "read markdown", errors.New("file is not valid UTF-8"))
	}
	return string(raw), nil
}

func markdownTitle(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
	}
	return fallback
}
