package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

type ticket struct {
	TicketID    string `json:"ticket_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Resolution  string `json:"resolution"`
	Category    string `json:"category"`
}

func LoadTickets(path string) ([]domain.Document, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tickets: %w", err)
	}

	var tickets []ticket
	if err := json.Unmarshal(raw, &tickets); err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "parse tickets", err)
	}

	docs := make([]domain.Document, 0, len(tickets))
	for i, t := range tickets {
		if t.TicketID == "" {
			return nil, domain.WrapError(domain.ErrValidation, "parse tickets", fmt.Errorf("ticket %d has no ticket_id", i))
		}
		text := fmt.Sprintf("Ticket ID: %s\nTitle: %s\n\nDescription:\n%s\n\nResolution:\n%s",
			t.TicketID, t.Title, t.Description, t.Resolution)
		docs = append(docs, domain.Document{
			ID:       t.TicketID,
			Text:     text,
			Metadata: baseMetadata(SourceTicket, t.TicketID, t.Category, t.Title),
		})
	}
	return docs, nil
}
