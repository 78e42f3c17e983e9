package ports

import (
	"context"

	"github.com/corpusqa/corpusqa/internal/core/domain"
)

// QueryService is the inbound contract consumed by the HTTP and CLI front
// ends. It never returns an error: every downstream failure degrades to a
// GENERAL-mode, low-confidence response.
type QueryService interface {
	Query(ctx context.Context, question string, history []domain.HistoryTurn) domain.Response
}
