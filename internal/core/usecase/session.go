package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/corpusqa/corpusqa/internal/core/domain"
	"github.com/corpusqa/corpusqa/internal/core/ports"
)

const eventPublishTimeout = 5 * time.Second

// SessionService binds the query pipeline to per-session history. The whole
// read-query-append cycle runs under the session's lock, so two concurrent
// requests on the same session serialize and neither sees a half-updated
// history.
type SessionService struct {
	pipeline ports.QueryService
	sessions ports.SessionStore
	events   ports.EventPublisher
	logger   *slog.Logger
}

func NewSessionService(pipeline ports.QueryService, sessions ports.SessionStore, events ports.EventPublisher, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		pipeline: pipeline,
		sessions: sessions,
		events:   events,
		logger:   logger,
	}
}

// Open starts a new empty session and returns its id.
func (s *SessionService) Open() string {
	return s.sessions.Create()
}

// Close discards a session's history. Closing an unknown session is a no-op.
func (s *SessionService) Close(sessionID string) {
	s.sessions.Clear(sessionID)
}

// Ask answers one question within a session, creating the session on demand
// when sessionID is empty. Returns the response and the session id used.
func (s *SessionService) Ask(ctx context.Context, sessionID, question string) (domain.Response, string) {
	if sessionID == "" {
		sessionID = s.sessions.Create()
	}

	start := time.Now()
	var response domain.Response

	s.sessions.Do(sessionID, func(history []domain.HistoryTurn) []domain.HistoryTurn {
		response = s.pipeline.Query(ctx, question, history)
		return append(history,
			domain.HistoryTurn{Role: domain.RoleUser, Text: question},
			domain.HistoryTurn{Role: domain.RoleAssistant, Text: response.Answer},
		)
	})

	s.publishEvent(sessionID, response, time.Since(start))
	return response, sessionID
}

// publishEvent emits the answered-query event fire-and-forget; publishing
// failures never affect the response.
func (s *SessionService) publishEvent(sessionID string, response domain.Response, elapsed time.Duration) {
	if s.events == nil {
		return
	}

	event := domain.QueryEvent{
		SessionID:  sessionID,
		Mode:       response.Mode,
		Confidence: response.Confidence,
		ChunksUsed: response.ChunksUsed,
		DurationMS: float64(elapsed.Microseconds()) / 1000.0,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
		defer cancel()
		if err := s.events.PublishQueryAnswered(ctx, event); err != nil {
			s.logger.Warn("query_event_publish_failed", "error", err, "session_id", sessionID)
		}
	}()
}
