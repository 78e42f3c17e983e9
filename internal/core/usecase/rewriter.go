package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/corpusqa/corpusqa/internal/core/domain"
	"github.com/corpusqa/corpusqa/internal/core/ports"
)

// followupPatterns marks questions whose meaning depends on earlier turns:
// bare pronouns and references, temporal references, continuation leads,
// and interrogatives without a subject.
var followupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(it|this|that|these|those|its|their|them)\b`),
	regexp.MustCompile(`\b(last|previous|earlier|above|before)\b`),
	regexp.MustCompile(`^(what|how|why|when|where|who)\s+about\b`),
	regexp.MustCompile(`^(what|how|who)\s+else\b`),
	regexp.MustCompile(`^(tell me|explain|describe)\s+more\b`),
	regexp.MustCompile(`^(and|also|additionally)\b`),
}

const (
	rewriteContextTurns  = 6
	summarySnippetChars  = 200
	rewriteSystemPrompt  = "You rewrite user questions into standalone search queries. Return only the rewritten query."
	summarySystemPrompt  = "You summarize conversations crisply."
	historyMemoTurnLabel = "[MEMO]"
)

// QueryRewriter expands follow-up questions using conversation history and
// compacts long histories. Both operations fall back to their unmodified
// input on any failure; rewriting must never block or fail the pipeline.
type QueryRewriter struct {
	generator      ports.Generator
	maxTurns       int
	rewriteTimeout time.Duration
	logger         *slog.Logger
}

func NewQueryRewriter(generator ports.Generator, maxTurns int, rewriteTimeout time.Duration, logger *slog.Logger) *QueryRewriter {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	if rewriteTimeout <= 0 {
		rewriteTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryRewriter{
		generator:      generator,
		maxTurns:       maxTurns,
		rewriteTimeout: rewriteTimeout,
		logger:         logger,
	}
}

// IsFollowUp reports whether the question depends on prior turns.
func IsFollowUp(question string) bool {
	lowered := strings.ToLower(strings.TrimSpace(question))
	for _, pattern := range followupPatterns {
		if pattern.MatchString(lowered) {
			return true
		}
	}
	return false
}

// Rewrite returns a standalone form of a follow-up question. Questions that
// are not follow-ups, or arrive with no history, pass through unchanged.
func (r *QueryRewriter) Rewrite(ctx context.Context, question string, history []domain.HistoryTurn) string {
	if len(history) == 0 || !IsFollowUp(question) {
		return question
	}

	if r.generator != nil {
		rewritten, err := r.rewriteWithGenerator(ctx, question, history)
		if err == nil && rewritten != "" {
			return rewritten
		}
		if err != nil {
			r.logger.Warn("query_rewrite_fallback", "error", err)
		}
	}

	// Cheap fallback: prepend the most recent user utterance so the
	// retrieval stages see the referent the pronoun points at.
	if last := domain.LastUserTurn(history); last != "" {
		return last + " " + question
	}
	return question
}

func (r *QueryRewriter) rewriteWithGenerator(ctx context.Context, question string, history []domain.HistoryTurn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.rewriteTimeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("Rewrite the user's latest question into a standalone query.\n\nPrevious turns:\n")
	start := len(history) - rewriteContextTurns
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, truncate(turn.Text, summarySnippetChars)))
	}
	b.WriteString(fmt.Sprintf("\nUser: %s\nStandalone query:", question))

	rewritten, err := r.generator.Generate(ctx, rewriteSystemPrompt, b.String())
	if err != nil {
		return "", domain.WrapError(domain.ErrRewrite, "rewrite query", err)
	}
	return strings.TrimSpace(rewritten), nil
}

// Summarize compresses the oldest excess turns into one synthetic memo turn
// once history exceeds the configured cap. The result is strictly shorter
// than the input when compaction fires; on any failure the history is
// returned untouched.
func (r *QueryRewriter) Summarize(ctx context.Context, history []domain.HistoryTurn) []domain.HistoryTurn {
	if len(history) <= r.maxTurns {
		return history
	}
	if r.generator == nil {
		// No generation service: drop the oldest excess outright so the
		// downstream prompt stays bounded.
		return history[len(history)-r.maxTurns:]
	}

	keep := r.maxTurns - 1
	excess := history[:len(history)-keep]
	recent := history[len(history)-keep:]

	var b strings.Builder
	for _, turn := range excess {
		b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, truncate(turn.Text, summarySnippetChars)))
	}
	prompt := "Summarize this dialogue into bullet points with key entities and the current goal.\n\n" + b.String()

	ctx, cancel := context.WithTimeout(ctx, r.rewriteTimeout)
	defer cancel()

	memo, err := r.generator.Generate(ctx, summarySystemPrompt, prompt)
	if err != nil {
		r.logger.Warn("history_summarize_fallback", "error", err, "turns", len(history))
		return history
	}
	memo = strings.TrimSpace(memo)
	if memo == "" {
		return history
	}

	compacted := make([]domain.HistoryTurn, 0, keep+1)
	compacted = append(compacted, domain.HistoryTurn{
		Role: domain.RoleAssistant,
		Text: historyMemoTurnLabel + "\n" + memo,
	})
	compacted = append(compacted, recent...)
	return compacted
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
