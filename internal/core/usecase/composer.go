package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/corpusqa/corpusqa/internal/core/domain"
	"github.com/corpusqa/corpusqa/internal/core/ports"
)

const composerSystemPrompt = `You are a helpful assistant with access to internal documentation. You have two modes:

1) DOC_GROUNDED: relevant documentation context is provided. Answer from it and cite sources as [Doc: title].
2) GENERAL: no documentation is available. Respond naturally using your general knowledge.

Rules:
- When using documentation, stay within what it says.
- Never claim you cannot answer simple questions or greetings.
- For company-specific questions without documentation, say the documentation does not cover it.`

const (
	errorAnswer   = "An error occurred while generating the response. Please try again."
	abstainAnswer = "I could not find enough relevant material in the documentation to answer that confidently. Try rephrasing the question or naming the document you have in mind."

	confidenceHigh    = "high"
	confidenceMedium  = "medium"
	confidenceLow     = "low"
	confidenceGeneral = "general"
	confidenceAbstain = "abstain"
	confidenceClarify = "clarify"

	historyExchanges      = 3
	assistantSnippetChars = 200
)

// thinkTagPatterns strips the internal-reasoning blocks some local models
// emit before the actual answer.
var thinkTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
}

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// ResponseComposer builds the generation prompt, invokes the generation
// service, formats citations, assigns a confidence label, and sanitizes the
// output. A generation error never propagates; it yields a fixed apologetic
// low-confidence response.
type ResponseComposer struct {
	generator ports.Generator
	sanitizer ports.Sanitizer
	logger    *slog.Logger
}

func NewResponseComposer(generator ports.Generator, sanitizer ports.Sanitizer, logger *slog.Logger) *ResponseComposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseComposer{
		generator: generator,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Compose produces the final Response for the decided mode. ABSTAIN and
// CLARIFY use deterministic templates and never call the generation service.
func (c *ResponseComposer) Compose(ctx context.Context, question string, decision GateDecision, history []domain.HistoryTurn) domain.Response {
	switch decision.Mode {
	case domain.ModeAbstain:
		return domain.Response{
			Answer:     abstainAnswer,
			Citations:  []domain.Citation{},
			Confidence: confidenceAbstain,
			Mode:       domain.ModeAbstain,
		}
	case domain.ModeClarify:
		return domain.Response{
			Answer:     clarifyAnswer(decision.Hint),
			Citations:  []domain.Citation{},
			Confidence: confidenceClarify,
			Mode:       domain.ModeClarify,
		}
	}

	userPrompt := buildUserPrompt(question, decision.Chunks, decision.Mode, history)

	generated, err := c.generator.Generate(ctx, composerSystemPrompt, userPrompt)
	if err != nil {
		c.logger.Warn("generation_fallback", "error", err, "mode", decision.Mode)
		return ErrorResponse()
	}

	answer := c.sanitizer.Scrub(cleanGeneratedAnswer(generated))

	citations := buildCitations(decision.Chunks)
	return domain.Response{
		Answer:     answer,
		Citations:  citations,
		Confidence: assessConfidence(decision.Mode, len(decision.Chunks)),
		Mode:       decision.Mode,
		ChunksUsed: len(decision.Chunks),
	}
}

// ErrorResponse is the worst-case observable behavior of the pipeline: a
// GENERAL-mode, low-confidence, citation-free apology.
func ErrorResponse() domain.Response {
	return domain.Response{
		Answer:     errorAnswer,
		Citations:  []domain.Citation{},
		Confidence: confidenceLow,
		Mode:       domain.ModeGeneral,
	}
}

func buildUserPrompt(question string, chunks []domain.ChunkCandidate, mode domain.AnswerMode, history []domain.HistoryTurn) string {
	var parts []string

	if block := formatHistory(history); block != "" {
		parts = append(parts, "Previous conversation:\n"+block)
	}

	parts = append(parts, "Question: "+question)
	parts = append(parts, "Mode: "+string(mode))

	if mode == domain.ModeDocGrounded && len(chunks) > 0 {
		parts = append(parts, "Documentation context:\n"+formatContext(chunks))
		parts = append(parts, "Instructions: Answer based on the documentation context. Cite sources.")
	} else {
		parts = append(parts, "Instructions: No documentation available. Respond naturally and helpfully.")
	}

	parts = append(parts, "Answer:")
	return strings.Join(parts, "\n\n")
}

// formatContext labels each chunk so the model can cite it by source number.
func formatContext(chunks []domain.ChunkCandidate) string {
	blocks := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		title := chunk.Citation.Title
		if title == "" {
			title = "Unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[Source %d - %s]\n%s", i+1, title, chunk.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// formatHistory keeps the last few exchanges: user turns verbatim, assistant
// turns truncated so old answers do not crowd out the question.
func formatHistory(history []domain.HistoryTurn) string {
	start := len(history) - historyExchanges*2
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(history)-start)
	for _, turn := range history[start:] {
		switch turn.Role {
		case domain.RoleUser:
			lines = append(lines, "User: "+turn.Text)
		case domain.RoleAssistant:
			text := turn.Text
			if len(text) > assistantSnippetChars {
				text = truncate(text, assistantSnippetChars) + "..."
			}
			lines = append(lines, "Assistant: "+text)
		}
	}
	return strings.Join(lines, "\n")
}

func buildCitations(chunks []domain.ChunkCandidate) []domain.Citation {
	citations := make([]domain.Citation, 0, len(chunks))
	for i, chunk := range chunks {
		citation := domain.Citation{
			Ordinal: i + 1,
			Title:   chunk.Citation.Title,
			Section: chunk.SectionPath,
			File:    chunk.Citation.File,
		}
		if citation.Title == "" {
			citation.Title = "Unknown"
		}
		citations = append(citations, citation)
	}
	return citations
}

func assessConfidence(mode domain.AnswerMode, chunksUsed int) string {
	if mode == domain.ModeGeneral {
		return confidenceGeneral
	}
	switch {
	case chunksUsed >= 5:
		return confidenceHigh
	case chunksUsed >= 3:
		return confidenceMedium
	default:
		return confidenceLow
	}
}

func clarifyAnswer(hint string) string {
	if hint != "" {
		return fmt.Sprintf("Could you be more specific? If this relates to %q, tell me which part you want to dig into.", truncate(hint, 120))
	}
	return "Could you be more specific about what you would like to know?"
}

// cleanGeneratedAnswer removes reasoning tags and collapses blank runs.
func cleanGeneratedAnswer(text string) string {
	for _, pattern := range thinkTagPatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
