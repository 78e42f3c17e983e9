package domain

// AnswerMode is the policy outcome chosen once per request.
type AnswerMode string

const (
	ModeDocGrounded AnswerMode = "DOC_GROUNDED"
	ModeGeneral     AnswerMode = "GENERAL"
	ModeAbstain     AnswerMode = "ABSTAIN"
	ModeClarify     AnswerMode = "CLARIFY"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryTurn is one utterance in a conversation, most-recent last.
// Turns are immutable once appended.
type HistoryTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type Query struct {
	Question  string        `json:"question"`
	SessionID string        `json:"session_id,omitempty"`
	History   []HistoryTurn `json:"history,omitempty"`
}

// Citation points a reader at the corpus location an answer drew from.
type Citation struct {
	Ordinal int    `json:"ordinal"`
	Title   string `json:"title"`
	Section string `json:"section"`
	File    string `json:"file"`
}

// Response is the final per-request artifact. When Mode is ModeDocGrounded
// the citation count equals ChunksUsed; otherwise Citations is empty.
type Response struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence string     `json:"confidence"`
	Mode       AnswerMode `json:"mode"`
	ChunksUsed int        `json:"chunks_used"`
}

// QueryEvent describes one answered query for offline analysis.
type QueryEvent struct {
	SessionID  string     `json:"session_id,omitempty"`
	Mode       AnswerMode `json:"mode"`
	Confidence string     `json:"confidence"`
	ChunksUsed int        `json:"chunks_used"`
	DurationMS float64    `json:"duration_ms"`
}

// LastUserTurn returns the text of the most recent user turn, or "".
func LastUserTurn(history []HistoryTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Text
		}
	}
	return ""
}
