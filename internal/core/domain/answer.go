package domain

// WebMode controls when the answer assembler consults the web.
type WebMode string

// Web modes.
const (
	// WebModeAuto searches the web only when no local knowledge is relevant.
	WebModeAuto WebMode = "auto"

	// WebModeAlways searches the web for every question.
	WebModeAlways WebMode = "always"

	// WebModeNever answers from local knowledge only.
	WebModeNever WebMode = "never"
)

// IsValid returns true if the mode is recognised.
func (m WebMode) IsValid() bool {
	switch m {
	case WebModeAuto, WebModeAlways, WebModeNever:
		return true
	default:
		return false
	}
}

// ChatTurn is one earlier exchange in a conversation.
type ChatTurn struct {
	Question string
	Answer   string
}

// AnswerRequest asks the assembler to answer a question.
type AnswerRequest struct {
	Question string

	// Collections to search. Defaults to CollectionDocuments and CollectionLearned.
	Collections []string

	// TopK is the number of hits to take from each collection.
	TopK int

	WebMode WebMode
	History []ChatTurn
}

// Answer is the assembled response to a question.
type Answer struct {
	Text       string
	Sources    []ScoredChunk
	WebResults []WebResult
	Cards      []RichCard
	UsedWeb    bool

	// Degraded is true when the completion service failed or timed out
	// and Text is a fixed fallback.
	Degraded bool
}
