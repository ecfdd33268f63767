package driving

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// AnswerService answers questions grounded on stored knowledge and the web.
type AnswerService interface {
	// Answer assembles context and asks the completion service.
	// A failed completion degrades to a fixed response rather than an error.
	Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error)

	// Retrieve returns the stored chunks most relevant to the question.
	Retrieve(ctx context.Context, question string, collections []string, topK int) ([]domain.ScoredChunk, error)

	// Remember stores a question and its answer as learned knowledge.
	Remember(ctx context.Context, question, answer string) error
}
