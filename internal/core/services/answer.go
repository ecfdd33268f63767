package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Ensure AnswerService implements the interfaces.
var (
	_ driving.AnswerService   = (*AnswerService)(nil)
	_ driven.PromptStoreAware = (*AnswerService)(nil)
)

// LearnedSource is the source recorded on remembered question/answer pairs.
const LearnedSource = "sohbet"

// learnedNamespace derives stable ids for remembered questions.
var learnedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("bilgi/learned_knowledge"))

// AnswerConfig holds the answer assembly defaults.
type AnswerConfig struct {
	TopK     int
	MinScore float64

	// Timeout bounds the completion call.
	Timeout time.Duration

	WebMode       domain.WebMode
	WebMaxResults int
}

// AnswerService answers questions from stored knowledge, consulting the web
// when local knowledge is missing or when asked to.
type AnswerService struct {
	store       driven.VectorStore
	embedder    driven.EmbeddingService
	llm         driven.LLMService
	web         driving.WebAugmenter
	promptStore driven.PromptStore
	cfg         AnswerConfig
	now         func() time.Time
}

// NewAnswerService creates an answer service.
// embedder, llm and web are optional. Without an embedder only the web is
// consulted; without an llm the answer lists the context it found.
func NewAnswerService(
	store driven.VectorStore,
	embedder driven.EmbeddingService,
	llm driven.LLMService,
	web driving.WebAugmenter,
	cfg AnswerConfig,
) *AnswerService {
	defaults := domain.DefaultAppSettings()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.Answer.TopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Answer.Timeout
	}
	if !cfg.WebMode.IsValid() {
		cfg.WebMode = defaults.Answer.WebMode
	}
	if cfg.WebMaxResults <= 0 {
		cfg.WebMaxResults = defaults.Web.MaxResults
	}
	return &AnswerService{
		store:    store,
		embedder: embedder,
		llm:      llm,
		web:      web,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (s *AnswerService) SetPromptStore(store driven.PromptStore) {
	s.promptStore = store
}

// Answer assembles context for the question and asks the completion service.
func (s *AnswerService) Answer(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	mode := req.WebMode
	if mode == "" {
		mode = s.cfg.WebMode
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: web mode %q", domain.ErrInvalidInput, mode)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	answer := &domain.Answer{}

	hits, err := s.Retrieve(ctx, question, answerCollections(req.Collections), topK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("retrieval failed, continuing without documents: %v", err)
	}
	for _, h := range hits {
		if h.Score >= s.cfg.MinScore {
			answer.Sources = append(answer.Sources, h)
		}
	}
	logger.Debug("%d of %d hits above score %.2f", len(answer.Sources), len(hits), s.cfg.MinScore)

	if s.web != nil && (mode == domain.WebModeAlways || (mode == domain.WebModeAuto && len(answer.Sources) == 0)) {
		res := s.web.Search(ctx, question, s.cfg.WebMaxResults)
		answer.WebResults = res.Results
		answer.Cards = res.Cards
		answer.UsedWeb = len(res.Results) > 0
	}

	if len(answer.Sources) == 0 && len(answer.WebResults) == 0 {
		answer.Text = loadPrompt(s.promptStore, driven.PromptNoInformation, defaultNoInformationPrompt)
		return answer, nil
	}

	if s.llm == nil {
		logger.Warn("no completion service configured, listing context only")
		answer.Text = listContext(answer)
		answer.Degraded = true
		return answer, nil
	}

	system := loadPrompt(s.promptStore, driven.PromptAnswerSystem, defaultAnswerSystemPrompt)
	if answer.UsedWeb {
		system += "\n\n" + loadPrompt(s.promptStore, driven.PromptWebHeader, defaultWebHeaderPrompt)
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	text, err := s.llm.Complete(cctx, system, userMessage(question, req.History), contextBlocks(answer))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		logger.Warn("completion failed: %v", err)
		answer.Text = loadPrompt(s.promptStore, driven.PromptDegraded, defaultDegradedPrompt)
		answer.Degraded = true
		return answer, nil
	}

	answer.Text = strings.TrimSpace(text)
	return answer, nil
}

// Retrieve embeds the question and returns the topK most similar chunks
// across the collections, best first. Collections that do not exist or hold
// vectors of another dimensionality are skipped.
func (s *AnswerService) Retrieve(
	ctx context.Context, question string, collections []string, topK int,
) ([]domain.ScoredChunk, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if len(collections) == 0 {
		collections = answerCollections(nil)
	}

	existing, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	var hits []domain.ScoredChunk
	for _, name := range collections {
		if !slices.Contains(existing, name) {
			continue
		}
		coll, err := s.store.GetOrCreateCollection(ctx, name, nil)
		if err != nil {
			return nil, fmt.Errorf("open collection %s: %w", name, err)
		}
		found, err := coll.Query(ctx, vec, topK)
		if errors.Is(err, domain.ErrDimensionMismatch) {
			logger.Warn("skip %s: %v", name, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}
		hits = append(hits, found...)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Remember stores a question and its answer in the learned knowledge
// collection. Remembering the same question twice keeps the first answer.
func (s *AnswerService) Remember(ctx context.Context, question, answer string) error {
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return fmt.Errorf("%w: question and answer are required", domain.ErrInvalidInput)
	}
	if s.embedder == nil {
		return domain.ErrEmbeddingUnavailable
	}

	text := fmt.Sprintf("Soru: %s\nCevap: %s", question, answer)
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	coll, err := s.store.GetOrCreateCollection(ctx, domain.CollectionLearned, collectionMetadata)
	if err != nil {
		return fmt.Errorf("open collection %s: %w", domain.CollectionLearned, err)
	}
	res, err := coll.Upsert(ctx, []domain.Chunk{{
		ID:        uuid.NewSHA1(learnedNamespace, []byte(strings.ToLower(question))).String(),
		Text:      text,
		Embedding: vec,
		Metadata: domain.ChunkMetadata{
			Source:      LearnedSource,
			Type:        domain.SourceTypeManual,
			TotalChunks: 1,
			CreatedAt:   s.now().UTC(),
		},
	}})
	if err != nil {
		return fmt.Errorf("store learned answer: %w", err)
	}
	if res.Skipped > 0 {
		logger.Debug("question already learned: %s", question)
	}
	return nil
}

// answerCollections returns the collections searched for an answer.
// Company memory is always included.
func answerCollections(requested []string) []string {
	out := slices.Clone(requested)
	if len(out) == 0 {
		out = []string{domain.CollectionDocuments, domain.CollectionLearned}
	}
	if !slices.Contains(out, domain.CollectionMemory) {
		out = append(out, domain.CollectionMemory)
	}
	return out
}

// contextBlocks renders hits and web results as passages that keep their
// provenance. The completion service numbers them.
func contextBlocks(a *domain.Answer) []string {
	blocks := make([]string, 0, len(a.Sources)+len(a.WebResults))
	for _, h := range a.Sources {
		label := h.Chunk.Metadata.Source
		if label == "" {
			label = h.Collection
		}
		blocks = append(blocks, fmt.Sprintf("BELGE (%s): %s", label, h.Chunk.Text))
	}
	for _, r := range a.WebResults {
		block := fmt.Sprintf("WEB (%s): %s", r.URL, r.Title)
		if r.Snippet != "" {
			block += "\n" + r.Snippet
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func userMessage(question string, history []domain.ChatTurn) string {
	if len(history) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Önceki konuşma:\n")
	for _, turn := range history {
		fmt.Fprintf(&b, "Soru: %s\nCevap: %s\n", turn.Question, turn.Answer)
	}
	fmt.Fprintf(&b, "\nYeni soru: %s", question)
	return b.String()
}

// listContext is the answer text when no completion service is configured.
func listContext(a *domain.Answer) string {
	var b strings.Builder
	b.WriteString("İlgili bilgiler:")
	for _, block := range contextBlocks(a) {
		b.WriteString("\n- ")
		b.WriteString(block)
	}
	return b.String()
}
