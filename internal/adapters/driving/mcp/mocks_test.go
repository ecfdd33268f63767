package mcp

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
)

var (
	_ driving.AnswerService          = (*mockAnswerService)(nil)
	_ driving.WebAugmenter           = (*mockWebAugmenter)(nil)
	_ driving.CollectionSynchronizer = (*mockSynchronizer)(nil)
)

type mockAnswerService struct {
	answer *domain.Answer
	hits   []domain.ScoredChunk
	err    error

	lastRequest     domain.AnswerRequest
	lastQuery       string
	lastCollections []string
	lastTopK        int
}

func (m *mockAnswerService) Answer(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	if m.answer == nil {
		return &domain.Answer{}, nil
	}
	return m.answer, nil
}

func (m *mockAnswerService) Retrieve(
	_ context.Context, question string, collections []string, topK int,
) ([]domain.ScoredChunk, error) {
	m.lastQuery = question
	m.lastCollections = collections
	m.lastTopK = topK
	return m.hits, m.err
}

func (m *mockAnswerService) Remember(context.Context, string, string) error {
	return m.err
}

type mockWebAugmenter struct {
	result    domain.WebSearchResult
	lastQuery string
	lastLimit int
}

func (m *mockWebAugmenter) Search(_ context.Context, query string, maxResults int) domain.WebSearchResult {
	m.lastQuery = query
	m.lastLimit = maxResults
	return m.result
}

func (m *mockWebAugmenter) SearchAndSummarize(context.Context, string, int) (string, bool) {
	return "", false
}

type mockSynchronizer struct {
	infos []domain.CollectionInfo
	err   error
}

func (m *mockSynchronizer) Collections(context.Context) ([]domain.CollectionInfo, error) {
	return m.infos, m.err
}

func (m *mockSynchronizer) Export(context.Context, []string) (domain.ExportBundle, error) {
	return nil, m.err
}

func (m *mockSynchronizer) Import(context.Context, domain.ExportBundle) ([]domain.ImportReport, error) {
	return nil, m.err
}
