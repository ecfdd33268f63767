package services

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// fakeEmbedder derives a deterministic vector from the text.
type fakeEmbedder struct {
	dim   int
	err   error
	calls atomic.Int32

	// failOn makes Embed fail for this exact text.
	failOn string
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New("embedding model crashed")
	}
	return vectorFor(text, f.dim), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake-embed" }
func (f *fakeEmbedder) Ping(context.Context) error { return f.err }
func (f *fakeEmbedder) Close() error { return nil }

// vectorFor spreads a hash of text over dim positive components.
func vectorFor(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	v := make([]float32, dim)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(seed>>40)/float32(1<<24) + 0.01
	}
	return v
}

// fakeLLM records prompts and returns a scripted reply.
type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	systems []string
	users   []string
	docs    [][]string
}

func (f *fakeLLM) Complete(_ context.Context, system, user string, docs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	f.docs = append(f.docs, docs)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) Chat(_ context.Context, _ []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) ModelName() string { return "fake-llm" }
func (f *fakeLLM) Ping(context.Context) error { return f.err }
func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) lastDocs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.docs) == 0 {
		return nil
	}
	return f.docs[len(f.docs)-1]
}

func (f *fakeLLM) lastSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.systems) == 0 {
		return ""
	}
	return f.systems[len(f.systems)-1]
}

// fakeProvider is a scripted web search provider.
type fakeProvider struct {
	name    string
	results []domain.WebResult
	cards   []domain.RichCard
	err     error
	panics  bool
	block   bool
	calls   atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, _ string, _ int) ([]domain.WebResult, []domain.RichCard, error) {
	f.calls.Add(1)
	if f.panics {
		panic("provider exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return f.results, f.cards, f.err
}

// fakePrompts serves fixed prompt texts.
type fakePrompts map[string]string

func (p fakePrompts) Load(name string) (string, error) {
	if s, ok := p[name]; ok {
		return s, nil
	}
	return "", domain.ErrNotFound
}

func (p fakePrompts) Reload() {}

// filterlessStore wraps a store so that metadata lookups fail, as they do
// on backends without payload indexes.
type filterlessStore struct {
	driven.VectorStore
}

func (s filterlessStore) GetOrCreateCollection(
	ctx context.Context, name string, metadata map[string]string,
) (driven.Collection, error) {
	c, err := s.VectorStore.GetOrCreateCollection(ctx, name, metadata)
	if err != nil {
		return nil, err
	}
	return filterlessCollection{Collection: c}, nil
}

type filterlessCollection struct {
	driven.Collection
}

func (c filterlessCollection) Get(ctx context.Context, q domain.GetQuery) ([]domain.Chunk, error) {
	if !q.Where.IsEmpty() {
		return nil, errors.New("filter not supported")
	}
	return c.Collection.Get(ctx, q)
}

// failingUpsertStore wraps a store so that inserts fail after the first
// failAfter calls.
type failingUpsertStore struct {
	driven.VectorStore
	failAfter int32
	upserts   *atomic.Int32
}

func (s failingUpsertStore) GetOrCreateCollection(
	ctx context.Context, name string, metadata map[string]string,
) (driven.Collection, error) {
	c, err := s.VectorStore.GetOrCreateCollection(ctx, name, metadata)
	if err != nil {
		return nil, err
	}
	return failingUpsertCollection{Collection: c, store: s}, nil
}

type failingUpsertCollection struct {
	driven.Collection
	store failingUpsertStore
}

func (c failingUpsertCollection) Upsert(ctx context.Context, chunks []domain.Chunk) (domain.UpsertResult, error) {
	n := c.store.upserts.Add(1)
	if n == c.store.failAfter+1 {
		return domain.UpsertResult{}, errors.New("disk full")
	}
	return c.Collection.Upsert(ctx, chunks)
}
