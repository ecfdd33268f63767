package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// idWindow is how many ids are tried per lookup when chunk ids have to be
// enumerated by pattern.
const idWindow = 100

// collectionMetadata is applied to collections created by ingestion.
var collectionMetadata = map[string]string{"hnsw:space": "cosine"}

// IngestConfig holds the ingestion defaults.
type IngestConfig struct {
	// Workers bounds IngestAll concurrency.
	Workers int

	// Collection is used when a request names none.
	Collection string

	// Department is used when a request names none.
	Department string
}

// IngestService turns source documents into stored chunks.
//
// Extraction, chunking and embedding all finish in memory before the first
// write, so a failed run never leaves partial chunks behind.
type IngestService struct {
	store      driven.VectorStore
	extractors driven.ExtractorRegistry
	pipeline   driven.PostProcessorPipeline
	embedder   driven.EmbeddingService
	manifests  driven.ManifestStore
	cfg        IngestConfig

	locks *keyedMutex

	mu     sync.RWMutex
	active map[string]*domain.IngestStatus

	now      func() time.Time
	readFile func(string) ([]byte, error)
}

// NewIngestService creates an ingestion service.
// embedder may be nil, in which case every ingestion fails with
// domain.ErrEmbeddingUnavailable.
func NewIngestService(
	store driven.VectorStore,
	extractors driven.ExtractorRegistry,
	pipeline driven.PostProcessorPipeline,
	embedder driven.EmbeddingService,
	manifests driven.ManifestStore,
	cfg IngestConfig,
) *IngestService {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Collection == "" {
		cfg.Collection = domain.CollectionDocuments
	}
	return &IngestService{
		store:      store,
		extractors: extractors,
		pipeline:   pipeline,
		embedder:   embedder,
		manifests:  manifests,
		cfg:        cfg,
		locks:      newKeyedMutex(),
		active:     make(map[string]*domain.IngestStatus),
		now:        time.Now,
		readFile:   os.ReadFile,
	}
}

// Ingest processes one source, waiting if the same source is already running.
func (s *IngestService) Ingest(ctx context.Context, req domain.SourceRequest) domain.IngestReport {
	return s.run(ctx, req, func(id string) error {
		return s.locks.Lock(ctx, id)
	})
}

// TryIngest processes one source, failing with domain.ErrIngestInProgress
// if the same source is already running.
func (s *IngestService) TryIngest(ctx context.Context, req domain.SourceRequest) domain.IngestReport {
	return s.run(ctx, req, func(id string) error {
		if !s.locks.TryLock(id) {
			return fmt.Errorf("%s: %w", id, domain.ErrIngestInProgress)
		}
		return nil
	})
}

// IngestAll processes sources on a bounded worker pool. Reports keep the
// order of reqs. One source failing does not stop the others.
func (s *IngestService) IngestAll(ctx context.Context, reqs []domain.SourceRequest) domain.IngestSummary {
	reports := make([]domain.IngestReport, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, req := range reqs {
		g.Go(func() error {
			reports[i] = s.Ingest(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	var summary domain.IngestSummary
	for _, r := range reports {
		summary.Add(r)
	}
	return summary
}

// Delete removes every chunk of a source and its manifest.
func (s *IngestService) Delete(ctx context.Context, collection, source string) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("%w: source is required", domain.ErrInvalidInput)
	}
	if collection == "" {
		collection = s.cfg.Collection
	}

	if err := s.locks.Lock(ctx, source); err != nil {
		return 0, err
	}
	defer s.locks.Unlock(source)

	coll, err := s.store.GetOrCreateCollection(ctx, collection, collectionMetadata)
	if err != nil {
		return 0, fmt.Errorf("open collection %s: %w", collection, err)
	}

	old, err := sourceChunks(ctx, coll, source, false)
	if err != nil {
		return 0, fmt.Errorf("find chunks of %s: %w", source, err)
	}
	if len(old) > 0 {
		if err := coll.Delete(ctx, chunkIDs(old)); err != nil {
			return 0, fmt.Errorf("delete chunks of %s: %w", source, err)
		}
	}
	if s.manifests != nil {
		if err := s.manifests.Delete(source); err != nil {
			return len(old), fmt.Errorf("delete manifest of %s: %w", source, err)
		}
	}

	logger.Info("deleted %d chunks of %s from %s", len(old), source, collection)
	return len(old), nil
}

// Status returns a copy of the state of an in-flight ingestion, or nil.
func (s *IngestService) Status(sourceID string) *domain.IngestStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.active[sourceID]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

func (s *IngestService) setState(id string, state domain.IngestState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.active[id]; ok {
		st.State = state
		return
	}
	s.active[id] = &domain.IngestStatus{SourceID: id, State: state, StartedAt: s.now()}
}

func (s *IngestService) clearState(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// normalise fills request defaults.
func (s *IngestService) normalise(req domain.SourceRequest) (domain.SourceRequest, error) {
	if req.SourceID == "" && req.Path != "" {
		req.SourceID = domain.SourceIDFromPath(req.Path)
	}
	if req.SourceID == "" {
		return req, fmt.Errorf("%w: source id or path is required", domain.ErrInvalidInput)
	}
	if req.Type == "" {
		req.Type = domain.DetectSourceType(req.SourceID)
		if req.Type == "" && req.Path != "" {
			req.Type = domain.DetectSourceType(req.Path)
		}
	}
	if req.Type == "" {
		return req, fmt.Errorf("%w: cannot detect type of %s", domain.ErrUnsupportedType, req.SourceID)
	}
	if req.Collection == "" {
		req.Collection = s.cfg.Collection
	}
	if req.Department == "" {
		req.Department = s.cfg.Department
	}
	return req, nil
}

func (s *IngestService) run(ctx context.Context, req domain.SourceRequest, lock func(string) error) domain.IngestReport {
	started := s.now()
	report := domain.IngestReport{SourceID: req.SourceID, Collection: req.Collection}

	fail := func(err error) domain.IngestReport {
		report.State = domain.IngestStateFailed
		report.Err = err
		report.Duration = s.now().Sub(started)
		logger.Error("ingest %s: %v", report.SourceID, err)
		return report
	}

	req, err := s.normalise(req)
	report.SourceID, report.Collection = req.SourceID, req.Collection
	if err != nil {
		return fail(err)
	}

	if err := lock(req.SourceID); err != nil {
		return fail(err)
	}
	defer s.locks.Unlock(req.SourceID)

	s.setState(req.SourceID, domain.IngestStateDiscovered)
	defer s.clearState(req.SourceID)

	if !req.Force && s.manifests != nil {
		done, err := s.manifests.Exists(req.SourceID)
		if err != nil {
			return fail(fmt.Errorf("check manifest: %w", err))
		}
		if done {
			report.State = domain.IngestStateSkipped
			report.Duration = s.now().Sub(started)
			logger.Info("skip %s: already processed", req.SourceID)
			return report
		}
	}

	if s.embedder == nil {
		return fail(domain.ErrEmbeddingUnavailable)
	}

	chunks, extraction, err := s.prepare(ctx, req)
	if err != nil {
		return fail(err)
	}
	report.Pages = extraction.PageCount
	report.PageErrors = extraction.PageErrors
	report.OCR = extraction.OCR
	report.Images = extraction.ImageCount()

	superseded, err := s.persist(ctx, req, chunks)
	if err != nil {
		return fail(err)
	}
	report.Chunks = len(chunks)
	report.Superseded = superseded
	s.setState(req.SourceID, domain.IngestStatePersisted)

	if s.manifests != nil {
		m := extraction.Manifest()
		m.Source = req.SourceID
		if err := s.manifests.Save(m); err != nil {
			// Chunks are consistent; the next run supersedes them again.
			logger.Warn("write manifest for %s: %v", req.SourceID, err)
		}
	}

	report.State = domain.IngestStatePersisted
	report.Duration = s.now().Sub(started)
	logger.Info("ingested %s: %d chunks, %d images, %d superseded", req.SourceID, report.Chunks, report.Images, superseded)
	return report
}

// prepare runs extraction, chunking and embedding entirely in memory.
func (s *IngestService) prepare(ctx context.Context, req domain.SourceRequest) ([]domain.Chunk, *domain.Extraction, error) {
	s.setState(req.SourceID, domain.IngestStateExtracting)

	extractor, err := s.extractors.Get(req.Type)
	if err != nil {
		return nil, nil, err
	}

	data := req.Data
	if data == nil {
		if req.Path == "" {
			return nil, nil, fmt.Errorf("%w: no data or path for %s", domain.ErrInvalidInput, req.SourceID)
		}
		if data, err = s.readFile(req.Path); err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", req.Path, err)
		}
	}

	extraction, err := extractor.Extract(ctx, req.SourceID, data)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}

	s.setState(req.SourceID, domain.IngestStateChunking)
	doc := &domain.Document{
		Source:     req.SourceID,
		Type:       req.Type,
		Department: req.Department,
		Text:       extraction.Text(),
		PageCount:  extraction.PageCount,
		OCR:        extraction.OCR,
		CreatedAt:  s.now().UTC(),
	}
	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%w: no text extracted from %s", domain.ErrInvalidInput, req.SourceID)
	}

	s.setState(req.SourceID, domain.IngestStateEmbedding)
	for i := range chunks {
		vec, err := s.embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			return nil, nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if len(vec) == 0 {
			return nil, nil, fmt.Errorf("embed chunk %d: %w", i, domain.ErrEmptyEmbedding)
		}
		chunks[i].Embedding = vec
	}

	return chunks, extraction, nil
}

// persist replaces the stored chunks of the source with chunks.
// When the insert fails the previous chunks are restored.
func (s *IngestService) persist(ctx context.Context, req domain.SourceRequest, chunks []domain.Chunk) (int, error) {
	coll, err := s.store.GetOrCreateCollection(ctx, req.Collection, collectionMetadata)
	if err != nil {
		return 0, fmt.Errorf("open collection %s: %w", req.Collection, err)
	}

	old, err := sourceChunks(ctx, coll, req.SourceID, true)
	if err != nil {
		return 0, fmt.Errorf("find previous chunks: %w", err)
	}

	if err := checkDimension(ctx, coll, len(old), len(chunks[0].Embedding)); err != nil {
		return 0, err
	}

	if len(old) > 0 {
		if err := coll.Delete(ctx, chunkIDs(old)); err != nil {
			return 0, fmt.Errorf("delete previous chunks: %w", err)
		}
	}

	if _, err := coll.Upsert(ctx, chunks); err != nil {
		if len(old) > 0 {
			if _, rerr := coll.Upsert(ctx, old); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restore previous chunks: %w", rerr))
			}
		}
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	return len(old), nil
}

// checkDimension fails before anything is deleted when the new vectors could
// not be inserted. The dimension only resets when the source owns every chunk.
func checkDimension(ctx context.Context, coll driven.Collection, owned, dim int) error {
	current, err := coll.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("read collection dimension: %w", err)
	}
	if current == 0 || current == dim {
		return nil
	}
	total, err := coll.Count(ctx)
	if err != nil {
		return fmt.Errorf("count collection: %w", err)
	}
	if total > owned {
		return fmt.Errorf("%w: collection %s holds %d-dimensional vectors, model produces %d",
			domain.ErrDimensionMismatch, coll.Name(), current, dim)
	}
	return nil
}

// sourceChunks finds every chunk of a source by metadata filter. If the
// filter lookup fails the ids {source}_0, {source}_1, ... are tried instead.
func sourceChunks(ctx context.Context, coll driven.Collection, source string, withEmbeddings bool) ([]domain.Chunk, error) {
	chunks, err := coll.Get(ctx, domain.GetQuery{
		Where:             domain.MetadataFilter{Source: source},
		IncludeEmbeddings: withEmbeddings,
	})
	if err == nil {
		return chunks, nil
	}
	logger.Warn("metadata lookup for %s failed, probing chunk ids: %v", source, err)

	var out []domain.Chunk
	for start := 0; ; start += idWindow {
		ids := make([]string, idWindow)
		for i := range ids {
			ids[i] = domain.ChunkID(source, start+i)
		}
		found, err := coll.Get(ctx, domain.GetQuery{IDs: ids, IncludeEmbeddings: withEmbeddings})
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
		if len(found) < idWindow {
			return out, nil
		}
	}
}

func chunkIDs(chunks []domain.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	return ids
}
