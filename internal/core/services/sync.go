package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Ensure CollectionSynchronizer implements the interface.
var _ driving.CollectionSynchronizer = (*CollectionSynchronizer)(nil)

const (
	// importBatchSize is the number of records inserted per call.
	importBatchSize = 50

	// exportPageSize is the number of records read per call.
	exportPageSize = 500
)

// CollectionSynchronizer exports collections into bundles and merges bundles
// into the local store.
type CollectionSynchronizer struct {
	store    driven.VectorStore
	embedder driven.EmbeddingService
}

// NewCollectionSynchronizer creates a synchronizer over the local store.
// embedder is optional; without it records that would need re-embedding are skipped.
func NewCollectionSynchronizer(store driven.VectorStore, embedder driven.EmbeddingService) *CollectionSynchronizer {
	return &CollectionSynchronizer{store: store, embedder: embedder}
}

// Collections describes every collection in the local store.
func (s *CollectionSynchronizer) Collections(ctx context.Context) ([]domain.CollectionInfo, error) {
	names, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)

	infos := make([]domain.CollectionInfo, 0, len(names))
	for _, name := range names {
		coll, err := s.store.GetOrCreateCollection(ctx, name, nil)
		if err != nil {
			return nil, fmt.Errorf("open collection %s: %w", name, err)
		}
		count, err := coll.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		dim, err := coll.Dimension(ctx)
		if err != nil {
			return nil, fmt.Errorf("dimension of %s: %w", name, err)
		}
		infos = append(infos, domain.CollectionInfo{
			Name:      name,
			Count:     count,
			Dimension: dim,
			Metadata:  coll.Metadata(),
		})
	}
	return infos, nil
}

// Export reads the named collections, or every collection when none are named.
func (s *CollectionSynchronizer) Export(ctx context.Context, collections []string) (domain.ExportBundle, error) {
	available, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if len(collections) == 0 {
		collections = available
	}

	bundle := make(domain.ExportBundle, len(collections))
	for _, name := range collections {
		if !slices.Contains(available, name) {
			return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
		}
		exp, err := s.exportCollection(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		bundle[name] = exp
		logger.Info("exported %s: %d records, dim %d", name, exp.Len(), exp.EmbedDim)
	}
	return bundle, nil
}

func (s *CollectionSynchronizer) exportCollection(ctx context.Context, name string) (domain.CollectionExport, error) {
	coll, err := s.store.GetOrCreateCollection(ctx, name, nil)
	if err != nil {
		return domain.CollectionExport{}, err
	}

	exp := domain.CollectionExport{
		IDs:        []string{},
		Documents:  []string{},
		Metadatas:  []domain.ChunkMetadata{},
		Embeddings: []domain.Vector{},
		Metadata:   domain.ExportMetadata(coll.Metadata()),
	}
	for offset := 0; ; offset += exportPageSize {
		page, err := coll.Get(ctx, domain.GetQuery{
			Limit:             exportPageSize,
			Offset:            offset,
			IncludeEmbeddings: true,
		})
		if err != nil {
			return domain.CollectionExport{}, err
		}
		for _, ch := range page {
			exp.Append(ch)
		}
		if len(page) < exportPageSize {
			return exp, nil
		}
	}
}

// Import merges every collection of the bundle into the local store.
// Only records whose IDs are absent locally are written. Per-record and
// per-batch failures are counted in the report; the error aggregates
// collections that could not be imported at all.
func (s *CollectionSynchronizer) Import(ctx context.Context, bundle domain.ExportBundle) ([]domain.ImportReport, error) {
	names := make([]string, 0, len(bundle))
	for name := range bundle {
		names = append(names, name)
	}
	sort.Strings(names)

	reports := make([]domain.ImportReport, 0, len(names))
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.importCollection(ctx, name, bundle[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", name, err))
			continue
		}
		reports = append(reports, report)
		logger.Info("imported %s: %d added, %d skipped, %d re-embedded, %d failed",
			name, report.Added, report.Skipped, report.ReEmbedded, report.Failed)
		if report.NoModel > 0 {
			logger.Warn("%s: %d records need an embedding model and were not imported", name, report.NoModel)
		}
	}
	return reports, errors.Join(errs...)
}

// Copy exports collections from another store and imports them locally.
func (s *CollectionSynchronizer) Copy(ctx context.Context, from driven.VectorStore, collections []string) ([]domain.ImportReport, error) {
	bundle, err := NewCollectionSynchronizer(from, nil).Export(ctx, collections)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, bundle)
}

//nolint:gocyclo // Import decision table is sequential
func (s *CollectionSynchronizer) importCollection(
	ctx context.Context, name string, exp domain.CollectionExport,
) (domain.ImportReport, error) {
	report := domain.ImportReport{Collection: name, SourceDim: sourceDimension(exp)}

	if err := exp.Validate(); err != nil {
		return report, err
	}
	if exp.Len() == 0 {
		logger.Info("skip %s: empty in bundle", name)
		return report, nil
	}

	meta := exp.StoreMetadata()
	if len(meta) == 0 {
		meta = collectionMetadata
	}
	coll, err := s.store.GetOrCreateCollection(ctx, name, meta)
	if err != nil {
		return report, err
	}

	existing, err := existingIDs(ctx, coll, exp.IDs)
	if err != nil {
		return report, fmt.Errorf("read existing ids: %w", err)
	}

	targetDim, err := coll.Dimension(ctx)
	if err != nil {
		return report, fmt.Errorf("read dimension: %w", err)
	}
	localDim := 0
	if s.embedder != nil {
		localDim = s.embedder.Dimensions()
	}

	reembed := false
	switch {
	case report.SourceDim > 0 && targetDim > 0:
		reembed = report.SourceDim != targetDim
	case targetDim == 0 && localDim > 0:
		reembed = report.SourceDim != localDim
	}

	report.TargetDim = targetDim
	if report.TargetDim == 0 {
		report.TargetDim = report.SourceDim
		if reembed {
			report.TargetDim = localDim
		}
	}
	if reembed {
		logger.Info("%s: bundle dim %d differs from target dim %d, re-embedding",
			name, report.SourceDim, report.TargetDim)
	}

	// new_ids = source_ids - existing_ids, fixed before any write
	pending := make([]domain.Chunk, 0, exp.Len())
	seen := make(map[string]bool, exp.Len())
	for i, id := range exp.IDs {
		if existing[id] || seen[id] {
			report.Skipped++
			continue
		}
		seen[id] = true

		ch := exp.Chunk(i)
		needsEmbedding := reembed || len(ch.Embedding) == 0 ||
			(report.TargetDim > 0 && len(ch.Embedding) != report.TargetDim)
		if needsEmbedding {
			if s.embedder == nil {
				report.NoModel++
				continue
			}
			ch.Embedding = nil
		}
		pending = append(pending, ch)
	}

	for start := 0; start < len(pending); start += importBatchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+importBatchSize, len(pending))
		s.insertBatch(ctx, coll, pending[start:end], &report)
	}
	return report, nil
}

// insertBatch embeds records that need it and inserts the batch. A batch
// rejected for dimensionality is retried record by record.
func (s *CollectionSynchronizer) insertBatch(
	ctx context.Context, coll driven.Collection, batch []domain.Chunk, report *domain.ImportReport,
) {
	var texts []string
	var idx []int
	for i, ch := range batch {
		if len(ch.Embedding) == 0 {
			texts = append(texts, ch.Text)
			idx = append(idx, i)
		}
	}
	if len(texts) > 0 {
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts))
		}
		if err != nil {
			logger.Error("%s: re-embed batch of %d: %v", coll.Name(), len(batch), err)
			report.Failed += len(batch)
			return
		}
		for j, i := range idx {
			batch[i].Embedding = vecs[j]
		}
	}
	reembedded := make(map[string]bool, len(idx))
	for _, i := range idx {
		reembedded[batch[i].ID] = true
	}

	res, err := coll.Upsert(ctx, batch)
	if err == nil {
		report.Added += res.Inserted
		report.Skipped += res.Skipped
		report.ReEmbedded += len(idx)
		return
	}
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		logger.Error("%s: insert batch of %d: %v", coll.Name(), len(batch), err)
		report.Failed += len(batch)
		return
	}

	logger.Warn("%s: batch rejected for dimension, inserting records one by one", coll.Name())
	for _, ch := range batch {
		res, err := coll.Upsert(ctx, []domain.Chunk{ch})
		if err != nil {
			logger.Debug("%s: insert %s: %v", coll.Name(), ch.ID, err)
			report.Failed++
			continue
		}
		report.Added += res.Inserted
		report.Skipped += res.Skipped
		if res.Inserted > 0 && reembedded[ch.ID] {
			report.ReEmbedded++
		}
	}
}

// sourceDimension returns the recorded dimension, or the length of the
// first vector when the bundle did not record one.
func sourceDimension(exp domain.CollectionExport) int {
	if exp.EmbedDim > 0 {
		return exp.EmbedDim
	}
	for _, v := range exp.Embeddings {
		if len(v) > 0 {
			return len(v)
		}
	}
	return 0
}

func existingIDs(ctx context.Context, coll driven.Collection, ids []string) (map[string]bool, error) {
	found := make(map[string]bool)
	for start := 0; start < len(ids); start += exportPageSize {
		end := min(start+exportPageSize, len(ids))
		chunks, err := coll.Get(ctx, domain.GetQuery{IDs: ids[start:end]})
		if err != nil {
			return nil, err
		}
		for _, ch := range chunks {
			found[ch.ID] = true
		}
	}
	return found, nil
}

// WriteBundle encodes a bundle as JSON.
func WriteBundle(w io.Writer, bundle domain.ExportBundle) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(bundle); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}

// ReadBundle decodes a JSON bundle.
func ReadBundle(r io.Reader) (domain.ExportBundle, error) {
	var bundle domain.ExportBundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: decode bundle: %v", domain.ErrInvalidInput, err)
	}
	for name, exp := range bundle {
		if err := exp.Validate(); err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
	}
	return bundle, nil
}
