// Package qdrant provides a driven.VectorStore backed by a remote Qdrant
// server, spoken to over its REST API.
//
// Chunk ids are mapped to deterministic UUIDv5 point ids; the original id,
// text and flattened metadata travel in the point payload. Collections are
// created lazily on the first insert, once the vector size is known.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Payload keys reserved by this adapter.
const (
	payloadChunkID  = "chunk_id"
	payloadDocument = "document"
)

// scrollPage is the page size used when walking a collection.
const scrollPage = 256

// Ensure Store implements the interfaces.
var (
	_ driven.VectorStore = (*Store)(nil)
	_ driven.Collection  = (*collection)(nil)
)

// Config holds Qdrant connection settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Store is a Qdrant REST client implementing driven.VectorStore.
type Store struct {
	url    string
	apiKey string
	client *http.Client

	mu       sync.Mutex
	locks    map[string]*sync.RWMutex
	metadata map[string]map[string]string
}

// NewStore creates a store for the Qdrant server at cfg.URL.
func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant url is required", domain.ErrInvalidInput)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:      strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		locks:    make(map[string]*sync.RWMutex),
		metadata: make(map[string]map[string]string),
	}, nil
}

// PointID maps a chunk id to its deterministic Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("bilgi:"+chunkID)).String()
}

// ListCollections returns the remote collections plus any opened locally
// that have not received their first insert yet.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	set := make(map[string]bool)
	for _, c := range resp.Collections {
		set[c.Name] = true
	}
	s.mu.Lock()
	for name := range s.metadata {
		set[name] = true
	}
	s.mu.Unlock()

	names := slices.Collect(maps.Keys(set))
	sort.Strings(names)
	return names, nil
}

// GetOrCreateCollection returns a handle on a collection.
func (s *Store) GetOrCreateCollection(
	_ context.Context, name string, metadata map[string]string,
) (driven.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.metadata[name]
	if !ok {
		meta = maps.Clone(metadata)
		if meta == nil {
			meta = map[string]string{}
		}
		s.metadata[name] = meta
	}
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[name] = lock
	}

	return &collection{store: s, name: name, metadata: maps.Clone(meta), lock: lock}, nil
}

// DeleteCollection drops a collection on the server.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	_, local := s.metadata[name]
	delete(s.metadata, name)
	s.mu.Unlock()

	info, err := s.collectionInfo(ctx, name)
	if err != nil {
		return err
	}
	if info == nil {
		if local {
			return nil
		}
		return domain.ErrNotFound
	}

	if err := s.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	return nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

type collectionInfo struct {
	Size int
}

// collectionInfo returns nil when the collection does not exist remotely.
func (s *Store) collectionInfo(ctx context.Context, name string) (*collectionInfo, error) {
	var resp struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", name, err)
	}
	return &collectionInfo{Size: resp.Config.Params.Vectors.Size}, nil
}

func (s *Store) createCollection(ctx context.Context, name string, size int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), body, nil); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// APIError is a non-2xx response from Qdrant.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("qdrant returned %d", e.StatusCode)
	}
	return fmt.Sprintf("qdrant returned %d: %s", e.StatusCode, e.Message)
}

// do sends a JSON request and decodes the "result" field of the response.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var envelope struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Status.Error}
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

// ==================== Collection ====================

type collection struct {
	store    *Store
	name     string
	metadata map[string]string
	lock     *sync.RWMutex
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type scoredPoint struct {
	point
	Score float64 `json:"score"`
}

func (c *collection) Name() string { return c.name }

func (c *collection) Metadata() map[string]string { return maps.Clone(c.metadata) }

func (c *collection) path(suffix string) string {
	return "/collections/" + url.PathEscape(c.name) + suffix
}

// Upsert inserts chunks whose IDs are not yet present in a single request.
func (c *collection) Upsert(ctx context.Context, chunks []domain.Chunk) (domain.UpsertResult, error) {
	var result domain.UpsertResult
	if len(chunks) == 0 {
		return result, nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	info, err := c.store.collectionInfo(ctx, c.name)
	if err != nil {
		return result, err
	}

	existing := map[string]bool{}
	dim := 0
	if info != nil {
		n, err := c.count(ctx)
		if err != nil {
			return result, err
		}
		if n > 0 {
			dim = info.Size
			ids := make([]string, len(chunks))
			for i, ch := range chunks {
				ids[i] = ch.ID
			}
			found, err := c.retrieve(ctx, ids, false)
			if err != nil {
				return result, err
			}
			for _, p := range found {
				existing[chunkIDOf(p.point)] = true
			}
		}
	}

	points := make([]point, 0, len(chunks))
	for _, ch := range chunks {
		if ch.ID == "" {
			return domain.UpsertResult{}, fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
		}
		if existing[ch.ID] {
			result.Skipped++
			continue
		}
		if len(ch.Embedding) == 0 {
			return domain.UpsertResult{}, fmt.Errorf("chunk %s: %w", ch.ID, domain.ErrEmptyEmbedding)
		}
		if dim == 0 {
			dim = len(ch.Embedding)
		} else if len(ch.Embedding) != dim {
			return domain.UpsertResult{}, fmt.Errorf("chunk %s has %d dimensions, collection %s has %d: %w",
				ch.ID, len(ch.Embedding), c.name, dim, domain.ErrDimensionMismatch)
		}
		existing[ch.ID] = true
		points = append(points, toPoint(ch))
	}

	if len(points) == 0 {
		return result, nil
	}

	// An empty collection takes the dimensionality of its next insert.
	if info == nil || info.Size != dim {
		if info != nil {
			if err := c.store.do(ctx, http.MethodDelete, c.path(""), nil, nil); err != nil {
				return domain.UpsertResult{}, fmt.Errorf("resetting collection %s: %w", c.name, err)
			}
		}
		if err := c.store.createCollection(ctx, c.name, dim); err != nil {
			return domain.UpsertResult{}, err
		}
	}

	body := map[string]any{"points": points}
	if err := c.store.do(ctx, http.MethodPut, c.path("/points?wait=true"), body, nil); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("upserting points: %w", err)
	}

	result.Inserted = len(points)
	return result, nil
}

// Get returns chunks selected by ID and metadata, ordered by ID.
func (c *collection) Get(ctx context.Context, q domain.GetQuery) ([]domain.Chunk, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	info, err := c.store.collectionInfo(ctx, c.name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return []domain.Chunk{}, nil
	}

	var points []scoredPoint
	if len(q.IDs) > 0 {
		points, err = c.retrieve(ctx, q.IDs, q.IncludeEmbeddings)
	} else {
		points, err = c.scroll(ctx, q.Where, q.IncludeEmbeddings)
	}
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(points))
	for _, p := range points {
		ch := fromPoint(p.point)
		if !q.Where.Matches(ch.Metadata) {
			continue
		}
		if !q.IncludeEmbeddings {
			ch.Embedding = nil
		}
		chunks = append(chunks, ch)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })

	if q.Offset > 0 {
		if q.Offset >= len(chunks) {
			return []domain.Chunk{}, nil
		}
		chunks = chunks[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(chunks) {
		chunks = chunks[:q.Limit]
	}
	return chunks, nil
}

// Delete removes chunks by ID.
func (c *collection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	info, err := c.store.collectionInfo(ctx, c.name)
	if err != nil || info == nil {
		return err
	}

	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = PointID(id)
	}
	body := map[string]any{"points": pointIDs}
	if err := c.store.do(ctx, http.MethodPost, c.path("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

// Query runs a cosine search on the server.
func (c *collection) Query(ctx context.Context, embedding []float32, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	info, err := c.store.collectionInfo(ctx, c.name)
	if err != nil || info == nil {
		return nil, err
	}
	n, err := c.count(ctx)
	if err != nil || n == 0 {
		return nil, err
	}
	if len(embedding) != info.Size {
		return nil, fmt.Errorf("query has %d dimensions, collection %s has %d: %w",
			len(embedding), c.name, info.Size, domain.ErrDimensionMismatch)
	}

	body := map[string]any{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
	}
	var hits []scoredPoint
	if err := c.store.do(ctx, http.MethodPost, c.path("/points/search"), body, &hits); err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.ScoredChunk{
			Chunk:      fromPoint(h.point),
			Collection: c.name,
			Score:      h.Score,
		})
	}
	return out, nil
}

// Count returns the exact number of points.
func (c *collection) Count(ctx context.Context) (int, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	info, err := c.store.collectionInfo(ctx, c.name)
	if err != nil || info == nil {
		return 0, err
	}
	return c.count(ctx)
}

// Dimension returns the configured vector size, or zero when empty.
func (c *collection) Dimension(ctx context.Context) (int, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	info, err := c.store.collectionInfo(ctx, c.name)
	if err != nil || info == nil {
		return 0, err
	}
	n, err := c.count(ctx)
	if err != nil || n == 0 {
		return 0, err
	}
	return info.Size, nil
}

func (c *collection) count(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	body := map[string]any{"exact": true}
	if err := c.store.do(ctx, http.MethodPost, c.path("/points/count"), body, &resp); err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return resp.Count, nil
}

func (c *collection) retrieve(ctx context.Context, ids []string, withVector bool) ([]scoredPoint, error) {
	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = PointID(id)
	}
	body := map[string]any{
		"ids":          pointIDs,
		"with_payload": true,
		"with_vector":  withVector,
	}
	var points []scoredPoint
	if err := c.store.do(ctx, http.MethodPost, c.path("/points"), body, &points); err != nil {
		return nil, fmt.Errorf("retrieving points: %w", err)
	}
	return points, nil
}

func (c *collection) scroll(ctx context.Context, where domain.MetadataFilter, withVector bool) ([]scoredPoint, error) {
	var all []scoredPoint
	var offset any
	for {
		body := map[string]any{
			"limit":        scrollPage,
			"with_payload": true,
			"with_vector":  withVector,
		}
		if f := filterFor(where); f != nil {
			body["filter"] = f
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Points         []scoredPoint `json:"points"`
			NextPageOffset any           `json:"next_page_offset"`
		}
		if err := c.store.do(ctx, http.MethodPost, c.path("/points/scroll"), body, &resp); err != nil {
			return nil, fmt.Errorf("scrolling points: %w", err)
		}
		all = append(all, resp.Points...)
		if resp.NextPageOffset == nil || len(resp.Points) == 0 {
			return all, nil
		}
		offset = resp.NextPageOffset
	}
}

// filterFor builds a Qdrant "must" filter from exact metadata matches.
func filterFor(where domain.MetadataFilter) map[string]any {
	var must []map[string]any
	add := func(key, value string) {
		if value != "" {
			must = append(must, map[string]any{"key": key, "match": map[string]any{"value": value}})
		}
	}
	add(domain.MetaSource, where.Source)
	add(domain.MetaType, string(where.Type))
	add(domain.MetaDepartment, where.Department)
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func toPoint(ch domain.Chunk) point {
	payload := ch.Metadata.ToMap()
	payload[payloadChunkID] = ch.ID
	payload[payloadDocument] = ch.Text
	return point{ID: PointID(ch.ID), Vector: ch.Embedding, Payload: payload}
}

func chunkIDOf(p point) string {
	id, _ := p.Payload[payloadChunkID].(string)
	return id
}

func fromPoint(p point) domain.Chunk {
	payload := maps.Clone(p.Payload)
	id := chunkIDOf(p)
	text, _ := payload[payloadDocument].(string)
	delete(payload, payloadChunkID)
	delete(payload, payloadDocument)
	return domain.Chunk{
		ID:        id,
		Text:      text,
		Embedding: p.Vector,
		Metadata:  domain.MetadataFromMap(payload),
	}
}
