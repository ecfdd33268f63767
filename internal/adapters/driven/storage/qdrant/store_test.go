package qdrant

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/storagetest"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// fakeQdrant is an in-process stand-in for the subset of the Qdrant REST API
// the adapter uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	apiKey      string
}

type fakeCollection struct {
	size   int
	points map[string]point
}

// sizeOf returns the vector size of a collection and whether it exists.
func (f *fakeQdrant) sizeOf(name string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[name]
	if !ok {
		return 0, false
	}
	return c.size, true
}

func (f *fakeQdrant) hasPoint(name, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[name]
	if !ok {
		return false
	}
	_, ok = c.points[id]
	return ok
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: make(map[string]*fakeCollection)}
}

func (f *fakeQdrant) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections", f.list)
	mux.HandleFunc("GET /collections/{name}", f.info)
	mux.HandleFunc("PUT /collections/{name}", f.create)
	mux.HandleFunc("DELETE /collections/{name}", f.drop)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsert)
	mux.HandleFunc("POST /collections/{name}/points", f.retrieve)
	mux.HandleFunc("POST /collections/{name}/points/scroll", f.scroll)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)
	mux.HandleFunc("POST /collections/{name}/points/count", f.count)
	mux.HandleFunc("POST /collections/{name}/points/delete", f.deletePoints)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		key := f.apiKey
		f.mu.Unlock()
		if key != "" && r.Header.Get("api-key") != key {
			reply(w, http.StatusForbidden, nil, "bad api key")
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func reply(w http.ResponseWriter, status int, result any, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"result": result, "status": "ok", "time": 0.001}
	if errMsg != "" {
		body["status"] = map[string]any{"error": errMsg}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeQdrant) get(w http.ResponseWriter, r *http.Request) (*fakeCollection, bool) {
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		reply(w, http.StatusNotFound, nil, "Collection not found")
	}
	return c, ok
}

func (f *fakeQdrant) list(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cols []map[string]string
	for name := range f.collections {
		cols = append(cols, map[string]string{"name": name})
	}
	reply(w, http.StatusOK, map[string]any{"collections": cols}, "")
}

func (f *fakeQdrant) info(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.get(w, r)
	if !ok {
		return
	}
	reply(w, http.StatusOK, map[string]any{
		"status": "green",
		"config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"size": c.size, "distance": "Cosine"},
		}},
	}, "")
}

func (f *fakeQdrant) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Vectors struct {
			Size int `json:"size"`
		} `json:"vectors"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.PathValue("name")
	if _, ok := f.collections[name]; ok {
		reply(w, http.StatusConflict, nil, "Collection already exists")
		return
	}
	f.collections[name] = &fakeCollection{size: body.Vectors.Size, points: map[string]point{}}
	reply(w, http.StatusOK, true, "")
}

func (f *fakeQdrant) drop(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.PathValue("name")
	_, ok := f.collections[name]
	delete(f.collections, name)
	reply(w, http.StatusOK, ok, "")
}

func (f *fakeQdrant) upsert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Points []point `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		reply(w, http.StatusBadRequest, nil, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.get(w, r)
	if !ok {
		return
	}
	for _, p := range body.Points {
		if len(p.Vector) != c.size {
			reply(w, http.StatusBadRequest, nil, "Wrong input: Vector dimension error")
			return
		}
	}
	for _, p := range body.Points {
		c.points[p.ID] = p
	}
	reply(w, http.StatusOK, map[string]any{"status": "completed"}, "")
}

func shape(p point, withVector bool) point {
	if !withVector {
		p.Vector = nil
	}
	return p
}

func (f *fakeQdrant) retrieve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs        []string `json:"ids"`
		WithVector bool     `json:"with_vector"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.get(w, r)
	if !ok {
		return
	}
	out := []point{}
	for _, id := range body.IDs {
		if p, ok := c.points[id]; ok {
			out = append(out, shape(p, body.WithVector))
		}
	}
	reply(w, http.StatusOK, out, "")
}

func matches(p point, filter map[string]any) bool {
	must, _ := filter["must"].([]any)
	for _, m := range must {
		cond := m.(map[string]any)
		key := cond["key"].(string)
		want := cond["match"].(map[string]any)["value"]
		if p.Payload[key] != want {
			return false
		}
	}
	return true
}

func (f *fakeQdrant) scroll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Limit      int            `json:"limit"`
		Offset     *string        `json:"offset"`
		Filter     map[string]any `json:"filter"`
		WithVector bool           `json:"with_vector"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.get(w, r)
	if !ok {
		return
	}

	var ids []string
	for id, p := range c.points {
		if matches(p, body.Filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	start := 0
	if body.Offset != nil {
		start = sort.SearchStrings(ids, *body.Offset)
	}
	end := min(start+body.Limit, len(ids))

	out := []point{}
	for _, id := range ids[start:end] {
		out = append(out, shape(c.points[id], body.WithVector))
	}
	var next any
	if end < len(ids) {
		next = ids[end]
	}
	reply(w, http.StatusOK, map[string]any{"points": out, "next_page_offset": next}, "")
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Vector []float32 `json:"vector"`
		Limit  int       `json:"limit"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.get(w, r)
	if !ok {
		return
	}

	var hits []scoredPoint
	for _, p := range c.points {
		hits = append(hits, scoredPoint{point: shape(p, false), Score: cosine(body.Vector, p.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > body.Limit {
		hits = hits[:body.Limit]
	}

	out := make([]map[string]any, len(hits))
	for i, h := range hits {
		out[i] = map[string]any{"id": h.ID, "score": h.Score, "payload": h.Payload, "version": 0}
	}
	reply(w, http.StatusOK, out, "")
}

func (f *fakeQdrant) count(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.get(w, r)
	if !ok {
		return
	}
	reply(w, http.StatusOK, map[string]any{"count": len(c.points)}, "")
}

func (f *fakeQdrant) deletePoints(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Points []string `json:"points"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.get(w, r)
	if !ok {
		return
	}
	for _, id := range body.Points {
		delete(c.points, id)
	}
	reply(w, http.StatusOK, map[string]any{"status": "completed"}, "")
}

func newTestStore(t *testing.T) (*Store, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	store, err := NewStore(Config{URL: srv.URL + "/"})
	require.NoError(t, err)
	return store, fake
}

func TestStore_Suite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) driven.VectorStore {
		store, _ := newTestStore(t)
		return store
	})
}

func TestNewStore_RequiresURL(t *testing.T) {
	_, err := NewStore(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("a.pdf_0"), PointID("a.pdf_0"))
	assert.NotEqual(t, PointID("a.pdf_0"), PointID("a.pdf_1"))
	assert.Len(t, PointID("a.pdf_0"), 36)
}

func TestStore_SendsAPIKey(t *testing.T) {
	fake := newFakeQdrant()
	fake.apiKey = "gizli"
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	ctx := context.Background()

	bad, err := NewStore(Config{URL: srv.URL})
	require.NoError(t, err)
	_, err = bad.ListCollections(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "bad api key")

	good, err := NewStore(Config{URL: srv.URL, APIKey: "gizli"})
	require.NoError(t, err)
	_, err = good.ListCollections(ctx)
	assert.NoError(t, err)
}

func TestCollection_CreatedLazilyWithVectorSize(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	c, err := store.GetOrCreateCollection(ctx, "docs", nil)
	require.NoError(t, err)
	_, exists := fake.sizeOf("docs")
	assert.False(t, exists)

	_, err = c.Upsert(ctx, []domain.Chunk{storagetest.NewChunk("a.pdf", 0, 1, 2, 3, 4)})
	require.NoError(t, err)

	size, exists := fake.sizeOf("docs")
	require.True(t, exists)
	assert.Equal(t, 4, size)
	assert.True(t, fake.hasPoint("docs", PointID("a.pdf_0")))
}

func TestCollection_EmptiedCollectionTakesNewSize(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	c, err := store.GetOrCreateCollection(ctx, "docs", nil)
	require.NoError(t, err)
	_, err = c.Upsert(ctx, []domain.Chunk{storagetest.NewChunk("a.pdf", 0, 1, 2, 3)})
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, []string{"a.pdf_0"}))

	_, err = c.Upsert(ctx, []domain.Chunk{storagetest.NewChunk("b.pdf", 0, 1, 2)})
	require.NoError(t, err)
	size, _ := fake.sizeOf("docs")
	assert.Equal(t, 2, size)
}

func TestCollection_ScrollPagesThroughLargeCollections(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	c, err := store.GetOrCreateCollection(ctx, "docs", nil)
	require.NoError(t, err)

	chunks := make([]domain.Chunk, scrollPage+10)
	for i := range chunks {
		chunks[i] = storagetest.NewChunk("büyük.pdf", i, 1, float32(i))
	}
	_, err = c.Upsert(ctx, chunks)
	require.NoError(t, err)

	got, err := c.Get(ctx, domain.GetQuery{Where: domain.MetadataFilter{Source: "büyük.pdf"}})
	require.NoError(t, err)
	assert.Len(t, got, scrollPage+10)
}

func TestFilterFor(t *testing.T) {
	assert.Nil(t, filterFor(domain.MetadataFilter{}))

	f := filterFor(domain.MetadataFilter{Source: "a.pdf", Department: "İK"})
	must := f["must"].([]map[string]any)
	require.Len(t, must, 2)
	assert.Equal(t, "source", must[0]["key"])
	assert.Equal(t, "department", must[1]["key"])
}
