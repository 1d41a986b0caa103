package usecase

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lelook/backend/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	mu        sync.Mutex
	data      map[string]interface{}
	getError  error
	setError  error
	getCalled int
	setCalled int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string]interface{}),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalled++
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalled++
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

// MockProductSearcher is a mock implementation of domain.ProductSearcher
type MockProductSearcher struct {
	mu          sync.Mutex
	results     []domain.RawResult
	searchError error
	delay       time.Duration
	calls       int
	lastParams  domain.SearchParams
}

func (m *MockProductSearcher) Search(ctx context.Context, params domain.SearchParams) ([]domain.RawResult, error) {
	m.mu.Lock()
	m.calls++
	m.lastParams = params
	delay, results, err := m.delay, m.results, m.searchError
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if params.Limit > 0 && len(results) > params.Limit {
		results = results[:params.Limit]
	}
	return results, nil
}

func (m *MockProductSearcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockEmbedder embeds text deterministically from its byte values
type MockEmbedder struct {
	mu         sync.Mutex
	embedError error
	embedCalls int
	batchCalls int
	batchTexts int
}

func (m *MockEmbedder) vector(text string) []float32 {
	v := make([]float32, 8)
	for i, b := range []byte(text) {
		v[i%8] += float32(b)
	}
	return v
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	if m.embedError != nil {
		return nil, m.embedError
	}
	return m.vector(text), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	m.batchTexts += len(texts)
	if m.embedError != nil {
		return nil, m.embedError
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int { return 8 }

// MockVectorIndex is an in-memory domain.VectorIndex with last-write-wins on fetched_at
type MockVectorIndex struct {
	mu          sync.Mutex
	records     map[string]domain.ProductRecord
	searchError error
	upsertError error
	upserts     int
	upserted    chan struct{}
}

func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{
		records:  make(map[string]domain.ProductRecord),
		upserted: make(chan struct{}, 16),
	}
}

func (m *MockVectorIndex) Upsert(ctx context.Context, records []domain.ProductRecord) error {
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		select {
		case m.upserted <- struct{}{}:
		default:
		}
	}()
	m.upserts++
	if m.upsertError != nil {
		return m.upsertError
	}
	for _, r := range records {
		if existing, ok := m.records[r.ID]; ok && existing.FetchedAt.After(r.FetchedAt) {
			continue
		}
		m.records[r.ID] = r
	}
	return nil
}

func (m *MockVectorIndex) Search(ctx context.Context, query domain.VectorQuery) ([]domain.ScoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchError != nil {
		return nil, m.searchError
	}
	var scored []domain.ScoredRecord
	for _, r := range m.records {
		if !query.Filters.Matches(&r) {
			continue
		}
		scored = append(scored, domain.ScoredRecord{Record: r, Similarity: cosine(query.Embedding, r.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Record.ID < scored[j].Record.ID
	})
	if query.Limit > 0 && len(scored) > query.Limit {
		scored = scored[:query.Limit]
	}
	return scored, nil
}

func (m *MockVectorIndex) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchError != nil {
		return false, m.searchError
	}
	_, ok := m.records[id]
	return ok, nil
}

func (m *MockVectorIndex) Get(ctx context.Context, id string) (*domain.ProductRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &r, nil
}

func (m *MockVectorIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MockVectorIndex) Record(id string) (domain.ProductRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	return r, ok
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
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

// MockImageGenerator fails the first failCount calls
type MockImageGenerator struct {
	mu        sync.Mutex
	failCount int
	failError error
	delay     time.Duration
	calls     int
	result    *domain.GeneratedImage
	lastReq   domain.GenerationRequest
}

func (m *MockImageGenerator) Generate(ctx context.Context, request domain.GenerationRequest) (*domain.GeneratedImage, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = request
	call := m.calls
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if call <= m.failCount {
		if m.failError != nil {
			return nil, m.failError
		}
		return nil, domain.ErrGenerationFailed
	}
	return m.result, nil
}

func (m *MockImageGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockImageFetcher serves images by URL
type MockImageFetcher struct {
	images     map[string][]byte
	fetchError error
	calls      int
}

func (m *MockImageFetcher) Fetch(ctx context.Context, url string) (*domain.ResolvedImage, error) {
	m.calls++
	if m.fetchError != nil {
		return nil, m.fetchError
	}
	data, ok := m.images[url]
	if !ok {
		return nil, domain.ErrImageUnavailable
	}
	return &domain.ResolvedImage{Data: data}, nil
}

// MockCompositor returns a fixed composite
type MockCompositor struct {
	result *domain.GeneratedImage
	err    error
	calls  int
}

func (m *MockCompositor) Composite(ctx context.Context, user, product domain.ResolvedImage, category domain.Category) (*domain.GeneratedImage, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// MockObjectStorage records uploaded objects
type MockObjectStorage struct {
	objects  map[string][]byte
	putError error
	keys     []string
}

func NewMockObjectStorage() *MockObjectStorage {
	return &MockObjectStorage{objects: make(map[string][]byte)}
}

func (m *MockObjectStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.putError != nil {
		return "", m.putError
	}
	m.objects[key] = data
	m.keys = append(m.keys, key)
	return "https://cdn.example.com/" + key, nil
}

// MockAlertRepository is an in-memory domain.AlertRepository
type MockAlertRepository struct {
	alerts    map[string]domain.PriceAlert
	saveError error
	listError error
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{alerts: make(map[string]domain.PriceAlert)}
}

func (m *MockAlertRepository) Save(ctx context.Context, alert *domain.PriceAlert) error {
	if m.saveError != nil {
		return m.saveError
	}
	m.alerts[alert.ProductID] = *alert
	return nil
}

func (m *MockAlertRepository) Get(ctx context.Context, productID string) (*domain.PriceAlert, error) {
	a, ok := m.alerts[productID]
	if !ok {
		return nil, domain.ErrAlertNotFound
	}
	return &a, nil
}

func (m *MockAlertRepository) List(ctx context.Context) ([]domain.PriceAlert, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	out := make([]domain.PriceAlert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, a)
	}
	return out, nil
}

// testPNG returns a small solid PNG
func testPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
