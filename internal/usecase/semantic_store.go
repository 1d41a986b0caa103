package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lelook/backend/internal/domain"
)

const (
	defaultEmbedBatchSize    = 32
	defaultEmbedConcurrency  = 4
	defaultQueryEmbeddingTTL = 24 * time.Hour
)

// SemanticStoreConfig holds configuration for the semantic store adapter
type SemanticStoreConfig struct {
	EmbedBatchSize    int
	EmbedConcurrency  int
	QueryEmbeddingTTL time.Duration
}

// SemanticStore owns the vector index: embedding, upsert, similarity query and existence checks.
// Store failures never surface to callers as errors on the read path.
type SemanticStore struct {
	index      domain.VectorIndex
	embedder   domain.Embedder
	cache      domain.CacheRepository
	logger     *zap.Logger
	batchSize  int
	concurrent int
	queryTTL   time.Duration
}

// NewSemanticStore creates a semantic store adapter. cache may be nil, in which case
// query embeddings are recomputed per call.
func NewSemanticStore(
	index domain.VectorIndex,
	embedder domain.Embedder,
	cache domain.CacheRepository,
	logger *zap.Logger,
	config SemanticStoreConfig,
) *SemanticStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := config.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	concurrent := config.EmbedConcurrency
	if concurrent <= 0 {
		concurrent = defaultEmbedConcurrency
	}
	queryTTL := config.QueryEmbeddingTTL
	if queryTTL <= 0 {
		queryTTL = defaultQueryEmbeddingTTL
	}

	return &SemanticStore{
		index:      index,
		embedder:   embedder,
		cache:      cache,
		logger:     logger.Named("semantic_store"),
		batchSize:  batchSize,
		concurrent: concurrent,
		queryTTL:   queryTTL,
	}
}

// Query returns up to topK records nearest to text that satisfy every filter.
// Similarity only orders records inside the filtered set. An unavailable store yields an empty result.
// Returned records are labelled SourceStore whatever source first produced them.
func (s *SemanticStore) Query(ctx context.Context, text string, filters domain.SearchFilters, topK int) []domain.ProductRecord {
	if topK <= 0 {
		return []domain.ProductRecord{}
	}

	embedding, err := s.queryEmbedding(ctx, text)
	if err != nil {
		s.logger.Warn("query embedding failed, skipping store", zap.String("query", text), zap.Error(err))
		return []domain.ProductRecord{}
	}

	scored, err := s.index.Search(ctx, domain.VectorQuery{
		Embedding: embedding,
		Filters:   filters,
		Limit:     topK,
	})
	if err != nil {
		s.logger.Warn("semantic store query failed", zap.String("query", text), zap.Error(err))
		return []domain.ProductRecord{}
	}

	records := make([]domain.ProductRecord, 0, len(scored))
	for _, sr := range scored {
		// The index applies filters too; re-check so a lax index cannot leak soft matches.
		if !filters.Matches(&sr.Record) {
			continue
		}
		record := sr.Record
		record.Source = SourceStore
		records = append(records, record)
		if len(records) == topK {
			break
		}
	}
	return records
}

// Upsert embeds records that do not carry an embedding yet and writes them to the index.
// An already indexed record whose embedding text is unchanged keeps its stored vector.
// Re-upserting an id overwrites it; the index keeps the most recent fetched_at.
// Records whose embedding cannot be computed are skipped and reported in the returned error.
func (s *SemanticStore) Upsert(ctx context.Context, records []domain.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	prepared := make([]domain.ProductRecord, len(records))
	copy(prepared, records)

	s.reuseStoredEmbeddings(ctx, prepared)
	embedErr := s.embedMissing(ctx, prepared)

	ready := prepared[:0]
	for _, r := range prepared {
		if r.HasEmbedding() {
			ready = append(ready, r)
		}
	}
	if len(ready) == 0 {
		return embedErr
	}

	if err := s.index.Upsert(ctx, ready); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	s.logger.Debug("upserted records", zap.Int("count", len(ready)), zap.Int("requested", len(records)))
	return embedErr
}

// Exists reports whether id is already indexed. An unavailable store reports false.
func (s *SemanticStore) Exists(ctx context.Context, id string) bool {
	ok, err := s.index.Exists(ctx, id)
	if err != nil {
		s.logger.Warn("semantic store exists check failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return ok
}

// Get returns a stored record by id
func (s *SemanticStore) Get(ctx context.Context, id string) (*domain.ProductRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.index.Get(ctx, id)
}

// reuseStoredEmbeddings copies the indexed vector onto records that would otherwise be re-embedded.
// Vectors from a different embedder (other dimensionality) are recomputed.
func (s *SemanticStore) reuseStoredEmbeddings(ctx context.Context, records []domain.ProductRecord) {
	for i := range records {
		r := &records[i]
		if r.HasEmbedding() || !s.Exists(ctx, r.ID) {
			continue
		}
		stored, err := s.index.Get(ctx, r.ID)
		if err != nil || len(stored.Embedding) != s.embedder.Dimensions() {
			continue
		}
		if EmbeddingText(stored) == EmbeddingText(r) {
			r.Embedding = stored.Embedding
		}
	}
}

// embedMissing fills Embedding in place for records lacking one, in bounded concurrent batches
func (s *SemanticStore) embedMissing(ctx context.Context, records []domain.ProductRecord) error {
	var pending []int
	for i := range records {
		if !records[i].HasEmbedding() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrent)

	failures := make(chan error, (len(pending)+s.batchSize-1)/s.batchSize)

	for start := 0; start < len(pending); start += s.batchSize {
		end := min(start+s.batchSize, len(pending))
		batch := pending[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, idx := range batch {
				texts[i] = EmbeddingText(&records[idx])
			}
			vectors, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				failures <- err
				return nil
			}
			if len(vectors) != len(batch) {
				failures <- fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
				return nil
			}
			for i, idx := range batch {
				records[idx].Embedding = vectors[i]
			}
			return nil
		})
	}
	_ = g.Wait()
	close(failures)

	var failed []error
	for err := range failures {
		failed = append(failed, err)
	}
	if len(failed) > 0 {
		s.logger.Warn("embedding failed for some records", zap.Int("failed_batches", len(failed)), zap.Error(failed[0]))
		return fmt.Errorf("%w: %v", domain.ErrEmbeddingFailed, failed[0])
	}
	return nil
}

// queryEmbedding embeds a query, reusing a cached vector for the same normalized text
func (s *SemanticStore) queryEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := "embedding:" + normalizeForCacheKey(text)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			var vector []float32
			if decodeCached(cached, &vector) == nil && len(vector) > 0 {
				return vector, nil
			}
		}
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailed, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, vector, s.queryTTL); err != nil {
			s.logger.Warn("failed to cache query embedding", zap.Error(err))
		}
	}
	return vector, nil
}

// EmbeddingText is the text a record's vector is computed from
func EmbeddingText(p *domain.ProductRecord) string {
	parts := make([]string, 0, 5)
	for _, s := range []string{p.Title, p.Brand, string(p.Category), p.Description, p.Seller} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " | ")
}

// decodeCached converts a cached value back into target. Cache backends return
// JSON-shaped values, so anything that is not already the target type goes through JSON.
func decodeCached(value interface{}, target interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
