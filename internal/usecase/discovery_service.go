package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lelook/backend/internal/domain"
)

const (
	defaultNumResults      = 10
	defaultMaxResults      = 50
	defaultFetchMultiplier = 2
	defaultSearchCacheTTL  = 15 * time.Minute
	defaultUpsertTimeout   = 30 * time.Second

	// SourceLive marks records normalized from the live search
	SourceLive = "live"
	// SourceStore marks records read back from the semantic store
	SourceStore = "store"
)

// DiscoveryConfig holds configuration for the discovery service
type DiscoveryConfig struct {
	DefaultMode     domain.DiscoveryMode
	FetchMultiplier int
	MaxResults      int
	SearchCacheTTL  time.Duration
	UpsertTimeout   time.Duration
}

// DiscoveryService decides per request whether to read the semantic store, the live search
// or both, and merges the results into one deduplicated candidate set.
type DiscoveryService struct {
	store        *SemanticStore
	searcher     domain.ProductSearcher
	cache        domain.CacheRepository
	normalizer   *Normalizer
	preprocessor *QueryPreprocessor
	logger       *zap.Logger

	defaultMode     domain.DiscoveryMode
	fetchMultiplier int
	maxResults      int
	searchCacheTTL  time.Duration
	upsertTimeout   time.Duration

	// background tracks fire-and-forget work so Close can drain it.
	// mu orders Add against Close.
	mu         sync.Mutex
	background sync.WaitGroup
	closed     bool
}

// NewDiscoveryService creates a new discovery service with dependencies.
// cache may be nil to disable live result caching.
func NewDiscoveryService(
	store *SemanticStore,
	searcher domain.ProductSearcher,
	cache domain.CacheRepository,
	normalizer *Normalizer,
	logger *zap.Logger,
	config DiscoveryConfig,
) *DiscoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil, "")
	}

	mode := config.DefaultMode
	if _, ok := domain.ParseDiscoveryMode(string(mode)); !ok {
		mode = domain.ModeHybrid
	}
	multiplier := config.FetchMultiplier
	if multiplier < 1 {
		multiplier = defaultFetchMultiplier
	}
	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	searchTTL := config.SearchCacheTTL
	if searchTTL <= 0 {
		searchTTL = defaultSearchCacheTTL
	}
	upsertTimeout := config.UpsertTimeout
	if upsertTimeout <= 0 {
		upsertTimeout = defaultUpsertTimeout
	}

	return &DiscoveryService{
		store:           store,
		searcher:        searcher,
		cache:           cache,
		normalizer:      normalizer,
		preprocessor:    NewQueryPreprocessor(),
		logger:          logger.Named("discovery"),
		defaultMode:     mode,
		fetchMultiplier: multiplier,
		maxResults:      maxResults,
		searchCacheTTL:  searchTTL,
		upsertTimeout:   upsertTimeout,
	}
}

// liveOutcome is what the live path hands back to the merge step
type liveOutcome struct {
	records []domain.ProductRecord
	err     error
}

// Discover returns at most NumResults records satisfying every filter.
// Flow: store query -> live search when needed -> normalize -> dedup (store wins) -> async upsert -> merge.
// No results, or both sources unavailable, is an empty slice and a nil error. Only malformed input errors.
func (s *DiscoveryService) Discover(ctx context.Context, query domain.DiscoveryQuery) ([]domain.ProductRecord, error) {
	query, err := s.validate(query)
	if err != nil {
		return nil, err
	}

	text := s.preprocessor.Clean(query.Text)
	num := query.NumResults
	logger := s.logger.With(zap.String("query", text), zap.String("mode", string(query.Mode)), zap.Int("num_results", num))

	var (
		stored []domain.ProductRecord
		live   liveOutcome
	)

	switch query.Mode {
	case domain.ModeStoreOnly:
		stored = s.store.Query(ctx, text, query.Filters, num)
		if len(stored) >= num {
			logger.Debug("store satisfied request")
			return stored[:num], nil
		}
		live = s.searchLive(ctx, text, query.Filters, num)

	case domain.ModeLiveOnly:
		live = s.searchLive(ctx, text, query.Filters, num)

	case domain.ModeHybrid:
		liveCtx, cancelLive := context.WithCancel(ctx)
		defer cancelLive()

		liveCh := make(chan liveOutcome, 1)
		if s.track() {
			go func() {
				defer s.background.Done()
				liveCh <- s.searchLive(liveCtx, text, query.Filters, num)
			}()
		} else {
			liveCh <- s.searchLive(liveCtx, text, query.Filters, num)
		}

		stored = s.store.Query(ctx, text, query.Filters, num)
		if len(stored) >= num {
			// The live result, if it ever arrives, is discarded.
			cancelLive()
			logger.Debug("store satisfied request, live search short-circuited")
			return stored[:num], nil
		}
		live = <-liveCh
	}

	if live.err != nil {
		logger.Warn("live search unavailable", zap.Error(live.err))
	}

	fresh, refreshed := splitAgainstStore(stored, live.records)
	s.upsertAsync(append(append([]domain.ProductRecord{}, fresh...), refreshed...))

	merged := mergeCandidates(stored, fresh)
	if len(merged) > num {
		merged = merged[:num]
	}

	logger.Info("discovery complete",
		zap.Int("store_results", len(stored)),
		zap.Int("live_results", len(live.records)),
		zap.Int("returned", len(merged)),
	)
	return merged, nil
}

// validate applies defaults and rejects structurally invalid queries
func (s *DiscoveryService) validate(query domain.DiscoveryQuery) (domain.DiscoveryQuery, error) {
	query.Text = strings.TrimSpace(query.Text)
	if query.Text == "" && query.Filters.IsEmpty() {
		return query, fmt.Errorf("%w: query text or a filter is required", domain.ErrInvalidRequest)
	}
	if query.Filters.MinPrice != nil && query.Filters.MaxPrice != nil && *query.Filters.MinPrice > *query.Filters.MaxPrice {
		return query, fmt.Errorf("%w: min_price exceeds max_price", domain.ErrInvalidRequest)
	}
	if query.Filters.Category != "" && !query.Filters.Category.Valid() {
		return query, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidRequest, query.Filters.Category)
	}

	if query.Mode == "" {
		query.Mode = s.defaultMode
	} else if _, ok := domain.ParseDiscoveryMode(string(query.Mode)); !ok {
		return query, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidRequest, query.Mode)
	}

	if query.NumResults <= 0 {
		query.NumResults = defaultNumResults
	}
	if query.NumResults > s.maxResults {
		query.NumResults = s.maxResults
	}

	if query.Text == "" {
		query.Text = string(query.Filters.Category)
	}
	return query, nil
}

// searchLive fetches num x multiplier raw results (cached per query), normalizes them and applies filters
func (s *DiscoveryService) searchLive(ctx context.Context, text string, filters domain.SearchFilters, num int) liveOutcome {
	if s.searcher == nil {
		return liveOutcome{err: domain.ErrSearchUnavailable}
	}

	limit := num * s.fetchMultiplier
	raws, err := s.fetchRaw(ctx, text, filters, limit)
	if err != nil {
		return liveOutcome{err: err}
	}

	records, skipped := s.normalizer.NormalizeBatch(raws, SourceLive)
	if skipped > 0 {
		s.logger.Debug("skipped unparsable results", zap.Int("skipped", skipped))
	}

	kept := make([]domain.ProductRecord, 0, len(records))
	for i := range records {
		applyCategoryHint(&records[i], filters.Category)
		if filters.Matches(&records[i]) {
			kept = append(kept, records[i])
		}
	}
	return liveOutcome{records: kept}
}

// fetchRaw returns raw live results, reusing a cached response inside the freshness window
func (s *DiscoveryService) fetchRaw(ctx context.Context, text string, filters domain.SearchFilters, limit int) ([]domain.RawResult, error) {
	cacheKey := fmt.Sprintf("%s:%d", s.preprocessor.CacheKey("search", text, filters), limit)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			var raws []domain.RawResult
			if decodeCached(cached, &raws) == nil {
				s.logger.Debug("live search cache hit", zap.String("key", cacheKey))
				return raws, nil
			}
			if err := s.cache.Delete(ctx, cacheKey); err != nil {
				s.logger.Warn("failed to evict unreadable cache entry", zap.String("key", cacheKey), zap.Error(err))
			}
		}
	}

	raws, err := s.searcher.Search(ctx, domain.SearchParams{
		Query:   text,
		Filters: filters,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}

	if s.cache != nil && len(raws) > 0 {
		if err := s.cache.Set(ctx, cacheKey, raws, s.searchCacheTTL); err != nil {
			s.logger.Warn("failed to cache live results", zap.Error(err))
		}
	}
	return raws, nil
}

// applyCategoryHint assigns the requested category to live records that carried none
func applyCategoryHint(record *domain.ProductRecord, hint domain.Category) {
	if hint == "" || hint == domain.CategoryOther || record.Category != domain.CategoryOther {
		return
	}
	record.Category = hint
	if record.SourceLink == "" {
		record.ID = ProductID(record.Title, record.Seller, record.SourceLink, record.Category)
	}
}

// splitAgainstStore deduplicates the live batch. Records the store already returned come back in
// refreshed, carrying the stored vector when their embedding text is unchanged, so an upsert
// refreshes price and fetched_at without re-embedding. The rest are fresh.
func splitAgainstStore(stored, live []domain.ProductRecord) (fresh, refreshed []domain.ProductRecord) {
	storedByID := make(map[string]*domain.ProductRecord, len(stored))
	for i := range stored {
		storedByID[stored[i].ID] = &stored[i]
	}
	seen := make(map[string]bool, len(live))
	fresh = make([]domain.ProductRecord, 0, len(live))
	for _, r := range live {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if st, ok := storedByID[r.ID]; ok {
			if st.HasEmbedding() && EmbeddingText(st) == EmbeddingText(&r) {
				r.Embedding = st.Embedding
			}
			refreshed = append(refreshed, r)
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh, refreshed
}

// track registers one unit of background work, or reports false once Close has started
func (s *DiscoveryService) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.background.Add(1)
	return true
}

// upsertAsync persists records without blocking the response. Failures are logged and swallowed.
func (s *DiscoveryService) upsertAsync(records []domain.ProductRecord) {
	if len(records) == 0 || s.store == nil {
		return
	}
	if !s.track() {
		s.logger.Warn("discovery closed, dropping upsert", zap.Int("count", len(records)))
		return
	}

	batch := make([]domain.ProductRecord, len(records))
	copy(batch, records)

	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.upsertTimeout)
		defer cancel()

		if err := s.store.Upsert(ctx, batch); err != nil {
			s.logger.Warn("background upsert failed", zap.Int("count", len(batch)), zap.Error(err))
		}
	}()
}

// Close stops accepting background work and waits for in-flight upserts and live calls
func (s *DiscoveryService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.background.Wait()
}

// mergeCandidates combines store and live records, deduplicated by id with the store copy winning.
// Order: newest fetched_at first, store-origin first on equal timestamps, then id ascending.
func mergeCandidates(stored, live []domain.ProductRecord) []domain.ProductRecord {
	type candidate struct {
		record    domain.ProductRecord
		fromStore bool
	}

	seen := make(map[string]bool, len(stored)+len(live))
	candidates := make([]candidate, 0, len(stored)+len(live))
	for _, r := range stored {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		candidates = append(candidates, candidate{record: r, fromStore: true})
	}
	for _, r := range live {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		candidates = append(candidates, candidate{record: r})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.record.FetchedAt.Equal(b.record.FetchedAt) {
			return a.record.FetchedAt.After(b.record.FetchedAt)
		}
		if a.fromStore != b.fromStore {
			return a.fromStore
		}
		return a.record.ID < b.record.ID
	})

	merged := make([]domain.ProductRecord, len(candidates))
	for i, c := range candidates {
		merged[i] = c.record
	}
	return merged
}
