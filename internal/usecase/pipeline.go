package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lelook/backend/internal/domain"
)

const defaultSelectionTTL = 2 * time.Hour

// PipelineConfig holds configuration for the pipeline coordinator
type PipelineConfig struct {
	SelectionTTL time.Duration
}

// Pipeline sequences Search -> Compare -> Try-On. Compare registers its ranked candidates
// as the selection context; try-on is rejected for products that were never ranked.
type Pipeline struct {
	discovery    *DiscoveryService
	ranking      *RankingService
	tryOn        *TryOnService
	store        *SemanticStore
	selections   domain.CacheRepository
	normalizer   *Normalizer
	logger       *zap.Logger
	selectionTTL time.Duration
}

// NewPipeline creates the coordinator. selections holds the ranked-candidate context between calls.
func NewPipeline(
	discovery *DiscoveryService,
	ranking *RankingService,
	tryOn *TryOnService,
	store *SemanticStore,
	selections domain.CacheRepository,
	normalizer *Normalizer,
	logger *zap.Logger,
	config PipelineConfig,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil, "")
	}
	ttl := config.SelectionTTL
	if ttl <= 0 {
		ttl = defaultSelectionTTL
	}

	return &Pipeline{
		discovery:    discovery,
		ranking:      ranking,
		tryOn:        tryOn,
		store:        store,
		selections:   selections,
		normalizer:   normalizer,
		logger:       logger.Named("pipeline"),
		selectionTTL: ttl,
	}
}

// SearchProducts is step one: hybrid discovery
func (p *Pipeline) SearchProducts(ctx context.Context, query domain.DiscoveryQuery) ([]domain.ProductRecord, error) {
	return p.discovery.Discover(ctx, query)
}

// CompareProducts is step two: ranks candidates and records them as selectable for try-on
func (p *Pipeline) CompareProducts(ctx context.Context, products []domain.ProductRecord, topN int) ([]domain.RankedProduct, error) {
	candidates := make([]domain.ProductRecord, 0, len(products))
	for _, product := range products {
		if strings.TrimSpace(product.Title) == "" && strings.TrimSpace(product.SourceLink) == "" {
			return nil, fmt.Errorf("%w: every product needs a title or a link", domain.ErrInvalidRequest)
		}
		p.normalizer.EnsureIdentity(&product)
		candidates = append(candidates, product)
	}
	candidates = collapseByID(candidates)

	ranked := p.ranking.Rank(candidates, topN)
	p.registerSelections(ctx, ranked)
	return ranked, nil
}

// VirtualTryOn is step three. The product must come from a prior comparison; its stored
// image, description and category fill whatever the request leaves empty.
func (p *Pipeline) VirtualTryOn(ctx context.Context, request domain.TryOnRequest) (domain.TryOnResult, error) {
	selected, err := p.selection(ctx, request.ProductID)
	if err != nil {
		return domain.TryOnResult{}, err
	}

	if strings.TrimSpace(request.ProductImage) == "" {
		request.ProductImage = selected.ImageURL
	}
	if strings.TrimSpace(request.ProductDescription) == "" {
		request.ProductDescription = strings.TrimSpace(selected.Title + " " + selected.Description)
	}
	if strings.TrimSpace(string(request.Category)) == "" && selected.Category != domain.CategoryOther {
		request.Category = selected.Category
	}

	return p.tryOn.TryOn(ctx, request), nil
}

// GetProduct returns a record from the semantic store
func (p *Pipeline) GetProduct(ctx context.Context, id string) (*domain.ProductRecord, error) {
	if p.store == nil {
		return nil, domain.ErrStoreUnavailable
	}
	return p.store.Get(ctx, id)
}

// Close drains background discovery work
func (p *Pipeline) Close() {
	p.discovery.Close()
}

// collapseByID keeps one record per id, the most recently fetched, at the position of its first occurrence
func collapseByID(records []domain.ProductRecord) []domain.ProductRecord {
	index := make(map[string]int, len(records))
	out := make([]domain.ProductRecord, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.ID]; ok {
			if r.FetchedAt.After(out[i].FetchedAt) {
				out[i] = r
			}
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func selectionKey(id string) string {
	return "selection:" + id
}

func (p *Pipeline) registerSelections(ctx context.Context, ranked []domain.RankedProduct) {
	if p.selections == nil {
		return
	}
	for _, r := range ranked {
		if err := p.selections.Set(ctx, selectionKey(r.ID), r.ProductRecord, p.selectionTTL); err != nil {
			p.logger.Warn("failed to register selection", zap.String("product_id", r.ID), zap.Error(err))
		}
	}
}

func (p *Pipeline) selection(ctx context.Context, id string) (*domain.ProductRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: product_id is required; compare products first", domain.ErrMissingSelection)
	}
	if p.selections == nil {
		return nil, fmt.Errorf("%w: no selection context available", domain.ErrMissingSelection)
	}

	value, err := p.selections.Get(ctx, selectionKey(id))
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			p.logger.Warn("selection lookup failed", zap.String("product_id", id), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: product %s was not part of a comparison", domain.ErrMissingSelection, id)
	}

	var record domain.ProductRecord
	if err := decodeCached(value, &record); err != nil {
		return nil, fmt.Errorf("%w: selection for %s is unreadable", domain.ErrMissingSelection, id)
	}
	return &record, nil
}

// Summarize renders a short recommendation line for a ranking
func Summarize(ranked []domain.RankedProduct) string {
	if len(ranked) == 0 {
		return "No products to compare."
	}
	best := ranked[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Compared %d products. Best pick: %s", len(ranked), best.Title)
	if best.Price != nil {
		fmt.Fprintf(&b, " at %.2f %s", *best.Price, best.Currency)
	}
	if best.Seller != "" {
		fmt.Fprintf(&b, " from %s", best.Seller)
	}
	if best.Rating != nil {
		fmt.Fprintf(&b, " (rated %.1f/5)", *best.Rating)
	}
	b.WriteString(".")
	return b.String()
}
