package usecase

import (
	"sort"

	"github.com/lelook/backend/internal/domain"
)

// Default signal weights
const (
	defaultPriceWeight        = 0.40
	defaultRatingWeight       = 0.30
	defaultAvailabilityWeight = 0.15
	defaultCompletenessWeight = 0.15
	defaultTopN               = 5
)

// Availability bonuses; together they saturate the signal at 1.0
const (
	onSaleBonus       = 0.5
	freeShippingBonus = 0.5
	noRatingsFallback = 0.5
	maxRating         = 5.0
)

// RankingWeights holds the weight of each normalized signal in the final score
type RankingWeights struct {
	Price        float64
	Rating       float64
	Availability float64
	Completeness float64
}

// DefaultRankingWeights returns price 0.4, rating 0.3, availability 0.15, completeness 0.15
func DefaultRankingWeights() RankingWeights {
	return RankingWeights{
		Price:        defaultPriceWeight,
		Rating:       defaultRatingWeight,
		Availability: defaultAvailabilityWeight,
		Completeness: defaultCompletenessWeight,
	}
}

func (w RankingWeights) valid() bool {
	if w.Price < 0 || w.Rating < 0 || w.Availability < 0 || w.Completeness < 0 {
		return false
	}
	return w.Price+w.Rating+w.Availability+w.Completeness > 0
}

// RankingConfig holds configuration for the ranking service
type RankingConfig struct {
	Weights RankingWeights
	TopN    int
}

// RankingService scores and orders candidate products.
// It keeps no state between calls: a ranking depends only on the batch it is given.
type RankingService struct {
	weights RankingWeights
	topN    int
}

// NewRankingService creates a new ranking service with the given configuration
func NewRankingService(config RankingConfig) *RankingService {
	weights := config.Weights
	if !weights.valid() {
		weights = DefaultRankingWeights()
	}

	topN := config.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	return &RankingService{
		weights: weights,
		topN:    topN,
	}
}

// batchStats are the per-batch reference values signals are normalized against
type batchStats struct {
	minPrice, maxPrice float64
	hasPrice           bool
	ratingFallback     float64
}

// Rank orders products by score and returns at most topN of them, ranked 1..N.
// A non-positive topN uses the configured default. Fewer inputs than topN are never padded.
func (s *RankingService) Rank(products []domain.ProductRecord, topN int) []domain.RankedProduct {
	if topN <= 0 {
		topN = s.topN
	}
	if len(products) == 0 {
		return []domain.RankedProduct{}
	}

	stats := computeBatchStats(products)

	ranked := make([]domain.RankedProduct, len(products))
	for i := range products {
		ranked[i] = domain.RankedProduct{
			ProductRecord: products[i],
			Score:         s.score(&products[i], stats),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return rankedBefore(&ranked[i], &ranked[j])
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// rankedBefore is the total order: score desc, reviews_count desc, id asc
func rankedBefore(a, b *domain.RankedProduct) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	ar, br := reviewsOrZero(a.ReviewsCount), reviewsOrZero(b.ReviewsCount)
	if ar != br {
		return ar > br
	}
	return a.ID < b.ID
}

// score combines the four signals with the configured weights
func (s *RankingService) score(p *domain.ProductRecord, stats batchStats) float64 {
	return s.weights.Price*priceSignal(p, stats) +
		s.weights.Rating*ratingSignal(p, stats) +
		s.weights.Availability*availabilitySignal(p) +
		s.weights.Completeness*completenessSignal(p)
}

func computeBatchStats(products []domain.ProductRecord) batchStats {
	stats := batchStats{ratingFallback: noRatingsFallback}

	var ratings []float64
	for i := range products {
		p := &products[i]
		if p.Price != nil {
			if !stats.hasPrice || *p.Price < stats.minPrice {
				stats.minPrice = *p.Price
			}
			if !stats.hasPrice || *p.Price > stats.maxPrice {
				stats.maxPrice = *p.Price
			}
			stats.hasPrice = true
		}
		if p.Rating != nil {
			ratings = append(ratings, clamp01(*p.Rating/maxRating))
		}
	}

	if len(ratings) > 0 {
		stats.ratingFallback = median(ratings)
	}
	return stats
}

// priceSignal is 1 for the cheapest and 0 for the most expensive; unknown price scores 0
func priceSignal(p *domain.ProductRecord, stats batchStats) float64 {
	if p.Price == nil || !stats.hasPrice {
		return 0
	}
	spread := stats.maxPrice - stats.minPrice
	if spread == 0 {
		return 1
	}
	return clamp01((stats.maxPrice - *p.Price) / spread)
}

// ratingSignal normalizes against 5; a missing rating takes the batch median
func ratingSignal(p *domain.ProductRecord, stats batchStats) float64 {
	if p.Rating == nil {
		return stats.ratingFallback
	}
	return clamp01(*p.Rating / maxRating)
}

func availabilitySignal(p *domain.ProductRecord) float64 {
	signal := 0.0
	if p.OnSale {
		signal += onSaleBonus
	}
	if p.FreeShipping {
		signal += freeShippingBonus
	}
	return clamp01(signal)
}

// completenessSignal is the fraction of card fields present: title, price, image, link, seller
func completenessSignal(p *domain.ProductRecord) float64 {
	present := 0
	if p.Title != "" {
		present++
	}
	if p.Price != nil {
		present++
	}
	if p.ImageURL != "" {
		present++
	}
	if p.SourceLink != "" {
		present++
	}
	if p.Seller != "" {
		present++
	}
	return float64(present) / 5.0
}

func reviewsOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
