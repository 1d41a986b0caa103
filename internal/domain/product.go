package domain

import (
	"strings"
	"time"
)

// Category is the product family a record belongs to. It drives try-on instructions.
type Category string

const (
	CategoryClothing  Category = "clothing"
	CategoryFurniture Category = "furniture"
	CategoryPhone     Category = "phone"
	CategoryOther     Category = "other"
)

// ParseCategory maps free-form input to a known category. Unknown values become CategoryOther.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryClothing:
		return CategoryClothing
	case CategoryFurniture:
		return CategoryFurniture
	case CategoryPhone:
		return CategoryPhone
	default:
		return CategoryOther
	}
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryClothing, CategoryFurniture, CategoryPhone, CategoryOther:
		return true
	}
	return false
}

// ProductRecord is the canonical shape every upstream product is normalized into
type ProductRecord struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Price        *float64  `json:"price"`
	Currency     string    `json:"currency,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	SourceLink   string    `json:"source_link,omitempty"`
	Seller       string    `json:"seller,omitempty"`
	Brand        string    `json:"brand,omitempty"`
	Description  string    `json:"description,omitempty"`
	Category     Category  `json:"category"`
	Rating       *float64  `json:"rating"`
	ReviewsCount *int      `json:"reviews_count"`
	OnSale       bool      `json:"on_sale"`
	FreeShipping bool      `json:"free_shipping"`
	Source       string    `json:"source,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`

	// Embedding is computed once before persistence and never serialized to clients.
	Embedding []float32 `json:"-"`
}

// HasEmbedding reports whether the record already carries a computed vector
func (p *ProductRecord) HasEmbedding() bool {
	return len(p.Embedding) > 0
}

// RankedProduct is a ProductRecord with its position in a bounded top-N
type RankedProduct struct {
	ProductRecord
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// RawResult is an upstream search result before normalization
type RawResult map[string]any

// SearchFilters are structural predicates applied as hard constraints
type SearchFilters struct {
	Category     Category `json:"category,omitempty"`
	MinPrice     *float64 `json:"min_price,omitempty"`
	MaxPrice     *float64 `json:"max_price,omitempty"`
	FreeShipping *bool    `json:"free_shipping,omitempty"`
	OnSale       *bool    `json:"on_sale,omitempty"`
}

// IsEmpty reports whether no predicate is set
func (f SearchFilters) IsEmpty() bool {
	return f.Category == "" && f.MinPrice == nil && f.MaxPrice == nil && f.FreeShipping == nil && f.OnSale == nil
}

// Matches reports whether a record satisfies every set predicate.
// A record with unknown price never satisfies a price bound.
func (f SearchFilters) Matches(p *ProductRecord) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		if p.Price == nil {
			return false
		}
		if f.MinPrice != nil && *p.Price < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && *p.Price > *f.MaxPrice {
			return false
		}
	}
	if f.FreeShipping != nil && *f.FreeShipping && !p.FreeShipping {
		return false
	}
	if f.OnSale != nil && *f.OnSale && !p.OnSale {
		return false
	}
	return true
}

// DiscoveryMode selects which sources the discovery engine consults
type DiscoveryMode string

const (
	ModeStoreOnly DiscoveryMode = "store_only"
	ModeLiveOnly  DiscoveryMode = "live_only"
	ModeHybrid    DiscoveryMode = "hybrid"
)

// ParseDiscoveryMode returns the mode named by s, or false if s is not a known mode
func ParseDiscoveryMode(s string) (DiscoveryMode, bool) {
	switch DiscoveryMode(s) {
	case ModeStoreOnly, ModeLiveOnly, ModeHybrid:
		return DiscoveryMode(s), true
	}
	return "", false
}

// DiscoveryQuery is a single discovery request
type DiscoveryQuery struct {
	Text       string        `json:"query"`
	Filters    SearchFilters `json:"filters"`
	NumResults int           `json:"num_results"`
	Mode       DiscoveryMode `json:"mode,omitempty"`
}

// SearchParams is what the live search collaborator receives
type SearchParams struct {
	Query   string
	Filters SearchFilters
	Limit   int
}

// VectorQuery is a nearest-neighbour lookup post-filtered by structural predicates
type VectorQuery struct {
	Embedding []float32
	Filters   SearchFilters
	Limit     int
}

// ScoredRecord is a record returned by the vector index with its similarity
type ScoredRecord struct {
	Record     ProductRecord
	Similarity float64
}
