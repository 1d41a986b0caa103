// Package stub provides offline stand-ins for the live search, embedding and
// image generation collaborators. They are selected at composition time when
// the corresponding API key is not configured.
package stub

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lelook/backend/internal/domain"
)

type catalogItem struct {
	title        string
	brand        string
	description  string
	category     domain.Category
	price        float64 // 0 means unknown
	oldPrice     float64
	seller       string
	rating       float64
	reviews      int
	freeShipping bool
}

var catalog = []catalogItem{
	{"Robe midi rouge en satin", "Zara", "Robe midi fluide, bretelles fines", domain.CategoryClothing, 49.95, 69.95, "Zara", 4.4, 312, true},
	{"Red wrap dress", "Mango", "Midi wrap dress with short sleeves", domain.CategoryClothing, 59.99, 0, "Mango", 4.1, 128, false},
	{"Robe longue fleurie", "Sézane", "Robe longue en viscose imprimée", domain.CategoryClothing, 145, 0, "Sézane", 4.7, 89, true},
	{"Jean droit taille haute", "Levi's", "Jean 501 coupe droite, denim brut", domain.CategoryClothing, 110, 0, "Galeries Lafayette", 4.6, 1540, false},
	{"Veste en laine camel", "COS", "Manteau croisé en laine mélangée", domain.CategoryClothing, 225, 290, "COS", 4.3, 57, true},
	{"Baskets blanches en cuir", "Veja", "Sneakers V-10 en cuir blanc", domain.CategoryClothing, 150, 0, "Veja", 4.5, 2210, true},
	{"T-shirt col rond en coton bio", "Uniqlo", "T-shirt basique blanc", domain.CategoryClothing, 14.9, 0, "Uniqlo", 0, 0, false},
	{"Canapé 3 places en velours vert", "Maisons du Monde", "Canapé droit velours, pieds en métal doré", domain.CategoryFurniture, 899, 1099, "Maisons du Monde", 4.2, 410, true},
	{"Fauteuil scandinave en chêne", "La Redoute Intérieurs", "Fauteuil lounge tissu bouclette", domain.CategoryFurniture, 349, 0, "La Redoute", 4.0, 96, false},
	{"Table basse ronde en marbre", "Westwing", "Plateau marbre blanc, piètement laiton", domain.CategoryFurniture, 459, 0, "Westwing", 4.6, 33, true},
	{"Lampe de sol arc noire", "IKEA", "Lampadaire arc réglable", domain.CategoryFurniture, 79.99, 0, "IKEA", 3.9, 1020, false},
	{"Bibliothèque étagère en pin", "Conforama", "Étagère 5 niveaux", domain.CategoryFurniture, 0, 0, "Conforama", 3.5, 12, false},
	{"iPhone 16 128 Go noir", "Apple", "Smartphone 6,1 pouces, puce A18", domain.CategoryPhone, 969, 0, "Fnac", 4.8, 5120, true},
	{"Samsung Galaxy S25 256 Go", "Samsung", "Smartphone Android 6,2 pouces", domain.CategoryPhone, 899, 959, "Boulanger", 4.6, 880, true},
	{"Google Pixel 9a", "Google", "Smartphone Android, appareil photo 48 Mpx", domain.CategoryPhone, 499, 0, "Darty", 4.5, 402, false},
	{"Coque iPhone 16 transparente", "Spigen", "Coque antichoc MagSafe", domain.CategoryPhone, 19.99, 24.99, "Amazon", 4.4, 9001, true},
	{"Sac cabas en cuir camel", "Polène", "Sac à main en cuir grainé", domain.CategoryOther, 390, 0, "Polène", 4.8, 240, true},
	{"Montre automatique acier", "Seiko", "Montre Presage, bracelet cuir", domain.CategoryOther, 520, 0, "Bijourama", 4.7, 75, true},
}

func (c catalogItem) matches(f domain.SearchFilters) bool {
	if f.Category != "" && c.category != f.Category {
		return false
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		if c.price == 0 {
			return false
		}
		if f.MinPrice != nil && c.price < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && c.price > *f.MaxPrice {
			return false
		}
	}
	if f.FreeShipping != nil && *f.FreeShipping && !c.freeShipping {
		return false
	}
	if f.OnSale != nil && *f.OnSale && c.oldPrice <= c.price {
		return false
	}
	return true
}

func (c catalogItem) document() string {
	return strings.Join([]string{c.title, c.brand, string(c.category), c.description, c.seller}, " ")
}

// raw renders the item in the shape of a Google Shopping result
func (c catalogItem) raw() domain.RawResult {
	slug := url.PathEscape(strings.ToLower(strings.ReplaceAll(c.title, " ", "-")))
	raw := domain.RawResult{
		"title":       c.title,
		"source":      c.seller,
		"brand":       c.brand,
		"description": c.description,
		"category":    string(c.category),
		"link":        "https://shop.example.com/" + slug,
		"thumbnail":   "https://placehold.co/600x800/png?text=" + url.QueryEscape(c.title),
	}
	if c.price > 0 {
		raw["price"] = fmt.Sprintf("%.2f €", c.price)
		raw["extracted_price"] = c.price
	}
	if c.oldPrice > c.price {
		raw["extracted_old_price"] = c.oldPrice
	}
	if c.rating > 0 {
		raw["rating"] = c.rating
		raw["reviews"] = c.reviews
	}
	if c.freeShipping {
		raw["delivery"] = "Livraison gratuite"
	}
	return raw
}

// CatalogSearcher answers live searches from a small built-in catalog. It implements domain.ProductSearcher.
type CatalogSearcher struct {
	logger *zap.Logger
}

// NewCatalogSearcher creates a CatalogSearcher
func NewCatalogSearcher(logger *zap.Logger) *CatalogSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogSearcher{logger: logger.Named("stub.search")}
}

// Search returns catalog items matching every filter, most relevant first, at most params.Limit.
// Items with no token overlap are dropped unless the query names only a category.
func (s *CatalogSearcher) Search(ctx context.Context, params domain.SearchParams) ([]domain.RawResult, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	categoryOnly := params.Filters.Category != "" &&
		strings.EqualFold(strings.TrimSpace(params.Query), string(params.Filters.Category))

	type scored struct {
		item  catalogItem
		score float64
	}
	var hits []scored
	for _, item := range catalog {
		if !item.matches(params.Filters) {
			continue
		}
		score := relevance(params.Query, item.document())
		if score <= 0 && !categoryOnly {
			continue
		}
		hits = append(hits, scored{item, score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].item.title < hits[j].item.title
	})
	if params.Limit > 0 && len(hits) > params.Limit {
		hits = hits[:params.Limit]
	}

	results := make([]domain.RawResult, len(hits))
	for i, h := range hits {
		results[i] = h.item.raw()
	}
	s.logger.Debug("catalog search", zap.String("query", params.Query), zap.Int("results", len(results)))
	return results, nil
}
