package serpapi

import (
	"strings"

	"github.com/lelook/backend/internal/domain"
)

// passthroughFields are the shopping_results keys the normalizer understands
var passthroughFields = []string{
	"title", "price", "extracted_price", "old_price", "extracted_old_price",
	"currency", "thumbnail", "link", "product_link", "source", "rating",
	"reviews", "snippet", "description", "brand", "delivery", "extensions",
	"product_id", "position",
}

// MapShoppingResults converts SerpAPI shopping results into raw results.
// The requested category is stamped on each result since Google Shopping does not return one.
func MapShoppingResults(items []map[string]any, category domain.Category) []domain.RawResult {
	results := make([]domain.RawResult, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		results = append(results, mapShoppingResult(item, category))
	}
	return results
}

func mapShoppingResult(item map[string]any, category domain.Category) domain.RawResult {
	raw := make(domain.RawResult, len(passthroughFields)+2)
	for _, key := range passthroughFields {
		if value, ok := item[key]; ok && value != nil {
			raw[key] = value
		}
	}

	if tag, ok := item["tag"].(string); ok && tag != "" {
		raw["tags"] = splitTags(tag)
	}
	if category != "" {
		raw["category"] = string(category)
	}
	return raw
}

// splitTags splits a comma separated tag string, dropping blanks
func splitTags(tag string) []string {
	parts := strings.Split(tag, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}
