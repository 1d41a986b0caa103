package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lelook/backend/internal/domain"
)

// Package-level compiled regex patterns for performance
var (
	nonAlphanumericRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	multipleSpacesRegex  = regexp.MustCompile(`\s+`)

	// Matches conversational lead-ins like "I'm looking for", "can you find me", "show me"
	leadInPattern = regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey)?[,!\s]*(?:i'?m|i am)?\s*(?:looking|searching|shopping)\s+for\s+|^\s*(?:can|could)\s+you\s+(?:please\s+)?(?:find|show|get)\s+(?:me\s+)?|^\s*(?:please\s+)?(?:find|show|get)\s+(?:me\s+)?|^\s*i\s+(?:want|need)\s+`)

	// Matches trailing politeness like "please", "thanks"
	trailingNoisePattern = regexp.MustCompile(`(?i)[,\s]*(?:please|thanks|thank you)[.!\s]*$`)
)

// QueryPreprocessor cleans shopping queries and derives cache keys from them
type QueryPreprocessor struct{}

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor() *QueryPreprocessor {
	return &QueryPreprocessor{}
}

// Clean strips conversational noise from a query while keeping its meaning.
// "I'm looking for a red dress, please" -> "a red dress"
func (p *QueryPreprocessor) Clean(query string) string {
	cleaned := leadInPattern.ReplaceAllString(query, "")
	cleaned = trailingNoisePattern.ReplaceAllString(cleaned, "")
	cleaned = multipleSpacesRegex.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return strings.TrimSpace(query)
	}
	return cleaned
}

// CacheKey builds a normalized cache key for a query and its structural filters.
// Format: "{prefix}:{normalized_query}:{category}:{min}:{max}:{free_shipping}:{on_sale}"
func (p *QueryPreprocessor) CacheKey(prefix, query string, filters domain.SearchFilters) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s:%s",
		prefix,
		normalizeForCacheKey(p.Clean(query)),
		filters.Category,
		formatOptionalFloat(filters.MinPrice),
		formatOptionalFloat(filters.MaxPrice),
		formatOptionalBool(filters.FreeShipping),
		formatOptionalBool(filters.OnSale),
	)
}

// normalizeForCacheKey normalizes a string for use as cache key component.
// Converts to lowercase, removes special characters, and trims whitespace.
func normalizeForCacheKey(s string) string {
	if s == "" {
		return ""
	}
	result := strings.ToLower(s)
	result = nonAlphanumericRegex.ReplaceAllString(result, " ")
	result = multipleSpacesRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}

func formatOptionalBool(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "1"
	}
	return "0"
}
