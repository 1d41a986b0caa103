package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lelook/backend/internal/domain"
)

// Field aliases seen across upstream result shapes, in priority order
var (
	titleFields       = []string{"title", "name"}
	priceFields       = []string{"extracted_price", "price"}
	oldPriceFields    = []string{"extracted_old_price", "old_price", "original_price"}
	imageFields       = []string{"image_url", "thumbnail", "image", "img_url", "photo"}
	linkFields        = []string{"source_link", "source_url", "link", "product_link"}
	sellerFields      = []string{"seller", "source", "store"}
	reviewsFields     = []string{"reviews_count", "reviews"}
	descriptionFields = []string{"description", "snippet"}
)

var (
	priceNumberRegex = regexp.MustCompile(`\d[\d\s.,']*`)
	saleMarkerRegex  = regexp.MustCompile(`(?i)\b(sale|promo|solde|soldes|discount|réduction|reduction|deal)\b|-\d+\s?%`)
	freeShipRegex    = regexp.MustCompile(`(?i)free\s+(shipping|delivery)|livraison\s+gratuite|gratuit`)
)

// trackingParams are query parameters that vary between fetches of the same product page
var trackingParams = []string{"srsltid", "gclid", "fbclid", "ved", "sa", "ei"}

var currencySymbols = []struct{ symbol, code string }{
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
	{"¥", "JPY"},
}

var currencyCodes = []string{"EUR", "USD", "GBP", "JPY", "CHF"}

// Normalizer converts heterogeneous upstream records into ProductRecords
type Normalizer struct {
	now             func() time.Time
	defaultCurrency string
}

// NewNormalizer creates a normalizer. now defaults to time.Now.
func NewNormalizer(now func() time.Time, defaultCurrency string) *Normalizer {
	if now == nil {
		now = time.Now
	}
	if defaultCurrency == "" {
		defaultCurrency = "EUR"
	}
	return &Normalizer{now: now, defaultCurrency: defaultCurrency}
}

// Normalize maps a raw result to the canonical record. Missing optional fields
// become nil/zero values; only a result lacking both title and link is rejected.
func (n *Normalizer) Normalize(raw domain.RawResult, source string) (domain.ProductRecord, error) {
	if raw == nil {
		return domain.ProductRecord{}, fmt.Errorf("%w: empty result", domain.ErrUnparsableResult)
	}

	title := strings.TrimSpace(firstString(raw, titleFields))
	link := strings.TrimSpace(firstString(raw, linkFields))
	if title == "" && link == "" {
		return domain.ProductRecord{}, fmt.Errorf("%w: missing title and link", domain.ErrUnparsableResult)
	}

	record := domain.ProductRecord{
		Title:       title,
		ImageURL:    strings.TrimSpace(firstString(raw, imageFields)),
		SourceLink:  link,
		Seller:      strings.TrimSpace(firstString(raw, sellerFields)),
		Brand:       strings.TrimSpace(stringField(raw, "brand")),
		Description: strings.TrimSpace(firstString(raw, descriptionFields)),
		Category:    domain.ParseCategory(stringField(raw, "category")),
		Source:      source,
		FetchedAt:   n.now().UTC(),
	}

	price, currency := n.extractPrice(raw)
	record.Price = price
	record.Currency = currency

	if rating, ok := numberField(raw, "rating"); ok && rating >= 0 {
		r := math.Min(rating, 5)
		record.Rating = &r
	}
	if reviews, ok := firstNumber(raw, reviewsFields); ok && reviews >= 0 && !math.IsInf(reviews, 1) {
		c := int(math.Min(reviews, math.MaxInt32))
		record.ReviewsCount = &c
	}

	record.OnSale = n.detectOnSale(raw, price)
	record.FreeShipping = detectFreeShipping(raw)
	record.ID = ProductID(record.Title, record.Seller, record.SourceLink, record.Category)

	return record, nil
}

// NormalizeBatch normalizes every result, skipping unparsable ones
func (n *Normalizer) NormalizeBatch(raws []domain.RawResult, source string) ([]domain.ProductRecord, int) {
	records := make([]domain.ProductRecord, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		record, err := n.Normalize(raw, source)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}

// EnsureIdentity fills ID, category and fetched_at on records supplied by callers
func (n *Normalizer) EnsureIdentity(record *domain.ProductRecord) {
	if !record.Category.Valid() {
		record.Category = domain.ParseCategory(string(record.Category))
	}
	if record.ID == "" {
		record.ID = ProductID(record.Title, record.Seller, record.SourceLink, record.Category)
	}
	if record.FetchedAt.IsZero() {
		record.FetchedAt = n.now().UTC()
	}
}

// ProductID derives the stable identifier from normalized title, seller and link.
// Without a link, category stands in for it.
func ProductID(title, seller, link string, category domain.Category) string {
	var parts []string
	if canonical := canonicalLink(link); canonical != "" {
		parts = []string{normalizeForCacheKey(title), normalizeForCacheKey(seller), canonical}
	} else {
		parts = []string{normalizeForCacheKey(title), normalizeForCacheKey(seller), string(category)}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

// canonicalLink lowercases scheme and host, drops tracking parameters, fragments and trailing slashes
func canonicalLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(link), "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	for _, key := range trackingParams {
		q.Del(key)
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

func (n *Normalizer) extractPrice(raw domain.RawResult) (*float64, string) {
	currency := strings.ToUpper(strings.TrimSpace(stringField(raw, "currency")))

	for _, field := range priceFields {
		value, ok := raw[field]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			price, symbolCurrency, ok := ParsePrice(v)
			if !ok {
				continue
			}
			if currency == "" {
				currency = symbolCurrency
			}
			return &price, n.currencyOrDefault(currency)
		default:
			if f, ok := toFloat(v); ok && f >= 0 {
				return &f, n.currencyOrDefault(currency)
			}
		}
	}
	return nil, n.currencyOrDefault(currency)
}

func (n *Normalizer) currencyOrDefault(currency string) string {
	if currency == "" {
		return n.defaultCurrency
	}
	return currency
}

// ParsePrice parses locale-formatted price strings such as "29,99 €", "$1,299.00" or "1.299,00 EUR".
// It returns the amount, the currency implied by a symbol (if any) and whether parsing succeeded.
func ParsePrice(s string) (float64, string, bool) {
	currency := ""
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			currency = cs.code
			break
		}
	}
	if currency == "" {
		upper := strings.ToUpper(s)
		for _, code := range currencyCodes {
			if strings.Contains(upper, code) {
				currency = code
				break
			}
		}
	}

	match := priceNumberRegex.FindString(s)
	if match == "" {
		return 0, currency, false
	}
	number := strings.NewReplacer(" ", "", "'", "", "\u00a0", "", "\u202f", "").Replace(strings.TrimSpace(match))
	number = strings.TrimRight(number, ".,")

	lastDot := strings.LastIndex(number, ".")
	lastComma := strings.LastIndex(number, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.299,00
			number = strings.ReplaceAll(number, ".", "")
			number = strings.Replace(number, ",", ".", 1)
		} else {
			// 1,299.00
			number = strings.ReplaceAll(number, ",", "")
		}
	case lastComma >= 0:
		// "29,99" is a decimal comma; "1,299" is a thousands separator
		if strings.Count(number, ",") == 1 && len(number)-lastComma-1 != 3 {
			number = strings.Replace(number, ",", ".", 1)
		} else {
			number = strings.ReplaceAll(number, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(number, ".") > 1 {
			number = strings.ReplaceAll(number, ".", "")
		}
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 {
		return 0, currency, false
	}
	return value, currency, true
}

func (n *Normalizer) detectOnSale(raw domain.RawResult, price *float64) bool {
	if v, ok := raw["on_sale"].(bool); ok {
		return v
	}
	if price != nil {
		for _, field := range oldPriceFields {
			value, ok := raw[field]
			if !ok || value == nil {
				continue
			}
			var old float64
			switch v := value.(type) {
			case string:
				parsed, _, ok := ParsePrice(v)
				if !ok {
					continue
				}
				old = parsed
			default:
				f, ok := toFloat(v)
				if !ok {
					continue
				}
				old = f
			}
			if old > *price {
				return true
			}
		}
	}
	for _, tag := range stringList(raw, "tag", "tags", "extensions") {
		if saleMarkerRegex.MatchString(tag) {
			return true
		}
	}
	return false
}

func detectFreeShipping(raw domain.RawResult) bool {
	if v, ok := raw["free_shipping"].(bool); ok {
		return v
	}
	if freeShipRegex.MatchString(stringField(raw, "delivery")) {
		return true
	}
	for _, tag := range stringList(raw, "tag", "tags", "extensions") {
		if freeShipRegex.MatchString(tag) {
			return true
		}
	}
	return false
}

func stringField(raw domain.RawResult, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func firstString(raw domain.RawResult, keys []string) string {
	for _, key := range keys {
		if s := strings.TrimSpace(stringField(raw, key)); s != "" {
			return s
		}
	}
	return ""
}

func numberField(raw domain.RawResult, key string) (float64, bool) {
	value, ok := raw[key]
	if !ok || value == nil {
		return 0, false
	}
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
		return f, err == nil
	}
	return toFloat(value)
}

func firstNumber(raw domain.RawResult, keys []string) (float64, bool) {
	for _, key := range keys {
		if f, ok := numberField(raw, key); ok {
			return f, true
		}
	}
	return 0, false
}

// stringList collects string values from fields that may hold a string, a comma list or an array
func stringList(raw domain.RawResult, keys ...string) []string {
	var out []string
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		case []string:
			out = append(out, v...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
