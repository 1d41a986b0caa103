package stub

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lelook/backend/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"shirt", "pack"}, tokenize("Le T-shirt, 2 pack!"))
	assert.Equal(t, []string{"robe", "rouge", "été"}, tokenize("Une robe ROUGE pour l'été"))
	assert.Empty(t, tokenize("  the  a 123 "))
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"robe", "robe", 0},
		{"robe", "robes", 1},
		{"canapé", "canape", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRelevance(t *testing.T) {
	exact := relevance("robe rouge", "Robe midi rouge en satin")
	fuzzy := relevance("robes rouges", "Robe midi rouge en satin")
	partial := relevance("robe rouge", "Robe longue fleurie")
	none := relevance("robe rouge", "Canapé 3 places en velours vert")

	assert.Greater(t, exact, fuzzy, "exact hits outrank fuzzy ones")
	assert.Greater(t, fuzzy, partial)
	assert.Greater(t, partial, 0.0)
	assert.Equal(t, 0.0, none)
	assert.Equal(t, 0.0, relevance("", "anything"))
}

func TestCatalogSearcher(t *testing.T) {
	searcher := NewCatalogSearcher(zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("most relevant first", func(t *testing.T) {
		results, err := searcher.Search(ctx, domain.SearchParams{
			Query:   "robe rouge",
			Filters: domain.SearchFilters{Category: domain.CategoryClothing},
			Limit:   5,
		})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "Robe midi rouge en satin", results[0]["title"])
		assert.Equal(t, "clothing", results[0]["category"])
		assert.Equal(t, 49.95, results[0]["extracted_price"])
		assert.Equal(t, 69.95, results[0]["extracted_old_price"])
		assert.Equal(t, "Livraison gratuite", results[0]["delivery"])
	})

	t.Run("price bound", func(t *testing.T) {
		results, err := searcher.Search(ctx, domain.SearchParams{
			Query:   "robe",
			Filters: domain.SearchFilters{Category: domain.CategoryClothing, MaxPrice: ptr(100.0)},
			Limit:   10,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Robe midi rouge en satin", results[0]["title"])
	})

	t.Run("category-only query", func(t *testing.T) {
		results, err := searcher.Search(ctx, domain.SearchParams{
			Query:   "phone",
			Filters: domain.SearchFilters{Category: domain.CategoryPhone},
			Limit:   10,
		})
		require.NoError(t, err)
		assert.Len(t, results, 4)
	})

	t.Run("on sale", func(t *testing.T) {
		results, err := searcher.Search(ctx, domain.SearchParams{
			Query:   "iphone",
			Filters: domain.SearchFilters{OnSale: ptr(true)},
			Limit:   10,
		})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "Coque iPhone 16 transparente", results[0]["title"])
		for _, r := range results {
			assert.Contains(t, r, "extracted_old_price", "%v is not on sale", r["title"])
		}
	})

	t.Run("limit", func(t *testing.T) {
		results, err := searcher.Search(ctx, domain.SearchParams{
			Query:   "clothing",
			Filters: domain.SearchFilters{Category: domain.CategoryClothing},
			Limit:   2,
		})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("no match", func(t *testing.T) {
		results, err := searcher.Search(ctx, domain.SearchParams{Query: "zzzz qqqq", Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := searcher.Search(ctx, domain.SearchParams{Query: " "})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := searcher.Search(cctx, domain.SearchParams{Query: "robe"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(0)
	ctx := context.Background()
	assert.Equal(t, 256, e.Dimensions())

	vecs, err := e.EmbedBatch(ctx, []string{"red satin dress", "red dress", "oak coffee table", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	for _, v := range vecs {
		require.Len(t, v, 256)
		assert.InDelta(t, 1.0, math.Sqrt(cosine(v, v)), 1e-5)
	}
	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))

	again, err := e.Embed(ctx, "red satin dress")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again, "embedding must be deterministic")
}

func TestUnavailableGenerator(t *testing.T) {
	_, err := UnavailableGenerator{}.Generate(context.Background(), domain.GenerationRequest{})
	assert.True(t, errors.Is(err, domain.ErrGenerationFailed))
}
