package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ProductSearcher defines the interface for the external live product search
type ProductSearcher interface {
	Search(ctx context.Context, params SearchParams) ([]RawResult, error)
}

// Embedder maps text to a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// VectorIndex is the persistent similarity index behind the semantic store
type VectorIndex interface {
	Upsert(ctx context.Context, records []ProductRecord) error
	Search(ctx context.Context, query VectorQuery) ([]ScoredRecord, error)
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*ProductRecord, error)
}

// ImageGenerator composes the user and product images with a multimodal model
type ImageGenerator interface {
	Generate(ctx context.Context, request GenerationRequest) (*GeneratedImage, error)
}

// ImageFetcher downloads a remote image
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*ResolvedImage, error)
}

// Compositor produces a local best-effort composite when generation is unavailable
type Compositor interface {
	Composite(ctx context.Context, user, product ResolvedImage, category Category) (*GeneratedImage, error)
}

// ObjectStorage persists bytes under a key and returns a publicly resolvable URL
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// AlertRepository persists price alerts keyed by product id
type AlertRepository interface {
	Save(ctx context.Context, alert *PriceAlert) error
	Get(ctx context.Context, productID string) (*PriceAlert, error)
	List(ctx context.Context) ([]PriceAlert, error)
}
