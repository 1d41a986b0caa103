package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrUnparsableResult is returned when a raw search result has neither a title nor a link
	ErrUnparsableResult = errors.New("unparsable search result")

	// ErrMissingSelection is returned when try-on is requested without a prior ranked selection
	ErrMissingSelection = errors.New("no ranked product selected")

	// ErrSearchUnavailable is returned when the live product search fails
	ErrSearchUnavailable = errors.New("product search unavailable")

	// ErrStoreUnavailable is returned when the semantic store cannot be reached
	ErrStoreUnavailable = errors.New("semantic store unavailable")

	// ErrEmbeddingFailed is returned when an embedding cannot be computed
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrGenerationFailed is returned when the image generation call fails or returns no image
	ErrGenerationFailed = errors.New("image generation failed")

	// ErrImageUnavailable is returned when an input image cannot be resolved
	ErrImageUnavailable = errors.New("image could not be resolved")

	// ErrStorageFailed is returned when an artifact cannot be persisted
	ErrStorageFailed = errors.New("artifact storage failed")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrProductNotFound is returned when a product id is unknown to the store
	ErrProductNotFound = errors.New("product not found")

	// ErrAlertNotFound is returned when no price alert exists for a product
	ErrAlertNotFound = errors.New("price alert not found")
)
