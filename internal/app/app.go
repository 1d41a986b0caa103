// Package app wires configuration into the collaborators and use cases shared by
// the REST and MCP binaries. Collaborators whose credentials are missing are
// replaced by offline stand-ins so both binaries always start.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lelook/backend/config"
	"github.com/lelook/backend/internal/domain"
	"github.com/lelook/backend/internal/infrastructure/cache"
	"github.com/lelook/backend/internal/infrastructure/gemini"
	"github.com/lelook/backend/internal/infrastructure/imagesource"
	"github.com/lelook/backend/internal/infrastructure/imaging"
	"github.com/lelook/backend/internal/infrastructure/objectstore"
	"github.com/lelook/backend/internal/infrastructure/serpapi"
	"github.com/lelook/backend/internal/infrastructure/sqlite"
	"github.com/lelook/backend/internal/infrastructure/stub"
	"github.com/lelook/backend/internal/usecase"
)

const (
	// Live marks a collaborator backed by its real upstream
	Live = "live"
	// Stubbed marks an offline stand-in
	Stubbed = "stub"
)

// Health reports which implementation backs each collaborator
type Health struct {
	Search          string `json:"search"`
	Embeddings      string `json:"embeddings"`
	ImageGeneration string `json:"image_generation"`
	Cache           string `json:"cache"`
	Storage         string `json:"storage"`
	Store           string `json:"store"`
	// StoredProducts is -1 when the store cannot be counted
	StoredProducts int `json:"stored_products"`
}

// App holds the wired use cases
type App struct {
	Pipeline *usecase.Pipeline
	Alerts   *usecase.AlertService
	Health   Health

	// ArtifactsDir is set when try-on artifacts are written to the local filesystem
	ArtifactsDir string

	index   *sqlite.ProductIndex
	logger  *zap.Logger
	closers []func() error
}

// New builds every collaborator described by cfg. On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	db, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	a.closers = append(a.closers, db.Close)
	a.Health.Store = cfg.Store.Path

	cacheRepo, err := a.buildCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	searcher := a.buildSearcher(cfg.SerpAPI)
	embedder, generator, err := a.buildGenAI(ctx, cfg.GenAI)
	if err != nil {
		return nil, err
	}
	storage, err := a.buildStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	normalizer := usecase.NewNormalizer(nil, "EUR")

	a.index = sqlite.NewProductIndex(db)
	store := usecase.NewSemanticStore(
		a.index,
		embedder,
		cacheRepo,
		logger,
		usecase.SemanticStoreConfig{
			EmbedBatchSize:    cfg.Store.EmbedBatchSize,
			EmbedConcurrency:  cfg.Store.EmbedConcurrency,
			QueryEmbeddingTTL: cfg.Cache.EmbeddingTTL,
		},
	)

	discovery := usecase.NewDiscoveryService(store, searcher, cacheRepo, normalizer, logger, usecase.DiscoveryConfig{
		DefaultMode:     domain.DiscoveryMode(cfg.Discovery.DefaultMode),
		FetchMultiplier: cfg.Discovery.FetchMultiplier,
		MaxResults:      cfg.Discovery.MaxResults,
		SearchCacheTTL:  cfg.Cache.SearchTTL,
		UpsertTimeout:   cfg.Discovery.UpsertTimeout,
	})

	ranking := usecase.NewRankingService(usecase.RankingConfig{
		Weights: usecase.RankingWeights{
			Price:        cfg.Ranking.Weights.Price,
			Rating:       cfg.Ranking.Weights.Rating,
			Availability: cfg.Ranking.Weights.Availability,
			Completeness: cfg.Ranking.Weights.Completeness,
		},
		TopN: cfg.Ranking.TopN,
	})

	fetcher := imagesource.NewFetcher(imagesource.Config{
		MaxBytes: cfg.TryOn.MaxImageBytes,
		Timeout:  cfg.TryOn.Timeout,
	}, logger)

	tryOn := usecase.NewTryOnService(generator, fetcher, imaging.NewCompositor(), storage, logger, usecase.TryOnConfig{
		Timeout:       cfg.TryOn.Timeout,
		RetryBackoff:  cfg.TryOn.RetryBackoff,
		MaxImageBytes: cfg.TryOn.MaxImageBytes,
		KeyPrefix:     cfg.TryOn.KeyPrefix,
	})

	a.Pipeline = usecase.NewPipeline(discovery, ranking, tryOn, store, cacheRepo, normalizer, logger,
		usecase.PipelineConfig{SelectionTTL: cfg.Cache.SelectionTTL})
	a.Alerts = usecase.NewAlertService(sqlite.NewAlertRepository(db), logger)

	// Drain background upserts before the database closes.
	a.closers = append(a.closers, func() error {
		a.Pipeline.Close()
		return nil
	})

	logger.Info("collaborators wired",
		zap.String("search", a.Health.Search),
		zap.String("embeddings", a.Health.Embeddings),
		zap.String("image_generation", a.Health.ImageGeneration),
		zap.String("cache", a.Health.Cache),
		zap.String("storage", a.Health.Storage),
		zap.String("store", a.Health.Store),
	)
	return a, nil
}

func (a *App) buildCache(ctx context.Context, cfg config.CacheConfig) (domain.CacheRepository, error) {
	if cfg.Type == "redis" {
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{URL: cfg.RedisURL, KeyPrefix: cfg.KeyPrefix})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisCache.Close)
		a.Health.Cache = "redis"
		return redisCache, nil
	}

	memoryCache := cache.NewMemoryCache()
	a.closers = append(a.closers, memoryCache.Close)
	a.Health.Cache = "memory"
	return memoryCache, nil
}

func (a *App) buildSearcher(cfg config.SerpAPIConfig) domain.ProductSearcher {
	if strings.TrimSpace(cfg.APIKey) == "" {
		a.logger.Warn("serpapi.api_key not set, live search answers from the offline catalog")
		a.Health.Search = Stubbed
		return stub.NewCatalogSearcher(a.logger)
	}
	a.Health.Search = Live
	return serpapi.NewClient(serpapi.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Engine:            cfg.Engine,
		GoogleDomain:      cfg.GoogleDomain,
		HL:                cfg.HL,
		GL:                cfg.GL,
		Location:          cfg.Location,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Timeout:           cfg.Timeout,
	}, a.logger)
}

func (a *App) buildGenAI(ctx context.Context, cfg config.GenAIConfig) (domain.Embedder, domain.ImageGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		a.logger.Warn("genai.api_key not set, using hashing embeddings and local try-on compositing")
		a.Health.Embeddings = Stubbed
		a.Health.ImageGeneration = Stubbed
		return stub.NewHashingEmbedder(0), stub.UnavailableGenerator{}, nil
	}

	gc := gemini.Config{
		APIKey:              cfg.APIKey,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ImageModel:          cfg.ImageModel,
	}
	client, err := gemini.NewClient(ctx, gc)
	if err != nil {
		return nil, nil, err
	}
	a.Health.Embeddings = Live
	a.Health.ImageGeneration = Live
	return gemini.NewEmbedder(client, gc, a.logger), gemini.NewImageGenerator(client, gc, a.logger), nil
}

func (a *App) buildStorage(ctx context.Context, cfg *config.Config) (domain.ObjectStorage, error) {
	sc := cfg.Storage
	if sc.Type == "minio" {
		store, err := objectstore.NewMinioStore(ctx, objectstore.MinioConfig{
			Endpoint:      sc.Endpoint,
			AccessKey:     sc.AccessKey,
			SecretKey:     sc.SecretKey,
			Bucket:        sc.Bucket,
			UseSSL:        sc.UseSSL,
			PublicBaseURL: sc.PublicBaseURL,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
		}
		a.Health.Storage = "minio"
		return store, nil
	}

	publicURL := sc.PublicBaseURL
	if publicURL == "" {
		publicURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/artifacts"
	}
	store, err := objectstore.NewFilesystemStore(sc.Dir, publicURL)
	if err != nil {
		return nil, err
	}
	a.ArtifactsDir = store.Dir()
	a.Health.Storage = "filesystem"
	return store, nil
}

// Status returns the collaborator report with the current number of stored products
func (a *App) Status(ctx context.Context) Health {
	status := a.Health
	n, err := a.index.Count(ctx)
	if err != nil {
		a.logger.Warn("count stored products", zap.Error(err))
		n = -1
	}
	status.StoredProducts = n
	return status
}

// Close releases everything New opened, in reverse order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Shutdown closes the app within timeout, logging instead of returning errors
func (a *App) Shutdown(timeout time.Duration) {
	done := make(chan error, 1)
	go func() { done <- a.Close() }()
	select {
	case err := <-done:
		if err != nil {
			a.logger.Warn("shutdown finished with errors", zap.Error(err))
		}
	case <-time.After(timeout):
		a.logger.Warn("shutdown timed out", zap.Duration("timeout", timeout))
	}
}
