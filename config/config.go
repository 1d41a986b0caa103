package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	SerpAPI   SerpAPIConfig   `mapstructure:"serpapi"`
	GenAI     GenAIConfig     `mapstructure:"genai"`
	Store     StoreConfig     `mapstructure:"store"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	TryOn     TryOnConfig     `mapstructure:"tryon"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port               string   `mapstructure:"port"`
	Environment        string   `mapstructure:"environment"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	PublicBaseURL      string   `mapstructure:"public_base_url"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
}

// SerpAPIConfig holds live product search configuration. An empty APIKey selects the offline catalog.
type SerpAPIConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Engine            string        `mapstructure:"engine"`
	GoogleDomain      string        `mapstructure:"google_domain"`
	HL                string        `mapstructure:"hl"`
	GL                string        `mapstructure:"gl"`
	Location          string        `mapstructure:"location"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// GenAIConfig holds embedding and image model configuration. An empty APIKey selects offline stand-ins.
type GenAIConfig struct {
	APIKey              string `mapstructure:"api_key"`
	EmbeddingModel      string `mapstructure:"embedding_model"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
	ImageModel          string `mapstructure:"image_model"`
}

// StoreConfig holds semantic store configuration
type StoreConfig struct {
	Path             string `mapstructure:"path"`
	EmbedBatchSize   int    `mapstructure:"embed_batch_size"`
	EmbedConcurrency int    `mapstructure:"embed_concurrency"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type         string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL     string        `mapstructure:"redis_url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	SearchTTL    time.Duration `mapstructure:"search_ttl"`
	SelectionTTL time.Duration `mapstructure:"selection_ttl"`
	EmbeddingTTL time.Duration `mapstructure:"embedding_ttl"`
}

// StorageConfig selects where try-on artifacts are written
type StorageConfig struct {
	Type          string `mapstructure:"type"` // "filesystem" or "minio"
	Dir           string `mapstructure:"dir"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// DiscoveryConfig tunes the hybrid discovery engine
type DiscoveryConfig struct {
	DefaultMode     string        `mapstructure:"default_mode"`
	FetchMultiplier int           `mapstructure:"fetch_multiplier"`
	MaxResults      int           `mapstructure:"max_results"`
	UpsertTimeout   time.Duration `mapstructure:"upsert_timeout"`
}

// RankingWeights are the relative weights of the ranking signals
type RankingWeights struct {
	Price        float64 `mapstructure:"price"`
	Rating       float64 `mapstructure:"rating"`
	Availability float64 `mapstructure:"availability"`
	Completeness float64 `mapstructure:"completeness"`
}

// RankingConfig tunes the comparison engine
type RankingConfig struct {
	TopN    int            `mapstructure:"top_n"`
	Weights RankingWeights `mapstructure:"weights"`
}

// TryOnConfig tunes the try-on orchestrator
type TryOnConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	MaxImageBytes int64         `mapstructure:"max_image_bytes"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// MCPConfig configures the tool server binary
type MCPConfig struct {
	Transport string `mapstructure:"transport"` // "http" or "stdio"
	Addr      string `mapstructure:"addr"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Load loads configuration from an optional .env file, environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/lelook/")

	// LELOOK_SERPAPI_API_KEY -> serpapi.api_key
	v.SetEnvPrefix("LELOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads ./.env into the process environment. A missing file is not an error
// and variables already set are never overridden.
func loadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values. Every key gets a default so
// AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.rate_limit_per_minute", 120)

	// Live search defaults
	v.SetDefault("serpapi.api_key", "")
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("serpapi.engine", "google_shopping")
	v.SetDefault("serpapi.google_domain", "google.fr")
	v.SetDefault("serpapi.hl", "fr")
	v.SetDefault("serpapi.gl", "fr")
	v.SetDefault("serpapi.location", "Paris, Ile-de-France, France")
	v.SetDefault("serpapi.requests_per_second", 1)
	v.SetDefault("serpapi.burst", 5)
	v.SetDefault("serpapi.timeout", "30s")

	// GenAI defaults
	v.SetDefault("genai.api_key", "")
	v.SetDefault("genai.embedding_model", "gemini-embedding-001")
	v.SetDefault("genai.embedding_dimensions", 768)
	v.SetDefault("genai.image_model", "gemini-2.5-flash-image")

	// Semantic store defaults
	v.SetDefault("store.path", "lelook.db")
	v.SetDefault("store.embed_batch_size", 32)
	v.SetDefault("store.embed_concurrency", 4)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "lelook:")
	v.SetDefault("cache.search_ttl", "15m")
	v.SetDefault("cache.selection_ttl", "2h")
	v.SetDefault("cache.embedding_ttl", "24h")

	// Artifact storage defaults
	v.SetDefault("storage.type", "filesystem")
	v.SetDefault("storage.dir", "./artifacts")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "lelook-tryon")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.public_base_url", "")

	// Discovery defaults
	v.SetDefault("discovery.default_mode", "hybrid")
	v.SetDefault("discovery.fetch_multiplier", 2)
	v.SetDefault("discovery.max_results", 50)
	v.SetDefault("discovery.upsert_timeout", "30s")

	// Ranking defaults
	v.SetDefault("ranking.top_n", 5)
	v.SetDefault("ranking.weights.price", 0.4)
	v.SetDefault("ranking.weights.rating", 0.3)
	v.SetDefault("ranking.weights.availability", 0.15)
	v.SetDefault("ranking.weights.completeness", 0.15)

	// Try-on defaults
	v.SetDefault("tryon.timeout", "90s")
	v.SetDefault("tryon.retry_backoff", "750ms")
	v.SetDefault("tryon.max_image_bytes", 10<<20)
	v.SetDefault("tryon.key_prefix", "tryon")

	// MCP defaults
	v.SetDefault("mcp.transport", "http")
	v.SetDefault("mcp.addr", ":8081")

	v.SetDefault("log.level", "info")
}

// validate validates the configuration. Missing API keys are not errors: they select offline stand-ins.
func validate(config *Config) error {
	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	switch config.Storage.Type {
	case "filesystem":
		if config.Storage.Dir == "" {
			return fmt.Errorf("storage dir is required when storage type is 'filesystem'")
		}
	case "minio":
		if config.Storage.Endpoint == "" || config.Storage.Bucket == "" {
			return fmt.Errorf("storage endpoint and bucket are required when storage type is 'minio'")
		}
	default:
		return fmt.Errorf("storage type must be 'filesystem' or 'minio', got: %s", config.Storage.Type)
	}

	switch config.Discovery.DefaultMode {
	case "store_only", "live_only", "hybrid":
	default:
		return fmt.Errorf("discovery mode must be 'store_only', 'live_only' or 'hybrid', got: %s", config.Discovery.DefaultMode)
	}

	if config.Discovery.FetchMultiplier < 1 {
		return fmt.Errorf("discovery fetch multiplier must be at least 1, got: %d", config.Discovery.FetchMultiplier)
	}

	w := config.Ranking.Weights
	if w.Price < 0 || w.Rating < 0 || w.Availability < 0 || w.Completeness < 0 {
		return fmt.Errorf("ranking weights must be non-negative")
	}
	if w.Price+w.Rating+w.Availability+w.Completeness <= 0 {
		return fmt.Errorf("ranking weights must have a positive sum")
	}

	if config.Ranking.TopN < 1 {
		return fmt.Errorf("ranking top_n must be at least 1, got: %d", config.Ranking.TopN)
	}

	switch config.MCP.Transport {
	case "http", "stdio":
	default:
		return fmt.Errorf("mcp transport must be 'http' or 'stdio', got: %s", config.MCP.Transport)
	}

	return nil
}
