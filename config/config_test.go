package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// isolate runs the test from an empty directory so no stray .env or config.yaml is picked up
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "LELOOK_") {
			key, _, _ := strings.Cut(kv, "=")
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		isolate(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if !cfg.IsDevelopment() {
			t.Errorf("Server.Environment = %s, want development", cfg.Server.Environment)
		}
		if cfg.SerpAPI.APIKey != "" {
			t.Errorf("SerpAPI.APIKey = %q, want empty (offline catalog)", cfg.SerpAPI.APIKey)
		}
		if cfg.SerpAPI.GoogleDomain != "google.fr" || cfg.SerpAPI.HL != "fr" {
			t.Errorf("SerpAPI locale = %s/%s, want google.fr/fr", cfg.SerpAPI.GoogleDomain, cfg.SerpAPI.HL)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.SearchTTL != 15*time.Minute {
			t.Errorf("Cache.SearchTTL = %v, want 15m", cfg.Cache.SearchTTL)
		}
		if cfg.Cache.SelectionTTL != 2*time.Hour {
			t.Errorf("Cache.SelectionTTL = %v, want 2h", cfg.Cache.SelectionTTL)
		}
		if cfg.Storage.Type != "filesystem" {
			t.Errorf("Storage.Type = %s, want filesystem", cfg.Storage.Type)
		}
		if cfg.Discovery.DefaultMode != "hybrid" || cfg.Discovery.FetchMultiplier != 2 {
			t.Errorf("Discovery = %+v", cfg.Discovery)
		}
		if cfg.Ranking.TopN != 5 {
			t.Errorf("Ranking.TopN = %d, want 5", cfg.Ranking.TopN)
		}
		w := cfg.Ranking.Weights
		if w.Price != 0.4 || w.Rating != 0.3 || w.Availability != 0.15 || w.Completeness != 0.15 {
			t.Errorf("Ranking.Weights = %+v", w)
		}
		if cfg.TryOn.Timeout != 90*time.Second || cfg.TryOn.RetryBackoff != 750*time.Millisecond {
			t.Errorf("TryOn = %+v", cfg.TryOn)
		}
		if cfg.TryOn.MaxImageBytes != 10<<20 {
			t.Errorf("TryOn.MaxImageBytes = %d", cfg.TryOn.MaxImageBytes)
		}
		if cfg.GenAI.EmbeddingDimensions != 768 {
			t.Errorf("GenAI.EmbeddingDimensions = %d", cfg.GenAI.EmbeddingDimensions)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		isolate(t)
		t.Setenv("LELOOK_SERVER_PORT", "9090")
		t.Setenv("LELOOK_SERVER_ENVIRONMENT", "production")
		t.Setenv("LELOOK_SERPAPI_API_KEY", "serp-key")
		t.Setenv("LELOOK_GENAI_API_KEY", "genai-key")
		t.Setenv("LELOOK_CACHE_TYPE", "redis")
		t.Setenv("LELOOK_CACHE_REDIS_URL", "redis://localhost:6379")
		t.Setenv("LELOOK_CACHE_SEARCH_TTL", "1h")
		t.Setenv("LELOOK_DISCOVERY_DEFAULT_MODE", "store_only")
		t.Setenv("LELOOK_RANKING_WEIGHTS_PRICE", "0.7")
		t.Setenv("LELOOK_TRYON_TIMEOUT", "30s")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.IsDevelopment() {
			t.Error("IsDevelopment() = true for production")
		}
		if cfg.SerpAPI.APIKey != "serp-key" {
			t.Errorf("SerpAPI.APIKey = %s, want serp-key", cfg.SerpAPI.APIKey)
		}
		if cfg.GenAI.APIKey != "genai-key" {
			t.Errorf("GenAI.APIKey = %s, want genai-key", cfg.GenAI.APIKey)
		}
		if cfg.Cache.Type != "redis" || cfg.Cache.RedisURL != "redis://localhost:6379" {
			t.Errorf("Cache = %+v", cfg.Cache)
		}
		if cfg.Cache.SearchTTL != time.Hour {
			t.Errorf("Cache.SearchTTL = %v, want 1h", cfg.Cache.SearchTTL)
		}
		if cfg.Discovery.DefaultMode != "store_only" {
			t.Errorf("Discovery.DefaultMode = %s", cfg.Discovery.DefaultMode)
		}
		if cfg.Ranking.Weights.Price != 0.7 {
			t.Errorf("Ranking.Weights.Price = %v, want 0.7", cfg.Ranking.Weights.Price)
		}
		if cfg.TryOn.Timeout != 30*time.Second {
			t.Errorf("TryOn.Timeout = %v, want 30s", cfg.TryOn.Timeout)
		}
	})

	t.Run("reads api keys from .env", func(t *testing.T) {
		isolate(t)
		if err := os.WriteFile(".env", []byte("LELOOK_SERPAPI_API_KEY=from-dotenv\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Unsetenv("LELOOK_SERPAPI_API_KEY") })

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.SerpAPI.APIKey != "from-dotenv" {
			t.Errorf("SerpAPI.APIKey = %q, want from-dotenv", cfg.SerpAPI.APIKey)
		}
	})

	t.Run("reads config.yaml", func(t *testing.T) {
		isolate(t)
		yaml := "ranking:\n  top_n: 3\nstorage:\n  type: minio\n  endpoint: minio:9000\n"
		if err := os.WriteFile("config.yaml", []byte(yaml), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Ranking.TopN != 3 {
			t.Errorf("Ranking.TopN = %d, want 3", cfg.Ranking.TopN)
		}
		if cfg.Storage.Type != "minio" || cfg.Storage.Bucket != "lelook-tryon" {
			t.Errorf("Storage = %+v", cfg.Storage)
		}
	})

	t.Run("fails validation for invalid cache type", func(t *testing.T) {
		isolate(t)
		t.Setenv("LELOOK_CACHE_TYPE", "invalid")

		if _, err := Load(); err == nil {
			t.Error("Load() error = nil, want error for invalid cache type")
		}
	})

	t.Run("fails validation when redis URL missing for redis cache", func(t *testing.T) {
		isolate(t)
		t.Setenv("LELOOK_CACHE_TYPE", "redis")

		if _, err := Load(); err == nil {
			t.Error("Load() error = nil, want error for missing Redis URL")
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("returns nil when .env file doesn't exist", func(t *testing.T) {
		t.Chdir(t.TempDir())

		if err := loadEnvFile(); err != nil {
			t.Errorf("loadEnvFile() error = %v, want nil when file doesn't exist", err)
		}
	})

	t.Run("loads variables and skips comments", func(t *testing.T) {
		t.Chdir(t.TempDir())

		envContent := `
# Comment line
TEST_VAR_1=value1

TEST_VAR_2=value2
# TEST_COMMENTED=should_not_load
`
		if err := os.WriteFile(".env", []byte(envContent), 0o644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}
		t.Cleanup(func() {
			os.Unsetenv("TEST_VAR_1")
			os.Unsetenv("TEST_VAR_2")
		})

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TEST_VAR_1") != "value1" {
			t.Errorf("TEST_VAR_1 = %s, want value1", os.Getenv("TEST_VAR_1"))
		}
		if os.Getenv("TEST_VAR_2") != "value2" {
			t.Errorf("TEST_VAR_2 = %s, want value2", os.Getenv("TEST_VAR_2"))
		}
		if os.Getenv("TEST_COMMENTED") != "" {
			t.Errorf("TEST_COMMENTED should not be loaded from comment")
		}
	})

	t.Run("doesn't override existing environment variables", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("TEST_OVERRIDE", "existing-value")

		if err := os.WriteFile(".env", []byte("TEST_OVERRIDE=new-value"), 0o644); err != nil {
			t.Fatalf("Failed to create test .env file: %v", err)
		}

		if err := loadEnvFile(); err != nil {
			t.Fatalf("loadEnvFile() error = %v, want nil", err)
		}

		if os.Getenv("TEST_OVERRIDE") != "existing-value" {
			t.Errorf("TEST_OVERRIDE = %s, want existing-value (should not override)", os.Getenv("TEST_OVERRIDE"))
		}
	})
}

func validConfig() *Config {
	return &Config{
		Cache:     CacheConfig{Type: "memory"},
		Storage:   StorageConfig{Type: "filesystem", Dir: "./artifacts"},
		Discovery: DiscoveryConfig{DefaultMode: "hybrid", FetchMultiplier: 2},
		Ranking: RankingConfig{
			TopN:    5,
			Weights: RankingWeights{Price: 0.4, Rating: 0.3, Availability: 0.15, Completeness: 0.15},
		},
		MCP: MCPConfig{Transport: "http"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"invalid cache type", func(c *Config) { c.Cache.Type = "invalid-type" }, true},
		{"redis with URL", func(c *Config) { c.Cache.Type = "redis"; c.Cache.RedisURL = "redis://localhost:6379" }, false},
		{"redis without URL", func(c *Config) { c.Cache.Type = "redis" }, true},
		{"minio without endpoint", func(c *Config) { c.Storage.Type = "minio" }, true},
		{"minio with endpoint", func(c *Config) {
			c.Storage.Type = "minio"
			c.Storage.Endpoint = "minio:9000"
			c.Storage.Bucket = "b"
		}, false},
		{"unknown storage", func(c *Config) { c.Storage.Type = "s3" }, true},
		{"filesystem without dir", func(c *Config) { c.Storage.Dir = "" }, true},
		{"unknown mode", func(c *Config) { c.Discovery.DefaultMode = "fast" }, true},
		{"multiplier below one", func(c *Config) { c.Discovery.FetchMultiplier = 0 }, true},
		{"negative weight", func(c *Config) { c.Ranking.Weights.Rating = -0.1 }, true},
		{"zero weights", func(c *Config) { c.Ranking.Weights = RankingWeights{} }, true},
		{"top n zero", func(c *Config) { c.Ranking.TopN = 0 }, true},
		{"unknown transport", func(c *Config) { c.MCP.Transport = "sse" }, true},
		{"missing api keys are fine", func(c *Config) { c.SerpAPI.APIKey = ""; c.GenAI.APIKey = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
