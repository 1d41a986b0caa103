// Package gemini adapts the Google GenAI SDK to the embedding and image generation ports.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	defaultEmbeddingModel      = "gemini-embedding-001"
	defaultEmbeddingDimensions = 768
	defaultImageModel          = "gemini-2.5-flash-image"
)

// Config holds credentials and model choices shared by Embedder and ImageGenerator
type Config struct {
	APIKey              string
	BaseURL             string // overrides the API endpoint, used by tests
	EmbeddingModel      string
	EmbeddingDimensions int
	ImageModel          string
}

func (c *Config) applyDefaults() {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = defaultEmbeddingModel
	}
	if c.EmbeddingDimensions <= 0 {
		c.EmbeddingDimensions = defaultEmbeddingDimensions
	}
	if c.ImageModel == "" {
		c.ImageModel = defaultImageModel
	}
}

// NewClient creates a GenAI client for the Gemini API backend
func NewClient(ctx context.Context, config Config) (*genai.Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}
