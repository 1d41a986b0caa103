package gemini

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/lelook/backend/internal/domain"
)

// ImageGenerator composes the user and product photos with a Gemini image model
type ImageGenerator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewImageGenerator wraps an existing GenAI client
func NewImageGenerator(client *genai.Client, config Config, logger *zap.Logger) *ImageGenerator {
	config.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageGenerator{
		client: client,
		model:  config.ImageModel,
		logger: logger.Named("gemini.image"),
	}
}

// Generate sends the instruction, the product image and then the user image in one user turn,
// and returns the first inline image.
// A response without an image part is an error.
func (g *ImageGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedImage, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(req.Instruction),
		genai.NewPartFromBytes(req.Product.Data, req.Product.MIMEType),
		genai.NewPartFromBytes(req.User.Data, req.User.MIMEType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return &domain.GeneratedImage{Data: part.InlineData.Data, MIMEType: mimeType}, nil
			}
			text.WriteString(part.Text)
		}
	}

	g.logger.Warn("no image in response",
		zap.String("category", string(req.Category)),
		zap.String("text", truncate(text.String(), 200)),
	)
	return nil, fmt.Errorf("%w: response contained no image", domain.ErrGenerationFailed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
