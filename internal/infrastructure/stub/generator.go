package stub

import (
	"context"
	"fmt"

	"github.com/lelook/backend/internal/domain"
)

// UnavailableGenerator stands in for the image model when no API key is configured.
// Every call fails, so try-on always takes the local compositing path.
type UnavailableGenerator struct{}

// Generate always returns domain.ErrGenerationFailed
func (UnavailableGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GeneratedImage, error) {
	return nil, fmt.Errorf("%w: image model not configured", domain.ErrGenerationFailed)
}
