package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lelook/backend/internal/domain"
)

const (
	defaultTryOnTimeout  = 90 * time.Second
	defaultRetryBackoff  = 750 * time.Millisecond
	defaultMaxImageBytes = 10 << 20
	defaultKeyPrefix     = "tryon"

	// generationAttempts is the first call plus exactly one retry
	generationAttempts = 2
)

// Human-readable reasons carried by failed results
const (
	ReasonMissingUserImage    = "missing user image"
	ReasonMissingProductImage = "missing product image"
	ReasonRenderFailed        = "image generation and fallback compositing both failed"
	ReasonStorageFailed       = "generated image could not be stored"
)

// tryOnState is a step of the try-on state machine, used for logging
type tryOnState string

const (
	statePending        tryOnState = "pending"
	stateImagesResolved tryOnState = "images_resolved"
	stateGenerated      tryOnState = "generated"
	stateFallback       tryOnState = "degraded_fallback"
	stateStored         tryOnState = "stored"
	stateSucceeded      tryOnState = "succeeded"
	stateFailed         tryOnState = "failed"
)

// TryOnConfig holds configuration for the try-on orchestrator
type TryOnConfig struct {
	Timeout       time.Duration
	RetryBackoff  time.Duration
	MaxImageBytes int64
	KeyPrefix     string
}

// TryOnService resolves input images, calls the image generator with one retry,
// falls back to local compositing and persists the artifact under a fresh key.
type TryOnService struct {
	generator  domain.ImageGenerator
	fetcher    domain.ImageFetcher
	compositor domain.Compositor
	storage    domain.ObjectStorage
	logger     *zap.Logger

	timeout       time.Duration
	retryBackoff  time.Duration
	maxImageBytes int64
	keyPrefix     string

	now   func() time.Time
	newID func() string
}

// NewTryOnService creates a new try-on orchestrator with dependencies
func NewTryOnService(
	generator domain.ImageGenerator,
	fetcher domain.ImageFetcher,
	compositor domain.Compositor,
	storage domain.ObjectStorage,
	logger *zap.Logger,
	config TryOnConfig,
) *TryOnService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTryOnTimeout
	}
	backoff := config.RetryBackoff
	if backoff < 0 {
		backoff = 0
	} else if backoff == 0 {
		backoff = defaultRetryBackoff
	}
	maxBytes := config.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	prefix := strings.Trim(config.KeyPrefix, "/")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &TryOnService{
		generator:     generator,
		fetcher:       fetcher,
		compositor:    compositor,
		storage:       storage,
		logger:        logger.Named("tryon"),
		timeout:       timeout,
		retryBackoff:  backoff,
		maxImageBytes: maxBytes,
		keyPrefix:     prefix,
		now:           time.Now,
		newID:         func() string { return uuid.NewString() },
	}
}

// TryOn runs the state machine Pending -> ImagesResolved -> Generated -> Stored -> Succeeded.
// It never returns an error: every failure exit is expressed in the result status.
func (s *TryOnService) TryOn(ctx context.Context, request domain.TryOnRequest) domain.TryOnResult {
	category := domain.CategoryClothing
	if strings.TrimSpace(string(request.Category)) != "" {
		category = domain.ParseCategory(string(request.Category))
	}
	logger := s.logger.With(zap.String("category", string(category)), zap.String("product_id", request.ProductID))
	logger.Debug("try-on state", zap.String("state", string(statePending)))

	if strings.TrimSpace(request.UserImage) == "" {
		return s.fail(logger, ReasonMissingUserImage)
	}
	if strings.TrimSpace(request.ProductImage) == "" {
		return s.fail(logger, ReasonMissingProductImage)
	}

	product, err := s.resolveImage(ctx, request.ProductImage)
	if err != nil {
		return s.fail(logger, fmt.Sprintf("could not resolve product image: %v", err))
	}
	user, err := s.resolveImage(ctx, request.UserImage)
	if err != nil {
		return s.fail(logger, fmt.Sprintf("could not resolve user image: %v", err))
	}
	logger.Debug("try-on state", zap.String("state", string(stateImagesResolved)))

	status := domain.TryOnSucceeded
	image, genErr := s.generate(ctx, domain.GenerationRequest{
		Product:     *product,
		User:        *user,
		Category:    category,
		Description: strings.TrimSpace(request.ProductDescription),
		Instruction: TryOnInstruction(category, request.ProductDescription),
	})
	if genErr != nil {
		logger.Warn("generation failed, compositing locally", zap.Error(genErr))
		status = domain.TryOnDegradedFallback

		image, err = s.compositor.Composite(ctx, *user, *product, category)
		if err != nil {
			logger.Error("fallback compositing failed", zap.Error(err))
			return s.fail(logger, ReasonRenderFailed)
		}
		logger.Debug("try-on state", zap.String("state", string(stateFallback)))
	} else {
		logger.Debug("try-on state", zap.String("state", string(stateGenerated)))
	}

	createdAt := s.now().UTC()
	key := s.storageKey(request, image.MIMEType, createdAt)
	url, err := s.storage.Put(ctx, key, image.Data, image.MIMEType)
	if err != nil {
		logger.Error("artifact upload failed", zap.String("key", key), zap.Error(err))
		return s.fail(logger, ReasonStorageFailed)
	}
	logger.Debug("try-on state", zap.String("state", string(stateStored)), zap.String("key", key))

	logger.Info("try-on complete",
		zap.String("state", string(stateSucceeded)),
		zap.String("status", string(status)),
		zap.String("image_reference", url),
	)
	return domain.TryOnResult{
		Status:         status,
		ImageReference: url,
		StorageKey:     key,
		CreatedAt:      createdAt,
	}
}

func (s *TryOnService) fail(logger *zap.Logger, reason string) domain.TryOnResult {
	logger.Warn("try-on failed", zap.String("state", string(stateFailed)), zap.String("reason", reason))
	return domain.TryOnResult{
		Status:    domain.TryOnFailed,
		Reason:    reason,
		CreatedAt: s.now().UTC(),
	}
}

// generate calls the generator at most twice with a fixed backoff, inside the overall timeout budget.
// Exhausting the budget ends the attempt loop immediately.
func (s *TryOnService) generate(ctx context.Context, request domain.GenerationRequest) (*domain.GeneratedImage, error) {
	if s.generator == nil {
		return nil, domain.ErrGenerationFailed
	}

	budgetCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= generationAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-budgetCtx.Done():
				return nil, fmt.Errorf("%w: budget exhausted before retry: %v", domain.ErrGenerationFailed, lastErr)
			case <-time.After(s.retryBackoff):
			}
		}

		image, err := s.generator.Generate(budgetCtx, request)
		if err == nil && image != nil && len(image.Data) > 0 {
			if image.MIMEType == "" {
				image.MIMEType = mimetype.Detect(image.Data).String()
			}
			return image, nil
		}
		if err == nil {
			err = errors.New("empty image returned")
		}
		lastErr = err
		s.logger.Warn("generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if budgetCtx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, lastErr)
}

// resolveImage classifies a reference as remote URL, data URI or bare base64 and loads its bytes
func (s *TryOnService) resolveImage(ctx context.Context, ref string) (*domain.ResolvedImage, error) {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)

	var resolved *domain.ResolvedImage
	switch {
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		if s.fetcher == nil {
			return nil, domain.ErrImageUnavailable
		}
		image, err := s.fetcher.Fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		resolved = image
		resolved.Origin = "remote"

	case strings.HasPrefix(lower, "data:"):
		image, err := decodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		resolved = image

	default:
		data, err := decodeBase64(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: not a URL, data URI or base64 payload", domain.ErrInvalidRequest)
		}
		resolved = &domain.ResolvedImage{Data: data, Origin: "inline"}
	}

	if int64(len(resolved.Data)) > s.maxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidRequest, s.maxImageBytes)
	}
	if len(resolved.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidRequest)
	}

	detected := mimetype.Detect(resolved.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, fmt.Errorf("%w: payload is %s, not an image", domain.ErrInvalidRequest, detected.String())
	}
	resolved.MIMEType = detected.String()
	return resolved, nil
}

// decodeDataURI parses "data:<mime>;base64,<payload>"
func decodeDataURI(ref string) (*domain.ResolvedImage, error) {
	header, payload, ok := strings.Cut(ref, ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URI", domain.ErrInvalidRequest)
	}
	if !strings.Contains(strings.ToLower(header), ";base64") {
		return nil, fmt.Errorf("%w: data URI must be base64 encoded", domain.ErrInvalidRequest)
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 in data URI", domain.ErrInvalidRequest)
	}
	mime := strings.TrimPrefix(strings.SplitN(header, ";", 2)[0], "data:")
	return &domain.ResolvedImage{Data: data, MIMEType: mime, Origin: "inline"}, nil
}

// decodeBase64 accepts standard and URL alphabets, padded or not
func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, errors.New("empty payload")
	}

	var lastErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(payload)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// storageKey is prefix/YYYY/MM/DD/<request hash>-<unix nanos>-<uuid><ext>; unique per generation
func (s *TryOnService) storageKey(request domain.TryOnRequest, mime string, at time.Time) string {
	sum := sha256.Sum256([]byte(request.ProductID + "\x1f" + request.ProductImage + "\x1f" + request.UserImage + "\x1f" + string(request.Category)))
	ext := ".png"
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	return fmt.Sprintf("%s/%s/%s-%d-%s%s",
		s.keyPrefix,
		at.Format("2006/01/02"),
		hex.EncodeToString(sum[:8]),
		at.UnixNano(),
		s.newID(),
		ext,
	)
}

// TryOnInstruction is the generation prompt for a category. Category only changes the wording.
func TryOnInstruction(category domain.Category, description string) string {
	var b strings.Builder
	switch category {
	case domain.CategoryClothing:
		b.WriteString("Generate a photorealistic image of the person in the second image wearing the garment shown in the first image. ")
		b.WriteString("Keep the person's face, body shape, pose and background unchanged; fit the garment naturally with realistic folds and lighting.")
	case domain.CategoryFurniture:
		b.WriteString("Generate a photorealistic image of the room in the second image with the furniture piece from the first image placed in it. ")
		b.WriteString("Respect the room's perspective, scale and lighting, and keep the rest of the room unchanged.")
	case domain.CategoryPhone:
		b.WriteString("Generate a photorealistic image of the person in the second image holding the phone shown in the first image. ")
		b.WriteString("Keep the person unchanged and render the device at a natural scale with consistent lighting.")
	default:
		b.WriteString("Generate a photorealistic image placing the product from the first image naturally into the scene of the second image. ")
		b.WriteString("Keep the scene unchanged and match its perspective, scale and lighting.")
	}
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString(" Product details: ")
		b.WriteString(d)
	}
	return b.String()
}
