package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lelook/backend/internal/domain"
)

// AlertService stores price alerts keyed by product id
type AlertService struct {
	repo   domain.AlertRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewAlertService creates a new alert service
func NewAlertService(repo domain.AlertRepository, logger *zap.Logger) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertService{repo: repo, logger: logger.Named("alerts"), now: time.Now}
}

// Track creates or overwrites the alert for a product. It is triggered once current <= target.
func (s *AlertService) Track(ctx context.Context, productID string, targetPrice, currentPrice float64) (*domain.PriceAlert, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product_id is required", domain.ErrInvalidRequest)
	}
	if targetPrice <= 0 {
		return nil, fmt.Errorf("%w: target_price must be positive", domain.ErrInvalidRequest)
	}
	if currentPrice < 0 {
		return nil, fmt.Errorf("%w: current_price must not be negative", domain.ErrInvalidRequest)
	}

	now := s.now().UTC()
	alert := &domain.PriceAlert{
		ProductID:    productID,
		TargetPrice:  targetPrice,
		CurrentPrice: currentPrice,
		Triggered:    currentPrice <= targetPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	existing, err := s.repo.Get(ctx, productID)
	switch {
	case err == nil:
		alert.CreatedAt = existing.CreatedAt
	case !errors.Is(err, domain.ErrAlertNotFound):
		return nil, err
	}

	if err := s.repo.Save(ctx, alert); err != nil {
		return nil, err
	}
	s.logger.Info("price alert saved",
		zap.String("product_id", productID),
		zap.Float64("target_price", targetPrice),
		zap.Bool("triggered", alert.Triggered),
	)
	return alert, nil
}

// List returns all alerts, newest first
func (s *AlertService) List(ctx context.Context) ([]domain.PriceAlert, error) {
	alerts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ProductID < alerts[j].ProductID
	})
	return alerts, nil
}
