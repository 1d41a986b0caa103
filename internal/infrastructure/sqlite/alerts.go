package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lelook/backend/internal/domain"
)

// AlertRepository implements domain.AlertRepository
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository wraps an opened database
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Save inserts or overwrites the alert for alert.ProductID
func (r *AlertRepository) Save(ctx context.Context, alert *domain.PriceAlert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_alerts (product_id, target_price, current_price, triggered, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			target_price = excluded.target_price,
			current_price = excluded.current_price,
			triggered = excluded.triggered,
			updated_at = excluded.updated_at`,
		alert.ProductID, alert.TargetPrice, alert.CurrentPrice, alert.Triggered,
		alert.CreatedAt.UnixNano(), alert.UpdatedAt.UnixNano(),
	)
	return err
}

// Get returns the alert for productID or domain.ErrAlertNotFound
func (r *AlertRepository) Get(ctx context.Context, productID string) (*domain.PriceAlert, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT product_id, target_price, current_price, triggered, created_at, updated_at
		FROM price_alerts WHERE product_id = ?`, productID)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAlertNotFound
	}
	return alert, err
}

// List returns every alert, newest first
func (r *AlertRepository) List(ctx context.Context) ([]domain.PriceAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, target_price, current_price, triggered, created_at, updated_at
		FROM price_alerts ORDER BY created_at DESC, product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []domain.PriceAlert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

func scanAlert(s scanner) (*domain.PriceAlert, error) {
	var (
		a                    domain.PriceAlert
		createdAt, updatedAt int64
	)
	if err := s.Scan(&a.ProductID, &a.TargetPrice, &a.CurrentPrice, &a.Triggered, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &a, nil
}
