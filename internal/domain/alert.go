package domain

import "time"

// PriceAlert tracks a target price for a product id issued by the normalizer
type PriceAlert struct {
	ProductID    string    `json:"product_id"`
	TargetPrice  float64   `json:"target_price"`
	CurrentPrice float64   `json:"current_price"`
	Triggered    bool      `json:"triggered"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
