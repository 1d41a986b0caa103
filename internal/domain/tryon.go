package domain

import "time"

// TryOnStatus is the terminal outcome of a try-on call
type TryOnStatus string

const (
	TryOnSucceeded        TryOnStatus = "success"
	TryOnDegradedFallback TryOnStatus = "degraded-fallback"
	TryOnFailed           TryOnStatus = "failed"
)

// TryOnRequest asks for a preview of the user with a product.
// Images are remote URLs, data URIs or bare base64 payloads.
// ProductID names the ranked candidate the preview is for.
type TryOnRequest struct {
	ProductID          string   `json:"product_id,omitempty"`
	ProductImage       string   `json:"product_image"`
	UserImage          string   `json:"user_image"`
	Category           Category `json:"category"`
	ProductDescription string   `json:"product_description,omitempty"`
}

// TryOnResult always carries an image reference unless Status is TryOnFailed
type TryOnResult struct {
	Status         TryOnStatus `json:"status"`
	ImageReference string      `json:"image_reference,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	StorageKey     string      `json:"storage_key,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ResolvedImage is an input image normalized to bytes in memory
type ResolvedImage struct {
	Data     []byte
	MIMEType string
	Origin   string // "remote" or "inline"
}

// GenerationRequest is what the image generation collaborator receives
type GenerationRequest struct {
	Product     ResolvedImage
	User        ResolvedImage
	Category    Category
	Description string
	Instruction string
}

// GeneratedImage is the output of generation or local compositing
type GeneratedImage struct {
	Data     []byte
	MIMEType string
}
