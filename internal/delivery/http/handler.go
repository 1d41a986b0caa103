package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lelook/backend/internal/app"
	"github.com/lelook/backend/internal/domain"
	"github.com/lelook/backend/internal/usecase"
)

const (
	serviceName    = "lelook-backend"
	serviceVersion = "1.0.0"
)

// StatusReporter describes which collaborators back the running service
type StatusReporter interface {
	Status(ctx context.Context) app.Health
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	pipeline *usecase.Pipeline
	alerts   *usecase.AlertService
	status   StatusReporter
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(pipeline *usecase.Pipeline, alerts *usecase.AlertService, status StatusReporter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pipeline: pipeline, alerts: alerts, status: status, logger: logger.Named("handler")}
}

// SearchRequest is the body of POST /api/v1/products/search
type SearchRequest struct {
	Query        string   `json:"query"`
	Category     string   `json:"category"`
	MinPrice     *float64 `json:"min_price"`
	MaxPrice     *float64 `json:"max_price"`
	FreeShipping *bool    `json:"free_shipping"`
	OnSale       *bool    `json:"on_sale"`
	NumResults   int      `json:"num_results"`
	Mode         string   `json:"mode"`
}

// DiscoveryQuery converts the request into a discovery query
func (r SearchRequest) DiscoveryQuery() domain.DiscoveryQuery {
	filters := domain.SearchFilters{
		MinPrice:     r.MinPrice,
		MaxPrice:     r.MaxPrice,
		FreeShipping: r.FreeShipping,
		OnSale:       r.OnSale,
	}
	if c := strings.ToLower(strings.TrimSpace(r.Category)); c != "" {
		filters.Category = domain.Category(c)
	}
	return domain.DiscoveryQuery{
		Text:       r.Query,
		Filters:    filters,
		NumResults: r.NumResults,
		Mode:       domain.DiscoveryMode(strings.TrimSpace(r.Mode)),
	}
}

// CompareRequest is the body of POST /api/v1/products/compare
type CompareRequest struct {
	Products []domain.ProductRecord `json:"products" binding:"required"`
	TopN     int                    `json:"top_n"`
}

// AlertRequest is the body of POST /api/v1/alerts
type AlertRequest struct {
	ProductID    string  `json:"product_id" binding:"required"`
	TargetPrice  float64 `json:"target_price" binding:"required"`
	CurrentPrice float64 `json:"current_price"`
}

// HealthCheck returns the health status of the API and which collaborators are stubbed
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       serviceName,
		"version":       serviceVersion,
		"collaborators": h.status.Status(c.Request.Context()),
	})
}

// SearchProducts runs hybrid discovery
func (h *Handler) SearchProducts(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	products, err := h.pipeline.SearchProducts(c.Request.Context(), req.DiscoveryQuery())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

// CompareProducts ranks candidates and registers them for try-on
func (h *Handler) CompareProducts(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ranked, err := h.pipeline.CompareProducts(c.Request.Context(), req.Products, req.TopN)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"compared_products": ranked,
		"summary":           usecase.Summarize(ranked),
	})
}

// GetProduct returns a stored product by id
func (h *Handler) GetProduct(c *gin.Context) {
	product, err := h.pipeline.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// TryOn renders a preview for a ranked product. Failed try-ons answer 422 with the result body.
func (h *Handler) TryOn(c *gin.Context) {
	var req domain.TryOnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.pipeline.VirtualTryOn(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Status == domain.TryOnFailed {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

// TrackPrice creates or replaces the alert for a product
func (h *Handler) TrackPrice(c *gin.Context) {
	var req AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	alert, err := h.alerts.Track(c.Request.Context(), req.ProductID, req.TargetPrice, req.CurrentPrice)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ListAlerts returns every alert, newest first
func (h *Handler) ListAlerts(c *gin.Context) {
	alerts, err := h.alerts.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []domain.PriceAlert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnparsableResult),
		errors.Is(err, domain.ErrMissingSelection):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSearchUnavailable),
		errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, domain.ErrCacheUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
