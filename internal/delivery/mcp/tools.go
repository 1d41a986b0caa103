package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/lelook/backend/internal/domain"
	"github.com/lelook/backend/internal/usecase"
)

const defaultNumResults = 10

// Tools holds the handlers behind every registered tool
type Tools struct {
	pipeline *usecase.Pipeline
	alerts   *usecase.AlertService
	logger   *zap.Logger
}

// NewTools creates the tool handlers
func NewTools(pipeline *usecase.Pipeline, alerts *usecase.AlertService, logger *zap.Logger) *Tools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tools{pipeline: pipeline, alerts: alerts, logger: logger.Named("mcp")}
}

// Register adds every tool to s
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(shoppingAssistantTool(), t.ShoppingAssistant)
	s.AddTool(searchProductsTool(), t.SearchProducts)
	s.AddTool(compareProductsTool(), t.CompareProducts)
	s.AddTool(virtualTryOnTool(), t.VirtualTryOn)
	s.AddTool(trackPriceTool(), t.TrackPrice)
	s.AddTool(getAlertsTool(), t.GetAlerts)
}

func shoppingAssistantTool() mcpgo.Tool {
	return mcpgo.NewTool("shopping_assistant",
		mcpgo.WithDescription("Returns the mandatory Search -> Compare -> Try-On workflow. Call it before helping with a purchase."),
	)
}

func searchProductsTool() mcpgo.Tool {
	return mcpgo.NewTool("search_products",
		mcpgo.WithDescription("Search products in the semantic store and the live shopping search. Filters are hard constraints."),
		mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("What the user is looking for")),
		mcpgo.WithString("category",
			mcpgo.Description("Product family"),
			mcpgo.Enum(string(domain.CategoryClothing), string(domain.CategoryFurniture), string(domain.CategoryPhone), string(domain.CategoryOther)),
		),
		mcpgo.WithNumber("min_price", mcpgo.Description("Lowest acceptable price")),
		mcpgo.WithNumber("max_price", mcpgo.Description("Highest acceptable price")),
		mcpgo.WithBoolean("free_shipping", mcpgo.Description("Only products shipped for free")),
		mcpgo.WithBoolean("on_sale", mcpgo.Description("Only discounted products")),
		mcpgo.WithNumber("num_results", mcpgo.Description("Maximum number of products, default 10")),
		mcpgo.WithString("mode",
			mcpgo.Description("Sources to consult"),
			mcpgo.Enum(string(domain.ModeHybrid), string(domain.ModeStoreOnly), string(domain.ModeLiveOnly)),
		),
	)
}

func compareProductsTool() mcpgo.Tool {
	return mcpgo.NewTool("compare_products",
		mcpgo.WithDescription("Rank products returned by search_products and keep the best five. Ranked products become eligible for virtual_try_on."),
		mcpgo.WithArray("products",
			mcpgo.Required(),
			mcpgo.Description("Products exactly as returned by search_products"),
			mcpgo.Items(map[string]any{"type": "object"}),
		),
	)
}

func virtualTryOnTool() mcpgo.Tool {
	return mcpgo.NewTool("virtual_try_on",
		mcpgo.WithDescription("Render the user with a ranked product. Returns an image URL and a status: success, degraded-fallback or failed."),
		mcpgo.WithString("product_id", mcpgo.Required(), mcpgo.Description("id of a product returned by compare_products")),
		mcpgo.WithString("user_image", mcpgo.Required(), mcpgo.Description("User photo as URL, data URI or base64")),
		mcpgo.WithString("product_image", mcpgo.Description("Product photo; defaults to the ranked product's image")),
		mcpgo.WithString("category",
			mcpgo.Description("Drives the composition: worn, placed in a room, or held"),
			mcpgo.DefaultString(string(domain.CategoryClothing)),
			mcpgo.Enum(string(domain.CategoryClothing), string(domain.CategoryFurniture), string(domain.CategoryPhone), string(domain.CategoryOther)),
		),
		mcpgo.WithString("product_description", mcpgo.Description("Optional details for the image model")),
	)
}

func trackPriceTool() mcpgo.Tool {
	return mcpgo.NewTool("track_price",
		mcpgo.WithDescription("Create or replace a price alert for a product"),
		mcpgo.WithString("product_id", mcpgo.Required(), mcpgo.Description("Product id")),
		mcpgo.WithNumber("target_price", mcpgo.Required(), mcpgo.Description("Alert when the price reaches this value")),
		mcpgo.WithNumber("current_price", mcpgo.Required(), mcpgo.Description("Price observed now")),
	)
}

func getAlertsTool() mcpgo.Tool {
	return mcpgo.NewTool("get_alerts",
		mcpgo.WithDescription("List price alerts, newest first"),
	)
}

// ShoppingAssistant returns the workflow rules
func (t *Tools) ShoppingAssistant(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return mcpgo.NewToolResultText(WorkflowInstructions), nil
}

// SearchProducts runs hybrid discovery
func (t *Tools) SearchProducts(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args := request.GetArguments()

	query, err := request.RequireString("query")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	filters := domain.SearchFilters{}
	if c := strings.ToLower(strings.TrimSpace(request.GetString("category", ""))); c != "" {
		filters.Category = domain.Category(c)
	}
	if filters.MinPrice, err = optionalNumber(args, "min_price"); err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if filters.MaxPrice, err = optionalNumber(args, "max_price"); err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if filters.FreeShipping, err = optionalBool(args, "free_shipping"); err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if filters.OnSale, err = optionalBool(args, "on_sale"); err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	products, err := t.pipeline.SearchProducts(ctx, domain.DiscoveryQuery{
		Text:       query,
		Filters:    filters,
		NumResults: request.GetInt("num_results", defaultNumResults),
		Mode:       domain.DiscoveryMode(request.GetString("mode", "")),
	})
	if err != nil {
		return t.toolError("search_products", err), nil
	}
	if products == nil {
		products = []domain.ProductRecord{}
	}
	return jsonResult(map[string]any{"products": products, "count": len(products)})
}

// CompareProducts ranks candidates and registers them for try-on
func (t *Tools) CompareProducts(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	raw, ok := request.GetArguments()["products"]
	if !ok {
		return mcpgo.NewToolResultError("required argument \"products\" not found"), nil
	}
	products, err := decodeProducts(raw)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	ranked, err := t.pipeline.CompareProducts(ctx, products, 0)
	if err != nil {
		return t.toolError("compare_products", err), nil
	}
	if ranked == nil {
		ranked = []domain.RankedProduct{}
	}
	return jsonResult(map[string]any{
		"compared_products": ranked,
		"summary":           usecase.Summarize(ranked),
	})
}

// VirtualTryOn renders a preview. A failed try-on is a normal result carrying its reason.
func (t *Tools) VirtualTryOn(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	result, err := t.pipeline.VirtualTryOn(ctx, domain.TryOnRequest{
		ProductID:          request.GetString("product_id", ""),
		ProductImage:       request.GetString("product_image", ""),
		UserImage:          request.GetString("user_image", ""),
		Category:           domain.Category(request.GetString("category", "")),
		ProductDescription: request.GetString("product_description", ""),
	})
	if err != nil {
		return t.toolError("virtual_try_on", err), nil
	}
	return jsonResult(result)
}

// TrackPrice creates or replaces a price alert
func (t *Tools) TrackPrice(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	productID, err := request.RequireString("product_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	target, err := request.RequireFloat("target_price")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	current, err := request.RequireFloat("current_price")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	alert, err := t.alerts.Track(ctx, productID, target, current)
	if err != nil {
		return t.toolError("track_price", err), nil
	}
	return jsonResult(alert)
}

// GetAlerts lists price alerts
func (t *Tools) GetAlerts(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	alerts, err := t.alerts.List(ctx)
	if err != nil {
		return t.toolError("get_alerts", err), nil
	}
	if alerts == nil {
		alerts = []domain.PriceAlert{}
	}
	return jsonResult(map[string]any{"alerts": alerts, "count": len(alerts)})
}

// toolError reports err to the client. Input errors are the caller's to fix; anything else is logged.
func (t *Tools) toolError(tool string, err error) *mcpgo.CallToolResult {
	if !isInputError(err) {
		t.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
	}
	return mcpgo.NewToolResultError(err.Error())
}

func isInputError(err error) bool {
	return errors.Is(err, domain.ErrInvalidRequest) ||
		errors.Is(err, domain.ErrUnparsableResult) ||
		errors.Is(err, domain.ErrMissingSelection)
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

// decodeProducts re-decodes loosely typed tool arguments into records
func decodeProducts(raw any) ([]domain.ProductRecord, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	var products []domain.ProductRecord
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("products must be an array of product objects: %w", err)
	}
	return products, nil
}

func optionalNumber(args map[string]any, key string) (*float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", key)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("%s must be a number", key)
	}
}

func optionalBool(args map[string]any, key string) (*bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("%s must be a boolean", key)
	}
	return &b, nil
}
