// Package mcp exposes the shopping pipeline as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/lelook/backend/internal/usecase"
)

// Version is set at build time via ldflags.
var Version = "dev"

const serverName = "lelook"

// NewServer creates the MCP server with every shopping tool registered
func NewServer(pipeline *usecase.Pipeline, alerts *usecase.AlertService, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(WorkflowInstructions),
	)

	tools := NewTools(pipeline, alerts, logger)
	tools.Register(s)
	return s
}

// WorkflowInstructions is the mandatory Search -> Compare -> Try-On workflow given to the chat client
const WorkflowInstructions = `You are LeLook, a shopping assistant. Follow this workflow for every shopping request.

## 1. SEARCH
Call search_products with the user's query and every constraint they gave
(category, min_price, max_price, free_shipping, on_sale). Never invent products:
only present what search_products returns.

## 2. COMPARE
Always pass the search results to compare_products before recommending anything.
Present the ranked list (at most 5) with price, seller and rating, best first,
and let the user pick one.

## 3. TRY-ON
Only offer virtual_try_on for a product returned by compare_products, identified by
its id. Ask for the user's photo first: a person photo for clothing, a room photo
for furniture. Never call virtual_try_on without the user's image.
If the result status is "degraded-fallback", tell the user the preview is a
simplified composite. If it is "failed", explain the reason and offer to retry.

## PRICE ALERTS
track_price stores a target price for a product id; get_alerts lists them.`
