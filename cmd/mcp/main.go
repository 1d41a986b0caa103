package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/lelook/backend/config"
	"github.com/lelook/backend/internal/app"
	mcpDelivery "github.com/lelook/backend/internal/delivery/mcp"
	"github.com/lelook/backend/internal/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lelook mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// stdout carries the protocol on the stdio transport
	logger, err := logging.New(logging.Options{
		Development: cfg.IsDevelopment(),
		Level:       cfg.Log.Level,
		Stderr:      true,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer application.Shutdown(shutdownTimeout)

	s := mcpDelivery.NewServer(application.Pipeline, application.Alerts, logger)

	switch cfg.MCP.Transport {
	case "stdio":
		logger.Info("serving MCP over stdio")
		if err := server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	default:
		return serveHTTP(ctx, s, cfg, application, logger)
	}
}

// serveHTTP runs the streamable HTTP transport on /mcp. Try-on artifacts on the
// filesystem are served from the same listener.
func serveHTTP(ctx context.Context, s *server.MCPServer, cfg *config.Config, application *app.App, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s))
	if application.ArtifactsDir != "" {
		mux.Handle("/artifacts/", http.StripPrefix("/artifacts/", http.FileServer(http.Dir(application.ArtifactsDir))))
	}

	srv := &http.Server{
		Addr:              cfg.MCP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over streamable HTTP", zap.String("addr", srv.Addr), zap.String("path", "/mcp"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("mcp server shutdown", zap.Error(err))
	}
	return nil
}
