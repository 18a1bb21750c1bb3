package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/bi-proxy/pkg/platform"
)

const readHeaderTimeout = 10 * time.Second

// Serve starts the platform and serves the configured transport until ctx
// is cancelled, then stops the platform.
func Serve(ctx context.Context, p *platform.Platform) error {
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), p.Config().Server.ShutdownTimeout)
		defer cancel()
		if err := p.Stop(stopCtx); err != nil {
			slog.Warn("platform stop failed", "error", err)
		}
	}()

	cfg := p.Config().Server
	switch cfg.Transport {
	case platform.TransportStdio:
		slog.Info("serving MCP over stdio", "name", cfg.Name, "version", cfg.Version)
		if err := p.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio transport: %w", err)
		}
		return nil
	case platform.TransportHTTP:
		ln, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.Address, err)
		}
		return ServeHTTP(ctx, p, ln)
	default:
		return fmt.Errorf("unknown transport: %s", cfg.Transport)
	}
}

// ServeHTTP serves the platform's HTTP surface on ln until ctx is
// cancelled, then shuts the server down gracefully.
func ServeHTTP(ctx context.Context, p *platform.Platform, ln net.Listener) error {
	cfg := p.Config().Server
	srv := &http.Server{
		Handler:           p.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving HTTP", "address", ln.Addr().String(), "tls", cfg.TLS.Enabled)
		if cfg.TLS.Enabled {
			errCh <- srv.ServeTLS(ln, cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	p.Health().SetDraining()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	slog.Info("shutting down HTTP server", "timeout", cfg.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
