package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpAdapter "github.com/aretw0/strata/pkg/adapters/http"
	mcpAdapter "github.com/aretw0/strata/pkg/adapters/mcp"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Handler builds the HTTP API of the app.
func (a *App) Handler() http.Handler {
	opts := []httpAdapter.Option{httpAdapter.WithLogger(a.Logger.Named("http"))}
	if a.Config.Server.Metrics {
		opts = append(opts, httpAdapter.WithMetrics(a.Registry))
	}
	return httpAdapter.NewHandler(a.System, opts...)
}

// Serve runs the HTTP API on port until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, app *App, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		app.Logger.Info("starting strata server", zap.String("address", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return errors.Wrap(err, "server error")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return errors.Wrap(err, "graceful shutdown did not complete")
		}
		app.Logger.Info("strata server stopped gracefully")
		return nil
	}
}

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// ServeMCP runs the MCP server on the given transport.
func ServeMCP(ctx context.Context, app *App, transport string, port int) error {
	srv := mcpAdapter.NewServer(app.System, mcpAdapter.WithLogger(app.Logger.Named("mcp")))
	switch transport {
	case TransportStdio:
		app.Logger.Info("starting strata MCP server (stdio)")
		return srv.ServeStdio()
	case TransportSSE:
		err := srv.ServeSSE(ctx, fmt.Sprintf(":%d", port))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return errors.Newf("unknown transport %q, supported: %s, %s", transport, TransportStdio, TransportSSE)
}
