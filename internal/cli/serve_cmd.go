package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/alexanderramin/workgrid/internal/httpapi"
	"github.com/alexanderramin/workgrid/internal/repository"
	"github.com/alexanderramin/workgrid/internal/service"
	"github.com/alexanderramin/workgrid/internal/staleness"
	"github.com/alexanderramin/workgrid/internal/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the grid HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app, nil)
		},
	}

	cmd.Flags().StringVar(&app.Config.Addr, "addr", app.Config.Addr, "Listen address")
	cmd.Flags().StringVar(&app.Config.DatabaseURL, "database", app.Config.DatabaseURL, "SQLite path or postgres:// URL")
	cmd.Flags().StringVar(&app.Config.RedisURL, "redis", app.Config.RedisURL, "Redis URL for the staleness cache (optional)")
	cmd.Flags().StringVar(&app.Config.OTelEndpoint, "otel-endpoint", app.Config.OTelEndpoint, "OTLP/HTTP endpoint for traces (optional)")

	return cmd
}

// runServe serves until ctx is done, then drains in-flight requests. When
// ready is non-nil it receives the bound listener address.
func runServe(ctx context.Context, app *App, ready chan<- string) error {
	cfg := app.Config
	logger := app.Logger()

	shutdownTracing, err := telemetry.Setup(ctx, "workgrid", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces failed", "error", err)
		}
	}()

	database, err := db.OpenDB(cfg.DatabaseURL, cfg.Pool())
	if err != nil {
		return err
	}
	defer database.Close()

	dialect := db.DialectFor(cfg.DatabaseURL)
	conn := db.Bind(dialect, database)
	uow := db.NewSQLUnitOfWork(database, dialect)

	opts := []service.Option{service.WithObserver(service.NewSlogUseCaseObserver(logger))}
	if cfg.RedisURL != "" {
		cache, err := staleness.NewCache(cfg.RedisURL, repository.New(conn).Staleness, cfg.StalenessTTL)
		if err != nil {
			return fmt.Errorf("connecting staleness cache: %w", err)
		}
		defer cache.Close()
		opts = append(opts, service.WithStalenessPublisher(cache), service.WithStalenessReader(cache))
		logger.Info("staleness cache enabled", "ttl", cfg.StalenessTTL)
	}

	handler := httpapi.NewHandler(httpapi.Services{
		Rows:   service.NewRowService(uow, opts...),
		Items:  service.NewItemService(uow, opts...),
		Layout: service.NewLayoutService(uow, opts...),
		Sync:   service.NewSyncService(conn, opts...),
		Actors: service.NewActorResolver(conn),
		Ready:  database.PingContext,
	}, logger)

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}
	logger.Info("workgrid listening", "addr", ln.Addr().String(), "dialect", string(dialect))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
