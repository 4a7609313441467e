// Command factory-mcp serves the factory SQL tools over MCP
// streamable HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	factorymcp "github.com/plantops/factory-mcp"
	"github.com/plantops/factory-mcp/factorydb"
	"github.com/plantops/factory-mcp/gateway"
	"github.com/plantops/factory-mcp/mcptools"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := factorymcp.Load(configPath)
	if err != nil {
		return err
	}

	db, err := factorydb.OpenReadOnly(cfg.FactoryDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	gw := gateway.New(db, gateway.WithLogger(logger))
	mcpServer := mcptools.NewServer(gw, factorymcp.Version, logger)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: factorymcp.NewHTTPHandler(mcpServer, cfg.AllowedOrigins),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("factory MCP server listening",
			"addr", cfg.ListenAddr,
			"factory_db", cfg.FactoryDBPath,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
