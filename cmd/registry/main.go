package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-registry/internal/logging"
	"github.com/tendant/simple-registry/pkg/registry/api"
	"github.com/tendant/simple-registry/pkg/registry/config"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	logger := logging.New(os.Stderr, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	serverConfig, err := config.Load(
		config.WithConfigFile(os.Getenv("REGISTRY_CONFIG")),
		config.WithEnv(),
	)
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	rt, err := serverConfig.BuildService(ctx, logger)
	if err != nil {
		slog.Error("Failed to build registry service", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	handler := api.NewRegistryHandler(rt.Service,
		api.WithResolver(rt.Resolver),
		api.WithBaseURL(serverConfig.RegistryURL),
		api.WithMaxPublishSize(serverConfig.MaxPublishSize),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	r.Mount("/", handler.Routes())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Registry starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.StorageType,
			"remove_tarball_on_unpublish", serverConfig.RemoveTarballEnabled())

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}
	slog.Info("Server exiting")
}
