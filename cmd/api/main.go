package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mural-app/birthday-wall/internal/config"
	"github.com/mural-app/birthday-wall/internal/event"
	"github.com/mural-app/birthday-wall/internal/handler"
	"github.com/mural-app/birthday-wall/internal/service/verify"
	wallService "github.com/mural-app/birthday-wall/internal/service/wall"
	"github.com/mural-app/birthday-wall/internal/storage"
	"github.com/mural-app/birthday-wall/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, using system environment only", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(log)

	store, err := storage.NewSQLite(ctx, cfg.Storage.DatabasePath)
	if err != nil {
		log.Error("failed to open database", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	files, err := storage.NewFileStore(cfg.Storage.UploadDir)
	if err != nil {
		log.Error("failed to prepare upload directory", "dir", cfg.Storage.UploadDir, "error", err)
		os.Exit(1)
	}

	bus := event.NewBus(log)
	wallSvc := wallService.NewService(store, files, bus, log)

	verifier := verify.New(cfg.Verification.SecretKey, cfg.Verification.VerifyURL, !cfg.Verification.Enabled())
	if cfg.Verification.Enabled() {
		log.Info("bot verification enabled")
	} else {
		log.Info("bot verification disabled, tokens will not be checked")
	}

	router := handler.NewRouter(wallSvc, verifier, bus, store, log)

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log logger.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("birthday wall listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
