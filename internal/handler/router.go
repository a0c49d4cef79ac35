package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mural-app/birthday-wall/internal/event"
	"github.com/mural-app/birthday-wall/internal/handler/events"
	"github.com/mural-app/birthday-wall/internal/handler/media"
	"github.com/mural-app/birthday-wall/internal/handler/message"
	"github.com/mural-app/birthday-wall/internal/service/verify"
	wallService "github.com/mural-app/birthday-wall/internal/service/wall"
	"github.com/mural-app/birthday-wall/internal/storage"
	"github.com/mural-app/birthday-wall/pkg/utils"
)

const serviceName = "birthday-wall"

// NewRouter wires HTTP routes to core services.
func NewRouter(wallSvc *wallService.Service, verifier *verify.Verifier, bus *event.Bus, store *storage.SQLite, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	messageHandler := message.New(wallSvc, verifier, logger)
	mediaHandler := media.New(wallSvc, verifier, logger)
	eventsHandler := events.New(bus, logger)

	r.Route("/api", func(api chi.Router) {
		messageHandler.RegisterRoutes(api)
		mediaHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := store.Ping(ctx); err != nil {
				logger.Error("health check failed", "error", err)
				utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":    "unhealthy",
					"timestamp": time.Now().UTC().Format(time.RFC3339),
					"service":   serviceName,
				})
				return
			}

			utils.RespondJSON(w, http.StatusOK, map[string]string{
				"status":    "healthy",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"service":   serviceName,
			})
		})
	})

	return r
}
