package message

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mural-app/birthday-wall/internal/service/verify"
	wallService "github.com/mural-app/birthday-wall/internal/service/wall"
	"github.com/mural-app/birthday-wall/pkg/utils"
)

const defaultPageSize = 30

// Handler exposes the message endpoints.
type Handler struct {
	wallSvc  *wallService.Service
	verifier *verify.Verifier
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates the message handler.
func New(wallSvc *wallService.Service, verifier *verify.Verifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		wallSvc:  wallSvc,
		verifier: verifier,
		validate: validator.New(),
		logger:   logger.With("component", "messages"),
	}
}

// RegisterRoutes mounts the message routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/messages", h.handleList)
	r.Post("/messages", h.handleCreate)
	r.Delete("/messages", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, limit, err := utils.ParsePagination(r, defaultPageSize)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}

	result, err := h.wallSvc.ListMessages(r.Context(), page, limit)
	if err != nil {
		h.logger.Error("listing messages failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

type createMessageRequest struct {
	Text              string `json:"text" validate:"required,max=200"`
	Author            string `json:"author" validate:"required"`
	Color             string `json:"color"`
	VerificationToken string `json:"verificationToken"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload.Text = strings.TrimSpace(payload.Text)
	payload.Author = strings.TrimSpace(payload.Author)
	if err := h.validate.Struct(payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "missing or invalid fields")
		return
	}

	if err := h.verifier.Verify(r.Context(), payload.VerificationToken); err != nil {
		h.respondVerifyError(w, err)
		return
	}

	msg, err := h.wallSvc.CreateMessage(r.Context(), payload.Text, payload.Author, payload.Color)
	if err != nil {
		switch {
		case errors.Is(err, wallService.ErrTextRequired),
			errors.Is(err, wallService.ErrTextTooLong),
			errors.Is(err, wallService.ErrAuthorRequired):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("creating message failed", "error", err)
			utils.RespondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		utils.RespondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.wallSvc.DeleteMessage(r.Context(), id); err != nil {
		h.logger.Error("deleting message failed", "id", id, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) respondVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verify.ErrTokenRequired):
		utils.RespondError(w, http.StatusBadRequest, "verification token is required")
	case errors.Is(err, verify.ErrTokenRejected):
		utils.RespondError(w, http.StatusBadRequest, "security verification failed")
	default:
		h.logger.Error("verification call failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
