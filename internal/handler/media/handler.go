package media

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mural-app/birthday-wall/internal/service/verify"
	wallService "github.com/mural-app/birthday-wall/internal/service/wall"
	"github.com/mural-app/birthday-wall/pkg/utils"
)

const (
	defaultPageSize = 30

	// multipartMemory bounds how much of a parsed form stays in
	// memory; the rest spills to temp files.
	multipartMemory = 32 << 20
)

// Handler exposes the media endpoints: paginated listing, multipart
// upload, deletion and the serve-by-id blob path.
type Handler struct {
	wallSvc  *wallService.Service
	verifier *verify.Verifier
	logger   *slog.Logger
}

// New creates the media handler.
func New(wallSvc *wallService.Service, verifier *verify.Verifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		wallSvc:  wallSvc,
		verifier: verifier,
		logger:   logger.With("component", "media"),
	}
}

// RegisterRoutes mounts the media routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/media", h.handleList)
	r.Post("/media/upload", h.handleUpload)
	r.Delete("/media", h.handleDelete)
	r.Get("/media/serve/{id}", h.handleServe)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, limit, err := utils.ParsePagination(r, defaultPageSize)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}

	result, err := h.wallSvc.ListMedia(r.Context(), page, limit)
	if err != nil {
		h.logger.Error("listing media failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	if err := h.verifier.Verify(r.Context(), r.FormValue("verificationToken")); err != nil {
		h.respondVerifyError(w, err)
		return
	}

	headers := r.MultipartForm.File["files"]
	uploads := make([]wallService.Upload, 0, len(headers))
	closers := make([]io.Closer, 0, len(headers))
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			h.logger.Error("opening multipart file failed", "name", header.Filename, "error", err)
			utils.RespondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		closers = append(closers, file)

		uploads = append(uploads, wallService.Upload{
			OriginalName: header.Filename,
			ContentType:  header.Header.Get("Content-Type"),
			Size:         header.Size,
			Data:         file,
		})
	}

	saved, err := h.wallSvc.UploadMedia(r.Context(), uploads)
	if err != nil {
		switch {
		case errors.Is(err, wallService.ErrFileTooLarge):
			utils.RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, wallService.ErrNoFiles), errors.Is(err, wallService.ErrInvalidFileType):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("upload failed", "error", err)
			utils.RespondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	utils.RespondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		utils.RespondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.wallSvc.DeleteMedia(r.Context(), id); err != nil {
		h.logger.Error("deleting media failed", "id", id, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleServe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	media, blob, err := h.wallSvc.OpenMedia(r.Context(), id)
	if err != nil {
		if errors.Is(err, wallService.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("serving media failed", "id", id, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", wallService.ContentTypeFor(media))
	w.Header().Set("Content-Length", strconv.FormatInt(media.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, blob); err != nil {
		h.logger.Warn("streaming media interrupted", "id", id, "error", err)
	}
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
