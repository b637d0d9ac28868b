package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/samurai-chat/internal/api/middlewares"
	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/services"
)

const multipartMemory = 8 << 20

type DataHandler struct {
	catalog  *services.CatalogService
	maxBytes int64
	logger   *slog.Logger
}

func NewDataHandler(catalog *services.CatalogService, maxBytes int64, logger *slog.Logger) *DataHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataHandler{catalog: catalog, maxBytes: maxBytes, logger: logger.With("component", "data_handler")}
}

// Upload handles POST /api/data/user-data with a multipart "file" field.
func (h *DataHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, core.ErrUnauthenticated, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"ok": false, "error": fmt.Sprintf("upload exceeds %d bytes", h.maxBytes), "kind": "invalid_input",
			})
			return
		}
		writeError(w, h.logger, fmt.Errorf("%w: invalid multipart form", core.ErrInvalidInput), nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: missing file field", core.ErrInvalidInput), nil)
		return
	}
	defer file.Close()

	rec, err := h.catalog.Store(r.Context(), userID, header.Filename, file)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "file": rec})
}

// List handles GET /api/data/user-data.
func (h *DataHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, core.ErrUnauthenticated, nil)
		return
	}

	names, err := h.catalog.ListNames(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "files": names})
}

// Delete handles DELETE /api/data/user-data/{filename}.
func (h *DataHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, core.ErrUnauthenticated, nil)
		return
	}

	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: bad file name", core.ErrInvalidInput), nil)
		return
	}

	if err := h.catalog.Remove(r.Context(), userID, name); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": name})
}
