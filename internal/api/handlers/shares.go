// shares.go — HTTP-обработчики ссылок на файлы.
// Ссылка — UUID, по которому файл можно скачать без знания пути.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/gofilestore/file-server/internal/api/errors"
	"github.com/bigkaa/gofilestore/file-server/internal/api/middleware"
	"github.com/bigkaa/gofilestore/file-server/internal/service"
)

// SharesHandler — обработчики ссылок на файлы.
type SharesHandler struct {
	shares *service.ShareService
	meta   *service.MetadataService
	files  *FilesHandler
	logger *slog.Logger
}

// NewSharesHandler создаёт обработчики ссылок.
func NewSharesHandler(
	shares *service.ShareService,
	meta *service.MetadataService,
	files *FilesHandler,
	logger *slog.Logger,
) *SharesHandler {
	return &SharesHandler{
		shares: shares,
		meta:   meta,
		files:  files,
		logger: logger.With(slog.String("component", "shares_handler")),
	}
}

// createShareRequest — тело запроса создания ссылки.
type createShareRequest struct {
	FilePath string `json:"file_path"`
	// IsPublic — ссылка доступна без аутентификации
	IsPublic bool `json:"is_public"`
}

// Create обрабатывает POST /api/v1/shares.
// На пару (файл, режим) существует не более одной ссылки: повторный
// запрос возвращает уже созданный UUID со статусом 200.
func (h *SharesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.FilePath == "" {
		apierrors.ValidationError(w, "file_path обязателен")
		return
	}

	share, err := h.shares.GetOrCreate(r.Context(), req.FilePath, req.IsPublic)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, share)
}

// Download обрабатывает GET /api/v1/shares/{id}.
// Публичная ссылка отдаёт файл без аутентификации; приватная требует её.
func (h *SharesHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор ссылки")
		return
	}

	share, err := h.shares.Resolve(r.Context(), id)
	if err != nil {
		apierrors.NotFound(w, "Ссылка не найдена")
		return
	}

	if !share.IsPublic && h.files.authEnabled && !middleware.IsAuthenticated(r.Context()) {
		apierrors.Unauthorized(w, "Приватная ссылка требует аутентификации")
		return
	}

	contentType := ""
	if rec, ok, err := h.meta.Load(r.Context(), share.FilePath); err == nil && ok {
		contentType = rec.ContentType
	}
	h.files.serveFile(w, r, share.FilePath, contentType)
}

// Delete обрабатывает DELETE /api/v1/shares/{id}.
func (h *SharesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор ссылки")
		return
	}

	if err := h.shares.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	h.logger.Info("Ссылка удалена", slog.String("share_id", id))
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":  true,
		"share_id": id,
	})
}
