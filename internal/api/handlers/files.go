// files.go — HTTP-обработчики файловых операций и операций с директориями:
// загрузка, листинг, метаданные, скачивание, перемещение, удаление,
// разрешения и блокировки.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gofilestore/file-server/internal/api/errors"
	"github.com/bigkaa/gofilestore/file-server/internal/api/middleware"
	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/service"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
)

// defaultSearchLimit — лимит результатов поиска по умолчанию.
const defaultSearchLimit = 100

// FilesHandler — обработчики файловых операций.
type FilesHandler struct {
	meta        *service.MetadataService
	shares      *service.ShareService
	store       *filestore.FileStore
	maxFileSize int64
	// authEnabled=false — аутентификация выключена, приватные файлы
	// доступны всем (режим без FS_JWKS_URL)
	authEnabled bool
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчики файловых операций.
func NewFilesHandler(
	meta *service.MetadataService,
	shares *service.ShareService,
	store *filestore.FileStore,
	maxFileSize int64,
	authEnabled bool,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		meta:        meta,
		shares:      shares,
		store:       store,
		maxFileSize: maxFileSize,
		authEnabled: authEnabled,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// canAccessPrivate сообщает, видны ли запросу приватные файлы.
func (h *FilesHandler) canAccessPrivate(r *http.Request) bool {
	return !h.authEnabled || middleware.IsAuthenticated(r.Context())
}

// writeServiceError отображает ошибки сервисного слоя на HTTP-ответы.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPath):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrLocked):
		apierrors.Locked(w, err.Error())
	case errors.Is(err, service.ErrFileNotFound), errors.Is(err, repository.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	default:
		apierrors.InternalError(w, err.Error())
	}
}

// writeJSON сериализует ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Upload обрабатывает POST /api/v1/files/upload.
// Multipart-форма: file (обязательно), path (опционально, по умолчанию
// имя файла), is_public, description, tags (через запятую).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Лимит на всё тело запроса: превышение прерывает чтение формы.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, "Файл превышает максимальный размер "+strconv.FormatInt(h.maxFileSize, 10)+" байт")
			return
		}
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Отсутствует поле file")
		return
	}
	defer file.Close()

	relPath := r.FormValue("path")
	if relPath == "" {
		relPath = header.Filename
	}

	size, err := h.store.Save(relPath, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	opts := service.CreateOptions{
		IsPublic:    r.FormValue("is_public") == "true",
		ContentType: header.Header.Get("Content-Type"),
		Description: r.FormValue("description"),
		Tags:        splitTags(r.FormValue("tags")),
	}
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		opts.CreatedBy = &subject
	}

	rec, err := h.meta.Create(r.Context(), relPath, size, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logger.Info("Файл загружен",
		slog.String("file_path", rec.FilePath),
		slog.Int64("size", size),
		slog.Bool("is_public", rec.IsPublic),
	)
	writeJSON(w, http.StatusCreated, rec)
}

// splitTags разбирает список тегов вида "a, b, c", отбрасывая пустые.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// List обрабатывает GET /api/v1/files?dir=<path>&public=<true|false>.
// Без аутентификации возвращаются только публичные элементы;
// public дополнительно фильтрует по разрешению.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")

	var publicFilter *bool
	if raw := r.URL.Query().Get("public"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "Параметр public должен быть true или false")
			return
		}
		publicFilter = &v
	}

	entries, err := h.meta.List(r.Context(), dir, h.canAccessPrivate(r), publicFilter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path":    dir,
		"entries": entries,
		"total":   len(entries),
	})
}

// GetMeta обрабатывает GET /api/v1/files/meta/{path}.
func (h *FilesHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	rec, ok, err := h.meta.Load(r.Context(), relPath)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		apierrors.NotFound(w, "Метаданные не найдены: "+relPath)
		return
	}
	if !rec.IsPublic && !h.canAccessPrivate(r) {
		apierrors.Forbidden(w, "Доступ к приватному файлу требует аутентификации")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// UpdateMeta обрабатывает PATCH /api/v1/files/meta/{path}.
// Обновляются только описательные поля: description, notes, tags,
// original_url. nil-поля не изменяются.
func (h *FilesHandler) UpdateMeta(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	var fields service.UpdateFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	rec, ok, err := h.meta.Update(r.Context(), relPath, fields)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		apierrors.NotFound(w, "Метаданные не найдены: "+relPath)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Download обрабатывает GET /api/v1/files/download/{path}.
// Приватные файлы отдаются только аутентифицированным запросам.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	rec, ok, err := h.meta.Load(r.Context(), relPath)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// Файл без записи метаданных считается приватным.
	isPublic := ok && rec.IsPublic
	if !isPublic && !h.canAccessPrivate(r) {
		apierrors.Forbidden(w, "Доступ к приватному файлу требует аутентификации")
		return
	}

	contentType := ""
	if ok {
		contentType = rec.ContentType
	}
	h.serveFile(w, r, relPath, contentType)
}

// serveFile отдаёт содержимое файла с поддержкой Range-запросов.
func (h *FilesHandler) serveFile(w http.ResponseWriter, r *http.Request, relPath, contentType string) {
	f, err := h.store.Open(relPath)
	if err != nil {
		apierrors.NotFound(w, "Файл не найден: "+relPath)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		apierrors.NotFound(w, "Файл не найден: "+relPath)
		return
	}

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// Delete обрабатывает DELETE /api/v1/files/{path}.
// Заблокированный файл не удаляется (423).
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	if !h.store.Exists(relPath) {
		apierrors.NotFound(w, "Файл не найден: "+relPath)
		return
	}

	if err := h.meta.Delete(r.Context(), relPath); err != nil {
		writeServiceError(w, err)
		return
	}
	// Ссылки удалённого файла больше не действительны.
	if err := h.shares.DeleteByFile(r.Context(), relPath); err != nil {
		h.logger.Warn("Ошибка удаления ссылок файла",
			slog.String("file_path", relPath),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("Файл удалён", slog.String("file_path", relPath))
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":   true,
		"file_path": relPath,
	})
}

// moveRequest — тело запроса перемещения файла.
type moveRequest struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
}

// Move обрабатывает POST /api/v1/files/move.
func (h *FilesHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.SourcePath == "" || req.DestinationPath == "" {
		apierrors.ValidationError(w, "source_path и destination_path обязательны")
		return
	}
	if !h.store.Exists(req.SourcePath) {
		apierrors.NotFound(w, "Файл не найден: "+req.SourcePath)
		return
	}

	if err := h.meta.Move(r.Context(), req.SourcePath, req.DestinationPath); err != nil {
		writeServiceError(w, err)
		return
	}
	// Ссылки привязаны к пути: после переноса старые ссылки не должны
	// указывать на файл, который позже появится по исходному пути.
	if err := h.shares.DeleteByFile(r.Context(), req.SourcePath); err != nil {
		h.logger.Warn("Ошибка удаления ссылок перемещённого файла",
			slog.String("file_path", req.SourcePath),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("Файл перемещён",
		slog.String("source", req.SourcePath),
		slog.String("destination", req.DestinationPath),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"moved":            true,
		"source_path":      req.SourcePath,
		"destination_path": req.DestinationPath,
	})
}

// permissionRequest — тело запроса изменения разрешения.
type permissionRequest struct {
	IsPublic        bool `json:"is_public"`
	ApplyToChildren bool `json:"apply_to_children"`
}

// SetPermission обрабатывает PUT /api/v1/files/permission/{path}.
func (h *FilesHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	ok, err := h.meta.SetPermission(r.Context(), relPath, req.IsPublic)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		apierrors.NotFound(w, "Метаданные не найдены: "+relPath)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file_path": relPath,
		"is_public": req.IsPublic,
	})
}

// lockRequest — тело запроса изменения блокировки.
type lockRequest struct {
	Locked          bool `json:"locked"`
	ApplyToChildren bool `json:"apply_to_children"`
}

// SetLock обрабатывает PUT /api/v1/files/lock/{path}.
func (h *FilesHandler) SetLock(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	ok, err := h.meta.SetLock(r.Context(), relPath, req.Locked)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		apierrors.NotFound(w, "Метаданные не найдены: "+relPath)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file_path": relPath,
		"locked":    req.Locked,
	})
}

// Search обрабатывает GET /api/v1/files/search?q=<query>&limit=<n>.
func (h *FilesHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		apierrors.ValidationError(w, "Параметр q обязателен")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apierrors.ValidationError(w, "Параметр limit должен быть положительным числом")
			return
		}
		limit = n
	}

	records, err := h.meta.Search(r.Context(), query, h.canAccessPrivate(r), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": records,
		"total":   len(records),
	})
}

// --- Операции с директориями ---

// SetDirectoryPermission обрабатывает PUT /api/v1/directories/permission/{path}.
// apply_to_children нерекурсивно применяет разрешение к каждому потомку.
func (h *FilesHandler) SetDirectoryPermission(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if !h.store.DirExists(relPath) && relPath != "" {
		apierrors.NotFound(w, "Директория не найдена: "+relPath)
		return
	}

	var createdBy *string
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		createdBy = &subject
	}

	err := h.meta.SetDirectoryPermission(r.Context(), relPath, req.IsPublic, req.ApplyToChildren, createdBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"directory_path":    relPath,
		"is_public":         req.IsPublic,
		"apply_to_children": req.ApplyToChildren,
	})
}

// SetDirectoryLock обрабатывает PUT /api/v1/directories/lock/{path}.
func (h *FilesHandler) SetDirectoryLock(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if !h.store.DirExists(relPath) && relPath != "" {
		apierrors.NotFound(w, "Директория не найдена: "+relPath)
		return
	}

	var createdBy *string
	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		createdBy = &subject
	}

	err := h.meta.SetDirectoryLock(r.Context(), relPath, req.Locked, req.ApplyToChildren, createdBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"directory_path":    relPath,
		"locked":            req.Locked,
		"apply_to_children": req.ApplyToChildren,
	})
}

// DirectoryInfo обрабатывает GET /api/v1/directories/info/{path}.
func (h *FilesHandler) DirectoryInfo(w http.ResponseWriter, r *http.Request) {
	relPath := chi.URLParam(r, "*")

	if !h.store.DirExists(relPath) && relPath != "" {
		apierrors.NotFound(w, "Директория не найдена: "+relPath)
		return
	}

	info, err := h.meta.Info(r.Context(), relPath)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}
