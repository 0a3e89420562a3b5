// system.go — системные HTTP-обработчики: информация об экземпляре
// и health-пробы.
package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	apierrors "github.com/bigkaa/gofilestore/file-server/internal/api/errors"
	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
)

// DiskUsageFunc возвращает общий и свободный объём файловой системы
// по указанному пути. Платформозависимая реализация в cmd/file-server.
type DiskUsageFunc func(path string) (total, free uint64, err error)

// SystemHandler — обработчики /api/v1/info и health-проб.
type SystemHandler struct {
	version     string
	instanceID  string
	files       repository.FileRepository
	store       *filestore.FileStore
	db          *sql.DB
	diskUsage   DiskUsageFunc
	authEnabled bool
	startedAt   time.Time
	logger      *slog.Logger
}

// NewSystemHandler создаёт системные обработчики.
func NewSystemHandler(
	version string,
	instanceID string,
	files repository.FileRepository,
	store *filestore.FileStore,
	db *sql.DB,
	diskUsage DiskUsageFunc,
	authEnabled bool,
	logger *slog.Logger,
) *SystemHandler {
	return &SystemHandler{
		version:     version,
		instanceID:  instanceID,
		files:       files,
		store:       store,
		db:          db,
		diskUsage:   diskUsage,
		authEnabled: authEnabled,
		startedAt:   time.Now().UTC(),
		logger:      logger.With(slog.String("component", "system_handler")),
	}
}

// Info обрабатывает GET /api/v1/info.
func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	count, err := h.files.Count(r.Context())
	if err != nil {
		apierrors.InternalError(w, "Ошибка подсчёта записей: "+err.Error())
		return
	}

	info := map[string]any{
		"service":        "file-server",
		"version":        h.version,
		"instance_id":    h.instanceID,
		"storage_root":   h.store.Root(),
		"metadata_files": count,
		"auth_enabled":   h.authEnabled,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.diskUsage != nil {
		if total, free, err := h.diskUsage(h.store.Root()); err == nil {
			info["disk_total_bytes"] = total
			info["disk_free_bytes"] = free
		}
	}

	writeJSON(w, http.StatusOK, info)
}

// Healthz обрабатывает GET /healthz (liveness).
// Процесс жив — больше ничего не проверяется.
func (h *SystemHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz обрабатывает GET /readyz (readiness).
// Проверяет доступность базы метаданных и запись в storage root.
func (h *SystemHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": "ok",
		"storage":  "ok",
	}
	healthy := true

	if err := h.db.PingContext(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}

	if err := h.probeStorage(); err != nil {
		checks["storage"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	body := map[string]any{"status": "ok", "checks": checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		h.logger.Warn("Readiness-проба не пройдена",
			slog.String("database", checks["database"]),
			slog.String("storage", checks["storage"]),
		)
	}
	writeJSON(w, status, body)
}

// probeStorage проверяет, что storage root доступен для записи.
func (h *SystemHandler) probeStorage() error {
	probe := filepath.Join(h.store.Root(), ".readyz_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}
