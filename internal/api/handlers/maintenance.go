// maintenance.go — HTTP-обработчики обслуживания базы метаданных:
// сверка, очистка orphaned-записей, статистика, runtime-конфигурация,
// восполнение отсутствующих записей.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/gofilestore/file-server/internal/api/errors"
	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
	"github.com/bigkaa/gofilestore/file-server/internal/service"
)

// MaintenanceHandler — обработчики операций обслуживания.
type MaintenanceHandler struct {
	cleanup *service.CleanupService
	logger  *slog.Logger
}

// NewMaintenanceHandler создаёт обработчики обслуживания.
func NewMaintenanceHandler(cleanup *service.CleanupService, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		cleanup: cleanup,
		logger:  logger.With(slog.String("component", "maintenance_handler")),
	}
}

// Check обрабатывает POST /api/v1/maintenance/check.
// Выполняет двухпроходную сверку без изменений базы.
func (h *MaintenanceHandler) Check(w http.ResponseWriter, r *http.Request) {
	report, err := h.cleanup.Check(r.Context())
	if err != nil {
		apierrors.InternalError(w, "Ошибка сверки: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// cleanupRequest — тело запроса ручной очистки.
type cleanupRequest struct {
	DryRun bool `json:"dry_run"`
	// MaxOrphans <= 0 — использовать лимит из конфигурации
	MaxOrphans int `json:"max_orphans"`
}

// Cleanup обрабатывает POST /api/v1/maintenance/cleanup.
// Пустое тело допустимо: реальный запуск с лимитом из конфигурации.
// 409, если очистка уже выполняется.
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
			return
		}
	}

	result, inProgress := h.cleanup.RunOnce(r.Context(), model.CleanupManual, req.DryRun, req.MaxOrphans)
	if inProgress {
		apierrors.CleanupInProgress(w, "Очистка уже выполняется")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Stats обрабатывает GET /api/v1/maintenance/stats?days=<n>.
// По умолчанию — статистика за 7 дней.
func (h *MaintenanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apierrors.ValidationError(w, "Параметр days должен быть положительным числом")
			return
		}
		days = n
	}

	stats, err := h.cleanup.Stats(r.Context(), days)
	if err != nil {
		apierrors.InternalError(w, "Ошибка чтения статистики: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetConfig обрабатывает GET /api/v1/maintenance/config.
func (h *MaintenanceHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cleanup.Config())
}

// UpdateConfig обрабатывает PATCH /api/v1/maintenance/config.
// Частичное обновление: отсутствующие поля не изменяются.
// Новые значения применяются со следующей итерации планировщика.
func (h *MaintenanceHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var upd model.CleanupConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	cfg, err := h.cleanup.UpdateConfig(r.Context(), upd)
	if err != nil {
		apierrors.ValidationError(w, "Некорректная конфигурация: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// createMissingRequest — тело запроса восполнения метаданных.
type createMissingRequest struct {
	DryRun bool `json:"dry_run"`
}

// CreateMissing обрабатывает POST /api/v1/maintenance/create-missing.
// Создаёт записи метаданных для файлов на диске без них.
func (h *MaintenanceHandler) CreateMissing(w http.ResponseWriter, r *http.Request) {
	var req createMissingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
			return
		}
	}

	result, err := h.cleanup.CreateMissing(r.Context(), req.DryRun)
	if err != nil {
		apierrors.InternalError(w, "Ошибка восполнения метаданных: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
