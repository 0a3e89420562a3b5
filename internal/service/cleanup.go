// cleanup.go — сервис очистки orphaned-метаданных.
//
// Один запуск: сверка → усечение orphan-списка до лимита → опциональный
// JSON-бэкап удаляемых строк → батчевое удаление (теги, затем строки) →
// запись в журнал cleanup_log (кроме dry-run).
//
// Верхнеуровневые сбои не возвращаются вызывающему как ошибки: они
// фиксируются в details["cleanup_error"] и счётчике errors, чтобы
// планировщик никогда не падал.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
)

// Prometheus метрики очистки.
var (
	cleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_cleanup_runs_total",
		Help: "Общее количество запусков очистки orphaned-метаданных",
	}, []string{"type"})

	cleanupOrphansCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_cleanup_orphans_cleaned_total",
		Help: "Общее количество удалённых orphaned-записей",
	})

	cleanupErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_cleanup_errors_total",
		Help: "Общее количество ошибок очистки",
	})

	cleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fs_cleanup_duration_seconds",
		Help:    "Длительность запуска очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	consistencyOrphans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fs_consistency_orphan_metadata",
		Help: "Количество orphan-записей по последней сверке",
	})

	consistencyMissing = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fs_consistency_missing_metadata",
		Help: "Количество файлов без метаданных по последней сверке",
	})

	metadataFilesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fs_metadata_files_total",
		Help: "Количество записей file_metadata по последней сверке",
	})
)

// Ключи таблицы cleanup_config.
const (
	cfgKeyEnabled         = "enabled"
	cfgKeyGracePeriod     = "grace_period_seconds"
	cfgKeyBatchSize       = "batch_size"
	cfgKeyScanInterval    = "scan_interval_seconds"
	cfgKeyMaxOrphans      = "max_orphans_per_run"
	cfgKeyBackup          = "backup_before_cleanup"
	cfgKeyExcludePatterns = "exclude_patterns"
)

// CleanupService — сервис очистки orphaned-метаданных.
type CleanupService struct {
	files   repository.FileRepository
	logRepo repository.CleanupRepository
	checker *ConsistencyChecker
	store   *filestore.FileStore
	cache   *CacheService
	logger  *slog.Logger

	mu        sync.Mutex // защита конфигурации и от параллельного запуска
	cfg       model.CleanupConfig
	inProcess bool
}

// NewCleanupService создаёт сервис очистки и загружает runtime-конфигурацию
// из базы, дописывая отсутствующие ключи значениями по умолчанию.
func NewCleanupService(
	ctx context.Context,
	files repository.FileRepository,
	logRepo repository.CleanupRepository,
	checker *ConsistencyChecker,
	store *filestore.FileStore,
	cache *CacheService,
	logger *slog.Logger,
) (*CleanupService, error) {
	s := &CleanupService{
		files:   files,
		logRepo: logRepo,
		checker: checker,
		store:   store,
		cache:   cache,
		logger:  logger.With(slog.String("component", "cleanup")),
	}

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	return s, nil
}

// Config возвращает копию текущей runtime-конфигурации.
func (s *CleanupService) Config() model.CleanupConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.ExcludePatterns = append([]string(nil), s.cfg.ExcludePatterns...)
	return cfg
}

// UpdateConfig валидирует и сохраняет частичное обновление конфигурации.
func (s *CleanupService) UpdateConfig(ctx context.Context, upd model.CleanupConfigUpdate) (model.CleanupConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Apply(upd)
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}
	if err := s.persistConfig(ctx, next); err != nil {
		return s.cfg, err
	}
	s.cfg = next

	s.logger.Info("Конфигурация очистки обновлена",
		slog.Bool("enabled", next.Enabled),
		slog.String("scan_interval", next.ScanInterval.String()),
		slog.Int("max_orphans_per_run", next.MaxOrphansPerRun),
	)
	return next, nil
}

// IsInProgress возвращает true, если очистка выполняется.
func (s *CleanupService) IsInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProcess
}

// Check выполняет сверку с текущими exclude-паттернами и обновляет
// gauge-метрики консистентности.
func (s *CleanupService) Check(ctx context.Context) (*model.ConsistencyReport, error) {
	report, err := s.checker.Check(ctx, s.Config().ExcludePatterns)
	if err != nil {
		return nil, err
	}
	consistencyOrphans.Set(float64(len(report.OrphanMetadata)))
	consistencyMissing.Set(float64(len(report.MissingMetadata)))
	metadataFilesTotal.Set(float64(report.FilesChecked))
	return report, nil
}

// CreateMissing восполняет отсутствующие записи метаданных.
func (s *CleanupService) CreateMissing(ctx context.Context, dryRun bool) (*CreateMissingResult, error) {
	return s.checker.CreateMissing(ctx, s.Config().ExcludePatterns, dryRun)
}

// RunOnce выполняет один запуск очистки.
// maxOrphans <= 0 — использовать лимит из конфигурации.
// Возвращает (nil, true), если очистка уже выполняется.
//
// Ошибки внутри запуска не прерывают его и не возвращаются: они
// накапливаются в result.Errors и details.
func (s *CleanupService) RunOnce(ctx context.Context, cleanupType string, dryRun bool, maxOrphans int) (*model.CleanupResult, bool) {
	s.mu.Lock()
	if s.inProcess {
		s.mu.Unlock()
		return nil, true
	}
	s.inProcess = true
	cfg := s.cfg
	cfg.ExcludePatterns = append([]string(nil), s.cfg.ExcludePatterns...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProcess = false
		s.mu.Unlock()
	}()

	result := &model.CleanupResult{
		CleanupType: cleanupType,
		StartTime:   time.Now().UTC(),
		Details:     map[string]any{},
	}

	s.run(ctx, cfg, dryRun, maxOrphans, result)

	result.EndTime = time.Now().UTC()
	result.Duration = result.EndTime.Sub(result.StartTime)

	cleanupRunsTotal.WithLabelValues(cleanupType).Inc()
	cleanupOrphansCleanedTotal.Add(float64(result.OrphansCleaned))
	cleanupErrorsTotal.Add(float64(result.Errors))
	cleanupDurationSeconds.Observe(result.Duration.Seconds())

	// Журналируется каждый реальный запуск, включая пустые.
	// Dry-run следов в базе не оставляет.
	if !dryRun {
		if err := s.logRepo.InsertLog(ctx, result); err != nil {
			s.logger.Error("Ошибка записи журнала очистки",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("Очистка завершена",
		slog.String("type", cleanupType),
		slog.Bool("dry_run", dryRun),
		slog.Int("files_checked", result.FilesChecked),
		slog.Int("orphans_found", result.OrphansFound),
		slog.Int("orphans_cleaned", result.OrphansCleaned),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result, false
}

// run — тело запуска очистки; заполняет result.
func (s *CleanupService) run(ctx context.Context, cfg model.CleanupConfig, dryRun bool, maxOrphans int, result *model.CleanupResult) {
	report, err := s.checker.Check(ctx, cfg.ExcludePatterns)
	if err != nil {
		result.Errors++
		result.Details["cleanup_error"] = err.Error()
		return
	}
	consistencyOrphans.Set(float64(len(report.OrphanMetadata)))
	consistencyMissing.Set(float64(len(report.MissingMetadata)))
	metadataFilesTotal.Set(float64(report.FilesChecked))

	result.FilesChecked = report.FilesChecked
	result.OrphansFound = len(report.OrphanMetadata)
	result.Errors += len(report.Errors)
	if len(report.Errors) > 0 {
		result.Details["errors"] = report.Errors
	}

	// Усечение в порядке перечисления (id ASC — порядок создания записей).
	limit := maxOrphans
	if limit <= 0 {
		limit = cfg.MaxOrphansPerRun
	}
	orphans := report.OrphanMetadata
	if len(orphans) > limit {
		orphans = orphans[:limit]
		result.Details["truncated_to"] = limit
	}

	paths := make([]string, len(orphans))
	ids := make([]int64, len(orphans))
	for i, o := range orphans {
		paths[i] = o.FilePath
		ids[i] = o.ID
	}
	result.Details["orphan_files"] = paths

	if dryRun {
		result.Details["dry_run"] = true
		result.Details["would_clean"] = len(orphans)
		return
	}
	if len(orphans) == 0 {
		return
	}

	if cfg.BackupBeforeCleanup {
		backupFile, err := s.backup(ctx, ids)
		if err != nil {
			// Бэкап не критичен: очистка продолжается.
			result.Errors++
			result.Details["backup_error"] = err.Error()
			s.logger.Warn("Ошибка бэкапа метаданных",
				slog.String("error", err.Error()),
			)
		} else {
			result.Details["backup"] = backupFile
		}
	}

	// Удаление батчами: одна транзакция на батч, ошибка батча
	// не прерывает остальные.
	for start := 0; start < len(ids); start += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			result.Errors++
			result.Details["cleanup_error"] = err.Error()
			break
		}
		end := start + cfg.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		n, err := s.files.DeleteBatch(ctx, ids[start:end])
		if err != nil {
			result.Errors++
			s.logger.Error("Ошибка удаления батча orphan-записей",
				slog.Int("batch_start", start),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.OrphansCleaned += n
	}

	// Массовая инвалидация: удалённые пути могли быть закэшированы.
	s.cache.Purge()
}

// backupFileName — имя JSON-бэкапа в storage root.
// Префикс metadata_backup_ входит в exclude-паттерны по умолчанию,
// поэтому бэкапы не попадают в последующие orphan-отчёты.
func backupFileName(now time.Time) string {
	return "metadata_backup_" + now.UTC().Format("20060102_150405") + ".json"
}

// backup сохраняет полные строки удаляемых записей с тегами в JSON-файл
// в storage root. Возвращает имя файла.
func (s *CleanupService) backup(ctx context.Context, ids []int64) (string, error) {
	records, err := s.files.BackupRecords(ctx, ids)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации бэкапа: %w", err)
	}

	name := backupFileName(time.Now())
	if err := s.store.WriteFileAtomic(name, data); err != nil {
		return "", err
	}

	s.logger.Info("Бэкап метаданных сохранён",
		slog.String("file", name),
		slog.Int("records", len(records)),
	)
	return name, nil
}

// Stats возвращает агрегированную статистику журнала очисток.
func (s *CleanupService) Stats(ctx context.Context, days int) (*model.CleanupStats, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	runs, cleaned, errs, lastRun, recent, err := s.logRepo.Stats(ctx, since)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []model.CleanupLogEntry{}
	}
	return &model.CleanupStats{
		PeriodDays:          days,
		TotalRuns:           runs,
		TotalOrphansCleaned: cleaned,
		TotalErrors:         errs,
		LastRun:             lastRun,
		RecentRuns:          recent,
	}, nil
}

// --- Персистентность runtime-конфигурации ---

// loadConfig читает конфигурацию из cleanup_config, дописывая
// отсутствующие ключи значениями по умолчанию.
func (s *CleanupService) loadConfig(ctx context.Context) (model.CleanupConfig, error) {
	cfg := model.DefaultCleanupConfig()

	stored, err := s.logRepo.LoadConfig(ctx)
	if err != nil {
		return cfg, err
	}

	if v, ok := stored[cfgKeyEnabled]; ok {
		cfg.Enabled = v == "true"
	}
	if v, ok := stored[cfgKeyGracePeriod]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GracePeriod = time.Duration(n) * time.Second
		}
	}
	if v, ok := stored[cfgKeyBatchSize]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v, ok := stored[cfgKeyScanInterval]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScanInterval = time.Duration(n) * time.Second
		}
	}
	if v, ok := stored[cfgKeyMaxOrphans]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOrphansPerRun = n
		}
	}
	if v, ok := stored[cfgKeyBackup]; ok {
		cfg.BackupBeforeCleanup = v == "true"
	}
	if v, ok := stored[cfgKeyExcludePatterns]; ok && v != "" {
		cfg.ExcludePatterns = strings.Split(v, ",")
	}

	if err := cfg.Validate(); err != nil {
		s.logger.Warn("Некорректная конфигурация в базе, используются значения по умолчанию",
			slog.String("error", err.Error()),
		)
		cfg = model.DefaultCleanupConfig()
	}

	// Дописываем отсутствующие ключи, чтобы конфигурация была видна
	// и редактируема целиком.
	if err := s.persistConfig(ctx, cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// persistConfig сохраняет все ключи конфигурации в cleanup_config.
func (s *CleanupService) persistConfig(ctx context.Context, cfg model.CleanupConfig) error {
	values := []struct {
		key, value, description string
	}{
		{cfgKeyEnabled, strconv.FormatBool(cfg.Enabled), "Выполняет ли планировщик автоматические очистки"},
		{cfgKeyGracePeriod, strconv.Itoa(int(cfg.GracePeriod.Seconds())), "Намеренный минимальный возраст orphan-записи, секунды"},
		{cfgKeyBatchSize, strconv.Itoa(cfg.BatchSize), "Размер батча удаления"},
		{cfgKeyScanInterval, strconv.Itoa(int(cfg.ScanInterval.Seconds())), "Период запуска планировщика, секунды"},
		{cfgKeyMaxOrphans, strconv.Itoa(cfg.MaxOrphansPerRun), "Максимум удаляемых записей за запуск"},
		{cfgKeyBackup, strconv.FormatBool(cfg.BackupBeforeCleanup), "Делать JSON-бэкап перед удалением"},
		{cfgKeyExcludePatterns, strings.Join(cfg.ExcludePatterns, ","), "Подстроки путей, исключаемые из orphan-отчёта"},
	}
	for _, v := range values {
		if err := s.logRepo.SaveConfigValue(ctx, v.key, v.value, v.description); err != nil {
			return err
		}
	}
	return nil
}
