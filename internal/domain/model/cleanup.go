// cleanup.go — структуры подсистемы сверки и очистки метаданных:
// отчёт о консистентности, результат очистки, запись журнала,
// типизированная runtime-конфигурация.
package model

import (
	"fmt"
	"time"
)

// Типы запуска очистки (cleanup_type в журнале).
const (
	// CleanupManual — очистка запущена оператором через API.
	CleanupManual = "manual"
	// CleanupScheduled — очистка запущена планировщиком.
	CleanupScheduled = "scheduled"
)

// Orphan — запись метаданных, у которой нет файла на диске.
type Orphan struct {
	// ID — первичный ключ записи в file_metadata
	ID int64 `json:"id"`
	// FilePath — относительный путь отсутствующего файла
	FilePath string `json:"file_path"`
}

// ConsistencyReport — результат двухпроходной сверки базы метаданных
// с файловой системой.
type ConsistencyReport struct {
	// FilesChecked — количество проверенных записей метаданных
	FilesChecked int `json:"files_checked"`
	// OrphanMetadata — записи без файла на диске
	OrphanMetadata []Orphan `json:"orphan_metadata"`
	// MissingMetadata — файлы на диске без записи метаданных
	MissingMetadata []string `json:"missing_metadata"`
	// Errors — ошибки отдельных элементов (сверка не прерывается)
	Errors []string `json:"errors"`
}

// CleanupResult — результат одного запуска очистки orphaned-метаданных.
type CleanupResult struct {
	// CleanupType — manual или scheduled
	CleanupType string `json:"cleanup_type"`
	// FilesChecked — количество проверенных записей метаданных
	FilesChecked int `json:"files_checked"`
	// OrphansFound — найдено orphaned-записей
	OrphansFound int `json:"orphans_found"`
	// OrphansCleaned — удалено orphaned-записей
	OrphansCleaned int `json:"orphans_cleaned"`
	// Errors — количество ошибок за запуск
	Errors int `json:"errors"`
	// StartTime / EndTime — границы запуска
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// Duration — длительность запуска
	Duration time.Duration `json:"duration"`
	// Details — дополнительные сведения: orphan_files, backup,
	// dry_run, would_clean, errors, cleanup_error
	Details map[string]any `json:"details,omitempty"`
}

// CleanupLogEntry — строка append-only журнала cleanup_log.
type CleanupLogEntry struct {
	ID             int64     `json:"id"`
	CleanupType    string    `json:"cleanup_type"`
	FilesChecked   int       `json:"files_checked"`
	OrphansFound   int       `json:"orphans_found"`
	OrphansCleaned int       `json:"orphans_cleaned"`
	Errors         int       `json:"errors"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	// DurationSeconds — длительность в секундах (как хранится в базе)
	DurationSeconds float64 `json:"duration_seconds"`
	// Details — сырой JSON деталей запуска
	Details string `json:"details,omitempty"`
}

// CleanupStats — агрегированная статистика журнала очисток за период.
type CleanupStats struct {
	// PeriodDays — окно агрегации в днях
	PeriodDays int `json:"period_days"`
	// TotalRuns — количество запусков за период
	TotalRuns int `json:"total_runs"`
	// TotalOrphansCleaned — суммарно удалено записей
	TotalOrphansCleaned int `json:"total_orphans_cleaned"`
	// TotalErrors — суммарно ошибок
	TotalErrors int `json:"total_errors"`
	// LastRun — время последнего запуска (nil = запусков не было)
	LastRun *time.Time `json:"last_run,omitempty"`
	// RecentRuns — последние запуски (не более 10)
	RecentRuns []CleanupLogEntry `json:"recent_runs"`
}

// DefaultExcludePatterns — подстроки путей, исключаемые из orphan-отчёта:
// временные и служебные файлы, которые живут вне учёта метаданных.
func DefaultExcludePatterns() []string {
	return []string{".tmp", ".lock", ".temp", "~", "metadata_backup_", ".bak"}
}

// CleanupConfig — runtime-конфигурация подсистемы очистки.
// Хранится в таблице cleanup_config (key/value) и может изменяться
// через API без перезапуска сервиса.
type CleanupConfig struct {
	// Enabled — выполняет ли планировщик автоматические очистки
	Enabled bool `json:"enabled"`
	// GracePeriod — намеренный минимальный возраст orphan-записи.
	// Хранится и отдаётся через API, но при удалении не применяется:
	// момент исчезновения файла с диска нигде не фиксируется.
	GracePeriod time.Duration `json:"grace_period"`
	// BatchSize — размер батча удаления (одна транзакция на батч)
	BatchSize int `json:"batch_size"`
	// ScanInterval — период запуска планировщика
	ScanInterval time.Duration `json:"scan_interval"`
	// MaxOrphansPerRun — максимум удаляемых записей за один запуск
	MaxOrphansPerRun int `json:"max_orphans_per_run"`
	// BackupBeforeCleanup — делать JSON-бэкап удаляемых записей
	BackupBeforeCleanup bool `json:"backup_before_cleanup"`
	// ExcludePatterns — подстроки путей, не считающиеся orphan
	ExcludePatterns []string `json:"exclude_patterns"`
}

// DefaultCleanupConfig возвращает конфигурацию очистки по умолчанию.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:             true,
		GracePeriod:         5 * time.Minute,
		BatchSize:           100,
		ScanInterval:        time.Hour,
		MaxOrphansPerRun:    1000,
		BackupBeforeCleanup: true,
		ExcludePatterns:     DefaultExcludePatterns(),
	}
}

// Validate проверяет согласованность конфигурации очистки.
func (c CleanupConfig) Validate() error {
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period: значение должно быть неотрицательным, получено %s", c.GracePeriod)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size: значение должно быть положительным, получено %d", c.BatchSize)
	}
	if c.ScanInterval < time.Second {
		return fmt.Errorf("scan_interval: значение должно быть не меньше 1s, получено %s", c.ScanInterval)
	}
	if c.MaxOrphansPerRun <= 0 {
		return fmt.Errorf("max_orphans_per_run: значение должно быть положительным, получено %d", c.MaxOrphansPerRun)
	}
	return nil
}

// CleanupConfigUpdate — частичное обновление CleanupConfig.
// nil-поля не изменяются.
type CleanupConfigUpdate struct {
	Enabled             *bool          `json:"enabled,omitempty"`
	GracePeriod         *time.Duration `json:"grace_period,omitempty"`
	BatchSize           *int           `json:"batch_size,omitempty"`
	ScanInterval        *time.Duration `json:"scan_interval,omitempty"`
	MaxOrphansPerRun    *int           `json:"max_orphans_per_run,omitempty"`
	BackupBeforeCleanup *bool          `json:"backup_before_cleanup,omitempty"`
	ExcludePatterns     *[]string      `json:"exclude_patterns,omitempty"`
}

// Apply возвращает копию конфигурации с применёнными изменениями.
// Результат не валидируется — вызывающий код обязан вызвать Validate.
func (c CleanupConfig) Apply(upd CleanupConfigUpdate) CleanupConfig {
	out := c
	if upd.Enabled != nil {
		out.Enabled = *upd.Enabled
	}
	if upd.GracePeriod != nil {
		out.GracePeriod = *upd.GracePeriod
	}
	if upd.BatchSize != nil {
		out.BatchSize = *upd.BatchSize
	}
	if upd.ScanInterval != nil {
		out.ScanInterval = *upd.ScanInterval
	}
	if upd.MaxOrphansPerRun != nil {
		out.MaxOrphansPerRun = *upd.MaxOrphansPerRun
	}
	if upd.BackupBeforeCleanup != nil {
		out.BackupBeforeCleanup = *upd.BackupBeforeCleanup
	}
	if upd.ExcludePatterns != nil {
		out.ExcludePatterns = append([]string(nil), (*upd.ExcludePatterns)...)
	}
	return out
}
