package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
)

// CleanupRepository — доступ к журналу очисток (cleanup_log) и
// runtime-конфигурации очистки (cleanup_config, key/value).
type CleanupRepository interface {
	// InsertLog добавляет запись в append-only журнал очисток.
	InsertLog(ctx context.Context, result *model.CleanupResult) error
	// Stats возвращает агрегаты журнала и последние запуски за period.
	Stats(ctx context.Context, since time.Time) (runs, cleaned, errs int, lastRun *time.Time, recent []model.CleanupLogEntry, err error)
	// LoadConfig возвращает все пары key/value из cleanup_config.
	LoadConfig(ctx context.Context) (map[string]string, error)
	// SaveConfigValue записывает одну пару key/value (INSERT OR REPLACE).
	SaveConfigValue(ctx context.Context, key, value, description string) error
}

// cleanupRepo — реализация CleanupRepository через database/sql.
type cleanupRepo struct {
	db *sql.DB
}

// NewCleanupRepository создаёт репозиторий журнала и конфигурации очистки.
func NewCleanupRepository(db *sql.DB) CleanupRepository {
	return &cleanupRepo{db: db}
}

// InsertLog добавляет запись в журнал очисток.
func (r *cleanupRepo) InsertLog(ctx context.Context, result *model.CleanupResult) error {
	details := "{}"
	if result.Details != nil {
		raw, err := json.Marshal(result.Details)
		if err != nil {
			return fmt.Errorf("ошибка сериализации деталей очистки: %w", err)
		}
		details = string(raw)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cleanup_log
			(cleanup_type, files_checked, orphans_found, orphans_cleaned,
			 errors, start_time, end_time, duration_seconds, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.CleanupType, result.FilesChecked, result.OrphansFound,
		result.OrphansCleaned, result.Errors,
		formatTime(result.StartTime), formatTime(result.EndTime),
		result.Duration.Seconds(), details)
	if err != nil {
		return fmt.Errorf("ошибка записи журнала очистки: %w", err)
	}
	return nil
}

// Stats возвращает агрегаты журнала и последние 10 запусков после since.
func (r *cleanupRepo) Stats(ctx context.Context, since time.Time) (int, int, int, *time.Time, []model.CleanupLogEntry, error) {
	var (
		runs, cleaned, errs int
		last                sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(orphans_cleaned), 0),
		       COALESCE(SUM(errors), 0),
		       MAX(start_time)
		FROM cleanup_log WHERE start_time >= ?`,
		formatTime(since),
	).Scan(&runs, &cleaned, &errs, &last)
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("ошибка агрегации журнала очистки: %w", err)
	}

	var lastRun *time.Time
	if last.Valid {
		t := parseTime(last.String)
		lastRun = &t
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, cleanup_type, files_checked, orphans_found, orphans_cleaned,
		       errors, start_time, end_time, duration_seconds, details
		FROM cleanup_log
		WHERE start_time >= ?
		ORDER BY start_time DESC
		LIMIT 10`,
		formatTime(since))
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("ошибка выборки журнала очистки: %w", err)
	}
	defer rows.Close()

	var recent []model.CleanupLogEntry
	for rows.Next() {
		var (
			entry            model.CleanupLogEntry
			startStr, endStr string
		)
		if err := rows.Scan(
			&entry.ID, &entry.CleanupType, &entry.FilesChecked,
			&entry.OrphansFound, &entry.OrphansCleaned, &entry.Errors,
			&startStr, &endStr, &entry.DurationSeconds, &entry.Details,
		); err != nil {
			return 0, 0, 0, nil, nil, fmt.Errorf("ошибка сканирования журнала: %w", err)
		}
		entry.StartTime = parseTime(startStr)
		entry.EndTime = parseTime(endStr)
		recent = append(recent, entry)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, 0, nil, nil, err
	}

	return runs, cleaned, errs, lastRun, recent, nil
}

// LoadConfig возвращает все пары key/value из cleanup_config.
func (r *cleanupRepo) LoadConfig(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM cleanup_config`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения конфигурации очистки: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("ошибка сканирования конфигурации: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SaveConfigValue записывает одну пару key/value.
func (r *cleanupRepo) SaveConfigValue(ctx context.Context, key, value, description string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cleanup_config (key, value, description)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			description = CASE WHEN excluded.description != '' THEN excluded.description ELSE cleanup_config.description END,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		key, value, description)
	if err != nil {
		return fmt.Errorf("ошибка записи конфигурации %s: %w", key, err)
	}
	return nil
}
