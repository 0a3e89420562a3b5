package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
)

// fileColumns — список столбцов таблицы file_metadata для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, filename, file_path, size, upload_time, last_modified,
	is_public, content_type, created_by, description, notes, original_url, locked`

// FileRef — пара (id, путь) для перечисления всех записей при сверке.
type FileRef struct {
	ID       int64
	FilePath string
}

// FileRepository — доступ к таблицам file_metadata и file_tags.
type FileRepository interface {
	// GetByPath возвращает запись по относительному пути или ErrNotFound.
	GetByPath(ctx context.Context, filePath string) (*model.FileRecord, error)
	// Upsert создаёт или обновляет запись. Теги заменяются целиком
	// (delete-then-insert) в одной транзакции с основной строкой.
	// upload_time существующей записи сохраняется.
	Upsert(ctx context.Context, rec *model.FileRecord) error
	// UpdatePermission обновляет is_public и last_modified.
	// Возвращает ErrNotFound, если записи нет.
	UpdatePermission(ctx context.Context, filePath string, isPublic bool, modified string) error
	// UpdateLock обновляет locked и last_modified.
	// Возвращает ErrNotFound, если записи нет.
	UpdateLock(ctx context.Context, filePath string, locked bool, modified string) error
	// Move переносит запись на новый путь (имя обновляется из пути).
	Move(ctx context.Context, oldPath, newPath, newName string, modified string) error
	// Delete удаляет запись и её теги по пути. Отсутствие записи — не ошибка.
	Delete(ctx context.Context, filePath string) error
	// ListAll возвращает (id, путь) всех записей в порядке id ASC.
	ListAll(ctx context.Context) ([]FileRef, error)
	// DeleteBatch удаляет записи и их теги по списку id в одной транзакции.
	// Возвращает количество удалённых строк file_metadata.
	DeleteBatch(ctx context.Context, ids []int64) (int, error)
	// BackupRecords возвращает полные строки с тегами для бэкапа.
	BackupRecords(ctx context.Context, ids []int64) ([]model.BackupRecord, error)
	// Search ищет записи по подстроке в имени, описании, заметках и тегах.
	Search(ctx context.Context, query string, limit int) ([]*model.FileRecord, error)
	// Count возвращает количество записей file_metadata.
	Count(ctx context.Context) (int64, error)
}

// fileRepo — реализация FileRepository через database/sql.
type fileRepo struct {
	db *sql.DB
}

// NewFileRepository создаёт репозиторий файловых метаданных.
func NewFileRepository(db *sql.DB) FileRepository {
	return &fileRepo{db: db}
}

// scanRecord сканирует одну строку file_metadata.
func scanRecord(row interface{ Scan(...any) error }) (*model.FileRecord, error) {
	var (
		rec                      model.FileRecord
		uploadTime, lastModified string
		isPublic, locked         int
		createdBy, originalURL   sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.Filename, &rec.FilePath, &rec.Size, &uploadTime, &lastModified,
		&isPublic, &rec.ContentType, &createdBy, &rec.Description, &rec.Notes,
		&originalURL, &locked,
	)
	if err != nil {
		return nil, err
	}
	rec.UploadTime = parseTime(uploadTime)
	rec.LastModified = parseTime(lastModified)
	rec.IsPublic = isPublic != 0
	rec.Locked = locked != 0
	if createdBy.Valid {
		rec.CreatedBy = &createdBy.String
	}
	if originalURL.Valid {
		rec.OriginalURL = &originalURL.String
	}
	return &rec, nil
}

// GetByPath возвращает запись с тегами или ErrNotFound.
func (r *fileRepo) GetByPath(ctx context.Context, filePath string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_metadata WHERE file_path = ?`, fileColumns)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, filePath))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения метаданных %s: %w", filePath, err)
	}

	tags, err := r.tagsFor(ctx, r.db, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Tags = tags
	return rec, nil
}

// tagsFor возвращает отсортированные теги записи.
func (r *fileRepo) tagsFor(ctx context.Context, db DBTX, fileID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT tag FROM file_tags WHERE file_id = ? ORDER BY tag`, fileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения тегов: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("ошибка сканирования тега: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Upsert создаёт или обновляет запись вместе с тегами в одной транзакции.
func (r *fileRepo) Upsert(ctx context.Context, rec *model.FileRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback после commit — no-op

	_, err = tx.ExecContext(ctx, `
		INSERT INTO file_metadata
			(filename, file_path, size, upload_time, last_modified, is_public,
			 content_type, created_by, description, notes, original_url, locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_path) DO UPDATE SET
			filename = excluded.filename,
			size = excluded.size,
			last_modified = excluded.last_modified,
			is_public = excluded.is_public,
			content_type = excluded.content_type,
			created_by = excluded.created_by,
			description = excluded.description,
			notes = excluded.notes,
			original_url = excluded.original_url,
			locked = excluded.locked,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		rec.Filename, rec.FilePath, rec.Size,
		formatTime(rec.UploadTime), formatTime(rec.LastModified),
		boolToInt(rec.IsPublic), rec.ContentType, rec.CreatedBy,
		rec.Description, rec.Notes, rec.OriginalURL, boolToInt(rec.Locked),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения метаданных %s: %w", rec.FilePath, err)
	}

	var fileID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM file_metadata WHERE file_path = ?`, rec.FilePath,
	).Scan(&fileID); err != nil {
		return fmt.Errorf("ошибка получения id записи %s: %w", rec.FilePath, err)
	}
	rec.ID = fileID

	// Полная замена тегов: delete-then-insert
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM file_tags WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("ошибка удаления тегов %s: %w", rec.FilePath, err)
	}
	for _, tag := range rec.Tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO file_tags (file_id, tag) VALUES (?, ?)`,
			fileID, tag); err != nil {
			return fmt.Errorf("ошибка записи тега %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// UpdatePermission обновляет is_public и last_modified записи.
func (r *fileRepo) UpdatePermission(ctx context.Context, filePath string, isPublic bool, modified string) error {
	return r.updateFlag(ctx, `is_public`, filePath, boolToInt(isPublic), modified)
}

// UpdateLock обновляет locked и last_modified записи.
func (r *fileRepo) UpdateLock(ctx context.Context, filePath string, locked bool, modified string) error {
	return r.updateFlag(ctx, `locked`, filePath, boolToInt(locked), modified)
}

// updateFlag — общий UPDATE для битовых полей. column — из фиксированного
// набора вызывающих методов, не из пользовательского ввода.
func (r *fileRepo) updateFlag(ctx context.Context, column, filePath string, value int, modified string) error {
	query := fmt.Sprintf(`
		UPDATE file_metadata
		SET %s = ?, last_modified = ?, updated_at = strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', 'now')
		WHERE file_path = ?`, column)

	res, err := r.db.ExecContext(ctx, query, value, modified, filePath)
	if err != nil {
		return fmt.Errorf("ошибка обновления %s для %s: %w", column, filePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка проверки результата: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Move переносит запись на новый путь.
func (r *fileRepo) Move(ctx context.Context, oldPath, newPath, newName string, modified string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE file_metadata
		SET file_path = ?, filename = ?, last_modified = ?,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE file_path = ?`,
		newPath, newName, modified, oldPath)
	if err != nil {
		return fmt.Errorf("ошибка перемещения записи %s: %w", oldPath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка проверки результата: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет запись и её теги. Отсутствие записи — не ошибка.
func (r *fileRepo) Delete(ctx context.Context, filePath string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var fileID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM file_metadata WHERE file_path = ?`, filePath).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ошибка поиска записи %s: %w", filePath, err)
	}

	// Сначала теги, затем основная строка
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("ошибка удаления тегов %s: %w", filePath, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_metadata WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("ошибка удаления записи %s: %w", filePath, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// ListAll возвращает (id, путь) всех записей в порядке id ASC.
// Порядок детерминированный: он же определяет порядок усечения
// списка orphan-записей при лимите max_orphans_per_run.
func (r *fileRepo) ListAll(ctx context.Context) ([]FileRef, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_path FROM file_metadata ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления записей: %w", err)
	}
	defer rows.Close()

	var refs []FileRef
	for rows.Next() {
		var ref FileRef
		if err := rows.Scan(&ref.ID, &ref.FilePath); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeleteBatch удаляет записи и их теги по списку id в одной транзакции.
func (r *fileRepo) DeleteBatch(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	// Сначала теги, затем основные строки
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM file_tags WHERE file_id IN (%s)`, placeholders),
		args...); err != nil {
		return 0, fmt.Errorf("ошибка удаления тегов батча: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM file_metadata WHERE id IN (%s)`, placeholders),
		args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления записей батча: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки результата: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return int(n), nil
}

// BackupRecords возвращает полные строки с тегами для JSON-бэкапа.
func (r *fileRepo) BackupRecords(ctx context.Context, ids []int64) ([]model.BackupRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, filename, file_path, size, upload_time, last_modified,
		       is_public, content_type, created_by, description, notes,
		       original_url, locked, created_at, updated_at
		FROM file_metadata WHERE id IN (%s) ORDER BY id ASC`, placeholders),
		args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей для бэкапа: %w", err)
	}
	defer rows.Close()

	var records []model.BackupRecord
	for rows.Next() {
		var (
			rec                    model.BackupRecord
			isPublic, locked       int
			createdBy, originalURL sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.Filename, &rec.FilePath, &rec.Size,
			&rec.UploadTime, &rec.LastModified, &isPublic, &rec.ContentType,
			&createdBy, &rec.Description, &rec.Notes, &originalURL,
			&locked, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи бэкапа: %w", err)
		}
		rec.IsPublic = isPublic != 0
		rec.Locked = locked != 0
		if createdBy.Valid {
			rec.CreatedBy = &createdBy.String
		}
		if originalURL.Valid {
			rec.OriginalURL = &originalURL.String
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		tags, err := r.tagsFor(ctx, r.db, records[i].ID)
		if err != nil {
			return nil, err
		}
		if tags == nil {
			tags = []string{}
		}
		records[i].Tags = tags
	}
	return records, nil
}

// Search ищет записи по подстроке в имени файла, описании, заметках и тегах.
func (r *fileRepo) Search(ctx context.Context, query string, limit int) ([]*model.FileRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	pattern := "%" + query + "%"

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT %s FROM file_metadata f
		LEFT JOIN file_tags t ON t.file_id = f.id
		WHERE f.filename LIKE ? OR f.description LIKE ? OR f.notes LIKE ? OR t.tag LIKE ?
		ORDER BY f.file_path
		LIMIT ?`, prefixColumns("f")),
		pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска записей: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования результата поиска: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range result {
		tags, err := r.tagsFor(ctx, r.db, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Tags = tags
	}
	return result, nil
}

// Count возвращает количество записей file_metadata.
func (r *fileRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_metadata`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	return n, nil
}

// prefixColumns добавляет алиас таблицы к списку fileColumns.
func prefixColumns(alias string) string {
	cols := strings.Split(fileColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
