package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
)

// DirectoryRepository — доступ к таблице directory_metadata.
// is_public хранится как nullable: NULL означает "наследовать от родителя".
type DirectoryRepository interface {
	// GetByPath возвращает запись директории или ErrNotFound.
	GetByPath(ctx context.Context, dirPath string) (*model.DirectoryRecord, error)
	// GetPermission возвращает явное разрешение директории одного уровня.
	// (nil, nil) — запись есть, но разрешение не задано; ErrNotFound — записи нет.
	GetPermission(ctx context.Context, dirPath string) (*bool, error)
	// UpsertPermission создаёт или обновляет явное разрешение директории.
	UpsertPermission(ctx context.Context, dirPath string, isPublic bool, createdBy *string) error
	// UpsertLock создаёт или обновляет флаг блокировки директории.
	UpsertLock(ctx context.Context, dirPath string, locked bool, createdBy *string) error
	// GetLock возвращает флаг блокировки (false, если записи нет).
	GetLock(ctx context.Context, dirPath string) (bool, error)
}

// dirRepo — реализация DirectoryRepository через database/sql.
type dirRepo struct {
	db *sql.DB
}

// NewDirectoryRepository создаёт репозиторий метаданных директорий.
func NewDirectoryRepository(db *sql.DB) DirectoryRepository {
	return &dirRepo{db: db}
}

// GetByPath возвращает запись директории или ErrNotFound.
func (r *dirRepo) GetByPath(ctx context.Context, dirPath string) (*model.DirectoryRecord, error) {
	var (
		rec       model.DirectoryRecord
		isPublic  sql.NullInt64
		locked    int
		createdBy sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, directory_path, is_public, locked, description, created_by
		FROM directory_metadata WHERE directory_path = ?`, dirPath,
	).Scan(&rec.ID, &rec.DirectoryPath, &isPublic, &locked, &rec.Description, &createdBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения метаданных директории %s: %w", dirPath, err)
	}

	if isPublic.Valid {
		v := isPublic.Int64 != 0
		rec.IsPublic = &v
	}
	rec.Locked = locked != 0
	if createdBy.Valid {
		rec.CreatedBy = &createdBy.String
	}
	return &rec, nil
}

// GetPermission возвращает явное разрешение директории одного уровня.
func (r *dirRepo) GetPermission(ctx context.Context, dirPath string) (*bool, error) {
	var isPublic sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT is_public FROM directory_metadata WHERE directory_path = ?`, dirPath,
	).Scan(&isPublic)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения разрешения директории %s: %w", dirPath, err)
	}
	if !isPublic.Valid {
		return nil, nil
	}
	v := isPublic.Int64 != 0
	return &v, nil
}

// UpsertPermission создаёт или обновляет явное разрешение директории.
func (r *dirRepo) UpsertPermission(ctx context.Context, dirPath string, isPublic bool, createdBy *string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO directory_metadata (directory_path, is_public, created_by)
		VALUES (?, ?, ?)
		ON CONFLICT (directory_path) DO UPDATE SET
			is_public = excluded.is_public,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		dirPath, boolToInt(isPublic), createdBy)
	if err != nil {
		return fmt.Errorf("ошибка сохранения разрешения директории %s: %w", dirPath, err)
	}
	return nil
}

// UpsertLock создаёт или обновляет флаг блокировки директории.
func (r *dirRepo) UpsertLock(ctx context.Context, dirPath string, locked bool, createdBy *string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO directory_metadata (directory_path, locked, created_by)
		VALUES (?, ?, ?)
		ON CONFLICT (directory_path) DO UPDATE SET
			locked = excluded.locked,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		dirPath, boolToInt(locked), createdBy)
	if err != nil {
		return fmt.Errorf("ошибка сохранения блокировки директории %s: %w", dirPath, err)
	}
	return nil
}

// GetLock возвращает флаг блокировки директории (false, если записи нет).
func (r *dirRepo) GetLock(ctx context.Context, dirPath string) (bool, error) {
	var locked int
	err := r.db.QueryRowContext(ctx,
		`SELECT locked FROM directory_metadata WHERE directory_path = ?`, dirPath,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка получения блокировки директории %s: %w", dirPath, err)
	}
	return locked != 0, nil
}
