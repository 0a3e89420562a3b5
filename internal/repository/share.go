package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Share — публичная или приватная ссылка на файл.
type Share struct {
	// ID — UUID ссылки
	ID string `json:"id"`
	// FilePath — относительный путь файла внутри storage root
	FilePath string `json:"file_path"`
	// IsPublic — режим доступа по ссылке
	IsPublic bool `json:"is_public"`
}

// ShareRepository — доступ к таблице file_shares.
// На пару (file_path, is_public) существует не более одной ссылки.
type ShareRepository interface {
	// GetByFile возвращает ссылку для пары (путь, режим) или ErrNotFound.
	GetByFile(ctx context.Context, filePath string, isPublic bool) (*Share, error)
	// GetByID возвращает ссылку по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*Share, error)
	// Insert создаёт новую ссылку.
	Insert(ctx context.Context, share *Share) error
	// Delete удаляет ссылку по UUID. Возвращает ErrNotFound, если её нет.
	Delete(ctx context.Context, id string) error
	// DeleteByFile удаляет все ссылки файла (при удалении или перемещении).
	DeleteByFile(ctx context.Context, filePath string) error
}

// shareRepo — реализация ShareRepository через database/sql.
type shareRepo struct {
	db *sql.DB
}

// NewShareRepository создаёт репозиторий ссылок.
func NewShareRepository(db *sql.DB) ShareRepository {
	return &shareRepo{db: db}
}

func (r *shareRepo) GetByFile(ctx context.Context, filePath string, isPublic bool) (*Share, error) {
	share := &Share{}
	var public int
	err := r.db.QueryRowContext(ctx,
		`SELECT id, file_path, is_public FROM file_shares WHERE file_path = ? AND is_public = ?`,
		filePath, boolToInt(isPublic),
	).Scan(&share.ID, &share.FilePath, &public)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска ссылки для %s: %w", filePath, err)
	}
	share.IsPublic = public != 0
	return share, nil
}

func (r *shareRepo) GetByID(ctx context.Context, id string) (*Share, error) {
	share := &Share{}
	var public int
	err := r.db.QueryRowContext(ctx,
		`SELECT id, file_path, is_public FROM file_shares WHERE id = ?`, id,
	).Scan(&share.ID, &share.FilePath, &public)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска ссылки %s: %w", id, err)
	}
	share.IsPublic = public != 0
	return share, nil
}

func (r *shareRepo) Insert(ctx context.Context, share *Share) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO file_shares (id, file_path, is_public) VALUES (?, ?, ?)`,
		share.ID, share.FilePath, boolToInt(share.IsPublic))
	if err != nil {
		return fmt.Errorf("ошибка создания ссылки для %s: %w", share.FilePath, err)
	}
	return nil
}

func (r *shareRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_shares WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления ссылки %s: %w", id, err)
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

func (r *shareRepo) DeleteByFile(ctx context.Context, filePath string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM file_shares WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("ошибка удаления ссылок файла %s: %w", filePath, err)
	}
	return nil
}
