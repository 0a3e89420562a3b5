// share.go — сервис публичных ссылок на файлы.
// На пару (файл, режим доступа) существует не более одной ссылки:
// повторный запрос возвращает уже созданный UUID.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
)

// ErrFileNotFound — файл отсутствует в storage root.
var ErrFileNotFound = errors.New("файл не найден")

// ShareService — управление ссылками на файлы.
type ShareService struct {
	shares repository.ShareRepository
	store  *filestore.FileStore
	logger *slog.Logger
}

// NewShareService создаёт сервис ссылок.
func NewShareService(shares repository.ShareRepository, store *filestore.FileStore, logger *slog.Logger) *ShareService {
	return &ShareService{
		shares: shares,
		store:  store,
		logger: logger.With(slog.String("component", "shares")),
	}
}

// GetOrCreate возвращает существующую ссылку для пары (путь, режим)
// или создаёт новую с UUID-идентификатором.
func (s *ShareService) GetOrCreate(ctx context.Context, filePath string, isPublic bool) (*repository.Share, error) {
	p, err := normalizePath(filePath)
	if err != nil {
		return nil, err
	}
	if !s.store.Exists(p) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}

	share, err := s.shares.GetByFile(ctx, p, isPublic)
	if err == nil {
		return share, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	share = &repository.Share{
		ID:       uuid.NewString(),
		FilePath: p,
		IsPublic: isPublic,
	}
	if err := s.shares.Insert(ctx, share); err != nil {
		return nil, err
	}

	s.logger.Info("Создана ссылка на файл",
		slog.String("share_id", share.ID),
		slog.String("file_path", p),
		slog.Bool("is_public", isPublic),
	)
	return share, nil
}

// Resolve возвращает ссылку по UUID или repository.ErrNotFound.
// Ссылка на файл, исчезнувший с диска, считается несуществующей.
func (s *ShareService) Resolve(ctx context.Context, id string) (*repository.Share, error) {
	share, err := s.shares.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.store.Exists(share.FilePath) {
		return nil, repository.ErrNotFound
	}
	return share, nil
}

// Delete удаляет ссылку по UUID.
func (s *ShareService) Delete(ctx context.Context, id string) error {
	return s.shares.Delete(ctx, id)
}

// DeleteByFile удаляет все ссылки файла (вызывается при удалении файла).
func (s *ShareService) DeleteByFile(ctx context.Context, filePath string) error {
	p, err := normalizePath(filePath)
	if err != nil {
		return err
	}
	return s.shares.DeleteByFile(ctx, p)
}
