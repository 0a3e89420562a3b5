package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/sqlite"
)

// testEnv — собранный стек сервисов поверх временной базы и storage root.
type testEnv struct {
	db      *sql.DB
	store   *filestore.FileStore
	files   repository.FileRepository
	dirs    repository.DirectoryRepository
	logRepo repository.CleanupRepository
	cache   *CacheService
	meta    *MetadataService
	checker *ConsistencyChecker
}

// newTestEnv создаёт стек сервисов во временных директориях.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	db, err := sqlite.Open(filepath.Join(root, "metadata.db"))
	if err != nil {
		t.Fatalf("ошибка открытия тестовой базы: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := filestore.New(root)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	files := repository.NewFileRepository(db)
	dirs := repository.NewDirectoryRepository(db)
	cache := NewCacheService(128, time.Minute)
	meta := NewMetadataService(files, dirs, store, cache, "metadata.db", logger)

	return &testEnv{
		db:      db,
		store:   store,
		files:   files,
		dirs:    dirs,
		logRepo: repository.NewCleanupRepository(db),
		cache:   cache,
		meta:    meta,
		checker: NewConsistencyChecker(files, store, meta, logger),
	}
}

// newCleanupService собирает сервис очистки поверх окружения.
func (e *testEnv) newCleanupService(t *testing.T) *CleanupService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewCleanupService(context.Background(), e.files, e.logRepo, e.checker, e.store, e.cache, logger)
	if err != nil {
		t.Fatalf("ошибка создания сервиса очистки: %v", err)
	}
	return svc
}

// writeFile сохраняет файл в storage root.
func (e *testEnv) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	if _, err := e.store.Save(rel, strings.NewReader(content)); err != nil {
		t.Fatalf("ошибка записи файла %s: %v", rel, err)
	}
}

// register создаёт запись метаданных для файла (сам файл не обязателен).
func (e *testEnv) register(t *testing.T, rel string) int64 {
	t.Helper()
	rec, err := e.meta.Create(context.Background(), rel, 1, CreateOptions{})
	if err != nil {
		t.Fatalf("ошибка регистрации %s: %v", rel, err)
	}
	return rec.ID
}
