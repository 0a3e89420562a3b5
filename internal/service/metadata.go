// metadata.go — сервис метаданных файлов и директорий.
//
// Единственная точка доступа к file_metadata/directory_metadata для
// API-слоя: оборачивает репозитории LRU-кэшем, штампует last_modified,
// разрешает наследование разрешений директорий.
//
// Операции чтения не имеют побочных эффектов: файл без записи метаданных
// получает синтезированные значения по умолчанию (private, unlocked),
// запись в базе не создаётся. Восполнение пропущенных записей —
// явная операция CreateMissing подсистемы сверки.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
)

// Ошибки сервиса метаданных.
var (
	// ErrInvalidPath — путь пуст, абсолютен или выходит за пределы storage root.
	ErrInvalidPath = errors.New("некорректный путь")
	// ErrLocked — файл или директория заблокированы.
	ErrLocked = errors.New("объект заблокирован")
)

// CreateOptions — параметры регистрации нового файла.
type CreateOptions struct {
	// IsPublic — разрешение по умолчанию; явное разрешение родительской
	// директории (наследуемое) имеет приоритет.
	IsPublic    bool
	ContentType string
	CreatedBy   *string
	OriginalURL *string
	Description string
	Tags        []string
}

// UpdateFields — частичное обновление описательных полей записи.
// nil-поля не изменяются.
type UpdateFields struct {
	Description *string   `json:"description,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	OriginalURL *string   `json:"original_url,omitempty"`
}

// DirectoryInfo — сводка по директории.
type DirectoryInfo struct {
	Path string `json:"path"`
	// IsPublic — эффективное разрешение с учётом наследования
	IsPublic bool `json:"is_public"`
	// Explicit — задано ли разрешение явно на этом уровне
	Explicit bool `json:"explicit"`
	Locked   bool `json:"locked"`
	// Files / Subdirs — количество элементов одного уровня
	Files   int `json:"files"`
	Subdirs int `json:"subdirs"`
}

// MetadataService — сервис метаданных файлов и директорий.
type MetadataService struct {
	files  repository.FileRepository
	dirs   repository.DirectoryRepository
	store  *filestore.FileStore
	cache  *CacheService
	logger *slog.Logger
	// dbFileName — базовое имя файла базы метаданных: он и его
	// WAL/SHM sidecar-ы исключаются из листингов и обходов
	dbFileName string
}

// NewMetadataService создаёт сервис метаданных.
func NewMetadataService(
	files repository.FileRepository,
	dirs repository.DirectoryRepository,
	store *filestore.FileStore,
	cache *CacheService,
	dbFileName string,
	logger *slog.Logger,
) *MetadataService {
	return &MetadataService{
		files:      files,
		dirs:       dirs,
		store:      store,
		cache:      cache,
		dbFileName: dbFileName,
		logger:     logger.With(slog.String("component", "metadata")),
	}
}

// normalizePath приводит относительный путь к каноническому виду
// (прямые слэши, без ведущего слэша) и валидирует его.
func normalizePath(p string) (string, error) {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "/")
	clean := path.Clean(p)
	if clean == "" || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return clean, nil
}

// normalizeDirPath — то же для путей директорий; корень ("." или "") допустим.
func normalizeDirPath(p string) (string, error) {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" || p == "." {
		return ".", nil
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return clean, nil
}

// isServiceFile сообщает, является ли имя служебным: база метаданных
// и её sidecar-ы, бэкапы очистки, скрытые файлы.
func (s *MetadataService) isServiceFile(name string) bool {
	switch {
	case name == s.dbFileName,
		name == s.dbFileName+"-wal",
		name == s.dbFileName+"-shm",
		name == s.dbFileName+"-journal":
		return true
	case strings.HasPrefix(name, "metadata_backup_"):
		return true
	case strings.HasPrefix(name, "."):
		return true
	case strings.HasSuffix(name, ".meta"), strings.HasSuffix(name, ".tmp"):
		return true
	}
	return false
}

// Load возвращает запись метаданных файла.
// Отсутствие записи — не ошибка: возвращается (nil, false, nil).
func (s *MetadataService) Load(ctx context.Context, filePath string) (*model.FileRecord, bool, error) {
	p, err := normalizePath(filePath)
	if err != nil {
		return nil, false, err
	}

	if rec, ok := s.cache.Get(p); ok {
		return rec, true, nil
	}

	rec, err := s.files.GetByPath(ctx, p)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.cache.Set(p, rec)
	return rec, true, nil
}

// Save создаёт или обновляет запись, штампуя last_modified текущим
// временем. Теги заменяются целиком.
func (s *MetadataService) Save(ctx context.Context, rec *model.FileRecord) error {
	p, err := normalizePath(rec.FilePath)
	if err != nil {
		return err
	}
	rec.FilePath = p
	if rec.Filename == "" {
		rec.Filename = path.Base(p)
	}
	now := time.Now().UTC()
	if rec.UploadTime.IsZero() {
		rec.UploadTime = now
	}
	rec.LastModified = now

	if err := s.files.Upsert(ctx, rec); err != nil {
		return err
	}
	s.cache.Delete(p)
	return nil
}

// Create регистрирует новый файл. Явное разрешение родительской
// директории (найденное рекурсивно вверх) имеет приоритет над
// opts.IsPublic.
func (s *MetadataService) Create(ctx context.Context, filePath string, size int64, opts CreateOptions) (*model.FileRecord, error) {
	p, err := normalizePath(filePath)
	if err != nil {
		return nil, err
	}

	isPublic := opts.IsPublic
	inherited, err := s.GetDirectoryPermission(ctx, model.ParentPath(p))
	if err != nil {
		return nil, err
	}
	if inherited != nil {
		isPublic = *inherited
	}

	now := time.Now().UTC()
	rec := &model.FileRecord{
		Filename:     path.Base(p),
		FilePath:     p,
		Size:         size,
		UploadTime:   now,
		LastModified: now,
		IsPublic:     isPublic,
		ContentType:  opts.ContentType,
		CreatedBy:    opts.CreatedBy,
		OriginalURL:  opts.OriginalURL,
		Description:  opts.Description,
		Tags:         opts.Tags,
	}

	if err := s.files.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	s.cache.Delete(p)
	return rec, nil
}

// Update изменяет описательные поля записи (description, notes, tags,
// original_url). Возвращает false, если записи нет.
func (s *MetadataService) Update(ctx context.Context, filePath string, fields UpdateFields) (*model.FileRecord, bool, error) {
	rec, ok, err := s.Load(ctx, filePath)
	if err != nil || !ok {
		return nil, ok, err
	}

	// Запись из Load разделяется с кэшем: изменения применяются к копии,
	// чтобы несохранённые значения не были видны другим читателям.
	updated := *rec
	updated.Tags = append([]string(nil), rec.Tags...)

	if fields.Description != nil {
		updated.Description = *fields.Description
	}
	if fields.Notes != nil {
		updated.Notes = *fields.Notes
	}
	if fields.Tags != nil {
		updated.Tags = *fields.Tags
	}
	if fields.OriginalURL != nil {
		updated.OriginalURL = fields.OriginalURL
	}

	if err := s.Save(ctx, &updated); err != nil {
		return nil, true, err
	}
	return &updated, true, nil
}

// SetPermission обновляет is_public файла.
// Возвращает false, если записи нет.
func (s *MetadataService) SetPermission(ctx context.Context, filePath string, isPublic bool) (bool, error) {
	p, err := normalizePath(filePath)
	if err != nil {
		return false, err
	}

	err = s.files.UpdatePermission(ctx, p, isPublic, time.Now().UTC().Format(time.RFC3339))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.cache.Delete(p)
	return true, nil
}

// SetLock обновляет locked файла. Возвращает false, если записи нет.
func (s *MetadataService) SetLock(ctx context.Context, filePath string, locked bool) (bool, error) {
	p, err := normalizePath(filePath)
	if err != nil {
		return false, err
	}

	err = s.files.UpdateLock(ctx, p, locked, time.Now().UTC().Format(time.RFC3339))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.cache.Delete(p)
	return true, nil
}

// IsFileLocked возвращает флаг блокировки файла (false без записи).
func (s *MetadataService) IsFileLocked(ctx context.Context, filePath string) (bool, error) {
	rec, ok, err := s.Load(ctx, filePath)
	if err != nil || !ok {
		return false, err
	}
	return rec.Locked, nil
}

// Move переносит файл на диске и в базе метаданных.
// Заблокированный файл не перемещается.
func (s *MetadataService) Move(ctx context.Context, oldPath, newPath string) error {
	op, err := normalizePath(oldPath)
	if err != nil {
		return err
	}
	np, err := normalizePath(newPath)
	if err != nil {
		return err
	}

	locked, err := s.IsFileLocked(ctx, op)
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("%w: %s", ErrLocked, op)
	}

	if err := s.store.Move(op, np); err != nil {
		return err
	}

	err = s.files.Move(ctx, op, np, path.Base(np), time.Now().UTC().Format(time.RFC3339))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	s.cache.Delete(op)
	s.cache.Delete(np)
	return nil
}

// Delete удаляет файл с диска и его запись метаданных.
// Заблокированный файл не удаляется.
func (s *MetadataService) Delete(ctx context.Context, filePath string) error {
	p, err := normalizePath(filePath)
	if err != nil {
		return err
	}

	locked, err := s.IsFileLocked(ctx, p)
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("%w: %s", ErrLocked, p)
	}

	if err := s.store.Delete(p); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, p); err != nil {
		return err
	}
	s.cache.Delete(p)
	return nil
}

// GetDirectoryPermission возвращает эффективное разрешение директории,
// поднимаясь к корню до первого явно заданного значения.
// nil — ни на одном уровне разрешение не задано.
// Обход завершается, когда родитель совпадает с текущим путём (корень).
func (s *MetadataService) GetDirectoryPermission(ctx context.Context, dirPath string) (*bool, error) {
	p, err := normalizeDirPath(dirPath)
	if err != nil {
		return nil, err
	}

	for {
		perm, err := s.dirs.GetPermission(ctx, p)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if err == nil && perm != nil {
			return perm, nil
		}

		parent := model.ParentPath(p)
		if parent == p {
			return nil, nil
		}
		p = parent
	}
}

// SetDirectoryPermission задаёт явное разрешение директории.
// При applyToChildren разрешение нерекурсивно применяется к каждому
// потомку поддерева (итеративный worklist, отменяемый контекстом):
// файлы получают UpdatePermission, поддиректории — явное разрешение.
func (s *MetadataService) SetDirectoryPermission(ctx context.Context, dirPath string, isPublic, applyToChildren bool, createdBy *string) error {
	p, err := normalizeDirPath(dirPath)
	if err != nil {
		return err
	}

	if err := s.dirs.UpsertPermission(ctx, p, isPublic, createdBy); err != nil {
		return err
	}
	if !applyToChildren {
		return nil
	}

	return s.applyToChildren(ctx, p, func(rel string, isDir bool) error {
		if isDir {
			return s.dirs.UpsertPermission(ctx, rel, isPublic, createdBy)
		}
		err := s.files.UpdatePermission(ctx, rel, isPublic, time.Now().UTC().Format(time.RFC3339))
		if errors.Is(err, repository.ErrNotFound) {
			// Файл без метаданных остаётся без записи: восполнение —
			// задача CreateMissing.
			return nil
		}
		if err == nil {
			s.cache.Delete(rel)
		}
		return err
	})
}

// SetDirectoryLock задаёт блокировку директории, опционально применяя
// её ко всем потомкам (нерекурсивно для каждого).
func (s *MetadataService) SetDirectoryLock(ctx context.Context, dirPath string, locked, applyToChildren bool, createdBy *string) error {
	p, err := normalizeDirPath(dirPath)
	if err != nil {
		return err
	}

	if err := s.dirs.UpsertLock(ctx, p, locked, createdBy); err != nil {
		return err
	}
	if !applyToChildren {
		return nil
	}

	return s.applyToChildren(ctx, p, func(rel string, isDir bool) error {
		if isDir {
			return s.dirs.UpsertLock(ctx, rel, locked, createdBy)
		}
		err := s.files.UpdateLock(ctx, rel, locked, time.Now().UTC().Format(time.RFC3339))
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err == nil {
			s.cache.Delete(rel)
		}
		return err
	})
}

// applyToChildren обходит физическое поддерево итеративным worklist-ом
// (без рекурсии) и вызывает fn для каждого потомка. Служебные файлы
// пропускаются. Отмена контекста прерывает обход.
func (s *MetadataService) applyToChildren(ctx context.Context, dirPath string, fn func(rel string, isDir bool) error) error {
	worklist := []string{dirPath}

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		current := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		entries, err := s.store.ListDir(current)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if s.isServiceFile(entry.Name()) {
				continue
			}
			rel := path.Join(current, entry.Name())
			if entry.IsDir() {
				if err := fn(rel, true); err != nil {
					return err
				}
				worklist = append(worklist, rel)
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			if err := fn(rel, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsDirectoryLocked возвращает флаг блокировки директории.
func (s *MetadataService) IsDirectoryLocked(ctx context.Context, dirPath string) (bool, error) {
	p, err := normalizeDirPath(dirPath)
	if err != nil {
		return false, err
	}
	return s.dirs.GetLock(ctx, p)
}

// Info возвращает сводку по директории.
func (s *MetadataService) Info(ctx context.Context, dirPath string) (*DirectoryInfo, error) {
	p, err := normalizeDirPath(dirPath)
	if err != nil {
		return nil, err
	}

	perm, err := s.dirs.GetPermission(ctx, p)
	explicit := err == nil && perm != nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if perm == nil {
		if perm, err = s.GetDirectoryPermission(ctx, p); err != nil {
			return nil, err
		}
	}

	locked, err := s.dirs.GetLock(ctx, p)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.ListDir(p)
	if err != nil {
		return nil, err
	}
	info := &DirectoryInfo{
		Path:     p,
		IsPublic: perm != nil && *perm,
		Explicit: explicit,
		Locked:   locked,
	}
	for _, entry := range entries {
		if s.isServiceFile(entry.Name()) {
			continue
		}
		if entry.IsDir() {
			info.Subdirs++
		} else if entry.Type().IsRegular() {
			info.Files++
		}
	}
	return info, nil
}

// List возвращает содержимое одного уровня директории с разрешённой
// видимостью. canAccessPrivate=false скрывает приватные элементы.
// publicFilter (не nil) дополнительно оставляет только элементы
// с совпадающим is_public; приватные элементы по-прежнему скрыты
// от неаутентифицированных вызовов независимо от фильтра.
// Листинг не изменяет базу: файлы без метаданных получают значения
// по умолчанию (private).
func (s *MetadataService) List(ctx context.Context, dirPath string, canAccessPrivate bool, publicFilter *bool) ([]model.Entry, error) {
	p, err := normalizeDirPath(dirPath)
	if err != nil {
		return nil, err
	}

	dirEntries, err := s.store.ListDir(p)
	if err != nil {
		return nil, err
	}

	visible := func(e model.Entry) bool {
		if !e.IsPublic && !canAccessPrivate {
			return false
		}
		return publicFilter == nil || e.IsPublic == *publicFilter
	}

	result := make([]model.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.isServiceFile(de.Name()) {
			continue
		}
		rel := path.Join(p, de.Name())

		if de.IsDir() {
			entry, err := s.directoryEntry(ctx, rel, de.Name())
			if err != nil {
				return nil, err
			}
			if visible(entry) {
				result = append(result, entry)
			}
			continue
		}
		if !de.Type().IsRegular() {
			continue
		}

		entry, err := s.fileEntry(ctx, rel, de)
		if err != nil {
			return nil, err
		}
		if visible(entry) {
			result = append(result, entry)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Type != result[j].Type {
			return result[i].Type == model.EntryDirectory
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// directoryEntry собирает элемент листинга для директории.
func (s *MetadataService) directoryEntry(ctx context.Context, rel, name string) (model.Entry, error) {
	perm, err := s.GetDirectoryPermission(ctx, rel)
	if err != nil {
		return model.Entry{}, err
	}
	locked, err := s.dirs.GetLock(ctx, rel)
	if err != nil {
		return model.Entry{}, err
	}

	_, hasMeta := s.explicitDirMeta(ctx, rel)
	return model.Entry{
		Name:        name,
		Path:        rel,
		Type:        model.EntryDirectory,
		IsPublic:    perm != nil && *perm,
		Locked:      locked,
		HasMetadata: hasMeta,
	}, nil
}

// explicitDirMeta сообщает, есть ли у директории собственная запись.
func (s *MetadataService) explicitDirMeta(ctx context.Context, rel string) (*model.DirectoryRecord, bool) {
	rec, err := s.dirs.GetByPath(ctx, rel)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// fileEntry собирает элемент листинга для файла. Для файла без
// метаданных синтезируются значения по умолчанию без записи в базу.
func (s *MetadataService) fileEntry(ctx context.Context, rel string, de fs.DirEntry) (model.Entry, error) {
	rec, ok, err := s.Load(ctx, rel)
	if err != nil {
		return model.Entry{}, err
	}

	entry := model.Entry{
		Name: de.Name(),
		Path: rel,
		Type: model.EntryFile,
	}
	if info, err := de.Info(); err == nil {
		entry.Size = info.Size()
	}

	if ok {
		entry.IsPublic = rec.IsPublic
		entry.Locked = rec.Locked
		entry.HasMetadata = true
		entry.Tags = rec.Tags
		entry.ContentType = rec.ContentType
	}
	return entry, nil
}

// Search ищет файлы по подстроке; приватные результаты фильтруются
// для неаутентифицированных вызовов.
func (s *MetadataService) Search(ctx context.Context, query string, canAccessPrivate bool, limit int) ([]*model.FileRecord, error) {
	records, err := s.files.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if canAccessPrivate {
		return records, nil
	}
	visible := records[:0]
	for _, rec := range records {
		if rec.IsPublic {
			visible = append(visible, rec)
		}
	}
	return visible, nil
}
