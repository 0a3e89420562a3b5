// Пакет filestore — операции с физическими файлами внутри storage root.
// Все пути — относительные; выход за пределы корня запрещён.
// Запись выполняется атомарно: temp файл → fsync → rename.
package filestore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore — управление физическими файлами в storage root.
type FileStore struct {
	// rootDir — корневая директория хранения файлов (FS_STORAGE_ROOT)
	rootDir string
}

// New создаёт новый FileStore. Создаёт корневую директорию,
// если она не существует.
func New(rootDir string) (*FileStore, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь storage root %s: %w", rootDir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать storage root %s: %w", abs, err)
	}
	return &FileStore{rootDir: abs}, nil
}

// Root возвращает абсолютный путь корневой директории.
func (s *FileStore) Root() string {
	return s.rootDir
}

// Resolve преобразует относительный путь в абсолютный с проверкой,
// что результат не выходит за пределы storage root.
func (s *FileStore) Resolve(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("абсолютный путь недопустим: %s", relPath)
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("путь выходит за пределы storage root: %s", relPath)
	}
	return filepath.Join(s.rootDir, clean), nil
}

// Save записывает данные из reader в файл по относительному пути.
// Родительские директории создаются автоматически.
// Возвращает размер записанных данных.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *FileStore) Save(relPath string, reader io.Reader) (int64, error) {
	fullPath, err := s.Resolve(relPath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return 0, fmt.Errorf("ошибка создания директории для %s: %w", relPath, err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return size, nil
}

// WriteFileAtomic атомарно записывает байты в файл по относительному пути.
// Используется для JSON-бэкапов метаданных перед очисткой.
func (s *FileStore) WriteFileAtomic(relPath string, data []byte) error {
	_, err := s.Save(relPath, strings.NewReader(string(data)))
	return err
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (s *FileStore) Open(relPath string) (*os.File, error) {
	fullPath, err := s.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", relPath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", relPath, err)
	}
	return f, nil
}

// Stat возвращает информацию о файле или директории.
func (s *FileStore) Stat(relPath string) (os.FileInfo, error) {
	fullPath, err := s.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	return os.Stat(fullPath)
}

// Exists проверяет существование обычного файла по относительному пути.
func (s *FileStore) Exists(relPath string) bool {
	fullPath, err := s.Resolve(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// DirExists проверяет существование директории по относительному пути.
func (s *FileStore) DirExists(relPath string) bool {
	fullPath, err := s.Resolve(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.IsDir()
}

// Delete удаляет файл. Возвращает nil, если файл уже не существует.
func (s *FileStore) Delete(relPath string) error {
	fullPath, err := s.Resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", relPath, err)
	}
	return nil
}

// Move перемещает файл внутри storage root.
// Родительская директория назначения создаётся автоматически.
func (s *FileStore) Move(oldRel, newRel string) error {
	oldPath, err := s.Resolve(oldRel)
	if err != nil {
		return err
	}
	newPath, err := s.Resolve(newRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o750); err != nil {
		return fmt.Errorf("ошибка создания директории для %s: %w", newRel, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("ошибка перемещения %s -> %s: %w", oldRel, newRel, err)
	}
	return nil
}

// ListDir возвращает содержимое одного уровня директории.
func (s *FileStore) ListDir(relPath string) ([]os.DirEntry, error) {
	fullPath, err := s.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", relPath, err)
	}
	return entries, nil
}

// Walk обходит все элементы под относительным путём и вызывает fn
// для каждого с путём относительно storage root (слэши — прямые).
// Ошибка обхода отдельного элемента (например, нечитаемой директории)
// передаётся в fn: вернув nil или fs.SkipDir, fn продолжает обход.
// Обход прерывается при отмене контекста или ошибке fn.
func (s *FileStore) Walk(ctx context.Context, relPath string, fn func(rel string, d fs.DirEntry, err error) error) error {
	start, err := s.Resolve(relPath)
	if err != nil {
		return err
	}
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, relErr := filepath.Rel(s.rootDir, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			if walkErr != nil {
				return walkErr
			}
			return nil
		}
		return fn(filepath.ToSlash(rel), d, walkErr)
	})
}
