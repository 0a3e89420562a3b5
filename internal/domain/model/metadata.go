// Пакет model — доменные структуры File Server.
// FileRecord и DirectoryRecord — строки side-channel базы метаданных,
// зеркалирующей состояние файловой системы в storage root.
package model

import (
	"path"
	"time"
)

// FileRecord — метаданные одного файла в storage root.
// Ключ — FilePath (относительный путь внутри storage root, уникальный).
type FileRecord struct {
	// ID — первичный ключ в file_metadata (0 = запись ещё не сохранена)
	ID int64 `json:"id,omitempty"`
	// Filename — базовое имя файла
	Filename string `json:"filename"`
	// FilePath — относительный путь внутри storage root (уникальный ключ)
	FilePath string `json:"file_path"`
	// Size — размер файла в байтах (>= 0)
	Size int64 `json:"size"`
	// UploadTime — время первичной регистрации файла
	UploadTime time.Time `json:"upload_time"`
	// LastModified — время последнего изменения метаданных.
	// Инвариант: LastModified >= UploadTime.
	LastModified time.Time `json:"last_modified"`
	// IsPublic — доступен ли файл без аутентификации
	IsPublic bool `json:"is_public"`
	// ContentType — MIME-тип содержимого
	ContentType string `json:"content_type,omitempty"`
	// CreatedBy — кто загрузил файл (nil = неизвестно)
	CreatedBy *string `json:"created_by,omitempty"`
	// Tags — пользовательские теги (множество, без дубликатов)
	Tags []string `json:"tags"`
	// Description — описание файла
	Description string `json:"description,omitempty"`
	// Notes — произвольные заметки
	Notes string `json:"notes,omitempty"`
	// OriginalURL — URL источника, если файл был скачан извне
	OriginalURL *string `json:"original_url,omitempty"`
	// Locked — защита от удаления и перемещения
	Locked bool `json:"locked"`
}

// DirectoryRecord — метаданные директории в storage root.
type DirectoryRecord struct {
	// ID — первичный ключ в directory_metadata
	ID int64 `json:"id,omitempty"`
	// DirectoryPath — относительный путь директории (уникальный ключ)
	DirectoryPath string `json:"directory_path"`
	// IsPublic — явное разрешение директории.
	// nil означает "не задано": разрешение наследуется от родителя.
	IsPublic *bool `json:"is_public"`
	// Locked — защита директории от изменений
	Locked bool `json:"locked"`
	// Description — описание директории
	Description string `json:"description,omitempty"`
	// CreatedBy — кто создал запись
	CreatedBy *string `json:"created_by,omitempty"`
}

// EntryType — тип элемента листинга.
type EntryType string

const (
	// EntryFile — обычный файл.
	EntryFile EntryType = "file"
	// EntryDirectory — директория.
	EntryDirectory EntryType = "directory"
)

// Entry — один элемент листинга директории с разрешённой видимостью.
// Для файлов без записи метаданных поля заполняются значениями по
// умолчанию (private, unlocked) без изменения базы.
type Entry struct {
	// Name — базовое имя элемента
	Name string `json:"name"`
	// Path — относительный путь внутри storage root
	Path string `json:"path"`
	// Type — file или directory
	Type EntryType `json:"type"`
	// Size — размер в байтах (0 для директорий)
	Size int64 `json:"size"`
	// IsPublic — эффективное разрешение (для директорий — с учётом наследования)
	IsPublic bool `json:"is_public"`
	// Locked — флаг блокировки
	Locked bool `json:"locked"`
	// HasMetadata — существует ли запись в базе метаданных
	HasMetadata bool `json:"has_metadata"`
	// Tags — теги файла (пусто для директорий и файлов без метаданных)
	Tags []string `json:"tags,omitempty"`
	// ContentType — MIME-тип (только для файлов с метаданными)
	ContentType string `json:"content_type,omitempty"`
}

// BackupRecord — полная строка file_metadata с тегами для JSON-бэкапа
// перед удалением orphaned-записей. Имена полей совпадают со столбцами
// таблицы, чтобы бэкап можно было восстановить вручную.
type BackupRecord struct {
	ID           int64    `json:"id"`
	Filename     string   `json:"filename"`
	FilePath     string   `json:"file_path"`
	Size         int64    `json:"size"`
	UploadTime   string   `json:"upload_time"`
	LastModified string   `json:"last_modified"`
	IsPublic     bool     `json:"is_public"`
	ContentType  string   `json:"content_type"`
	CreatedBy    *string  `json:"created_by"`
	Description  string   `json:"description"`
	Notes        string   `json:"notes"`
	OriginalURL  *string  `json:"original_url"`
	Locked       bool     `json:"locked"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
	Tags         []string `json:"tags"`
}

// ParentPath возвращает родительский путь для относительного пути
// внутри storage root. path.Dir("a") == ".", path.Dir(".") == "." —
// обход наследования разрешений завершается, когда родитель
// совпадает с исходным путём.
func ParentPath(p string) string {
	return path.Dir(path.Clean(p))
}
