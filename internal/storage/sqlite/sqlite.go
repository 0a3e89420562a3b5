// Пакет sqlite — открытие базы метаданных и применение миграций схемы.
// База — side-channel хранилище состояния файловой системы:
// file_metadata, file_tags, directory_metadata, cleanup_log,
// cleanup_config, file_shares.
//
// Доступ — database/sql + mattn/go-sqlite3, чистый параметризованный SQL
// без ORM. Миграции — golang-migrate с embedded iofs источником.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // драйвер sqlite3 для database/sql
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open открывает базу метаданных по указанному пути и применяет
// все миграции схемы. Директория базы создаётся при необходимости.
//
// Pragmas: foreign_keys=on (каскадное удаление тегов),
// journal_mode=WAL (конкурентное чтение при фоновой очистке),
// busy_timeout=5s.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию базы %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы %s: %w", dbPath, err)
	}

	// SQLite — однописательная база: ограничиваем пул, чтобы
	// конкурентные записи сериализовались на уровне database/sql.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("база недоступна %s: %w", dbPath, err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate применяет все невыполненные миграции схемы.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка чтения миграций: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("ошибка инициализации драйвера миграций: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}
	return nil
}
