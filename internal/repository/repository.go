// Пакет repository — слой доступа к базе метаданных SQLite.
// Все запросы — чистый параметризованный SQL через database/sql, без ORM.
// Даты хранятся как строки RFC3339 в UTC.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *sql.DB, так и *sql.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// timeFormat — формат хранения дат в базе (RFC3339, UTC).
const timeFormat = time.RFC3339

// formatTime сериализует время для записи в базу.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTime разбирает время из строки базы.
// Пустая строка или некорректный формат дают нулевое время:
// записи со сломанными датами не должны ронять выборку.
func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// boolToInt сериализует bool для SQLite (0/1).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
