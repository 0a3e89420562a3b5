package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestCheck_EmptyStore проверяет сверку пустой базы и пустого диска.
func TestCheck_EmptyStore(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.checker.Check(context.Background(), nil)
	if err != nil {
		t.Fatalf("ошибка сверки: %v", err)
	}
	if report.FilesChecked != 0 {
		t.Errorf("FilesChecked: ожидалось 0, получено %d", report.FilesChecked)
	}
	if len(report.OrphanMetadata) != 0 || len(report.MissingMetadata) != 0 {
		t.Errorf("пустое состояние: orphan=%v missing=%v",
			report.OrphanMetadata, report.MissingMetadata)
	}
}

// TestCheck_DetectsOrphansAndMissing проверяет оба прохода сверки.
func TestCheck_DetectsOrphansAndMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Согласованная пара: файл + запись
	env.writeFile(t, "ok.txt", "data")
	env.register(t, "ok.txt")

	// Orphan: запись без файла
	orphanID := env.register(t, "ghost.txt")

	// Missing: файл без записи
	env.writeFile(t, "unregistered.txt", "data")

	report, err := env.checker.Check(ctx, nil)
	if err != nil {
		t.Fatalf("ошибка сверки: %v", err)
	}

	if report.FilesChecked != 2 {
		t.Errorf("FilesChecked: ожидалось 2, получено %d", report.FilesChecked)
	}
	if len(report.OrphanMetadata) != 1 {
		t.Fatalf("ожидался 1 orphan, получено %d", len(report.OrphanMetadata))
	}
	if report.OrphanMetadata[0].ID != orphanID || report.OrphanMetadata[0].FilePath != "ghost.txt" {
		t.Errorf("orphan: получено %+v", report.OrphanMetadata[0])
	}
	if len(report.MissingMetadata) != 1 || report.MissingMetadata[0] != "unregistered.txt" {
		t.Errorf("missing: получено %v", report.MissingMetadata)
	}
}

// TestCheck_ExcludePatterns проверяет исключение путей по подстрокам.
func TestCheck_ExcludePatterns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Записи без файлов, но пути содержат исключаемые подстроки
	env.register(t, "upload.tmp")
	env.register(t, "cache/file.temp")
	env.register(t, "real-orphan.txt")

	report, err := env.checker.Check(ctx, []string{".tmp", ".temp"})
	if err != nil {
		t.Fatalf("ошибка сверки: %v", err)
	}

	if len(report.OrphanMetadata) != 1 {
		t.Fatalf("ожидался 1 orphan, получено %d: %v",
			len(report.OrphanMetadata), report.OrphanMetadata)
	}
	if report.OrphanMetadata[0].FilePath != "real-orphan.txt" {
		t.Errorf("orphan: ожидался real-orphan.txt, получено %s",
			report.OrphanMetadata[0].FilePath)
	}
}

// TestCheck_SkipsServiceFiles проверяет, что база метаданных и бэкапы
// не попадают в missing-список.
func TestCheck_SkipsServiceFiles(t *testing.T) {
	env := newTestEnv(t)

	env.writeFile(t, "metadata_backup_20260101_000000.json", "[]")
	env.writeFile(t, ".hidden", "x")
	// metadata.db уже лежит в storage root

	report, err := env.checker.Check(context.Background(), nil)
	if err != nil {
		t.Fatalf("ошибка сверки: %v", err)
	}
	if len(report.MissingMetadata) != 0 {
		t.Errorf("служебные файлы не должны считаться missing: %v", report.MissingMetadata)
	}
}

// TestCreateMissing проверяет восполнение отсутствующих записей.
func TestCreateMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.writeFile(t, "new1.txt", "aaa")
	env.writeFile(t, "dir/new2.txt", "bbbb")

	// Dry-run не изменяет базу
	result, err := env.checker.CreateMissing(ctx, nil, true)
	if err != nil {
		t.Fatalf("ошибка dry-run: %v", err)
	}
	if result.Found != 2 || result.Created != 0 || !result.DryRun {
		t.Errorf("dry-run: ожидалось found=2 created=0, получено %+v", result)
	}
	if n, _ := env.files.Count(ctx); n != 0 {
		t.Errorf("dry-run не должен создавать записей, получено %d", n)
	}

	// Реальный запуск создаёт записи с размером с диска
	result, err = env.checker.CreateMissing(ctx, nil, false)
	if err != nil {
		t.Fatalf("ошибка восполнения: %v", err)
	}
	if result.Created != 2 {
		t.Errorf("ожидалось 2 созданных записи, получено %d", result.Created)
	}

	rec, ok, err := env.meta.Load(ctx, "new1.txt")
	if err != nil || !ok {
		t.Fatalf("запись new1.txt не создана: %v", err)
	}
	if rec.Size != 3 {
		t.Errorf("Size должен браться с диска: ожидалось 3, получено %d", rec.Size)
	}
	if rec.IsPublic {
		t.Error("восполненная запись по умолчанию приватна")
	}

	// Повторный запуск ничего не находит
	result, err = env.checker.CreateMissing(ctx, nil, false)
	if err != nil {
		t.Fatalf("ошибка повторного запуска: %v", err)
	}
	if result.Found != 0 {
		t.Errorf("повторный запуск: ожидалось 0, получено %d", result.Found)
	}
}

// TestCreateMissing_InheritsDirPermission проверяет наследование
// разрешений директорий при восполнении.
func TestCreateMissing_InheritsDirPermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.meta.SetDirectoryPermission(ctx, "pub", true, false, nil); err != nil {
		t.Fatalf("ошибка задания разрешения: %v", err)
	}
	env.writeFile(t, "pub/file.txt", "x")

	if _, err := env.checker.CreateMissing(ctx, nil, false); err != nil {
		t.Fatalf("ошибка восполнения: %v", err)
	}

	rec, ok, err := env.meta.Load(ctx, "pub/file.txt")
	if err != nil || !ok {
		t.Fatalf("запись не создана: %v", err)
	}
	if !rec.IsPublic {
		t.Error("восполненная запись должна наследовать public от директории")
	}
}

// TestCheck_ContinuesPastUnreadableDir проверяет, что ошибка обхода
// одной директории не скрывает missing-файлы, идущие после неё.
func TestCheck_ContinuesPastUnreadableDir(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.writeFile(t, "bad-dir/inner.txt", "x")
	env.writeFile(t, "zz-after.txt", "x")

	// Директория без прав чтения (от root обход всё равно проходит,
	// тогда ошибки в отчёте не будет — важна полнота missing-списка)
	badDir := filepath.Join(env.store.Root(), "bad-dir")
	if err := os.Chmod(badDir, 0o000); err != nil {
		t.Fatalf("ошибка chmod: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chmod(badDir, 0o750); err != nil {
			t.Errorf("ошибка восстановления прав: %v", err)
		}
	})

	report, err := env.checker.Check(ctx, nil)
	if err != nil {
		t.Fatalf("сверка не должна прерываться: %v", err)
	}

	found := false
	for _, rel := range report.MissingMetadata {
		if rel == "zz-after.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("zz-after.txt должен попасть в missing-список, получено %v",
			report.MissingMetadata)
	}
}
