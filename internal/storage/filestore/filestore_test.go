package filestore

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNew_CreatesRoot проверяет создание корневой директории.
func TestNew_CreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "storage")

	store, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	info, err := os.Stat(store.Root())
	if err != nil {
		t.Fatalf("корневая директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestResolve_RejectsEscape проверяет запрет выхода за пределы корня.
func TestResolve_RejectsEscape(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	bad := []string{
		"../outside.txt",
		"../../etc/passwd",
		"docs/../../outside.txt",
		"/etc/passwd",
	}
	for _, p := range bad {
		if _, err := store.Resolve(p); err == nil {
			t.Errorf("путь %q должен быть отклонён", p)
		}
	}

	// Внутренние ".." нормализуются, но остаются в пределах корня
	if _, err := store.Resolve("docs/../readme.txt"); err != nil {
		t.Errorf("путь docs/../readme.txt должен разрешаться: %v", err)
	}
}

// TestSave_AndOpen проверяет запись и чтение файла.
func TestSave_AndOpen(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("тестовое содержимое файла")
	size, err := store.Save("docs/readme.txt", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), size)
	}

	f, err := store.Open("docs/readme.txt")
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}

	// Временный файл не должен оставаться после записи
	if store.Exists("docs/readme.txt.tmp") {
		t.Error("временный файл не удалён после записи")
	}
}

// TestExists проверяет различие файлов и директорий.
func TestExists(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if _, err := store.Save("dir/file.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if !store.Exists("dir/file.txt") {
		t.Error("файл должен существовать")
	}
	if store.Exists("dir") {
		t.Error("Exists не должен считать директорию файлом")
	}
	if !store.DirExists("dir") {
		t.Error("директория должна существовать")
	}
	if store.Exists("nope.txt") {
		t.Error("несуществующий файл не должен существовать")
	}
}

// TestDelete проверяет удаление, включая идемпотентность.
func TestDelete(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if _, err := store.Save("a.txt", strings.NewReader("data")); err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if err := store.Delete("a.txt"); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if store.Exists("a.txt") {
		t.Error("файл должен быть удалён")
	}

	// Повторное удаление — не ошибка
	if err := store.Delete("a.txt"); err != nil {
		t.Errorf("повторное удаление должно быть идемпотентным: %v", err)
	}
}

// TestMove проверяет перемещение с созданием директории назначения.
func TestMove(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if _, err := store.Save("src.txt", strings.NewReader("payload")); err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if err := store.Move("src.txt", "archive/dst.txt"); err != nil {
		t.Fatalf("ошибка перемещения: %v", err)
	}

	if store.Exists("src.txt") {
		t.Error("исходный файл должен исчезнуть")
	}
	if !store.Exists("archive/dst.txt") {
		t.Error("файл должен появиться по новому пути")
	}
}

// TestWalk проверяет обход поддерева с прямыми слэшами в путях.
func TestWalk(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	for _, p := range []string{"a.txt", "docs/b.txt", "docs/sub/c.txt"} {
		if _, err := store.Save(p, strings.NewReader("x")); err != nil {
			t.Fatalf("ошибка сохранения %s: %v", p, err)
		}
	}

	var files []string
	err = store.Walk(context.Background(), ".", func(rel string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ошибка обхода: %v", err)
	}

	want := map[string]bool{"a.txt": true, "docs/b.txt": true, "docs/sub/c.txt": true}
	if len(files) != len(want) {
		t.Fatalf("ожидалось %d файлов, получено %d: %v", len(want), len(files), files)
	}
	for _, f := range files {
		if !want[f] {
			t.Errorf("неожиданный путь в обходе: %s", f)
		}
	}
}

// TestWalk_ContextCancel проверяет прерывание обхода отменой контекста.
func TestWalk_ContextCancel(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if _, err := store.Save("a.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Walk(ctx, ".", func(rel string, d fs.DirEntry, walkErr error) error {
		t.Error("callback не должен вызываться при отменённом контексте")
		return nil
	})
	if err == nil {
		t.Fatal("ожидалась ошибка отменённого контекста")
	}
}

// TestWriteFileAtomic проверяет атомарную запись байтов.
func TestWriteFileAtomic(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	data := []byte(`{"backup": true}`)
	if err := store.WriteFileAtomic("metadata_backup_20260101_120000.json", data); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	f, err := store.Open("metadata_backup_20260101_120000.json")
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	defer f.Close()

	got, _ := io.ReadAll(f)
	if !bytes.Equal(got, data) {
		t.Error("содержимое не совпадает")
	}
}
