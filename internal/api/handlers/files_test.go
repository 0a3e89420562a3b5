package handlers

import (
	"net/http"
	"strings"
	"testing"
)

// TestUpload_AndGetMeta проверяет загрузку файла и чтение метаданных.
func TestUpload_AndGetMeta(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.upload(t, "docs/readme.txt", "hello", map[string]string{
		"is_public":   "true",
		"description": "Документация",
		"tags":        "docs, text",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидался статус 201, получен %d, тело: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["file_path"] != "docs/readme.txt" {
		t.Errorf("file_path: получено %v", body["file_path"])
	}
	if body["is_public"] != true {
		t.Error("файл должен быть публичным")
	}
	if !srv.store.Exists("docs/readme.txt") {
		t.Error("файл должен лежать в storage root")
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/files/meta/docs/readme.txt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["description"] != "Документация" {
		t.Errorf("description: получено %v", body["description"])
	}
	tags, _ := body["tags"].([]any)
	if len(tags) != 2 {
		t.Errorf("ожидалось 2 тега, получено %v", body["tags"])
	}
}

// TestUpload_MissingFile проверяет форму без поля file.
func TestUpload_MissingFile(t *testing.T) {
	srv := newTestServer(t, false)

	req := strings.NewReader("--x--")
	rec := srv.do(t, http.MethodPost, "/api/v1/files/upload", req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался статус 400, получен %d", rec.Code)
	}
}

// TestUpload_TooLarge проверяет превышение лимита размера.
func TestUpload_TooLarge(t *testing.T) {
	srv := newTestServer(t, false)

	big := strings.Repeat("x", testMaxFileSize+1024)
	rec := srv.upload(t, "big.bin", big, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("ожидался статус 413, получен %d", rec.Code)
	}
}

// TestList_AnonymousSeesOnlyPublic проверяет фильтрацию листинга
// при включённой аутентификации.
func TestList_AnonymousSeesOnlyPublic(t *testing.T) {
	srv := newTestServer(t, true)

	srv.upload(t, "public.txt", "a", map[string]string{"is_public": "true"})
	srv.upload(t, "private.txt", "b", nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/files", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if total := body["total"].(float64); total != 1 {
		t.Errorf("анонимный листинг: ожидался 1 элемент, получено %v", total)
	}
}

// TestList_AuthDisabledSeesAll проверяет листинг без аутентификации.
func TestList_AuthDisabledSeesAll(t *testing.T) {
	srv := newTestServer(t, false)

	srv.upload(t, "public.txt", "a", map[string]string{"is_public": "true"})
	srv.upload(t, "private.txt", "b", nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/files", nil)
	body := decodeBody(t, rec)
	if total := body["total"].(float64); total != 2 {
		t.Errorf("ожидалось 2 элемента, получено %v", total)
	}
}

// TestDownload проверяет скачивание и защиту приватных файлов.
func TestDownload(t *testing.T) {
	srv := newTestServer(t, true)

	srv.upload(t, "pub.txt", "public-data", map[string]string{"is_public": "true"})
	srv.upload(t, "priv.txt", "secret", nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/files/download/pub.txt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	if rec.Body.String() != "public-data" {
		t.Errorf("содержимое: получено %q", rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/files/download/priv.txt", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("приватный файл анонимно: ожидался статус 403, получен %d", rec.Code)
	}
}

// TestDownload_NoMetadataIsPrivate проверяет, что файл без записи
// метаданных считается приватным.
func TestDownload_NoMetadataIsPrivate(t *testing.T) {
	srv := newTestServer(t, true)

	if _, err := srv.store.Save("raw.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("ошибка записи файла: %v", err)
	}

	rec := srv.do(t, http.MethodGet, "/api/v1/files/download/raw.txt", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

// TestDownload_NotFound проверяет скачивание несуществующего файла.
func TestDownload_NotFound(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.do(t, http.MethodGet, "/api/v1/files/download/nope.txt", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
}

// TestDelete проверяет удаление файла вместе с метаданными.
func TestDelete(t *testing.T) {
	srv := newTestServer(t, false)

	srv.upload(t, "doomed.txt", "x", nil)

	rec := srv.do(t, http.MethodDelete, "/api/v1/files/doomed.txt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if srv.store.Exists("doomed.txt") {
		t.Error("файл должен быть удалён с диска")
	}

	rec = srv.do(t, http.MethodDelete, "/api/v1/files/doomed.txt", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("повторное удаление: ожидался статус 404, получен %d", rec.Code)
	}
}

// TestDelete_LockedFile проверяет защиту заблокированного файла.
func TestDelete_LockedFile(t *testing.T) {
	srv := newTestServer(t, false)

	srv.upload(t, "locked.txt", "x", nil)

	rec := srv.doJSON(t, http.MethodPut, "/api/v1/files/lock/locked.txt", map[string]any{"locked": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("ошибка установки блокировки: статус %d", rec.Code)
	}

	rec = srv.do(t, http.MethodDelete, "/api/v1/files/locked.txt", nil)
	if rec.Code != http.StatusLocked {
		t.Errorf("ожидался статус 423, получен %d", rec.Code)
	}
	if !srv.store.Exists("locked.txt") {
		t.Error("заблокированный файл не должен удаляться")
	}
}

// TestMove проверяет перемещение файла с метаданными.
func TestMove(t *testing.T) {
	srv := newTestServer(t, false)

	srv.upload(t, "old/name.txt", "data", map[string]string{"is_public": "true"})

	rec := srv.doJSON(t, http.MethodPost, "/api/v1/files/move", map[string]any{
		"source_path":      "old/name.txt",
		"destination_path": "new/name.txt",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if srv.store.Exists("old/name.txt") || !srv.store.Exists("new/name.txt") {
		t.Error("файл должен быть перемещён")
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/files/meta/new/name.txt", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("метаданные должны следовать за файлом: статус %d", rec.Code)
	}
}

// TestMove_Validation проверяет обязательность обоих путей.
func TestMove_Validation(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.doJSON(t, http.MethodPost, "/api/v1/files/move", map[string]any{
		"source_path": "only-source.txt",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался статус 400, получен %d", rec.Code)
	}
}

// TestSetPermission проверяет смену разрешения файла.
func TestSetPermission(t *testing.T) {
	srv := newTestServer(t, true)

	srv.upload(t, "file.txt", "x", nil)

	rec := srv.doJSON(t, http.MethodPut, "/api/v1/files/permission/file.txt", map[string]any{"is_public": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}

	// Публичный файл теперь доступен анонимно
	rec = srv.do(t, http.MethodGet, "/api/v1/files/download/file.txt", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("после публикации ожидался статус 200, получен %d", rec.Code)
	}
}

// TestSetPermission_NotFound проверяет разрешение несуществующей записи.
func TestSetPermission_NotFound(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.doJSON(t, http.MethodPut, "/api/v1/files/permission/nope.txt", map[string]any{"is_public": true})
	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
}

// TestUpdateMeta проверяет частичное обновление описательных полей.
func TestUpdateMeta(t *testing.T) {
	srv := newTestServer(t, false)

	srv.upload(t, "file.txt", "x", map[string]string{"description": "старое"})

	rec := srv.doJSON(t, http.MethodPatch, "/api/v1/files/meta/file.txt", map[string]any{
		"notes": "заметка",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["notes"] != "заметка" {
		t.Errorf("notes: получено %v", body["notes"])
	}
	if body["description"] != "старое" {
		t.Errorf("description не должен измениться, получено %v", body["description"])
	}
}

// TestSearch проверяет поиск по имени и тегам.
func TestSearch(t *testing.T) {
	srv := newTestServer(t, false)

	srv.upload(t, "report-2026.pdf", "x", map[string]string{"tags": "finance"})
	srv.upload(t, "notes.txt", "x", nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/files/search?q=report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if total := body["total"].(float64); total != 1 {
		t.Errorf("поиск по имени: ожидался 1 результат, получено %v", total)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/files/search?q=finance", nil)
	body = decodeBody(t, rec)
	if total := body["total"].(float64); total != 1 {
		t.Errorf("поиск по тегу: ожидался 1 результат, получено %v", total)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/files/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("поиск без q: ожидался статус 400, получен %d", rec.Code)
	}
}

// TestDirectoryPermission проверяет разрешение директории с применением
// к потомкам.
func TestDirectoryPermission(t *testing.T) {
	srv := newTestServer(t, true)

	srv.upload(t, "shared/a.txt", "x", nil)
	srv.upload(t, "shared/b.txt", "x", nil)

	rec := srv.doJSON(t, http.MethodPut, "/api/v1/directories/permission/shared", map[string]any{
		"is_public":         true,
		"apply_to_children": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/files/download/shared/a.txt", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("файл публичной директории: ожидался статус 200, получен %d", rec.Code)
	}
}

// TestDirectoryPermission_NotFound проверяет несуществующую директорию.
func TestDirectoryPermission_NotFound(t *testing.T) {
	srv := newTestServer(t, false)

	rec := srv.doJSON(t, http.MethodPut, "/api/v1/directories/permission/nope", map[string]any{
		"is_public": true,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
}

// TestDirectoryInfo проверяет сводку по директории.
func TestDirectoryInfo(t *testing.T) {
	srv := newTestServer(t, false)

	srv.upload(t, "dir/a.txt", "x", nil)
	srv.upload(t, "dir/sub/b.txt", "x", nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/directories/info/dir", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if files := body["files"].(float64); files != 1 {
		t.Errorf("files: ожидалось 1, получено %v", files)
	}
	if subdirs := body["subdirs"].(float64); subdirs != 1 {
		t.Errorf("subdirs: ожидалось 1, получено %v", subdirs)
	}
}

// TestList_PublicFilter проверяет фильтр ?public= в листинге.
func TestList_PublicFilter(t *testing.T) {
	srv := newTestServer(t, false)

	srv.upload(t, "pub.txt", "a", map[string]string{"is_public": "true"})
	srv.upload(t, "priv.txt", "b", nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/files?public=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if total := body["total"].(float64); total != 1 {
		t.Errorf("public=true: ожидался 1 элемент, получено %v", total)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/files?public=false", nil)
	body = decodeBody(t, rec)
	if total := body["total"].(float64); total != 1 {
		t.Errorf("public=false: ожидался 1 элемент, получено %v", total)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/files?public=maybe", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("некорректное значение public: ожидался статус 400, получен %d", rec.Code)
	}
}

// TestList_PublicFilterAnonymous проверяет, что фильтр не раскрывает
// приватные файлы анонимному клиенту.
func TestList_PublicFilterAnonymous(t *testing.T) {
	srv := newTestServer(t, true)

	srv.upload(t, "priv.txt", "b", nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/files?public=false", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if total := body["total"].(float64); total != 0 {
		t.Errorf("анонимный листинг приватных: ожидалось 0 элементов, получено %v", total)
	}
}
