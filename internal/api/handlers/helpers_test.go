package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/service"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/sqlite"
)

// testMaxFileSize — лимит размера файла в тестах.
const testMaxFileSize = 1 << 20

// testServer — HTTP-стек поверх временной базы и storage root.
type testServer struct {
	router  http.Handler
	store   *filestore.FileStore
	meta    *service.MetadataService
	cleanup *service.CleanupService
	shares  *service.ShareService
}

// newTestServer собирает обработчики и маршруты поверх временных
// директорий. authEnabled=true имитирует включённую аутентификацию:
// запросы без токена анонимны и не видят приватные файлы.
func newTestServer(t *testing.T, authEnabled bool) *testServer {
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
	logRepo := repository.NewCleanupRepository(db)
	shareRepo := repository.NewShareRepository(db)

	cache := service.NewCacheService(128, time.Minute)
	meta := service.NewMetadataService(files, dirs, store, cache, "metadata.db", logger)
	checker := service.NewConsistencyChecker(files, store, meta, logger)
	cleanup, err := service.NewCleanupService(context.Background(), files, logRepo, checker, store, cache, logger)
	if err != nil {
		t.Fatalf("ошибка создания сервиса очистки: %v", err)
	}
	shares := service.NewShareService(shareRepo, store, logger)

	fh := NewFilesHandler(meta, shares, store, testMaxFileSize, authEnabled, logger)
	sh := NewSharesHandler(shares, meta, fh, logger)
	mh := NewMaintenanceHandler(cleanup, logger)

	// Маршруты как в боевом сервере, без auth middleware:
	// анонимный запрос при authEnabled=true не видит приватные файлы.
	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/files", fh.List)
		r.Get("/files/search", fh.Search)
		r.Get("/files/meta/*", fh.GetMeta)
		r.Get("/files/download/*", fh.Download)
		r.Get("/directories/info/*", fh.DirectoryInfo)
		r.Get("/shares/{id}", sh.Download)

		r.Post("/files/upload", fh.Upload)
		r.Patch("/files/meta/*", fh.UpdateMeta)
		r.Post("/files/move", fh.Move)
		r.Put("/files/permission/*", fh.SetPermission)
		r.Put("/files/lock/*", fh.SetLock)
		r.Delete("/files/*", fh.Delete)

		r.Put("/directories/permission/*", fh.SetDirectoryPermission)
		r.Put("/directories/lock/*", fh.SetDirectoryLock)

		r.Post("/shares", sh.Create)
		r.Delete("/shares/{id}", sh.Delete)

		r.Route("/maintenance", func(r chi.Router) {
			r.Post("/check", mh.Check)
			r.Post("/cleanup", mh.Cleanup)
			r.Get("/stats", mh.Stats)
			r.Get("/config", mh.GetConfig)
			r.Patch("/config", mh.UpdateConfig)
			r.Post("/create-missing", mh.CreateMissing)
		})
	})

	return &testServer{
		router:  router,
		store:   store,
		meta:    meta,
		cleanup: cleanup,
		shares:  shares,
	}
}

// do выполняет запрос и возвращает recorder.
func (s *testServer) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// doJSON выполняет запрос с JSON-телом.
func (s *testServer) doJSON(t *testing.T, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("ошибка сериализации тела запроса: %v", err)
	}
	return s.do(t, method, target, bytes.NewReader(data))
}

// upload загружает файл через multipart-форму.
func (s *testServer) upload(t *testing.T, relPath, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(relPath))
	if err != nil {
		t.Fatalf("ошибка создания multipart-поля: %v", err)
	}
	if _, err := io.Copy(fw, strings.NewReader(content)); err != nil {
		t.Fatalf("ошибка записи содержимого: %v", err)
	}
	if err := mw.WriteField("path", relPath); err != nil {
		t.Fatalf("ошибка записи поля path: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("ошибка записи поля %s: %v", k, err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// decodeBody разбирает JSON-ответ в map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("ошибка разбора ответа %q: %v", rec.Body.String(), err)
	}
	return body
}
