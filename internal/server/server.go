// Пакет server — HTTP-сервер File Server с TLS и graceful shutdown.
//
// Маршруты делятся на три группы: системные (health, metrics, info,
// контракт), чтение файлов (опциональная аутентификация открывает
// приватные файлы) и изменяющие операции (scope files:write).
// При auth == nil (FS_JWKS_URL не задан) все группы доступны без токена.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/gofilestore/file-server/internal/api/handlers"
	"github.com/bigkaa/gofilestore/file-server/internal/api/middleware"
	"github.com/bigkaa/gofilestore/file-server/internal/config"
)

// Handlers — обработчики, монтируемые сервером.
type Handlers struct {
	Files       *handlers.FilesHandler
	Shares      *handlers.SharesHandler
	Maintenance *handlers.MaintenanceHandler
	System      *handlers.SystemHandler
	// Contract — обработчик GET /api/v1/openapi.json
	Contract http.HandlerFunc
}

// Server — HTTP-сервер File Server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth == nil — аутентификация выключена.
func New(cfg *config.Config, h Handlers, auth *middleware.JWTAuth, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Middleware аутентификации. Без JWKS — сквозные no-op.
	optionalAuth := passthrough
	writeAuth := passthrough
	if auth != nil {
		optionalAuth = auth.OptionalMiddleware()
		required := auth.Middleware()
		requireWrite := middleware.RequireScope(middleware.ScopeFilesWrite)
		writeAuth = func(next http.Handler) http.Handler {
			return required(requireWrite(next))
		}
	}

	// Системные endpoints — всегда без аутентификации.
	router.Get("/healthz", h.System.Healthz)
	router.Get("/readyz", h.System.Readyz)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/info", h.System.Info)
		r.Get("/openapi.json", h.Contract)

		// Чтение: опциональная аутентификация открывает приватные файлы.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)

			r.Get("/files", h.Files.List)
			r.Get("/files/search", h.Files.Search)
			r.Get("/files/meta/*", h.Files.GetMeta)
			r.Get("/files/download/*", h.Files.Download)
			r.Get("/directories/info/*", h.Files.DirectoryInfo)
			r.Get("/shares/{id}", h.Shares.Download)
		})

		// Изменяющие операции: JWT + scope files:write.
		r.Group(func(r chi.Router) {
			r.Use(writeAuth)

			r.Post("/files/upload", h.Files.Upload)
			r.Patch("/files/meta/*", h.Files.UpdateMeta)
			r.Post("/files/move", h.Files.Move)
			r.Put("/files/permission/*", h.Files.SetPermission)
			r.Put("/files/lock/*", h.Files.SetLock)
			r.Delete("/files/*", h.Files.Delete)

			r.Put("/directories/permission/*", h.Files.SetDirectoryPermission)
			r.Put("/directories/lock/*", h.Files.SetDirectoryLock)

			r.Post("/shares", h.Shares.Create)
			r.Delete("/shares/{id}", h.Shares.Delete)

			r.Route("/maintenance", func(r chi.Router) {
				r.Post("/check", h.Maintenance.Check)
				r.Post("/cleanup", h.Maintenance.Cleanup)
				r.Get("/stats", h.Maintenance.Stats)
				r.Get("/config", h.Maintenance.GetConfig)
				r.Patch("/config", h.Maintenance.UpdateConfig)
				r.Post("/create-missing", h.Maintenance.CreateMissing)
			})
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// passthrough — no-op middleware для режима без аутентификации.
func passthrough(next http.Handler) http.Handler {
	return next
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// из конфигурации.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
