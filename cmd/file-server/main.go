// File Server — файловый сервер с side-channel базой метаданных.
//
// Файлы хранятся в storage root, их метаданные (разрешения, блокировки,
// теги) — в SQLite. Подсистема обслуживания сверяет базу с файловой
// системой и очищает orphaned-записи по расписанию.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/gofilestore/file-server/internal/api"
	"github.com/bigkaa/gofilestore/file-server/internal/api/handlers"
	"github.com/bigkaa/gofilestore/file-server/internal/api/middleware"
	"github.com/bigkaa/gofilestore/file-server/internal/config"
	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/server"
	"github.com/bigkaa/gofilestore/file-server/internal/service"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/sqlite"
)

func main() {
	ctx := context.Background()

	// 1. Конфигурация и логгер
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)

	logger.Info("File Server запускается",
		slog.String("version", config.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.String("storage_root", cfg.StorageRoot),
		slog.Int("port", cfg.Port),
	)

	// 2. Storage root и база метаданных
	store, err := filestore.New(cfg.StorageRoot)
	if err != nil {
		logger.Error("Ошибка инициализации storage root", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Error("Ошибка открытия базы метаданных", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// 3. Репозитории и сервисы
	fileRepo := repository.NewFileRepository(db)
	dirRepo := repository.NewDirectoryRepository(db)
	cleanupRepo := repository.NewCleanupRepository(db)
	shareRepo := repository.NewShareRepository(db)

	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	meta := service.NewMetadataService(fileRepo, dirRepo, store, cache, filepath.Base(cfg.DBPath), logger)
	checker := service.NewConsistencyChecker(fileRepo, store, meta, logger)

	cleanup, err := service.NewCleanupService(ctx, fileRepo, cleanupRepo, checker, store, cache, logger)
	if err != nil {
		logger.Error("Ошибка инициализации сервиса очистки", slog.String("error", err.Error()))
		os.Exit(1)
	}

	shares := service.NewShareService(shareRepo, store, logger)

	// 4. Планировщик очистки
	scheduler := service.NewCleanupScheduler(cleanup, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// 5. Аутентификация (опциональная) и мониторинг зависимостей.
	// Недоступный JWKS не мешает старту: сервис работает без
	// аутентификации и пишет об этом в лог.
	var auth *middleware.JWTAuth
	var dephealthSvc *service.DephealthService
	if cfg.JWKSUrl != "" {
		auth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Warn("JWKS недоступен, сервис работает без аутентификации",
				slog.String("url", cfg.JWKSUrl),
				slog.String("error", err.Error()),
			)
			auth = nil
		}

		dephealthSvc, err = service.NewDephealthService(
			cfg.InstanceID,
			cfg.DephealthGroup,
			cfg.DephealthDepName,
			cfg.JWKSUrl,
			cfg.DephealthCheckInterval,
			logger,
		)
		if err != nil {
			logger.Warn("Мониторинг зависимостей не запущен", slog.String("error", err.Error()))
		} else {
			if err := dephealthSvc.Start(ctx); err != nil {
				logger.Warn("Ошибка запуска мониторинга зависимостей", slog.String("error", err.Error()))
			} else {
				defer dephealthSvc.Stop()
			}
		}
	} else {
		logger.Warn("FS_JWKS_URL не задан: аутентификация выключена, все файлы доступны")
	}
	authEnabled := auth != nil

	// 6. OpenAPI контракт
	contract, err := api.LoadContract(ctx)
	if err != nil {
		logger.Error("Ошибка OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. HTTP-обработчики и сервер
	filesHandler := handlers.NewFilesHandler(meta, shares, store, cfg.MaxFileSize, authEnabled, logger)
	h := server.Handlers{
		Files:       filesHandler,
		Shares:      handlers.NewSharesHandler(shares, meta, filesHandler, logger),
		Maintenance: handlers.NewMaintenanceHandler(cleanup, logger),
		System: handlers.NewSystemHandler(
			config.Version, cfg.InstanceID, fileRepo, store, db, diskUsage, authEnabled, logger,
		),
		Contract: api.ContractHandler(contract),
	}

	srv := server.New(cfg, h, auth, logger)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("File Server остановлен")
}
