// scheduler.go — планировщик периодической очистки orphaned-метаданных.
//
// Запускается как горутина. Каждая итерация перечитывает runtime-
// конфигурацию, поэтому изменение scan_interval и enabled через API
// действует без перезапуска. Планировщик никогда не падает: сбой
// запуска приводит к укороченной паузе повторной попытки.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
)

// errorRetryInterval — пауза после сбойного запуска очистки.
const errorRetryInterval = time.Minute

// CleanupScheduler — фоновый планировщик очистки.
type CleanupScheduler struct {
	svc    *CleanupService
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCleanupScheduler создаёт планировщик.
func NewCleanupScheduler(svc *CleanupService, logger *slog.Logger) *CleanupScheduler {
	return &CleanupScheduler{
		svc:    svc,
		logger: logger.With(slog.String("component", "cleanup_scheduler")),
	}
}

// Start запускает фоновую горутину планировщика.
// Вызывается один раз при старте приложения.
func (sc *CleanupScheduler) Start(ctx context.Context) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	sc.cancel = cancel
	sc.done = make(chan struct{})
	sc.running = true

	go sc.run(runCtx)

	sc.logger.Info("Планировщик очистки запущен",
		slog.String("interval", sc.svc.Config().ScanInterval.String()),
		slog.Bool("enabled", sc.svc.Config().Enabled),
	)
}

// Stop останавливает планировщик и дожидается завершения горутины.
// Текущий запуск очистки доводится до конца.
func (sc *CleanupScheduler) Stop() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = false
	cancel := sc.cancel
	done := sc.done
	sc.mu.Unlock()

	cancel()
	<-done
	sc.logger.Info("Планировщик очистки остановлен")
}

// run — основной цикл планировщика. Отмена проверяется между
// итерациями; запущенная очистка завершается кооперативно через
// тот же контекст.
func (sc *CleanupScheduler) run(ctx context.Context) {
	defer close(sc.done)

	for {
		interval := sc.iterate(ctx)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// iterate выполняет одну итерацию и возвращает паузу до следующей.
func (sc *CleanupScheduler) iterate(ctx context.Context) time.Duration {
	cfg := sc.svc.Config()
	if !cfg.Enabled {
		sc.logger.Debug("Автоматическая очистка отключена")
		return cfg.ScanInterval
	}

	result, inProgress := sc.svc.RunOnce(ctx, model.CleanupScheduled, false, 0)
	if inProgress {
		// Параллельный ручной запуск: подождём обычный интервал.
		sc.logger.Debug("Очистка уже выполняется, итерация пропущена")
		return cfg.ScanInterval
	}

	if _, failed := result.Details["cleanup_error"]; failed {
		sc.logger.Warn("Запуск очистки завершился с ошибкой, повтор через минуту",
			slog.Int("errors", result.Errors),
		)
		return errorRetryInterval
	}
	return cfg.ScanInterval
}
