// consistency.go — двухпроходная сверка базы метаданных с файловой системой.
//
// Проход 1 (база → диск): записи file_metadata без файла на диске —
// orphan-метаданные (кандидаты на очистку).
// Проход 2 (диск → база): файлы на диске без записи — missing-метаданные
// (кандидаты на восполнение через CreateMissing).
//
// Ошибки отдельных элементов накапливаются в отчёте и не прерывают сверку.
package service

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
	"github.com/bigkaa/gofilestore/file-server/internal/repository"
	"github.com/bigkaa/gofilestore/file-server/internal/storage/filestore"
)

// ConsistencyChecker — сверка метаданных с содержимым storage root.
type ConsistencyChecker struct {
	files  repository.FileRepository
	store  *filestore.FileStore
	meta   *MetadataService
	logger *slog.Logger
}

// NewConsistencyChecker создаёт сервис сверки.
func NewConsistencyChecker(
	files repository.FileRepository,
	store *filestore.FileStore,
	meta *MetadataService,
	logger *slog.Logger,
) *ConsistencyChecker {
	return &ConsistencyChecker{
		files:  files,
		store:  store,
		meta:   meta,
		logger: logger.With(slog.String("component", "consistency")),
	}
}

// isExcluded сообщает, содержит ли путь одну из исключающих подстрок.
func isExcluded(filePath string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(filePath, p) {
			return true
		}
	}
	return false
}

// Check выполняет полную двухпроходную сверку.
func (c *ConsistencyChecker) Check(ctx context.Context, excludePatterns []string) (*model.ConsistencyReport, error) {
	report := &model.ConsistencyReport{
		OrphanMetadata:  []model.Orphan{},
		MissingMetadata: []string{},
		Errors:          []string{},
	}

	// Проход 1: база → диск
	refs, err := c.files.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления метаданных: %w", err)
	}
	report.FilesChecked = len(refs)

	known := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		known[ref.FilePath] = struct{}{}

		if c.store.Exists(ref.FilePath) {
			continue
		}
		// Исключённые паттерны не считаются orphan: временные файлы
		// живут вне учёта метаданных.
		if isExcluded(ref.FilePath, excludePatterns) {
			continue
		}
		report.OrphanMetadata = append(report.OrphanMetadata, model.Orphan{
			ID:       ref.ID,
			FilePath: ref.FilePath,
		})
	}

	// Проход 2: диск → база. Ошибка отдельного элемента попадает
	// в отчёт, обход продолжается: нечитаемая директория не должна
	// скрывать остальные missing-файлы.
	err = c.store.Walk(ctx, ".", func(rel string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if c.meta.isServiceFile(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if c.meta.isServiceFile(d.Name()) || isExcluded(rel, excludePatterns) {
			return nil
		}
		if _, ok := known[rel]; !ok {
			report.MissingMetadata = append(report.MissingMetadata, rel)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		report.Errors = append(report.Errors, fmt.Sprintf("обход файловой системы: %v", err))
	}

	c.logger.Info("Сверка завершена",
		slog.Int("files_checked", report.FilesChecked),
		slog.Int("orphans", len(report.OrphanMetadata)),
		slog.Int("missing", len(report.MissingMetadata)),
		slog.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// CreateMissingResult — результат восполнения missing-метаданных.
type CreateMissingResult struct {
	// Found — найдено файлов без метаданных
	Found int `json:"found"`
	// Created — создано записей (0 при dry-run)
	Created int `json:"created"`
	// DryRun — запись в базу не выполнялась
	DryRun bool `json:"dry_run"`
	// Files — пути обработанных файлов
	Files []string `json:"files"`
	// Errors — ошибки отдельных файлов
	Errors []string `json:"errors"`
}

// CreateMissing создаёт записи метаданных для файлов без них.
// Записи получают значения по умолчанию с учётом наследования
// разрешений директорий. При dryRun база не изменяется.
func (c *ConsistencyChecker) CreateMissing(ctx context.Context, excludePatterns []string, dryRun bool) (*CreateMissingResult, error) {
	report, err := c.Check(ctx, excludePatterns)
	if err != nil {
		return nil, err
	}

	result := &CreateMissingResult{
		Found:  len(report.MissingMetadata),
		DryRun: dryRun,
		Files:  report.MissingMetadata,
		Errors: []string{},
	}
	if dryRun {
		return result, nil
	}

	for _, rel := range report.MissingMetadata {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		info, err := c.store.Stat(rel)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		if _, err := c.meta.Create(ctx, rel, info.Size(), CreateOptions{}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		result.Created++
	}

	c.logger.Info("Восполнение метаданных завершено",
		slog.Int("found", result.Found),
		slog.Int("created", result.Created),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}
