package model

import (
	"testing"
	"time"
)

// TestDefaultCleanupConfig проверяет значения по умолчанию.
func TestDefaultCleanupConfig(t *testing.T) {
	cfg := DefaultCleanupConfig()

	if !cfg.Enabled {
		t.Error("очистка должна быть включена по умолчанию")
	}
	if cfg.GracePeriod != 5*time.Minute {
		t.Errorf("GracePeriod: ожидалось 5m, получено %s", cfg.GracePeriod)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize: ожидалось 100, получено %d", cfg.BatchSize)
	}
	if cfg.ScanInterval != time.Hour {
		t.Errorf("ScanInterval: ожидался 1h, получено %s", cfg.ScanInterval)
	}
	if cfg.MaxOrphansPerRun != 1000 {
		t.Errorf("MaxOrphansPerRun: ожидалось 1000, получено %d", cfg.MaxOrphansPerRun)
	}
	if !cfg.BackupBeforeCleanup {
		t.Error("бэкап должен быть включён по умолчанию")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("конфигурация по умолчанию должна быть валидной: %v", err)
	}
}

// TestCleanupConfig_Validate проверяет отклонение некорректных значений.
func TestCleanupConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CleanupConfig)
		wantErr bool
	}{
		{"валидная", func(c *CleanupConfig) {}, false},
		{"нулевой батч", func(c *CleanupConfig) { c.BatchSize = 0 }, true},
		{"отрицательный батч", func(c *CleanupConfig) { c.BatchSize = -5 }, true},
		{"интервал меньше секунды", func(c *CleanupConfig) { c.ScanInterval = 500 * time.Millisecond }, true},
		{"нулевой лимит orphan", func(c *CleanupConfig) { c.MaxOrphansPerRun = 0 }, true},
		{"отрицательный grace period", func(c *CleanupConfig) { c.GracePeriod = -time.Minute }, true},
		{"нулевой grace period допустим", func(c *CleanupConfig) { c.GracePeriod = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCleanupConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("ожидалась ошибка валидации")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("неожиданная ошибка валидации: %v", err)
			}
		})
	}
}

// TestCleanupConfig_Apply проверяет частичное обновление: nil-поля
// не изменяются, заданные — применяются.
func TestCleanupConfig_Apply(t *testing.T) {
	base := DefaultCleanupConfig()

	enabled := false
	batch := 50
	patterns := []string{".swp"}
	next := base.Apply(CleanupConfigUpdate{
		Enabled:         &enabled,
		BatchSize:       &batch,
		ExcludePatterns: &patterns,
	})

	if next.Enabled {
		t.Error("Enabled должен быть выключен")
	}
	if next.BatchSize != 50 {
		t.Errorf("BatchSize: ожидалось 50, получено %d", next.BatchSize)
	}
	if len(next.ExcludePatterns) != 1 || next.ExcludePatterns[0] != ".swp" {
		t.Errorf("ExcludePatterns: получено %v", next.ExcludePatterns)
	}
	// Незатронутые поля сохраняются
	if next.ScanInterval != base.ScanInterval {
		t.Errorf("ScanInterval не должен меняться: получено %s", next.ScanInterval)
	}
	if next.MaxOrphansPerRun != base.MaxOrphansPerRun {
		t.Errorf("MaxOrphansPerRun не должен меняться: получено %d", next.MaxOrphansPerRun)
	}

	// Исходная конфигурация не изменяется
	if !base.Enabled {
		t.Error("Apply не должен изменять исходную конфигурацию")
	}
}

// TestParentPath проверяет вычисление родительского пути.
func TestParentPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"docs/readme.txt", "docs"},
		{"a/b/c", "a/b"},
		{"file.txt", "."},
		{".", "."},
		{"docs/", "."},
	}

	for _, tt := range tests {
		if got := ParentPath(tt.in); got != tt.want {
			t.Errorf("ParentPath(%q): ожидалось %q, получено %q", tt.in, tt.want, got)
		}
	}
}

// TestDefaultExcludePatterns проверяет, что бэкапы очистки исключаются
// из orphan-отчётов.
func TestDefaultExcludePatterns(t *testing.T) {
	patterns := DefaultExcludePatterns()

	found := false
	for _, p := range patterns {
		if p == "metadata_backup_" {
			found = true
		}
	}
	if !found {
		t.Error("metadata_backup_ должен входить в исключения по умолчанию")
	}
}
