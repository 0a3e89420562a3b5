// Пакет service — бизнес-логика File Server.
// CacheService — LRU-кэш метаданных файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных.",
	})
)

// CacheService — LRU-кэш записей file_metadata с автоматическим TTL.
// Ключ — относительный путь файла. Инвалидируется при любой записи.
type CacheService struct {
	cache *expirable.LRU[string, *model.FileRecord]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.FileRecord](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает запись из кэша по пути.
// Возвращает (запись, true) при hit или (nil, false) при miss.
func (c *CacheService) Get(filePath string) (*model.FileRecord, bool) {
	val, ok := c.cache.Get(filePath)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *CacheService) Set(filePath string, record *model.FileRecord) {
	c.cache.Add(filePath, record)
}

// Delete удаляет запись из кэша (инвалидация при записи в базу).
func (c *CacheService) Delete(filePath string) {
	c.cache.Remove(filePath)
}

// Purge очищает кэш целиком (после массовых операций очистки).
func (c *CacheService) Purge() {
	c.cache.Purge()
}
