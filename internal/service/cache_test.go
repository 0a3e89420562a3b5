package service

import (
	"testing"
	"time"

	"github.com/bigkaa/gofilestore/file-server/internal/domain/model"
)

// TestCache_SetGet проверяет базовые операции кэша.
func TestCache_SetGet(t *testing.T) {
	cache := NewCacheService(8, time.Minute)

	if _, ok := cache.Get("a.txt"); ok {
		t.Error("пустой кэш не должен возвращать записей")
	}

	cache.Set("a.txt", &model.FileRecord{FilePath: "a.txt", Size: 3})

	rec, ok := cache.Get("a.txt")
	if !ok {
		t.Fatal("ожидался hit после Set")
	}
	if rec.FilePath != "a.txt" || rec.Size != 3 {
		t.Errorf("получена неожиданная запись: %+v", rec)
	}
}

// TestCache_Delete проверяет точечную инвалидацию.
func TestCache_Delete(t *testing.T) {
	cache := NewCacheService(8, time.Minute)

	cache.Set("a.txt", &model.FileRecord{FilePath: "a.txt"})
	cache.Delete("a.txt")

	if _, ok := cache.Get("a.txt"); ok {
		t.Error("запись должна быть удалена из кэша")
	}
}

// TestCache_Purge проверяет полную очистку.
func TestCache_Purge(t *testing.T) {
	cache := NewCacheService(8, time.Minute)

	cache.Set("a.txt", &model.FileRecord{FilePath: "a.txt"})
	cache.Set("b.txt", &model.FileRecord{FilePath: "b.txt"})
	cache.Purge()

	if _, ok := cache.Get("a.txt"); ok {
		t.Error("кэш должен быть пуст после Purge")
	}
	if _, ok := cache.Get("b.txt"); ok {
		t.Error("кэш должен быть пуст после Purge")
	}
}

// TestCache_TTL проверяет истечение записей по времени.
func TestCache_TTL(t *testing.T) {
	cache := NewCacheService(8, 50*time.Millisecond)

	cache.Set("a.txt", &model.FileRecord{FilePath: "a.txt"})
	time.Sleep(120 * time.Millisecond)

	if _, ok := cache.Get("a.txt"); ok {
		t.Error("запись должна истечь по TTL")
	}
}

// TestCache_Eviction проверяет вытеснение при переполнении.
func TestCache_Eviction(t *testing.T) {
	cache := NewCacheService(2, time.Minute)

	cache.Set("a.txt", &model.FileRecord{FilePath: "a.txt"})
	cache.Set("b.txt", &model.FileRecord{FilePath: "b.txt"})
	cache.Set("c.txt", &model.FileRecord{FilePath: "c.txt"})

	if _, ok := cache.Get("a.txt"); ok {
		t.Error("старейшая запись должна быть вытеснена")
	}
	if _, ok := cache.Get("c.txt"); !ok {
		t.Error("новая запись должна остаться в кэше")
	}
}
