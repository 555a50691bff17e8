package repository

import (
	"context"
	"errors"

	"github.com/shipscreen/smh-service/internal/geo"
	"github.com/shipscreen/smh-service/internal/models"
)

var (
	// ErrNotFound для IMO еще нет снимка
	ErrNotFound = errors.New("smh cache entry not found")
	// ErrCacheConflict снимок изменен параллельным расчетом
	ErrCacheConflict = errors.New("smh cache entry was modified concurrently")
)

// Store хранилище снимков SMH
type Store interface {
	// GetLatest возвращает самый свежий снимок для IMO или ErrNotFound
	GetLatest(ctx context.Context, imo int) (*models.CacheEntry, error)

	// Save сохраняет снимок
	//
	// overwrite=false добавляет новую строку (entry.ID заполняется),
	// overwrite=true перезаписывает строку entry.Options.LastSMHID при условии,
	// что ее update_count не изменился с момента чтения.
	Save(ctx context.Context, entry *models.CacheEntry, overwrite bool) error

	Ping(ctx context.Context) error
	Close() error
}

// Ensure implementations
var _ Store = (*MySQLStore)(nil)
var _ Store = (*RedisStore)(nil)
var _ Store = (*MemoryStore)(nil)
var _ geo.RegionLoader = (*MySQLStore)(nil)
