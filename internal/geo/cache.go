package geo

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/internal/models"
	"github.com/shipscreen/smh-service/pkg/utils"
)

const (
	// DefaultPortCachePrecision ячейка geohash ~150x150 м
	DefaultPortCachePrecision = 7
	// DefaultPortCacheSize число ячеек в кэше
	DefaultPortCacheSize = 50000
	// DefaultPortCacheTTL время жизни ячейки
	DefaultPortCacheTTL = 24 * time.Hour
)

// lruEntry элемент LRU кэша
type lruEntry[V any] struct {
	key       string
	value     V
	timestamp time.Time
}

// LRUCache потокобезопасный LRU кэш с TTL
type LRUCache[V any] struct {
	capacity  int
	ttl       time.Duration
	items     map[string]*list.Element
	evictList *list.List
	mu        sync.Mutex
	now       func() time.Time

	hits   uint64
	misses uint64
}

// NewLRUCache создает LRU кэш
func NewLRUCache[V any](capacity int, ttl time.Duration) *LRUCache[V] {
	if capacity <= 0 {
		capacity = DefaultPortCacheSize
	}
	return &LRUCache[V]{
		capacity:  capacity,
		ttl:       ttl,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		now:       time.Now,
	}
}

// Get возвращает значение, если оно есть и не устарело
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	entry := elem.Value.(*lruEntry[V])
	if c.ttl > 0 && c.now().Sub(entry.timestamp) > c.ttl {
		c.removeElement(elem)
		c.misses++
		return zero, false
	}

	c.evictList.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Set добавляет или обновляет значение
func (c *LRUCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.evictList.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[V])
		entry.value = value
		entry.timestamp = c.now()
		return
	}

	elem := c.evictList.PushFront(&lruEntry[V]{key: key, value: value, timestamp: c.now()})
	c.items[key] = elem

	if c.evictList.Len() > c.capacity {
		if oldest := c.evictList.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Len количество элементов
func (c *LRUCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats статистика попаданий
func (c *LRUCache[V]) Stats() (hits, misses uint64, hitRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits = c.hits
	misses = c.misses
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

// Clean удаляет устаревшие элементы, возвращает их количество
func (c *LRUCache[V]) Clean() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	removed := 0
	now := c.now()
	for elem := c.evictList.Back(); elem != nil; {
		entry := elem.Value.(*lruEntry[V])
		if now.Sub(entry.timestamp) <= c.ttl {
			// дальше только более свежие
			break
		}
		prev := elem.Prev()
		c.removeElement(elem)
		removed++
		elem = prev
	}
	return removed
}

func (c *LRUCache[V]) removeElement(elem *list.Element) {
	entry := elem.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.evictList.Remove(elem)
}

// PortResolver пакетный поиск портов: один порт на позицию, порядок сохраняется
type PortResolver interface {
	ResolvePorts(ctx context.Context, positions []models.Position) ([]models.Port, error)
}

// PortCache кэш результатов поиска портов по ячейкам geohash
//
// Суда подолгу стоят в одних и тех же точках, поэтому в сервис портов
// уходят только ячейки, которых еще нет в кэше.
type PortCache struct {
	inner     PortResolver
	cache     *LRUCache[models.Port]
	precision uint
	logger    *utils.Logger
}

// NewPortCache создает кэш поверх резолвера
func NewPortCache(inner PortResolver, size int, ttl time.Duration, precision int, logger *utils.Logger) *PortCache {
	if precision <= 0 || precision > 12 {
		precision = DefaultPortCachePrecision
	}
	return &PortCache{
		inner:     inner,
		cache:     NewLRUCache[models.Port](size, ttl),
		precision: uint(precision),
		logger:    logger,
	}
}

// CellKey ключ ячейки для координат
func (pc *PortCache) CellKey(lat, lon float64) string {
	return geohash.EncodeWithPrecision(lat, lon, pc.precision)
}

// ResolvePorts отдает порты из кэша, промахи запрашивает одним пакетом
func (pc *PortCache) ResolvePorts(ctx context.Context, positions []models.Position) ([]models.Port, error) {
	ports := make([]models.Port, len(positions))
	keys := make([]string, len(positions))

	// ключ ячейки -> индексы позиций, ожидающих ответа
	pending := make(map[string][]int)
	misses := make([]models.Position, 0)
	missKeys := make([]string, 0)

	for i, p := range positions {
		key := pc.CellKey(p.Latitude, p.Longitude)
		keys[i] = key

		if port, ok := pc.cache.Get(key); ok {
			ports[i] = port
			metrics.PortCacheLookups.WithLabelValues("hit").Inc()
			continue
		}
		metrics.PortCacheLookups.WithLabelValues("miss").Inc()

		if _, seen := pending[key]; !seen {
			misses = append(misses, p)
			missKeys = append(missKeys, key)
		}
		pending[key] = append(pending[key], i)
	}

	if len(misses) > 0 {
		resolved, err := pc.inner.ResolvePorts(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("resolve %d uncached cells: %w", len(misses), err)
		}
		if len(resolved) != len(misses) {
			return nil, fmt.Errorf("port resolver returned %d ports for %d positions", len(resolved), len(misses))
		}

		for j, port := range resolved {
			key := missKeys[j]
			pc.cache.Set(key, port)
			for _, i := range pending[key] {
				ports[i] = port
			}
		}
	}

	metrics.PortCacheSize.Set(float64(pc.cache.Len()))

	pc.logger.WithFields(map[string]interface{}{
		"positions": len(positions),
		"misses":    len(misses),
		"cached":    pc.cache.Len(),
	}).Debug("Ports resolved through cache")

	return ports, nil
}

// Clean удаляет устаревшие ячейки
func (pc *PortCache) Clean() int {
	removed := pc.cache.Clean()
	metrics.PortCacheSize.Set(float64(pc.cache.Len()))
	return removed
}

// Stats статистика кэша для /health
func (pc *PortCache) Stats() map[string]interface{} {
	hits, misses, hitRate := pc.cache.Stats()
	return map[string]interface{}{
		"size":      pc.cache.Len(),
		"hits":      hits,
		"misses":    misses,
		"hit_rate":  hitRate,
		"precision": pc.precision,
	}
}
