package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shipscreen/smh-service/internal/models"
)

// MemoryStore хранилище в памяти процесса (тесты и запуск без MySQL)
//
// Снимки хранятся сериализованными, чтобы вызывающий код не мог
// изменить сохраненное состояние через указатели.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64][]byte
	latest map[int]int64
	counts map[int64]int
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[int64][]byte),
		latest: make(map[int]int64),
		counts: make(map[int64]int),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

// GetLatest возвращает копию последнего снимка
func (m *MemoryStore) GetLatest(_ context.Context, imo int) (*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.latest[imo]
	if !ok {
		return nil, ErrNotFound
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(m.rows[id], &entry); err != nil {
		return nil, fmt.Errorf("failed to decode stored entry: %w", err)
	}
	entry.ID = id
	entry.Options.UpdateCount = m.counts[id]
	return &entry, nil
}

// Save с той же семантикой, что и MySQLStore
func (m *MemoryStore) Save(_ context.Context, entry *models.CacheEntry, overwrite bool) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := entry.Options.LastSMHID
	if overwrite && id > 0 {
		current, ok := m.counts[id]
		expected := entry.Options.UpdateCount - 1
		if expected < 0 {
			expected = 0
		}
		if !ok || current != expected {
			return fmt.Errorf("row %d: %w", id, ErrCacheConflict)
		}
	} else {
		m.nextID++
		id = m.nextID
	}

	entry.ID = id
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	m.rows[id] = data
	m.counts[id] = entry.Options.UpdateCount
	if id >= m.latest[entry.IMO] {
		m.latest[entry.IMO] = id
	}
	return nil
}

// Len число сохраненных строк
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
