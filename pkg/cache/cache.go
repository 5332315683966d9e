package cache

import (
	"sync"
	"time"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Clear()
	Size() int
}

// Memo is an in-memory TTL cache. Expired entries are dropped lazily on
// read and swept by a background cleaner.
type Memo[K comparable, V any] struct {
	items      map[K]memoItem[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
}

type memoItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewMemo builds a cache whose Set(ttl=0) entries live for defaultTTL.
// A defaultTTL of zero means entries without an explicit ttl never expire.
func NewMemo[K comparable, V any](defaultTTL time.Duration) *Memo[K, V] {
	m := &Memo[K, V]{
		items:      make(map[K]memoItem[V]),
		defaultTTL: defaultTTL,
	}
	go m.sweepLoop()
	return m
}

func (m *Memo[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || item.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (m *Memo[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = memoItem[V]{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
}

func (m *Memo[K, V]) Delete(key K) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

func (m *Memo[K, V]) Clear() {
	m.mu.Lock()
	m.items = make(map[K]memoItem[V])
	m.mu.Unlock()
}

func (m *Memo[K, V]) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (it memoItem[V]) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

func (m *Memo[K, V]) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		m.mu.Lock()
		for key, item := range m.items {
			if item.expired(now) {
				delete(m.items, key)
			}
		}
		m.mu.Unlock()
	}
}
