package local

import (
	"sort"
	"strings"
	"sync"
)

// MemoryBackend - хранилище в памяти, используется когда файл базы недоступен и в тестах
type MemoryBackend struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int64
	used  int64

	// FailWrites включает ошибку ErrUnavailable на запись
	FailWrites bool
}

func NewMemoryBackend(quota int64) *MemoryBackend {
	return &MemoryBackend{
		data:  make(map[string]string),
		quota: quota,
	}
}

func (m *MemoryBackend) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrUnavailable
	}

	used := m.used
	if old, ok := m.data[key]; ok {
		used -= entrySize(key, old)
	}
	used += entrySize(key, value)
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}

	m.data[key] = value
	m.used = used
	return nil
}

func (m *MemoryBackend) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return ErrUnavailable
	}
	if old, ok := m.data[key]; ok {
		m.used -= entrySize(key, old)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryBackend) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Used - сколько байт занято всеми записями
func (m *MemoryBackend) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}
