package services

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// memoryStore is an in-memory KeyValueStore for tests, mirroring the Redis
// wrapper's semantics: a missing key is a zero value, not an error.
type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	expires map[string]time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		data:    make(map[string][]byte),
		expires: make(map[string]time.Time),
	}
}

func (m *memoryStore) lookup(key string) ([]byte, bool) {
	if exp, ok := m.expires[key]; ok && time.Now().After(exp) {
		delete(m.data, key)
		delete(m.expires, key)
		return nil, false
	}
	data, ok := m.data[key]
	return data, ok
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.lookup(key)
	if !ok {
		return "", nil
	}
	return string(data), nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	var data []byte
	var err error

	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		if data, err = sonic.Marshal(value); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = data
	if expiration > 0 {
		m.expires[key] = time.Now().Add(expiration)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *memoryStore) GetJSON(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.lookup(key)
	if !ok {
		return nil
	}
	return sonic.Unmarshal(data, dest)
}

func (m *memoryStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
		delete(m.expires, key)
	}
	return nil
}

func (m *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key)
	return ok, nil
}
