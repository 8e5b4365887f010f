package store

import (
	"bytes"
	"context"
	"sync"
)

// memoryBackend keeps values in process memory. Nothing survives a restart.
type memoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{values: make(map[string][]byte, 16)}
}

func (b *memoryBackend) start(_ context.Context) error { return nil }

func (b *memoryBackend) stop() error { return nil }

func (b *memoryBackend) get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.values[key]
	if !ok {
		return nil, nil
	}

	return bytes.Clone(v), nil
}

func (b *memoryBackend) put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.values[key] = bytes.Clone(value)

	return nil
}
