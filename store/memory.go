package store

import (
	"context"
	"sync"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// Memory is a process-local, non-durable Storage backend with
// backend-assigned names, grounded on ImageSaverLib4.Storage.RamStorage.
// Used by tests and by the engine's in-memory consistency fixtures.
type Memory struct {
	maxResourceSize int64
	requiredWrapTag string

	mu      sync.RWMutex
	blobs   map[string][]byte
	current int64
}

const DefaultMaxResourceSize = 10_000_000 // 10 MB, ported from StorageInterface.DEFAULT_MAX_RESOURCE_SIZE

func NewMemory(maxResourceSize int64, requiredWrapTag string) *Memory {
	if maxResourceSize <= 0 {
		maxResourceSize = DefaultMaxResourceSize
	}
	return &Memory{
		maxResourceSize: maxResourceSize,
		requiredWrapTag: requiredWrapTag,
		blobs:           make(map[string][]byte),
	}
}

func (m *Memory) Identifier() string      { return "memory" }
func (m *Memory) MaxResourceSize() int64  { return m.maxResourceSize }
func (m *Memory) RequiredWrapTag() string { return m.requiredWrapTag }

func (m *Memory) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, &NotFound{Name: name}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Save(_ context.Context, data []byte, _ cos.Cksum) (string, error) {
	name := cos.GenUUID()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.blobs[name] = cp
	m.current += int64(len(cp))
	m.mu.Unlock()
	return name, nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	if data, ok := m.blobs[name]; ok {
		m.current -= int64(len(data))
		delete(m.blobs, name)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		out = append(out, name)
	}
	return out, nil
}

func (m *Memory) Wipe(_ context.Context) error {
	m.mu.Lock()
	m.blobs = make(map[string][]byte)
	m.current = 0
	m.mu.Unlock()
	return nil
}

func (m *Memory) TotalSize() int64 { return -1 }
func (m *Memory) CurrentSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
func (m *Memory) HasFreeSize(int64) bool { return true }

var (
	_ Storage = (*Memory)(nil)
	_ Sizable = (*Memory)(nil)
)
