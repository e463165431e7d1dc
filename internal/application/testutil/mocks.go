// Package testutil provides test doubles for the application layer.
package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/orris-inc/cellcore/internal/domain/message"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
)

// MockSectionStore is a map-backed section store with write counting and error injection.
type MockSectionStore struct {
	mu       sync.RWMutex
	sections map[string]map[string]string
	writes   int

	// Error injection for testing
	loadError  error
	writeError error
}

// NewMockSectionStore creates an empty store.
func NewMockSectionStore() *MockSectionStore {
	return &MockSectionStore{
		sections: make(map[string]map[string]string),
	}
}

func (m *MockSectionStore) Load(ctx context.Context, section string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.loadError != nil {
		return nil, m.loadError
	}

	out := make(map[string]string, len(m.sections[section]))
	for k, v := range m.sections[section] {
		out[k] = v
	}
	return out, nil
}

func (m *MockSectionStore) Set(ctx context.Context, section, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeError != nil {
		return m.writeError
	}

	if m.sections[section] == nil {
		m.sections[section] = make(map[string]string)
	}
	m.sections[section][key] = value
	m.writes++
	return nil
}

func (m *MockSectionStore) Delete(ctx context.Context, section, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeError != nil {
		return m.writeError
	}

	delete(m.sections[section], key)
	m.writes++
	return nil
}

// Get returns one stored value.
func (m *MockSectionStore) Get(section, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.sections[section][key]
	return v, ok
}

// Writes counts successful Set and Delete calls.
func (m *MockSectionStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// SetLoadError makes Load fail.
func (m *MockSectionStore) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

// SetWriteError makes Set and Delete fail.
func (m *MockSectionStore) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeError = err
}

// MockVectorComputer is a testify mock of the vector service.
type MockVectorComputer struct {
	mock.Mock
}

func (m *MockVectorComputer) ComputeVector(ctx context.Context, req subscriber.VectorRequest) (*subscriber.Vector, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*subscriber.Vector), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPlacer is a testify mock of the message placer.
type MockPlacer struct {
	mock.Mock
}

func (m *MockPlacer) PlaceMessage(ctx context.Context, d message.Delivery) (bool, error) {
	args := m.Called(ctx, d)
	return args.Bool(0), args.Error(1)
}
