// Package credstore persists client credentials across the two storage
// backends the app runs on: plain file storage in a regular browser-like
// environment and an AEAD-sealed keystore inside the packaged mobile shell.
package credstore

import (
	"sync"

	"github.com/federicoroldos/sofull-site/internal/domain"
)

// Store is the key-value persistence contract. Read returns
// domain.ErrNotFound for absent keys. Writes are last-writer-wins; callers
// rely on their own reads being idempotent rather than on locking.
type Store interface {
	Read(key string) (string, error)
	Write(key, value string) error
	Delete(key string) error
	// Subscribe registers a listener invoked with the key after every write
	// or delete through this store. The returned func cancels it.
	Subscribe(fn func(key string)) (cancel func())
}

// subscribers is the shared notification fan-out used by the backends.
type subscribers struct {
	mu  sync.Mutex
	fns map[int]func(string)
	seq int
}

func (s *subscribers) add(fn func(string)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(string))
	}
	id := s.seq
	s.seq++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

func (s *subscribers) notify(key string) {
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}

// Memory is an in-process Store for tests and ephemeral use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
	subs subscribers
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Read(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *Memory) Write(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	m.subs.notify(key)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	m.subs.notify(key)
	return nil
}

func (m *Memory) Subscribe(fn func(key string)) (cancel func()) {
	return m.subs.add(fn)
}
