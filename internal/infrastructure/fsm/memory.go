package fsm

import (
	"context"
	"sync"
)

// MemoryStorage хранит сессии в памяти процесса
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{sessions: make(map[int64]*Session)}
}

func (m *MemoryStorage) Get(_ context.Context, chatID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return NewSession(), nil
	}
	return s.clone(), nil
}

func (m *MemoryStorage) Set(_ context.Context, chatID int64, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[chatID] = s.clone()
	return nil
}

func (m *MemoryStorage) Reset(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, chatID)
	return nil
}

func (s *Session) clone() *Session {
	c := &Session{State: s.State, Data: make(map[string]string, len(s.Data))}
	for k, v := range s.Data {
		c.Data[k] = v
	}
	if len(s.Photos) > 0 {
		c.Photos = append([]string(nil), s.Photos...)
	}
	return c
}
