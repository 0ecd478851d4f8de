// Package fsm хранит шаг диалога и промежуточные данные для каждого чата.
package fsm

import (
	"context"
	"strconv"
)

// Session состояние диалога одного чата
type Session struct {
	State  string            `json:"state"`
	Data   map[string]string `json:"data,omitempty"`
	Photos []string          `json:"photos,omitempty"` // file_id фото для обучения
}

// NewSession пустая сессия в состоянии Idle
func NewSession() *Session {
	return &Session{State: Idle, Data: make(map[string]string)}
}

// Get возвращает значение из Data
func (s *Session) Get(key string) string {
	if s.Data == nil {
		return ""
	}
	return s.Data[key]
}

// Set записывает значение в Data
func (s *Session) Set(key, value string) {
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	s.Data[key] = value
}

// GetInt возвращает целое значение из Data, 0 если его нет
func (s *Session) GetInt(key string) int64 {
	n, _ := strconv.ParseInt(s.Get(key), 10, 64)
	return n
}

func (s *Session) SetInt(key string, value int64) {
	s.Set(key, strconv.FormatInt(value, 10))
}

// AddPhoto добавляет фото, если лимит не превышен. Возвращает количество фото.
func (s *Session) AddPhoto(fileID string, limit int) (int, bool) {
	if len(s.Photos) >= limit {
		return len(s.Photos), false
	}
	s.Photos = append(s.Photos, fileID)
	return len(s.Photos), true
}

// Storage хранилище сессий
type Storage interface {
	// Get никогда не возвращает nil сессию без ошибки
	Get(ctx context.Context, chatID int64) (*Session, error)
	Set(ctx context.Context, chatID int64, s *Session) error
	Reset(ctx context.Context, chatID int64) error
}
