package monitoring

import (
	"context"
	"sync"
	"time"
)

// ActiveUsersManager управляет активными пользователями
type ActiveUsersManager struct {
	activeUsers map[int64]time.Time
	mutex       sync.RWMutex
	timeout     time.Duration
}

// NewActiveUsersManager создает менеджер активных пользователей
func NewActiveUsersManager(timeout time.Duration) *ActiveUsersManager {
	return &ActiveUsersManager{
		activeUsers: make(map[int64]time.Time),
		timeout:     timeout,
	}
}

// MarkUserActive отмечает пользователя как активного
func (aum *ActiveUsersManager) MarkUserActive(userID int64) {
	aum.mutex.Lock()
	defer aum.mutex.Unlock()

	aum.activeUsers[userID] = time.Now()
}

// GetActiveUsersCount возвращает количество активных пользователей
func (aum *ActiveUsersManager) GetActiveUsersCount() int {
	aum.mutex.RLock()
	defer aum.mutex.RUnlock()

	now := time.Now()
	count := 0

	for _, lastActivity := range aum.activeUsers {
		if now.Sub(lastActivity) <= aum.timeout {
			count++
		}
	}

	return count
}

// Start периодически очищает неактивных пользователей и обновляет метрику
func (aum *ActiveUsersManager) Start(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			aum.cleanup()
		}
	}
}

func (aum *ActiveUsersManager) cleanup() {
	aum.mutex.Lock()
	defer aum.mutex.Unlock()

	now := time.Now()
	for userID, lastActivity := range aum.activeUsers {
		if now.Sub(lastActivity) > aum.timeout {
			delete(aum.activeUsers, userID)
		}
	}

	SetActiveTelegramUsers(len(aum.activeUsers))
}
