package domain

import (
	"context"
	"time"
)

// UserRepository хранилище пользователей
type UserRepository interface {
	// Upsert создает пользователя или обновляет имя и время активности.
	// Возвращает true, если пользователь был создан.
	Upsert(ctx context.Context, u *User) (bool, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// Debit списывает печеньки только при достаточном балансе
	Debit(ctx context.Context, id int64, amount int) error
	Credit(ctx context.Context, id int64, amount int) error
	DebitSlot(ctx context.Context, id int64) error
	CreditSlots(ctx context.Context, id int64, n int) error
	SetEmail(ctx context.Context, id int64, email string) error
	SetBlocked(ctx context.Context, id int64, blocked bool) error
	MarkPaid(ctx context.Context, id int64) (firstPayment bool, err error)
	ListAudience(ctx context.Context, audience Audience, afterID int64, limit int) ([]int64, error)
	Stats(ctx context.Context, since time.Time) (*Stats, error)
}

// PaymentRepository хранилище платежей
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	AttachProvider(ctx context.Context, id int64, providerID, confirmationURL string) error
	GetByProviderID(ctx context.Context, providerID string) (*Payment, error)
	// Settle в одной транзакции переводит pending -> succeeded и начисляет
	// пакет пользователю. ErrAlreadyProcessed если платеж уже обработан.
	Settle(ctx context.Context, providerID string, paidAt time.Time) (*Payment, error)
	MarkCanceled(ctx context.Context, providerID string) error
	CancelPending(ctx context.Context, id int64) error
	ListPending(ctx context.Context, olderThan time.Time) ([]*Payment, error)
}

// AvatarRepository хранилище обученных моделей
type AvatarRepository interface {
	Create(ctx context.Context, a *Avatar) error
	GetByID(ctx context.Context, id int64) (*Avatar, error)
	ListByUser(ctx context.Context, userID int64) ([]*Avatar, error)
	GetActive(ctx context.Context, userID int64) (*Avatar, error)
	SetActive(ctx context.Context, userID, avatarID int64) error
	MarkReady(ctx context.Context, id int64, version string) error
	MarkFailed(ctx context.Context, id int64) error
	CountByUser(ctx context.Context, userID int64) (int, error)
}

// TaskRepository хранилище отслеживаемых задач
type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// Finish переводит running -> status, ErrAlreadyProcessed если задача уже завершена
	Finish(ctx context.Context, id string, status TaskStatus, errText string, at time.Time) error
	ListRunning(ctx context.Context) ([]*Task, error)
}

// BroadcastRepository хранилище рассылок
type BroadcastRepository interface {
	Create(ctx context.Context, b *Broadcast) error
	GetByID(ctx context.Context, id int64) (*Broadcast, error)
	ListScheduled(ctx context.Context) ([]*Broadcast, error)
	ListDue(ctx context.Context, now time.Time) ([]*Broadcast, error)
	// Claim переводит scheduled -> sending, ErrAlreadyProcessed если рассылку уже забрали
	Claim(ctx context.Context, id int64) error
	Finish(ctx context.Context, id int64, delivered, failed int, at time.Time) error
	Cancel(ctx context.Context, id int64) error
}
