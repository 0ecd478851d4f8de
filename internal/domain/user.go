package domain

import "time"

// User представляет пользователя бота
type User struct {
	ID          int64     `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	FirstName   string    `db:"first_name" json:"first_name"`
	Balance     int       `db:"balance" json:"balance"`           // печеньки
	AvatarSlots int       `db:"avatar_slots" json:"avatar_slots"` // доступные обучения аватаров
	Email       string    `db:"email" json:"email"`
	ReferrerID  *int64    `db:"referrer_id" json:"referrer_id,omitempty"`
	IsBlocked   bool      `db:"is_blocked" json:"is_blocked"`
	HasPaid     bool      `db:"has_paid" json:"has_paid"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	LastSeenAt  time.Time `db:"last_seen_at" json:"last_seen_at"`
}

// DisplayName возвращает имя для приветствий и админки
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "друг"
}

// Stats агрегированная статистика для админ-панели
type Stats struct {
	Users          int    `db:"users"`
	PaidUsers      int    `db:"paid_users"`
	BlockedUsers   int    `db:"blocked_users"`
	NewUsersToday  int    `db:"new_users_today"`
	PaymentsTotal  int    `db:"payments_total"`
	RevenueTotal   string `db:"revenue_total"`
	PaymentsToday  int    `db:"payments_today"`
	RunningTasks   int    `db:"running_tasks"`
	ReadyAvatars   int    `db:"ready_avatars"`
	TasksSucceeded int    `db:"tasks_succeeded"`
	TasksFailed    int    `db:"tasks_failed"`
}
