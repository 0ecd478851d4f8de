package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pixelpie/internal/domain"
	"pixelpie/internal/monitoring"
)

// AdminService статистика и работа с пользователями для админ-панели
type AdminService struct {
	users   domain.UserRepository
	avatars domain.AvatarRepository
	credits *CreditService
	log     *monitoring.Logger
}

func NewAdminService(users domain.UserRepository, avatars domain.AvatarRepository, credits *CreditService, log *monitoring.Logger) *AdminService {
	return &AdminService{users: users, avatars: avatars, credits: credits, log: log}
}

// UserCard пользователь вместе с его аватарами
type UserCard struct {
	User    *domain.User
	Avatars []*domain.Avatar
}

// Stats статистика с начала текущих суток (UTC)
func (s *AdminService) Stats(ctx context.Context) (*domain.Stats, error) {
	now := time.Now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.users.Stats(ctx, since)
}

// LookupUser ищет пользователя по числовому id или @username
func (s *AdminService) LookupUser(ctx context.Context, query string) (*UserCard, error) {
	user, err := s.resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	avatars, err := s.avatars.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &UserCard{User: user, Avatars: avatars}, nil
}

// Grant начисляет печеньки пользователю от имени администратора
func (s *AdminService) Grant(ctx context.Context, adminID int64, query string, amount int) (*domain.User, error) {
	user, err := s.resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := s.credits.Grant(ctx, user.ID, amount); err != nil {
		return nil, err
	}
	s.log.WithFields(monitoring.Fields{
		"admin_id": adminID,
		"user_id":  user.ID,
		"amount":   amount,
	}).Info("Начислены печеньки администратором")
	return s.users.GetByID(ctx, user.ID)
}

func (s *AdminService) resolve(ctx context.Context, query string) (*domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty user query: %w", domain.ErrInvalidInput)
	}
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		return s.users.GetByID(ctx, id)
	}
	return s.users.FindByUsername(ctx, strings.TrimPrefix(query, "@"))
}

// FormatStats текст статистики для админ-панели
func FormatStats(st *domain.Stats) string {
	var b strings.Builder
	b.WriteString("📊 Статистика\n\n")
	fmt.Fprintf(&b, "👥 Пользователей: %d (сегодня +%d)\n", st.Users, st.NewUsersToday)
	fmt.Fprintf(&b, "💳 Платящих: %d\n", st.PaidUsers)
	fmt.Fprintf(&b, "🚫 Заблокировали бота: %d\n\n", st.BlockedUsers)
	fmt.Fprintf(&b, "💰 Платежей: %d (сегодня %d)\n", st.PaymentsTotal, st.PaymentsToday)
	fmt.Fprintf(&b, "💵 Выручка: %s ₽\n\n", st.RevenueTotal)
	fmt.Fprintf(&b, "🧑‍🎨 Готовых аватаров: %d\n", st.ReadyAvatars)
	fmt.Fprintf(&b, "⏳ Задач в работе: %d\n", st.RunningTasks)
	fmt.Fprintf(&b, "✅ Успешных задач: %d\n", st.TasksSucceeded)
	fmt.Fprintf(&b, "❌ Неудачных задач: %d", st.TasksFailed)
	return b.String()
}
