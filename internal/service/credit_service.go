package service

import (
	"context"
	"fmt"

	"pixelpie/internal/domain"
	"pixelpie/internal/monitoring"
)

// CreditService операции с балансом печенек
type CreditService struct {
	users domain.UserRepository
}

func NewCreditService(users domain.UserRepository) *CreditService {
	return &CreditService{users: users}
}

// Charge списывает n печенек, ErrInsufficientCredits если не хватает
func (s *CreditService) Charge(ctx context.Context, userID int64, n int) error {
	if n == 0 {
		return nil
	}
	if err := s.users.Debit(ctx, userID, n); err != nil {
		return fmt.Errorf("charge %d: %w", n, err)
	}
	monitoring.RecordCookies("spent", n)
	return nil
}

// Refund возвращает печеньки за неудавшуюся генерацию
func (s *CreditService) Refund(ctx context.Context, userID int64, n int) error {
	if n == 0 {
		return nil
	}
	if err := s.users.Credit(ctx, userID, n); err != nil {
		return fmt.Errorf("refund %d: %w", n, err)
	}
	monitoring.RecordCookies("refunded", n)
	return nil
}

// Grant начисление администратором
func (s *CreditService) Grant(ctx context.Context, userID int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("grant %d: %w", n, domain.ErrInvalidInput)
	}
	if err := s.users.Credit(ctx, userID, n); err != nil {
		return fmt.Errorf("grant %d: %w", n, err)
	}
	monitoring.RecordCookies("granted", n)
	return nil
}

// Bonus начисление бонуса (приветственного или реферального)
func (s *CreditService) Bonus(ctx context.Context, userID int64, n int) error {
	if n <= 0 {
		return nil
	}
	if err := s.users.Credit(ctx, userID, n); err != nil {
		return fmt.Errorf("bonus %d: %w", n, err)
	}
	monitoring.RecordCookies("bonus", n)
	return nil
}

// Balance возвращает пользователя с актуальным балансом
func (s *CreditService) Balance(ctx context.Context, userID int64) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}
