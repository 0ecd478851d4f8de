package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"pixelpie/internal/domain"
	"pixelpie/internal/monitoring"
)

// UserService регистрация и профиль пользователя
type UserService struct {
	users        domain.UserRepository
	welcomeBonus int
}

func NewUserService(users domain.UserRepository, welcomeBonus int) *UserService {
	return &UserService{users: users, welcomeBonus: welcomeBonus}
}

// Register создает пользователя при первом обращении. Реферер сохраняется
// только для нового пользователя и только если он существует.
func (s *UserService) Register(ctx context.Context, u *domain.User, referrerID int64) (*domain.User, bool, error) {
	candidate := *u
	candidate.Balance = s.welcomeBonus
	if referrerID != 0 && referrerID != u.ID {
		if _, err := s.users.GetByID(ctx, referrerID); err == nil {
			candidate.ReferrerID = &referrerID
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
	}

	created, err := s.users.Upsert(ctx, &candidate)
	if err != nil {
		return nil, false, fmt.Errorf("register user: %w", err)
	}
	if created {
		monitoring.RecordCookies("bonus", s.welcomeBonus)
	}

	user, err := s.users.GetByID(ctx, u.ID)
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// SetEmail проверяет и сохраняет email для чеков
func (s *UserService) SetEmail(ctx context.Context, id int64, raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || !strings.Contains(addr.Address, ".") {
		return "", fmt.Errorf("email %q: %w", raw, domain.ErrInvalidInput)
	}
	email := strings.ToLower(addr.Address)
	if err := s.users.SetEmail(ctx, id, email); err != nil {
		return "", err
	}
	return email, nil
}
