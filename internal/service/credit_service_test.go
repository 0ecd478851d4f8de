package service

import (
	"context"
	"errors"
	"testing"

	"pixelpie/internal/domain"
)

func TestCreditServiceChargeAndRefund(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1, FirstName: "Аня", Balance: 5})
	credits := NewCreditService(r.users)

	if err := credits.Charge(ctx, 1, 3); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if got := r.balance(t, 1); got != 2 {
		t.Errorf("баланс после списания = %d, ожидалось 2", got)
	}

	err := credits.Charge(ctx, 1, 3)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("ожидалась ErrInsufficientCredits, получено %v", err)
	}
	if got := r.balance(t, 1); got != 2 {
		t.Errorf("неудачное списание изменило баланс: %d", got)
	}

	if err := credits.Refund(ctx, 1, 3); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got := r.balance(t, 1); got != 5 {
		t.Errorf("баланс после возврата = %d, ожидалось 5", got)
	}
}

func TestCreditServiceGrant(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	credits := NewCreditService(r.users)

	if err := credits.Grant(ctx, 1, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Grant(0): ожидалась ErrInvalidInput, получено %v", err)
	}
	if err := credits.Grant(ctx, 1, 15); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	u, err := credits.Balance(ctx, 1)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if u.Balance != 15 {
		t.Errorf("баланс = %d, ожидалось 15", u.Balance)
	}
}

func TestUserServiceRegister(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	users := NewUserService(r.users, 3)

	referrer, created, err := users.Register(ctx, &domain.User{ID: 10, FirstName: "Петя"}, 0)
	if err != nil || !created {
		t.Fatalf("Register: created=%v err=%v", created, err)
	}
	if referrer.Balance != 3 {
		t.Errorf("приветственный бонус = %d, ожидалось 3", referrer.Balance)
	}

	u, created, err := users.Register(ctx, &domain.User{ID: 11, FirstName: "Маша"}, 10)
	if err != nil || !created {
		t.Fatalf("Register: created=%v err=%v", created, err)
	}
	if u.ReferrerID == nil || *u.ReferrerID != 10 {
		t.Errorf("реферер не сохранен: %v", u.ReferrerID)
	}

	// повторная регистрация не начисляет бонус и не меняет реферера
	u, created, err = users.Register(ctx, &domain.User{ID: 11, FirstName: "Маша"}, 999)
	if err != nil || created {
		t.Fatalf("повторный Register: created=%v err=%v", created, err)
	}
	if u.Balance != 3 || u.ReferrerID == nil || *u.ReferrerID != 10 {
		t.Errorf("повторная регистрация изменила профиль: balance=%d referrer=%v", u.Balance, u.ReferrerID)
	}

	u, _, err = users.Register(ctx, &domain.User{ID: 12}, 12)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ReferrerID != nil {
		t.Error("пользователь не может пригласить сам себя")
	}
}

func TestUserServiceSetEmail(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	users := NewUserService(r.users, 0)

	if _, err := users.SetEmail(ctx, 1, "не почта"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ожидалась ErrInvalidInput, получено %v", err)
	}
	email, err := users.SetEmail(ctx, 1, "  Anna@Example.COM ")
	if err != nil {
		t.Fatalf("SetEmail: %v", err)
	}
	if email != "anna@example.com" {
		t.Errorf("email = %q", email)
	}
}
