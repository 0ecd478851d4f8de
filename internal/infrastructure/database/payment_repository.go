package database

import (
	"context"
	"fmt"
	"time"

	"pixelpie/internal/domain"
)

const paymentColumns = `id, user_id, tariff_id, amount, cookies, avatar_slots,
	COALESCE(provider_payment_id, '') AS provider_payment_id, status, confirmation_url, created_at, paid_at`

type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	p.CreatedAt = now()
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}
	return r.db.QueryRowxContext(ctx, r.db.q(`
		INSERT INTO payments (user_id, tariff_id, amount, cookies, avatar_slots, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		p.UserID, p.TariffID, p.Amount, p.Cookies, p.AvatarSlots, p.Status, p.CreatedAt,
	).Scan(&p.ID)
}

// AttachProvider сохраняет id платежа в ЮKassa и ссылку на оплату
func (r *PaymentRepository) AttachProvider(ctx context.Context, id int64, providerID, confirmationURL string) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE payments SET provider_payment_id = ?, confirmation_url = ? WHERE id = ?`),
		providerID, confirmationURL, id)
	if err != nil {
		return fmt.Errorf("attach provider: %w", err)
	}
	return expectOne(res, domain.ErrNotFound)
}

func (r *PaymentRepository) GetByProviderID(ctx context.Context, providerID string) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := r.db.GetContext(ctx, p, r.db.q(`SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id = ?`), providerID)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// Settle условный переход pending -> succeeded с начислением печенек и слотов
func (r *PaymentRepository) Settle(ctx context.Context, providerID string, paidAt time.Time) (*domain.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.db.q(`
		UPDATE payments SET status = ?, paid_at = ?
		WHERE provider_payment_id = ? AND status = ?`),
		domain.PaymentStatusSucceeded, paidAt.UTC(), providerID, domain.PaymentStatusPending)
	if err != nil {
		return nil, fmt.Errorf("settle payment: %w", err)
	}
	if err := expectOne(res, domain.ErrAlreadyProcessed); err != nil {
		return nil, err
	}

	p := &domain.Payment{}
	if err := tx.GetContext(ctx, p, r.db.q(`SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id = ?`), providerID); err != nil {
		return nil, notFound(err)
	}

	res, err = tx.ExecContext(ctx, r.db.q(`
		UPDATE users SET balance = balance + ?, avatar_slots = avatar_slots + ? WHERE id = ?`),
		p.Cookies, p.AvatarSlots, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("settle credit: %w", err)
	}
	if err := expectOne(res, domain.ErrNotFound); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) MarkCanceled(ctx context.Context, providerID string) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE payments SET status = ? WHERE provider_payment_id = ? AND status = ?`),
		domain.PaymentStatusCanceled, providerID, domain.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("mark canceled: %w", err)
	}
	return expectOne(res, domain.ErrAlreadyProcessed)
}

// CancelPending отменяет ожидающий платеж по локальному id,
// в том числе не дошедший до ЮKassa
func (r *PaymentRepository) CancelPending(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE payments SET status = ? WHERE id = ? AND status = ?`),
		domain.PaymentStatusCanceled, id, domain.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("cancel payment: %w", err)
	}
	return expectOne(res, domain.ErrAlreadyProcessed)
}

// ListPending платежи в ожидании, созданные раньше olderThan.
// Платежи без id ЮKassa тоже попадают в выборку.
func (r *PaymentRepository) ListPending(ctx context.Context, olderThan time.Time) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := r.db.SelectContext(ctx, &payments, r.db.q(`
		SELECT `+paymentColumns+` FROM payments
		WHERE status = ? AND created_at < ?
		ORDER BY created_at`),
		domain.PaymentStatusPending, olderThan.UTC())
	if err != nil {
		return nil, err
	}
	return payments, nil
}
