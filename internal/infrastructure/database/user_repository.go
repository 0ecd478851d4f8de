package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pixelpie/internal/domain"
)

const userColumns = `id, username, first_name, balance, avatar_slots, email, referrer_id, is_blocked, has_paid, created_at, last_seen_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert создает пользователя с начальным балансом или обновляет профиль
func (r *UserRepository) Upsert(ctx context.Context, u *domain.User) (bool, error) {
	ts := now()
	res, err := r.db.ExecContext(ctx, r.db.q(`
		INSERT INTO users (id, username, first_name, balance, avatar_slots, referrer_id, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		u.ID, u.Username, u.FirstName, u.Balance, u.AvatarSlots, u.ReferrerID, ts, ts)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}

	created, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if created == 1 {
		return true, nil
	}

	_, err = r.db.ExecContext(ctx, r.db.q(`
		UPDATE users SET username = ?, first_name = ?, last_seen_at = ?, is_blocked = ?
		WHERE id = ?`),
		u.Username, u.FirstName, ts, false, u.ID)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return false, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.GetContext(ctx, u, r.db.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	u := &domain.User{}
	err := r.db.GetContext(ctx, u, r.db.q(`
		SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER(?)
		ORDER BY last_seen_at DESC LIMIT 1`), username)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// Debit списывает печеньки одним условным UPDATE
func (r *UserRepository) Debit(ctx context.Context, id int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("debit %d: %w", amount, domain.ErrInvalidInput)
	}
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE users SET balance = balance - ? WHERE id = ? AND balance >= ?`),
		amount, id, amount)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	return expectOne(res, domain.ErrInsufficientCredits)
}

func (r *UserRepository) Credit(ctx context.Context, id int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit %d: %w", amount, domain.ErrInvalidInput)
	}
	res, err := r.db.ExecContext(ctx, r.db.q(`UPDATE users SET balance = balance + ? WHERE id = ?`), amount, id)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	return expectOne(res, domain.ErrNotFound)
}

func (r *UserRepository) DebitSlot(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE users SET avatar_slots = avatar_slots - 1 WHERE id = ? AND avatar_slots >= 1`), id)
	if err != nil {
		return fmt.Errorf("debit slot: %w", err)
	}
	return expectOne(res, domain.ErrNoAvatarSlots)
}

func (r *UserRepository) CreditSlots(ctx context.Context, id int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("credit slots %d: %w", n, domain.ErrInvalidInput)
	}
	res, err := r.db.ExecContext(ctx, r.db.q(`UPDATE users SET avatar_slots = avatar_slots + ? WHERE id = ?`), n, id)
	if err != nil {
		return fmt.Errorf("credit slots: %w", err)
	}
	return expectOne(res, domain.ErrNotFound)
}

func (r *UserRepository) SetEmail(ctx context.Context, id int64, email string) error {
	_, err := r.db.ExecContext(ctx, r.db.q(`UPDATE users SET email = ? WHERE id = ?`), email, id)
	return err
}

func (r *UserRepository) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	_, err := r.db.ExecContext(ctx, r.db.q(`UPDATE users SET is_blocked = ? WHERE id = ?`), blocked, id)
	return err
}

// MarkPaid отмечает первую оплату, true только для первого вызова
func (r *UserRepository) MarkPaid(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.q(`UPDATE users SET has_paid = ? WHERE id = ? AND has_paid = ?`), true, id, false)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListAudience возвращает id получателей рассылки постранично (keyset по id)
func (r *UserRepository) ListAudience(ctx context.Context, audience domain.Audience, afterID int64, limit int) ([]int64, error) {
	query := `SELECT id FROM users WHERE is_blocked = ? AND id > ?`
	args := []interface{}{false, afterID}

	switch audience {
	case domain.AudienceAll:
	case domain.AudiencePaid:
		query += ` AND has_paid = ?`
		args = append(args, true)
	case domain.AudienceUnpaid:
		query += ` AND has_paid = ?`
		args = append(args, false)
	default:
		return nil, fmt.Errorf("audience %q: %w", audience, domain.ErrInvalidInput)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, r.db.q(query), args...); err != nil {
		return nil, err
	}
	return ids, nil
}

// Stats собирает статистику для админ-панели
func (r *UserRepository) Stats(ctx context.Context, since time.Time) (*domain.Stats, error) {
	s := &domain.Stats{}
	err := r.db.GetContext(ctx, s, r.db.q(`
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM users WHERE has_paid = ?) AS paid_users,
			(SELECT COUNT(*) FROM users WHERE is_blocked = ?) AS blocked_users,
			(SELECT COUNT(*) FROM users WHERE created_at >= ?) AS new_users_today,
			(SELECT COUNT(*) FROM payments WHERE status = 'succeeded') AS payments_total,
			(SELECT CAST(COALESCE(SUM(amount), 0) AS TEXT) FROM payments WHERE status = 'succeeded') AS revenue_total,
			(SELECT COUNT(*) FROM payments WHERE status = 'succeeded' AND paid_at >= ?) AS payments_today,
			(SELECT COUNT(*) FROM tasks WHERE status = 'running') AS running_tasks,
			(SELECT COUNT(*) FROM avatars WHERE status = 'ready') AS ready_avatars,
			(SELECT COUNT(*) FROM tasks WHERE status = 'succeeded') AS tasks_succeeded,
			(SELECT COUNT(*) FROM tasks WHERE status IN ('failed', 'timeout')) AS tasks_failed`),
		true, true, since.UTC(), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return s, nil
}
