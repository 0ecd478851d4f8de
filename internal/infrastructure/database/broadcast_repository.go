package database

import (
	"context"
	"fmt"
	"time"

	"pixelpie/internal/domain"
)

const broadcastColumns = `id, author_id, text, photo_file_id, audience, status, scheduled_at, delivered, failed, created_at, finished_at`

type BroadcastRepository struct {
	db *DB
}

func NewBroadcastRepository(db *DB) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

func (r *BroadcastRepository) Create(ctx context.Context, b *domain.Broadcast) error {
	b.CreatedAt = now()
	if b.Status == "" {
		b.Status = domain.BroadcastStatusScheduled
	}
	if b.ScheduledAt.IsZero() {
		b.ScheduledAt = b.CreatedAt
	}
	return r.db.QueryRowxContext(ctx, r.db.q(`
		INSERT INTO broadcasts (author_id, text, photo_file_id, audience, status, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		b.AuthorID, b.Text, b.PhotoFileID, b.Audience, b.Status, b.ScheduledAt.UTC(), b.CreatedAt,
	).Scan(&b.ID)
}

func (r *BroadcastRepository) GetByID(ctx context.Context, id int64) (*domain.Broadcast, error) {
	b := &domain.Broadcast{}
	if err := r.db.GetContext(ctx, b, r.db.q(`SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ?`), id); err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (r *BroadcastRepository) ListScheduled(ctx context.Context) ([]*domain.Broadcast, error) {
	var list []*domain.Broadcast
	err := r.db.SelectContext(ctx, &list, r.db.q(`
		SELECT `+broadcastColumns+` FROM broadcasts WHERE status = ? ORDER BY scheduled_at`),
		domain.BroadcastStatusScheduled)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ListDue рассылки, время которых наступило
func (r *BroadcastRepository) ListDue(ctx context.Context, at time.Time) ([]*domain.Broadcast, error) {
	var list []*domain.Broadcast
	err := r.db.SelectContext(ctx, &list, r.db.q(`
		SELECT `+broadcastColumns+` FROM broadcasts WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at`),
		domain.BroadcastStatusScheduled, at.UTC())
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Claim забирает рассылку на отправку
func (r *BroadcastRepository) Claim(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE broadcasts SET status = ? WHERE id = ? AND status = ?`),
		domain.BroadcastStatusSending, id, domain.BroadcastStatusScheduled)
	if err != nil {
		return fmt.Errorf("claim broadcast: %w", err)
	}
	return expectOne(res, domain.ErrAlreadyProcessed)
}

func (r *BroadcastRepository) Finish(ctx context.Context, id int64, delivered, failed int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE broadcasts SET status = ?, delivered = ?, failed = ?, finished_at = ?
		WHERE id = ? AND status = ?`),
		domain.BroadcastStatusSent, delivered, failed, at.UTC(), id, domain.BroadcastStatusSending)
	if err != nil {
		return fmt.Errorf("finish broadcast: %w", err)
	}
	return expectOne(res, domain.ErrAlreadyProcessed)
}

func (r *BroadcastRepository) Cancel(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE broadcasts SET status = ?, finished_at = ? WHERE id = ? AND status = ?`),
		domain.BroadcastStatusCanceled, now(), id, domain.BroadcastStatusScheduled)
	if err != nil {
		return fmt.Errorf("cancel broadcast: %w", err)
	}
	return expectOne(res, domain.ErrAlreadyProcessed)
}
