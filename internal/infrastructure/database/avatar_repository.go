package database

import (
	"context"
	"fmt"

	"pixelpie/internal/domain"
)

const avatarColumns = `id, user_id, name, gender, trigger_word, training_id, model_name, version, status, is_active, created_at`

type AvatarRepository struct {
	db *DB
}

func NewAvatarRepository(db *DB) *AvatarRepository {
	return &AvatarRepository{db: db}
}

func (r *AvatarRepository) Create(ctx context.Context, a *domain.Avatar) error {
	a.CreatedAt = now()
	if a.Status == "" {
		a.Status = domain.AvatarStatusTraining
	}
	return r.db.QueryRowxContext(ctx, r.db.q(`
		INSERT INTO avatars (user_id, name, gender, trigger_word, training_id, model_name, version, status, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		a.UserID, a.Name, a.Gender, a.TriggerWord, a.TrainingID, a.ModelName, a.Version, a.Status, a.IsActive, a.CreatedAt,
	).Scan(&a.ID)
}

func (r *AvatarRepository) GetByID(ctx context.Context, id int64) (*domain.Avatar, error) {
	a := &domain.Avatar{}
	if err := r.db.GetContext(ctx, a, r.db.q(`SELECT `+avatarColumns+` FROM avatars WHERE id = ?`), id); err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *AvatarRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Avatar, error) {
	var avatars []*domain.Avatar
	err := r.db.SelectContext(ctx, &avatars, r.db.q(`
		SELECT `+avatarColumns+` FROM avatars WHERE user_id = ? ORDER BY created_at, id`), userID)
	if err != nil {
		return nil, err
	}
	return avatars, nil
}

// GetActive возвращает выбранный готовый аватар пользователя
func (r *AvatarRepository) GetActive(ctx context.Context, userID int64) (*domain.Avatar, error) {
	a := &domain.Avatar{}
	err := r.db.GetContext(ctx, a, r.db.q(`
		SELECT `+avatarColumns+` FROM avatars
		WHERE user_id = ? AND status = ? AND is_active = ?
		LIMIT 1`), userID, domain.AvatarStatusReady, true)
	if err != nil {
		if notFound(err) == domain.ErrNotFound {
			return nil, domain.ErrNoActiveAvatar
		}
		return nil, err
	}
	return a, nil
}

// SetActive делает аватар активным, снимая флаг с остальных
func (r *AvatarRepository) SetActive(ctx context.Context, userID, avatarID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.db.q(`
		UPDATE avatars SET is_active = ? WHERE id = ? AND user_id = ? AND status = ?`),
		true, avatarID, userID, domain.AvatarStatusReady)
	if err != nil {
		return fmt.Errorf("activate avatar: %w", err)
	}
	if err := expectOne(res, domain.ErrNotFound); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.db.q(`
		UPDATE avatars SET is_active = ? WHERE user_id = ? AND id <> ?`),
		false, userID, avatarID); err != nil {
		return fmt.Errorf("deactivate avatars: %w", err)
	}

	return tx.Commit()
}

// MarkReady сохраняет версию обученной модели
func (r *AvatarRepository) MarkReady(ctx context.Context, id int64, version string) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE avatars SET status = ?, version = ? WHERE id = ? AND status = ?`),
		domain.AvatarStatusReady, version, id, domain.AvatarStatusTraining)
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return expectOne(res, domain.ErrAlreadyProcessed)
}

func (r *AvatarRepository) MarkFailed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE avatars SET status = ?, is_active = ? WHERE id = ? AND status = ?`),
		domain.AvatarStatusFailed, false, id, domain.AvatarStatusTraining)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return expectOne(res, domain.ErrAlreadyProcessed)
}

func (r *AvatarRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.q(`SELECT COUNT(*) FROM avatars WHERE user_id = ?`), userID)
	return n, err
}
