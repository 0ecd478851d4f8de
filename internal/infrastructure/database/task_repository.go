package database

import (
	"context"
	"fmt"
	"time"

	"pixelpie/internal/domain"
)

const taskColumns = `id, kind, user_id, chat_id, prediction_id, cost, status, attempts, payload, error, deadline, created_at, finished_at`

type TaskRepository struct {
	db *DB
}

func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	if t.Status == "" {
		t.Status = domain.TaskStatusRunning
	}
	_, err := r.db.ExecContext(ctx, r.db.q(`
		INSERT INTO tasks (id, kind, user_id, chat_id, prediction_id, cost, status, attempts, payload, error, deadline, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.Kind, t.UserID, t.ChatID, t.PredictionID, t.Cost, t.Status, t.Attempts, t.Payload, t.Error,
		t.Deadline.UTC(), t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	t := &domain.Task{}
	if err := r.db.GetContext(ctx, t, r.db.q(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id); err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// IncrementAttempts увеличивает счетчик опросов и возвращает новое значение
func (r *TaskRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowxContext(ctx, r.db.q(`
		UPDATE tasks SET attempts = attempts + 1 WHERE id = ? RETURNING attempts`), id).Scan(&attempts)
	if err != nil {
		return 0, notFound(err)
	}
	return attempts, nil
}

// Finish условный переход running -> status
func (r *TaskRepository) Finish(ctx context.Context, id string, status domain.TaskStatus, errText string, at time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("finish with %q: %w", status, domain.ErrInvalidInput)
	}
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE tasks SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = ?`),
		status, errText, at.UTC(), id, domain.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	return expectOne(res, domain.ErrAlreadyProcessed)
}

func (r *TaskRepository) ListRunning(ctx context.Context) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.db.SelectContext(ctx, &tasks, r.db.q(`
		SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at`), domain.TaskStatusRunning)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
