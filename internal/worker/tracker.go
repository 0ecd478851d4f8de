package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/replicate"
	"pixelpie/internal/monitoring"
)

// ErrTrackerStopped трекер остановлен и новые задачи не принимает
var ErrTrackerStopped = errors.New("tracker stopped")

// Handler завершает задачу определенного вида
type Handler interface {
	// OnSuccess вызывается для успешного предсказания. Ошибка переводит
	// задачу в failed с возвратом оплаты.
	OnSuccess(ctx context.Context, task *domain.Task, result *replicate.Prediction) error
	// OnFailure вызывается ровно один раз для задачи, завершившейся неудачей
	OnFailure(ctx context.Context, task *domain.Task, status domain.TaskStatus, reason string) error
}

// Poller опрашивает и отменяет задачи на Replicate
type Poller interface {
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
	GetTraining(ctx context.Context, id string) (*replicate.Prediction, error)
	CancelPrediction(ctx context.Context, id string) error
	CancelTraining(ctx context.Context, id string) error
}

// TrackerConfig интервалы опроса и лимиты попыток по видам задач
type TrackerConfig struct {
	Intervals   map[domain.TaskKind]time.Duration
	MaxAttempts map[domain.TaskKind]int
}

// Tracker опрашивает задачи Replicate до завершения.
// На одно предсказание работает не больше одной горутины.
type Tracker struct {
	tasks  domain.TaskRepository
	poller Poller
	cfg    TrackerConfig
	log    *monitoring.Logger

	mu       sync.Mutex
	handlers map[domain.TaskKind]Handler
	active   map[string]struct{}
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTracker(cfg TrackerConfig, tasks domain.TaskRepository, poller Poller, log *monitoring.Logger) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		tasks:    tasks,
		poller:   poller,
		cfg:      cfg,
		log:      log,
		handlers: make(map[domain.TaskKind]Handler),
		active:   make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register назначает обработчик для вида задач
func (t *Tracker) Register(kind domain.TaskKind, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[kind] = h
}

// Track запускает опрос задачи. Повторный вызов для того же предсказания ничего не делает.
func (t *Tracker) Track(task *domain.Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrTrackerStopped
	}
	handler, ok := t.handlers[task.Kind]
	if !ok {
		return fmt.Errorf("no handler for task kind %q", task.Kind)
	}
	if _, ok := t.active[task.PredictionID]; ok {
		return nil
	}
	t.active[task.PredictionID] = struct{}{}

	t.wg.Add(1)
	monitoring.IncTrackedTasks(string(task.Kind))
	go t.poll(t.ctx, task, handler)
	return nil
}

// Active количество отслеживаемых задач
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Recover возобновляет опрос задач, оставшихся в работе после перезапуска
func (t *Tracker) Recover(ctx context.Context) (int, error) {
	running, err := t.tasks.ListRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running tasks: %w", err)
	}
	n := 0
	for _, task := range running {
		if err := t.Track(task); err != nil {
			t.log.WithFields(monitoring.Fields{"task_id": task.ID, "error": err}).Error("Не удалось возобновить задачу")
			continue
		}
		n++
	}
	if n > 0 {
		t.log.WithField("tasks", n).Info("Возобновлен опрос незавершенных задач")
	}
	return n, nil
}

// Run блокируется до отмены ctx и останавливает трекер
func (t *Tracker) Run(ctx context.Context) error {
	<-ctx.Done()
	t.Stop()
	return nil
}

// Stop отменяет все опросы и ждет их завершения.
// Незавершенные задачи остаются running и подхватываются через Recover.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) poll(ctx context.Context, task *domain.Task, handler Handler) {
	defer func() {
		t.mu.Lock()
		delete(t.active, task.PredictionID)
		t.mu.Unlock()
		monitoring.DecTrackedTasks(string(task.Kind))
		t.wg.Done()
	}()

	interval := t.interval(task.Kind)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if done := t.step(ctx, task, handler); done || ctx.Err() != nil {
			return
		}
		timer.Reset(interval)
	}
}

// step одна попытка опроса. Возвращает true, когда опрос закончен.
func (t *Tracker) step(ctx context.Context, task *domain.Task, handler Handler) bool {
	ctx, span := monitoring.StartSpan(ctx, "tracker.poll", trace.WithAttributes(
		attribute.String("task.kind", string(task.Kind)),
		attribute.String("replicate.prediction_id", task.PredictionID),
		attribute.String("task.id", task.ID),
	))
	defer span.End()

	log := t.log.WithContext(ctx).WithFields(monitoring.Fields{
		"task_id":       task.ID,
		"prediction_id": task.PredictionID,
		"kind":          task.Kind,
		"user_id":       task.UserID,
	})

	prediction, err := t.fetch(ctx, task)
	if ctx.Err() != nil {
		return true
	}
	switch {
	case err != nil:
		monitoring.RecordSpanError(span, err)
		log.WithError(err).Warn("Не удалось получить статус задачи")
	case prediction.Terminal():
		monitoring.AddSpanAttributes(span, attribute.String("replicate.status", prediction.Status))
		t.complete(ctx, task, handler, prediction, log)
		return true
	default:
		monitoring.AddSpanAttributes(span, attribute.String("replicate.status", prediction.Status))
	}

	attempts, err := t.tasks.IncrementAttempts(ctx, task.ID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("Задача удалена, опрос остановлен")
		return true
	}
	if err != nil {
		log.WithError(err).Warn("Не удалось обновить счетчик попыток")
	}

	maxAttempts := t.cfg.MaxAttempts[task.Kind]
	if time.Now().After(task.Deadline) || (maxAttempts > 0 && attempts >= maxAttempts) {
		t.cancelRemote(ctx, task, log)
		t.fail(ctx, task, handler, domain.TaskStatusTimeout, fmt.Sprintf("не завершилась за %d попыток", attempts), log)
		return true
	}
	return false
}

func (t *Tracker) interval(kind domain.TaskKind) time.Duration {
	if d := t.cfg.Intervals[kind]; d > 0 {
		return d
	}
	return 5 * time.Second
}

func (t *Tracker) fetch(ctx context.Context, task *domain.Task) (*replicate.Prediction, error) {
	if task.Kind == domain.TaskKindTraining {
		return t.poller.GetTraining(ctx, task.PredictionID)
	}
	return t.poller.GetPrediction(ctx, task.PredictionID)
}

func (t *Tracker) cancelRemote(ctx context.Context, task *domain.Task, log *logrus.Entry) {
	var err error
	if task.Kind == domain.TaskKindTraining {
		err = t.poller.CancelTraining(ctx, task.PredictionID)
	} else {
		err = t.poller.CancelPrediction(ctx, task.PredictionID)
	}
	if err != nil {
		log.WithError(err).Warn("Не удалось отменить задачу на Replicate")
	}
}

func (t *Tracker) complete(ctx context.Context, task *domain.Task, handler Handler, prediction *replicate.Prediction, log *logrus.Entry) {
	if prediction.Status != replicate.StatusSucceeded {
		reason := prediction.ErrorText()
		if reason == "" {
			reason = prediction.Status
		}
		t.fail(ctx, task, handler, domain.TaskStatusFailed, reason, log)
		return
	}

	if err := handler.OnSuccess(ctx, task, prediction); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Error("Не удалось доставить результат")
		t.fail(ctx, task, handler, domain.TaskStatusFailed, err.Error(), log)
		return
	}

	err := t.tasks.Finish(ctx, task.ID, domain.TaskStatusSucceeded, "", time.Now().UTC())
	if err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		log.WithError(err).Error("Не удалось сохранить статус задачи")
		return
	}
	monitoring.RecordTaskFinished(string(task.Kind), string(domain.TaskStatusSucceeded), time.Since(task.CreatedAt))
	log.Info("Задача выполнена")
}

// fail завершает задачу неудачей. OnFailure вызывает только тот, кто перевел задачу из running.
func (t *Tracker) fail(ctx context.Context, task *domain.Task, handler Handler, status domain.TaskStatus, reason string, log *logrus.Entry) {
	err := t.tasks.Finish(ctx, task.ID, status, reason, time.Now().UTC())
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return
	}
	if err != nil {
		log.WithError(err).Error("Не удалось сохранить статус задачи")
		return
	}
	monitoring.RecordTaskFinished(string(task.Kind), string(status), time.Since(task.CreatedAt))

	// возврат должен дойти даже при остановке трекера
	if err := handler.OnFailure(context.WithoutCancel(ctx), task, status, reason); err != nil {
		log.WithError(err).Error("Не удалось обработать неудачную задачу")
		monitoring.RecordError("task_failure", "tracker")
		return
	}
	log.WithFields(monitoring.Fields{"status": status, "reason": reason}).Warn("Задача завершилась неудачей")
}
