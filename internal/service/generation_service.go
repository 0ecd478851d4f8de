package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/replicate"
	"pixelpie/internal/monitoring"
)

const (
	imageDeadline = 20 * time.Minute
	maxImages     = 4
)

// ImageRequest заявка на генерацию фото с активным аватаром
type ImageRequest struct {
	UserID int64
	ChatID int64
	Prompt string // готовый английский промпт
	Style  string // id стиля или пустая строка для своего промпта
	Count  int
}

// GenerationService генерация фото
type GenerationService struct {
	photoCost int
	credits   *CreditService
	avatars   domain.AvatarRepository
	tasks     domain.TaskRepository
	replicate Replicate
	tracker   TaskTracker
	notifier  Notifier
	log       *monitoring.Logger
}

func NewGenerationService(
	photoCost int,
	credits *CreditService,
	avatars domain.AvatarRepository,
	tasks domain.TaskRepository,
	replicate Replicate,
	tracker TaskTracker,
	notifier Notifier,
	log *monitoring.Logger,
) *GenerationService {
	return &GenerationService{
		photoCost: photoCost,
		credits:   credits,
		avatars:   avatars,
		tasks:     tasks,
		replicate: replicate,
		tracker:   tracker,
		notifier:  notifier,
		log:       log,
	}
}

// Cost стоимость генерации count фото
func (s *GenerationService) Cost(count int) int {
	return s.photoCost * count
}

// ActiveAvatar возвращает активный аватар или ErrNoActiveAvatar
func (s *GenerationService) ActiveAvatar(ctx context.Context, userID int64) (*domain.Avatar, error) {
	return s.avatars.GetActive(ctx, userID)
}

// GenerateImages списывает печеньки и запускает предсказание на активном аватаре.
// Если предсказание не создано, печеньки возвращаются сразу.
func (s *GenerationService) GenerateImages(ctx context.Context, req ImageRequest) (*domain.Task, error) {
	if req.Count < 1 || req.Count > maxImages {
		return nil, fmt.Errorf("count %d: %w", req.Count, domain.ErrInvalidInput)
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("empty prompt: %w", domain.ErrInvalidInput)
	}

	avatar, err := s.avatars.GetActive(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	cost := s.Cost(req.Count)
	if err := s.credits.Charge(ctx, req.UserID, cost); err != nil {
		return nil, err
	}

	prediction, err := s.replicate.CreatePrediction(ctx, avatar.Ref(), map[string]any{
		"prompt":              req.Prompt,
		"num_outputs":         req.Count,
		"aspect_ratio":        "3:4",
		"output_format":       "jpg",
		"output_quality":      90,
		"guidance_scale":      3.5,
		"num_inference_steps": 28,
		"lora_scale":          1,
	})
	if err != nil {
		s.refundNow(ctx, req.UserID, cost)
		return nil, fmt.Errorf("create prediction: %w: %v", domain.ErrProviderUnavailable, err)
	}

	task := &domain.Task{
		ID:           uuid.NewString(),
		Kind:         domain.TaskKindImage,
		UserID:       req.UserID,
		ChatID:       req.ChatID,
		PredictionID: prediction.ID,
		Cost:         cost,
		Deadline:     time.Now().UTC().Add(imageDeadline),
	}
	if err := task.SetPayload(domain.TaskPayload{AvatarID: avatar.ID, Prompt: req.Prompt, Style: req.Style, Count: req.Count}); err != nil {
		cancelRemote(ctx, s.replicate, s.log, task)
		s.refundNow(ctx, req.UserID, cost)
		return nil, err
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		cancelRemote(ctx, s.replicate, s.log, task)
		s.refundNow(ctx, req.UserID, cost)
		return nil, fmt.Errorf("save task: %w", err)
	}

	if err := s.tracker.Track(task); err != nil {
		s.log.WithFields(monitoring.Fields{"task_id": task.ID, "error": err}).Warn("Задача будет подхвачена при перезапуске")
	}

	s.log.WithContext(ctx).WithFields(monitoring.Fields{
		"user_id":       req.UserID,
		"task_id":       task.ID,
		"prediction_id": prediction.ID,
		"count":         req.Count,
	}).Info("Генерация фото запущена")
	return task, nil
}

func (s *GenerationService) refundNow(ctx context.Context, userID int64, cost int) {
	if err := s.credits.Refund(context.WithoutCancel(ctx), userID, cost); err != nil {
		s.log.WithUser(userID).WithError(err).Error("Не удалось вернуть печеньки")
	}
}

// cancelRemote останавливает уже запущенную на Replicate задачу, которую не удалось сохранить
func cancelRemote(ctx context.Context, rep Replicate, log *monitoring.Logger, task *domain.Task) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if task.Kind == domain.TaskKindTraining {
		err = rep.CancelTraining(ctx, task.PredictionID)
	} else {
		err = rep.CancelPrediction(ctx, task.PredictionID)
	}
	if err != nil {
		log.WithContext(ctx).WithFields(monitoring.Fields{
			"user_id":       task.UserID,
			"prediction_id": task.PredictionID,
			"error":         err,
		}).Error("Не удалось отменить задачу Replicate")
	}
}

// OnSuccess отправляет готовые фото
func (s *GenerationService) OnSuccess(ctx context.Context, task *domain.Task, result *replicate.Prediction) error {
	urls := result.Outputs()
	if len(urls) == 0 {
		return fmt.Errorf("предсказание %s завершилось без изображений", task.PredictionID)
	}
	return s.notifier.SendPhotos(ctx, task.ChatID, urls, "✨ Готово! Еще вариант: /generate")
}

// OnFailure возвращает печеньки за неудавшуюся генерацию
func (s *GenerationService) OnFailure(ctx context.Context, task *domain.Task, status domain.TaskStatus, reason string) error {
	if err := s.credits.Refund(ctx, task.UserID, task.Cost); err != nil {
		return err
	}

	text := fmt.Sprintf("😔 Не получилось сгенерировать фото. %d 🍪 вернули на баланс.", task.Cost)
	if status == domain.TaskStatusTimeout {
		text = fmt.Sprintf("⏳ Генерация заняла слишком много времени. %d 🍪 вернули на баланс.", task.Cost)
	}
	return s.notifier.SendText(ctx, task.ChatID, text)
}
