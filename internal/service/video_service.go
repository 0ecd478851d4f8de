package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/media"
	"pixelpie/internal/infrastructure/replicate"
	"pixelpie/internal/monitoring"
)

const videoDeadline = 45 * time.Minute

// VideoRequest заявка на оживление фото
type VideoRequest struct {
	UserID      int64
	ChatID      int64
	ImageFileID string
	Prompt      string // готовый английский промпт
}

// VideoService генерация видео из фото
type VideoService struct {
	model     string
	videoCost int
	tempDir   string
	credits   *CreditService
	tasks     domain.TaskRepository
	replicate Replicate
	files     FileFetcher
	tracker   TaskTracker
	notifier  Notifier
	log       *monitoring.Logger
}

func NewVideoService(
	model string,
	videoCost int,
	credits *CreditService,
	tasks domain.TaskRepository,
	replicate Replicate,
	files FileFetcher,
	tracker TaskTracker,
	notifier Notifier,
	log *monitoring.Logger,
) *VideoService {
	return &VideoService{
		model:     model,
		videoCost: videoCost,
		tempDir:   os.TempDir(),
		credits:   credits,
		tasks:     tasks,
		replicate: replicate,
		files:     files,
		tracker:   tracker,
		notifier:  notifier,
		log:       log,
	}
}

// Cost стоимость одного видео
func (s *VideoService) Cost() int {
	return s.videoCost
}

// Generate списывает печеньки и запускает генерацию видео
func (s *VideoService) Generate(ctx context.Context, req VideoRequest) (*domain.Task, error) {
	if req.ImageFileID == "" || req.Prompt == "" {
		return nil, fmt.Errorf("video request: %w", domain.ErrInvalidInput)
	}

	if err := s.credits.Charge(ctx, req.UserID, s.videoCost); err != nil {
		return nil, err
	}

	task, err := s.start(ctx, req)
	if err != nil {
		if refundErr := s.credits.Refund(context.WithoutCancel(ctx), req.UserID, s.videoCost); refundErr != nil {
			s.log.WithUser(req.UserID).WithError(refundErr).Error("Не удалось вернуть печеньки")
		}
		return nil, err
	}

	if err := s.tracker.Track(task); err != nil {
		s.log.WithFields(monitoring.Fields{"task_id": task.ID, "error": err}).Warn("Задача будет подхвачена при перезапуске")
	}
	return task, nil
}

func (s *VideoService) start(ctx context.Context, req VideoRequest) (*domain.Task, error) {
	name, data, err := s.files.Fetch(ctx, req.ImageFileID)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	imageURL, err := s.replicate.UploadFile(ctx, name, "image/jpeg", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload image: %w: %v", domain.ErrProviderUnavailable, err)
	}

	prediction, err := s.replicate.CreatePrediction(ctx, s.model, map[string]any{
		"prompt":      req.Prompt,
		"start_image": imageURL,
		"duration":    5,
	})
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w: %v", domain.ErrProviderUnavailable, err)
	}

	task := &domain.Task{
		ID:           uuid.NewString(),
		Kind:         domain.TaskKindVideo,
		UserID:       req.UserID,
		ChatID:       req.ChatID,
		PredictionID: prediction.ID,
		Cost:         s.videoCost,
		Deadline:     time.Now().UTC().Add(videoDeadline),
	}
	if err := task.SetPayload(domain.TaskPayload{Prompt: req.Prompt, ImageFileID: req.ImageFileID}); err != nil {
		cancelRemote(ctx, s.replicate, s.log, task)
		return nil, err
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		cancelRemote(ctx, s.replicate, s.log, task)
		return nil, fmt.Errorf("save task: %w", err)
	}

	s.log.WithContext(ctx).WithFields(monitoring.Fields{
		"user_id":       req.UserID,
		"task_id":       task.ID,
		"prediction_id": prediction.ID,
	}).Info("Генерация видео запущена")
	return task, nil
}

// OnSuccess скачивает видео, при необходимости сжимает под лимит Telegram и отправляет
func (s *VideoService) OnSuccess(ctx context.Context, task *domain.Task, result *replicate.Prediction) error {
	urls := result.Outputs()
	if len(urls) == 0 {
		return fmt.Errorf("предсказание %s завершилось без видео", task.PredictionID)
	}

	data, err := s.replicate.Download(ctx, urls[0])
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}

	dir, err := os.MkdirTemp(s.tempDir, "pixelpie-video-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	raw := filepath.Join(dir, "raw.mp4")
	if err := os.WriteFile(raw, data, 0o644); err != nil {
		return err
	}

	out := raw
	if int64(len(data)) > media.TelegramVideoLimit {
		out = filepath.Join(dir, "video.mp4")
		if err := media.FitVideo(ctx, raw, out, media.TelegramVideoLimit); err != nil {
			return fmt.Errorf("fit video: %w", err)
		}
	}

	return s.notifier.SendVideo(ctx, task.ChatID, out, "🎬 Ваше видео готово! Еще одно: /video")
}

// OnFailure возвращает печеньки за неудавшееся видео
func (s *VideoService) OnFailure(ctx context.Context, task *domain.Task, status domain.TaskStatus, reason string) error {
	if err := s.credits.Refund(ctx, task.UserID, task.Cost); err != nil {
		return err
	}

	text := fmt.Sprintf("😔 Не получилось создать видео. %d 🍪 вернули на баланс.", task.Cost)
	if status == domain.TaskStatusTimeout {
		text = fmt.Sprintf("⏳ Видео генерировалось слишком долго. %d 🍪 вернули на баланс.", task.Cost)
	}
	return s.notifier.SendText(ctx, task.ChatID, text)
}
