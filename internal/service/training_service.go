package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/media"
	"pixelpie/internal/infrastructure/replicate"
	"pixelpie/internal/monitoring"
)

const (
	trainingDeadline = 3 * time.Hour
	triggerWord      = "TOK"
	maxAvatarName    = 40
)

// TrainingConfig параметры обучения
type TrainingConfig struct {
	Owner     string // владелец моделей на Replicate
	Trainer   string // owner/name:version
	MinPhotos int
	MaxPhotos int
	Steps     int
}

// TrainingRequest заявка на обучение аватара
type TrainingRequest struct {
	UserID   int64
	ChatID   int64
	Name     string
	Gender   domain.Gender
	PhotoIDs []string // file_id фото в Telegram
}

// TrainingService обучение персональных моделей
type TrainingService struct {
	cfg       TrainingConfig
	users     domain.UserRepository
	avatars   domain.AvatarRepository
	tasks     domain.TaskRepository
	replicate Replicate
	files     FileFetcher
	tracker   TaskTracker
	notifier  Notifier
	log       *monitoring.Logger
}

func NewTrainingService(
	cfg TrainingConfig,
	users domain.UserRepository,
	avatars domain.AvatarRepository,
	tasks domain.TaskRepository,
	replicate Replicate,
	files FileFetcher,
	tracker TaskTracker,
	notifier Notifier,
	log *monitoring.Logger,
) *TrainingService {
	if cfg.Steps == 0 {
		cfg.Steps = 1000
	}
	return &TrainingService{
		cfg:       cfg,
		users:     users,
		avatars:   avatars,
		tasks:     tasks,
		replicate: replicate,
		files:     files,
		tracker:   tracker,
		notifier:  notifier,
		log:       log,
	}
}

// ValidateName проверяет имя аватара
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxAvatarName {
		return "", fmt.Errorf("avatar name: %w", domain.ErrInvalidInput)
	}
	return name, nil
}

// Start запускает обучение: списывает слот, загружает фото и создает задачу.
// При любой ошибке после списания слот возвращается.
func (s *TrainingService) Start(ctx context.Context, req TrainingRequest) (avatar *domain.Avatar, err error) {
	name, err := ValidateName(req.Name)
	if err != nil {
		return nil, err
	}
	if _, ok := domain.ParseGender(string(req.Gender)); !ok {
		return nil, fmt.Errorf("gender %q: %w", req.Gender, domain.ErrInvalidInput)
	}
	if n := len(req.PhotoIDs); n < s.cfg.MinPhotos || n > s.cfg.MaxPhotos {
		return nil, fmt.Errorf("photos %d not in [%d, %d]: %w", n, s.cfg.MinPhotos, s.cfg.MaxPhotos, domain.ErrInvalidInput)
	}

	if err := s.users.DebitSlot(ctx, req.UserID); err != nil {
		return nil, err
	}
	defer func() {
		if err == nil {
			return
		}
		if refundErr := s.users.CreditSlots(context.WithoutCancel(ctx), req.UserID, 1); refundErr != nil {
			s.log.WithUser(req.UserID).WithError(refundErr).Error("Не удалось вернуть слот аватара")
		}
	}()

	archive, err := s.buildArchive(ctx, req.PhotoIDs)
	if err != nil {
		return nil, err
	}

	imagesURL, err := s.replicate.UploadFile(ctx, fmt.Sprintf("pixelpie-%d.zip", req.UserID), "application/zip", archive)
	if err != nil {
		return nil, fmt.Errorf("upload photos: %w: %v", domain.ErrProviderUnavailable, err)
	}

	count, err := s.avatars.CountByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	modelName := fmt.Sprintf("pixelpie-%d-%d", req.UserID, count+1)
	if err := s.replicate.CreateModel(ctx, s.cfg.Owner, modelName); err != nil {
		return nil, fmt.Errorf("create model: %w: %v", domain.ErrProviderUnavailable, err)
	}

	destination := s.cfg.Owner + "/" + modelName
	training, err := s.replicate.CreateTraining(ctx, s.cfg.Trainer, destination, map[string]any{
		"input_images": imagesURL,
		"trigger_word": triggerWord,
		"steps":        s.cfg.Steps,
		"autocaption":  true,
	})
	if err != nil {
		return nil, fmt.Errorf("create training: %w: %v", domain.ErrProviderUnavailable, err)
	}
	defer func() {
		if err != nil {
			cancelRemote(ctx, s.replicate, s.log, &domain.Task{Kind: domain.TaskKindTraining, UserID: req.UserID, PredictionID: training.ID})
		}
	}()

	avatar = &domain.Avatar{
		UserID:      req.UserID,
		Name:        name,
		Gender:      req.Gender,
		TriggerWord: triggerWord,
		TrainingID:  training.ID,
		ModelName:   destination,
		Status:      domain.AvatarStatusTraining,
	}
	if err := s.avatars.Create(ctx, avatar); err != nil {
		return nil, fmt.Errorf("save avatar: %w", err)
	}

	task := &domain.Task{
		ID:           uuid.NewString(),
		Kind:         domain.TaskKindTraining,
		UserID:       req.UserID,
		ChatID:       req.ChatID,
		PredictionID: training.ID,
		Cost:         1,
		Deadline:     time.Now().UTC().Add(trainingDeadline),
	}
	if err = task.SetPayload(domain.TaskPayload{AvatarID: avatar.ID}); err != nil {
		s.markAvatarFailed(ctx, avatar.ID)
		return nil, err
	}
	if err = s.tasks.Create(ctx, task); err != nil {
		s.markAvatarFailed(ctx, avatar.ID)
		return nil, fmt.Errorf("save task: %w", err)
	}

	// задача уже в базе и слот за ней: дальше слот возвращает только трекер
	if trackErr := s.tracker.Track(task); trackErr != nil {
		s.log.WithFields(monitoring.Fields{"task_id": task.ID, "error": trackErr}).Warn("Задача обучения будет подхвачена при перезапуске")
	}

	s.log.WithContext(ctx).WithFields(monitoring.Fields{
		"user_id":       req.UserID,
		"avatar_id":     avatar.ID,
		"prediction_id": training.ID,
		"photos":        len(req.PhotoIDs),
	}).Info("Обучение аватара запущено")
	return avatar, nil
}

func (s *TrainingService) markAvatarFailed(ctx context.Context, avatarID int64) {
	if err := s.avatars.MarkFailed(context.WithoutCancel(ctx), avatarID); err != nil {
		s.log.WithFields(monitoring.Fields{"avatar_id": avatarID, "error": err}).Error("Не удалось пометить аватар неудачным")
	}
}

func (s *TrainingService) buildArchive(ctx context.Context, photoIDs []string) (*bytes.Buffer, error) {
	files := make([]media.NamedFile, 0, len(photoIDs))
	for i, id := range photoIDs {
		_, data, err := s.files.Fetch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch photo %d: %w", i+1, err)
		}
		files = append(files, media.NamedFile{Name: fmt.Sprintf("photo_%02d.jpg", i+1), Data: data})
	}

	return media.BuildArchive(files)
}

// OnSuccess сохраняет версию модели и делает аватар активным
func (s *TrainingService) OnSuccess(ctx context.Context, task *domain.Task, result *replicate.Prediction) error {
	payload, err := task.DecodePayload()
	if err != nil {
		return err
	}
	version := result.TrainedVersion()
	if version == "" {
		return fmt.Errorf("обучение %s завершилось без версии модели", task.PredictionID)
	}

	if err := s.avatars.MarkReady(ctx, payload.AvatarID, version); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return err
	}
	if err := s.avatars.SetActive(ctx, task.UserID, payload.AvatarID); err != nil {
		return err
	}

	avatar, err := s.avatars.GetByID(ctx, payload.AvatarID)
	if err != nil {
		return err
	}
	return s.notifier.SendText(ctx, task.ChatID, fmt.Sprintf(
		"🎉 Аватар «%s» готов и выбран активным!\n\nВыберите стиль в /generate или опишите свою идею.", avatar.Name))
}

// OnFailure помечает аватар неудачным и возвращает слот
func (s *TrainingService) OnFailure(ctx context.Context, task *domain.Task, status domain.TaskStatus, reason string) error {
	payload, err := task.DecodePayload()
	if err != nil {
		return err
	}
	if err := s.avatars.MarkFailed(ctx, payload.AvatarID); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		s.log.WithFields(monitoring.Fields{"avatar_id": payload.AvatarID, "error": err}).Error("Не удалось пометить аватар")
	}
	if err := s.users.CreditSlots(ctx, task.UserID, task.Cost); err != nil {
		return fmt.Errorf("refund slot: %w", err)
	}

	text := "😔 Не удалось обучить аватар. Слот для обучения возвращен, попробуйте еще раз с другими фото: /train"
	if status == domain.TaskStatusTimeout {
		text = "⏳ Обучение заняло слишком много времени и было остановлено. Слот возвращен: /train"
	}
	return s.notifier.SendText(ctx, task.ChatID, text)
}

// Avatars список аватаров пользователя
func (s *TrainingService) Avatars(ctx context.Context, userID int64) ([]*domain.Avatar, error) {
	return s.avatars.ListByUser(ctx, userID)
}

// Activate делает готовый аватар пользователя активным
func (s *TrainingService) Activate(ctx context.Context, userID, avatarID int64) (*domain.Avatar, error) {
	avatar, err := s.avatars.GetByID(ctx, avatarID)
	if err != nil {
		return nil, err
	}
	if avatar.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if avatar.Status != domain.AvatarStatusReady {
		return nil, fmt.Errorf("avatar %d is %s: %w", avatarID, avatar.Status, domain.ErrInvalidInput)
	}
	if err := s.avatars.SetActive(ctx, userID, avatarID); err != nil {
		return nil, err
	}
	avatar.IsActive = true
	return avatar, nil
}

// Limits минимальное и максимальное число фото для обучения
func (s *TrainingService) Limits() (minPhotos, maxPhotos int) {
	return s.cfg.MinPhotos, s.cfg.MaxPhotos
}
