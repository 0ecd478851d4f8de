package service

import (
	"context"
	"errors"
	"io"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/replicate"
	"pixelpie/internal/infrastructure/yookassa"
)

var (
	// ErrRecipientBlocked пользователь заблокировал бота
	ErrRecipientBlocked = errors.New("recipient blocked the bot")
	// ErrEmailRequired для чека нужен email
	ErrEmailRequired = errors.New("email required")
)

// Notifier доставляет результаты пользователю в Telegram
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhotos(ctx context.Context, chatID int64, urls []string, caption string) error
	SendVideo(ctx context.Context, chatID int64, path, caption string) error
	// SendBroadcast возвращает ErrRecipientBlocked, если бот заблокирован
	SendBroadcast(ctx context.Context, chatID int64, text, photoFileID string) error
}

// FileFetcher скачивает файлы Telegram по file_id
type FileFetcher interface {
	Fetch(ctx context.Context, fileID string) (name string, data []byte, err error)
}

// Replicate операции Replicate, нужные сервисам
type Replicate interface {
	CreatePrediction(ctx context.Context, ref string, input map[string]any) (*replicate.Prediction, error)
	CreateTraining(ctx context.Context, trainer, destination string, input map[string]any) (*replicate.Prediction, error)
	CreateModel(ctx context.Context, owner, name string) error
	CancelPrediction(ctx context.Context, id string) error
	CancelTraining(ctx context.Context, id string) error
	UploadFile(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// PaymentGateway платежный шлюз (ЮKassa)
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req yookassa.CreatePaymentRequest) (*yookassa.Payment, error)
	GetPayment(ctx context.Context, id string) (*yookassa.Payment, error)
}

// Translator переводит промпты на английский
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Improver улучшает промпты
type Improver interface {
	Improve(ctx context.Context, prompt string) (string, error)
}

// TaskTracker отслеживает задачи Replicate до завершения
type TaskTracker interface {
	Track(task *domain.Task) error
}
