package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pixelpie/internal/monitoring"
	"pixelpie/internal/service"
)

// maxDownloadSize лимит Bot API на скачивание файлов
const maxDownloadSize = 20 << 20

// API методы tgbotapi.BotAPI, которыми пользуется бот
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot представляет собой обертку над tgbotapi.BotAPI с дополнительной функциональностью.
// Реализует service.Notifier и service.FileFetcher.
type Bot struct {
	API  API
	http *http.Client
	log  *monitoring.Logger
}

func NewBot(api API, httpClient *http.Client, log *monitoring.Logger) *Bot {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Bot{API: api, http: httpClient, log: log}
}

// Send отправляет сообщение через API бота
func (b *Bot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, err := b.API.Send(c)
	monitoring.RecordTelegramMessageSent(chattableType(c), err == nil)
	return msg, mapError(err)
}

// Request выполняет запрос без сообщения в ответе (callback, удаление)
func (b *Bot) Request(c tgbotapi.Chattable) error {
	_, err := b.API.Request(c)
	return mapError(err)
}

// SendText отправляет простое текстовое сообщение
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendMessage отправляет текст с inline-клавиатурой
func (b *Bot) SendMessage(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	_, err := b.Send(msg)
	return err
}

// AnswerCallback убирает часики на нажатой кнопке
func (b *Bot) AnswerCallback(callbackID, text string) {
	if err := b.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.WithError(err).Debug("Не удалось ответить на callback")
	}
}

// SendPhotos отправляет одно фото или альбом; подпись у первого фото
func (b *Bot) SendPhotos(ctx context.Context, chatID int64, urls []string, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no photos to send")
	}
	if len(urls) == 1 {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(urls[0]))
		photo.Caption = caption
		_, err := b.Send(photo)
		return err
	}

	media := make([]interface{}, 0, len(urls))
	for i, u := range urls {
		item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(u))
		if i == 0 {
			item.Caption = caption
		}
		media = append(media, item)
	}
	_, err := b.API.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
	monitoring.RecordTelegramMessageSent("media_group", err == nil)
	return mapError(err)
}

// SendVideo загружает видео с диска
func (b *Bot) SendVideo(ctx context.Context, chatID int64, filePath, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(filePath))
	video.Caption = caption
	video.SupportsStreaming = true
	_, err := b.Send(video)
	return err
}

// SendBroadcast отправляет сообщение рассылки, один раз повторяя при 429
func (b *Bot) SendBroadcast(ctx context.Context, chatID int64, text, photoFileID string) error {
	var c tgbotapi.Chattable
	if photoFileID != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(photoFileID))
		photo.Caption = text
		c = photo
	} else {
		c = tgbotapi.NewMessage(chatID, text)
	}

	_, err := b.Send(c)
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(tgErr.RetryAfter) * time.Second):
		}
		_, err = b.Send(c)
	}
	return err
}

// Fetch скачивает файл Telegram по file_id
func (b *Bot) Fetch(ctx context.Context, fileID string) (string, []byte, error) {
	url, err := b.API.GetFileDirectURL(fileID)
	if err != nil {
		return "", nil, fmt.Errorf("get file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, err
	}
	start := time.Now()
	resp, err := b.http.Do(req)
	monitoring.RecordExternalAPICall("telegram", "file", err, time.Since(start))
	if err != nil {
		return "", nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("download file: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return "", nil, err
	}
	if len(data) > maxDownloadSize {
		return "", nil, fmt.Errorf("file %s is larger than %d bytes", fileID, maxDownloadSize)
	}
	return path.Base(url), data, nil
}

// mapError переводит ответ 403 в service.ErrRecipientBlocked
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %s", service.ErrRecipientBlocked, tgErr.Message)
	}
	return err
}

func chattableType(c tgbotapi.Chattable) string {
	switch c.(type) {
	case tgbotapi.MessageConfig:
		return "text"
	case tgbotapi.PhotoConfig:
		return "photo"
	case tgbotapi.VideoConfig:
		return "video"
	default:
		return "other"
	}
}
