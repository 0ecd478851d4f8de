package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pixelpie/internal/config"
	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/database"
	"pixelpie/internal/infrastructure/fsm"
	"pixelpie/internal/infrastructure/replicate"
	"pixelpie/internal/infrastructure/yookassa"
	"pixelpie/internal/monitoring"
	"pixelpie/internal/service"
)

type sent struct {
	chatID   int64
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

// fakeAPI запоминает все отправленные сообщения
type fakeAPI struct {
	mu        sync.Mutex
	messages  []sent
	callbacks int
	sendErr   error
}

func (a *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return tgbotapi.Message{}, a.sendErr
	}
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		s := sent{chatID: m.ChatID, text: m.Text}
		if kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
			s.keyboard = &kb
		}
		a.messages = append(a.messages, s)
	case tgbotapi.PhotoConfig:
		a.messages = append(a.messages, sent{chatID: m.ChatID, text: m.Caption})
	case tgbotapi.VideoConfig:
		a.messages = append(a.messages, sent{chatID: m.ChatID, text: m.Caption})
	}
	return tgbotapi.Message{MessageID: len(a.messages)}, nil
}

func (a *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (a *fakeAPI) SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, sent{chatID: config.ChatID, text: fmt.Sprintf("album of %d", len(config.Media))})
	return nil, nil
}

func (a *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return "https://api.telegram.org/file/bot/photos/" + fileID + ".jpg", nil
}

func (a *fakeAPI) to(chatID int64) []sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []sent
	for _, m := range a.messages {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (a *fakeAPI) last(t *testing.T, chatID int64) sent {
	t.Helper()
	msgs := a.to(chatID)
	if len(msgs) == 0 {
		t.Fatalf("в чат %d ничего не отправлено", chatID)
	}
	return msgs[len(msgs)-1]
}

func hasButton(kb *tgbotapi.InlineKeyboardMarkup, data string) bool {
	if kb == nil {
		return false
	}
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil && *b.CallbackData == data {
				return true
			}
		}
	}
	return false
}

type fakeReplicate struct {
	mu          sync.Mutex
	predictions []map[string]any
}

func (r *fakeReplicate) CreatePrediction(ctx context.Context, ref string, input map[string]any) (*replicate.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions = append(r.predictions, input)
	return &replicate.Prediction{ID: fmt.Sprintf("pred-%d", len(r.predictions)), Status: replicate.StatusStarting}, nil
}

func (r *fakeReplicate) CreateTraining(ctx context.Context, trainer, destination string, input map[string]any) (*replicate.Prediction, error) {
	return nil, errors.New("not used")
}

func (r *fakeReplicate) CreateModel(ctx context.Context, owner, name string) error { return nil }

func (r *fakeReplicate) CancelPrediction(ctx context.Context, id string) error { return nil }

func (r *fakeReplicate) CancelTraining(ctx context.Context, id string) error { return nil }

func (r *fakeReplicate) UploadFile(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	return "https://api.replicate.com/v1/files/" + filename, nil
}

func (r *fakeReplicate) Download(ctx context.Context, url string) ([]byte, error) {
	return nil, errors.New("not used")
}

func (r *fakeReplicate) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.predictions)
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []yookassa.CreatePaymentRequest
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req yookassa.CreatePaymentRequest) (*yookassa.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return &yookassa.Payment{
		ID:           fmt.Sprintf("yk-%d", len(g.requests)),
		Status:       yookassa.StatusPending,
		Amount:       yookassa.RUB(req.Amount),
		Confirmation: &yookassa.Confirmation{Type: "redirect", ConfirmationURL: "https://yoomoney.ru/checkout/1"},
	}, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*yookassa.Payment, error) {
	return nil, errors.New("not used")
}

type echoTranslator struct{}

func (echoTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	return "en: " + text, nil
}

type upperImprover struct{}

func (upperImprover) Improve(ctx context.Context, prompt string) (string, error) {
	return strings.ToUpper(prompt), nil
}

type nopTracker struct{}

func (nopTracker) Track(*domain.Task) error { return nil }

// harness роутер с настоящей базой SQLite и фейковыми внешними сервисами
type harness struct {
	api        *fakeAPI
	router     *Router
	sessions   *fsm.MemoryStorage
	users      *database.UserRepository
	avatars    *database.AvatarRepository
	broadcasts *service.BroadcastService
	replicate  *fakeReplicate
	gateway    *fakeGateway
}

const adminID int64 = 1000

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("не удалось открыть базу: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, nil); err != nil {
		t.Fatalf("не удалось применить миграции: %v", err)
	}

	log := monitoring.NewNopLogger()
	users := database.NewUserRepository(db)
	avatars := database.NewAvatarRepository(db)
	tasks := database.NewTaskRepository(db)

	api := &fakeAPI{}
	b := NewBot(api, nil, log)
	rep := &fakeReplicate{}
	gw := &fakeGateway{}
	credits := service.NewCreditService(users)
	broadcasts := service.NewBroadcastService(100, database.NewBroadcastRepository(db), users, b, log)

	svc := Services{
		Users:   service.NewUserService(users, 3),
		Prompts: service.NewPromptService(echoTranslator{}, upperImprover{}, log),
		Training: service.NewTrainingService(service.TrainingConfig{
			Owner: "pixelpie", Trainer: "ostris/flux-dev-lora-trainer:v1", MinPhotos: 2, MaxPhotos: 12,
		}, users, avatars, tasks, rep, b, nopTracker{}, b, log),
		Generation: service.NewGenerationService(1, credits, avatars, tasks, rep, nopTracker{}, b, log),
		Video:      service.NewVideoService("kwaivgi/kling-v1.6-standard", 20, credits, tasks, rep, b, nopTracker{}, b, log),
		Payments:   service.NewPaymentService("https://t.me/pixelpie_bot", 10, 24*time.Hour, database.NewPaymentRepository(db), users, credits, gw, b, log),
		Broadcasts: broadcasts,
		Admin:      service.NewAdminService(users, avatars, credits, log),
	}

	sessions := fsm.NewMemoryStorage()
	router := NewRouter(RouterConfig{BotUsername: "pixelpie_bot", Admins: &config.Config{AdminIDs: []int64{adminID}}}, b, svc, sessions, nil, nil, log)

	return &harness{
		api:        api,
		router:     router,
		sessions:   sessions,
		users:      users,
		avatars:    avatars,
		broadcasts: broadcasts,
		replicate:  rep,
		gateway:    gw,
	}
}

func (h *harness) text(userID int64, text string) {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Аня", UserName: fmt.Sprintf("user%d", userID)},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.SplitN(text, " ", 2)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 1, Message: msg})
}

func (h *harness) photo(userID int64, fileID string) {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Аня"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Photo:     []tgbotapi.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID}},
	}
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 2, Message: msg})
}

func (h *harness) press(userID int64, data string) {
	cb := &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID, FirstName: "Аня"},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}
	h.router.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 3, CallbackQuery: cb})
}

func (h *harness) session(t *testing.T, chatID int64) *fsm.Session {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), chatID)
	if err != nil {
		t.Fatalf("не удалось получить сессию: %v", err)
	}
	return s
}

func (h *harness) user(t *testing.T, id int64) *domain.User {
	t.Helper()
	u, err := h.users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("не удалось получить пользователя %d: %v", id, err)
	}
	return u
}

func (h *harness) readyAvatar(t *testing.T, userID int64) *domain.Avatar {
	t.Helper()
	ctx := context.Background()
	a := &domain.Avatar{
		UserID:      userID,
		Name:        "Я в горах",
		Gender:      domain.GenderWoman,
		TriggerWord: "TOK",
		TrainingID:  "train-1",
		ModelName:   "pixelpie/pixelpie-1-1",
		Status:      domain.AvatarStatusTraining,
	}
	if err := h.avatars.Create(ctx, a); err != nil {
		t.Fatalf("не удалось создать аватар: %v", err)
	}
	if err := h.avatars.MarkReady(ctx, a.ID, "abc123"); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if err := h.avatars.SetActive(ctx, userID, a.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	return a
}
