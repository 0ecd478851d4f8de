package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/database"
	"pixelpie/internal/infrastructure/replicate"
	"pixelpie/internal/infrastructure/yookassa"
	"pixelpie/internal/monitoring"
)

type repos struct {
	users      *database.UserRepository
	payments   *database.PaymentRepository
	avatars    *database.AvatarRepository
	tasks      *database.TaskRepository
	broadcasts *database.BroadcastRepository
}

func newRepos(t *testing.T) repos {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("не удалось открыть базу: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, nil); err != nil {
		t.Fatalf("не удалось применить миграции: %v", err)
	}

	return repos{
		users:      database.NewUserRepository(db),
		payments:   database.NewPaymentRepository(db),
		avatars:    database.NewAvatarRepository(db),
		tasks:      database.NewTaskRepository(db),
		broadcasts: database.NewBroadcastRepository(db),
	}
}

func (r repos) addUser(t *testing.T, u domain.User) {
	t.Helper()
	if _, err := r.users.Upsert(context.Background(), &u); err != nil {
		t.Fatalf("не удалось создать пользователя: %v", err)
	}
}

func (r repos) balance(t *testing.T, id int64) int {
	t.Helper()
	u, err := r.users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("не удалось получить пользователя %d: %v", id, err)
	}
	return u.Balance
}

type sentMessage struct {
	chatID int64
	text   string
	urls   []string
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	blocked map[int64]bool
	failOn  map[int64]bool
	textErr error
}

func (n *fakeNotifier) record(m sentMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
}

func (n *fakeNotifier) SendText(ctx context.Context, chatID int64, text string) error {
	if n.textErr != nil {
		return n.textErr
	}
	n.record(sentMessage{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) SendPhotos(ctx context.Context, chatID int64, urls []string, caption string) error {
	n.record(sentMessage{chatID: chatID, text: caption, urls: urls})
	return nil
}

func (n *fakeNotifier) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	n.record(sentMessage{chatID: chatID, text: caption, urls: []string{path}})
	return nil
}

func (n *fakeNotifier) SendBroadcast(ctx context.Context, chatID int64, text, photoFileID string) error {
	if n.blocked[chatID] {
		return fmt.Errorf("send: %w", ErrRecipientBlocked)
	}
	if n.failOn[chatID] {
		return errors.New("telegram: bad request")
	}
	n.record(sentMessage{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) messagesTo(chatID int64) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.sent {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*yookassa.Payment
	requests []yookassa.CreatePaymentRequest
	err      error

	delay    time.Duration
	inFlight int32
	peak     int32
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]*yookassa.Payment{}}
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req yookassa.CreatePaymentRequest) (*yookassa.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	p := &yookassa.Payment{
		ID:           fmt.Sprintf("yk-%d", len(g.requests)),
		Status:       yookassa.StatusPending,
		Amount:       yookassa.RUB(req.Amount),
		Description:  req.Description,
		Confirmation: &yookassa.Confirmation{Type: "redirect", ConfirmationURL: "https://yoomoney.ru/checkout/" + fmt.Sprint(len(g.requests))},
		Metadata:     req.Metadata,
	}
	g.payments[p.ID] = p
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*yookassa.Payment, error) {
	if g.delay > 0 {
		n := atomic.AddInt32(&g.inFlight, 1)
		defer atomic.AddInt32(&g.inFlight, -1)
		for {
			peak := atomic.LoadInt32(&g.peak)
			if n <= peak || atomic.CompareAndSwapInt32(&g.peak, peak, n) {
				break
			}
		}
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return nil, errors.New("yookassa http 404")
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) setStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[id].Status = status
}

type fakeReplicate struct {
	mu          sync.Mutex
	createErr   error
	predictions []map[string]any
	refs        []string
	canceled    []string
}

func (r *fakeReplicate) CreatePrediction(ctx context.Context, ref string, input map[string]any) (*replicate.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.refs = append(r.refs, ref)
	r.predictions = append(r.predictions, input)
	return &replicate.Prediction{ID: fmt.Sprintf("pred-%d", len(r.predictions)), Status: replicate.StatusStarting}, nil
}

func (r *fakeReplicate) CreateTraining(ctx context.Context, trainer, destination string, input map[string]any) (*replicate.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.refs = append(r.refs, destination)
	r.predictions = append(r.predictions, input)
	return &replicate.Prediction{ID: fmt.Sprintf("train-%d", len(r.predictions)), Status: replicate.StatusStarting}, nil
}

func (r *fakeReplicate) CreateModel(ctx context.Context, owner, name string) error {
	return nil
}

func (r *fakeReplicate) CancelPrediction(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, id)
	return nil
}

func (r *fakeReplicate) CancelTraining(ctx context.Context, id string) error {
	return r.CancelPrediction(ctx, id)
}

func (r *fakeReplicate) UploadFile(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	return "https://api.replicate.com/v1/files/" + filename, nil
}

func (r *fakeReplicate) Download(ctx context.Context, url string) ([]byte, error) {
	return []byte("data"), nil
}

// failingTasks хранилище задач, которое не может сохранить новую задачу
type failingTasks struct {
	domain.TaskRepository
}

func (failingTasks) Create(ctx context.Context, t *domain.Task) error {
	return errors.New("database is locked")
}

type fakeTracker struct {
	mu      sync.Mutex
	tracked []*domain.Task
}

func (f *fakeTracker) Track(task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, task)
	return nil
}

type fakeFiles struct{}

func (fakeFiles) Fetch(ctx context.Context, fileID string) (string, []byte, error) {
	return fileID + ".jpg", []byte("jpeg:" + fileID), nil
}

type fakeTranslator struct {
	out string
	err error
}

func (f fakeTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.out == "" {
		return text, nil
	}
	return f.out, nil
}

type fakeImprover struct {
	out string
	err error
}

func (f fakeImprover) Improve(ctx context.Context, prompt string) (string, error) {
	return f.out, f.err
}

var testLog = monitoring.NewNopLogger()

// newCapturingLog логгер, записи которого можно проверить в тесте
func newCapturingLog() (*monitoring.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	return &monitoring.Logger{Logger: logger}, hook
}

func hasLogEntry(hook *logtest.Hook, level logrus.Level, message string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}
