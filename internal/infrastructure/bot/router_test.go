package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/fsm"
)

func TestStartRegistersReferral(t *testing.T) {
	h := newHarness(t)

	h.text(1, "/start")
	h.text(2, "/start ref_1")

	u := h.user(t, 2)
	if u.ReferrerID == nil || *u.ReferrerID != 1 {
		t.Errorf("ожидался реферер 1, получено %v", u.ReferrerID)
	}
	if u.Balance != 3 {
		t.Errorf("ожидался приветственный бонус 3, получено %d", u.Balance)
	}
	if msg := h.api.last(t, 2); !strings.Contains(msg.text, "Дарю 3") || !hasButton(msg.keyboard, cbGenerate) {
		t.Errorf("неожиданное приветствие: %q", msg.text)
	}

	// повторный /start с другой ссылкой реферера не меняет
	h.text(2, "/start ref_3")
	if u := h.user(t, 2); *u.ReferrerID != 1 {
		t.Errorf("реферер изменился на %d", *u.ReferrerID)
	}
	if msg := h.api.last(t, 2); !strings.Contains(msg.text, "С возвращением") {
		t.Errorf("ожидалось приветствие вернувшегося пользователя, получено %q", msg.text)
	}
}

func TestParseReferrer(t *testing.T) {
	tests := []struct {
		arg  string
		want int64
	}{
		{"ref_42", 42},
		{" ref_7 ", 7},
		{"", 0},
		{"ref_", 0},
		{"ref_abc", 0},
		{"ref_-5", 0},
		{"promo", 0},
	}
	for _, tt := range tests {
		if got := parseReferrer(tt.arg); got != tt.want {
			t.Errorf("parseReferrer(%q) = %d, ожидалось %d", tt.arg, got, tt.want)
		}
	}
}

func TestTrainWithoutSlots(t *testing.T) {
	h := newHarness(t)

	h.text(1, "/train")

	msg := h.api.last(t, 1)
	if !strings.Contains(msg.text, "Нет доступных обучений") || !hasButton(msg.keyboard, cbBuy) {
		t.Errorf("ожидалось предложение купить аватар, получено %q", msg.text)
	}
	if s := h.session(t, 1); s.State != fsm.Idle {
		t.Errorf("ожидалось пустое состояние, получено %q", s.State)
	}
}

func TestTrainingFlowCollectsPhotos(t *testing.T) {
	h := newHarness(t)
	h.text(1, "/start")
	if err := h.users.CreditSlots(context.Background(), 1, 1); err != nil {
		t.Fatalf("CreditSlots: %v", err)
	}

	h.text(1, "/train")
	h.text(1, "Я на море")
	if s := h.session(t, 1); s.State != fsm.TrainingGender || s.Get(fsm.KeyAvatarName) != "Я на море" {
		t.Fatalf("неожиданная сессия после имени: %+v", s)
	}

	h.press(1, "gender:woman")
	if s := h.session(t, 1); s.State != fsm.TrainingPhotos {
		t.Fatalf("ожидалось состояние загрузки фото, получено %q", s.State)
	}

	h.photo(1, "p1")
	if msg := h.api.last(t, 1); hasButton(msg.keyboard, cbTrainConfirm) {
		t.Error("кнопка запуска не должна появляться до минимума фото")
	}
	h.photo(1, "p2")
	if msg := h.api.last(t, 1); !hasButton(msg.keyboard, cbTrainConfirm) {
		t.Errorf("после минимума фото ожидалась кнопка запуска, получено %q", msg.text)
	}

	s := h.session(t, 1)
	if len(s.Photos) != 2 || s.Photos[1] != "p2" {
		t.Errorf("ожидались самые большие версии фото, получено %v", s.Photos)
	}
	if s.Get(fsm.KeyGender) != string(domain.GenderWoman) {
		t.Errorf("пол не сохранен: %q", s.Get(fsm.KeyGender))
	}
}

func TestTrainingPhotosConcurrentAlbum(t *testing.T) {
	h := newHarness(t)
	h.text(1, "/start")
	if err := h.users.CreditSlots(context.Background(), 1, 1); err != nil {
		t.Fatalf("CreditSlots: %v", err)
	}
	h.text(1, "/train")
	h.text(1, "Альбом")
	h.press(1, "gender:man")

	// альбом приходит пачкой обновлений одновременно
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.photo(1, fmt.Sprintf("album-%d", i))
		}(i)
	}
	wg.Wait()

	if got := len(h.session(t, 1).Photos); got != 12 {
		t.Errorf("ожидалось 12 фото, сохранено %d", got)
	}

	h.photo(1, "extra")
	if msg := h.api.last(t, 1); !strings.Contains(msg.text, "максимальное") {
		t.Errorf("ожидалось сообщение о лимите, получено %q", msg.text)
	}
	if got := len(h.session(t, 1).Photos); got != 12 {
		t.Errorf("лимит фото превышен: %d", got)
	}
	if n := h.router.locks.len(); n != 0 {
		t.Errorf("после обработки осталось %d блокировок чатов", n)
	}
}

func TestChatLocksSerializeAndEvict(t *testing.T) {
	locks := newChatLocks()

	var (
		wg      sync.WaitGroup
		inside  int
		overlap bool
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(7)
			defer unlock()

			mu.Lock()
			inside++
			if inside > 1 {
				overlap = true
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if overlap {
		t.Error("обработчики одного чата выполнялись одновременно")
	}
	if n := locks.len(); n != 0 {
		t.Errorf("осталось %d блокировок, ожидалось 0", n)
	}
}

func TestGenerateWithoutAvatar(t *testing.T) {
	h := newHarness(t)

	h.text(1, "/generate")

	msg := h.api.last(t, 1)
	if !hasButton(msg.keyboard, cbTrain) {
		t.Errorf("ожидалось предложение обучить аватар, получено %q", msg.text)
	}
}

func TestGenerateStyleFlow(t *testing.T) {
	h := newHarness(t)
	h.text(1, "/start")
	h.readyAvatar(t, 1)

	h.text(1, "/generate")
	if msg := h.api.last(t, 1); !hasButton(msg.keyboard, "cat:travel") {
		t.Fatalf("ожидались категории стилей, получено %q", msg.text)
	}
	h.press(1, "cat:travel")
	if msg := h.api.last(t, 1); !hasButton(msg.keyboard, "style:paris") {
		t.Fatalf("ожидались стили категории, получено %q", msg.text)
	}
	h.press(1, "style:paris")
	if s := h.session(t, 1); !strings.Contains(s.Get(fsm.KeyPrompt), "TOK woman") {
		t.Fatalf("в промпте нет триггер-слова: %q", s.Get(fsm.KeyPrompt))
	}
	h.press(1, "count:2")

	if got := h.replicate.count(); got != 1 {
		t.Fatalf("ожидалось одно предсказание, получено %d", got)
	}
	if got := h.user(t, 1).Balance; got != 1 {
		t.Errorf("ожидался баланс 1 после списания, получено %d", got)
	}
	if msg := h.api.last(t, 1); msg.text != textGenerating {
		t.Errorf("неожиданный ответ: %q", msg.text)
	}
	if s := h.session(t, 1); s.Get(fsm.KeyPrompt) != "" {
		t.Error("после запуска сессия должна быть сброшена")
	}

	// повторное нажатие устаревшей кнопки ничего не списывает
	h.press(1, "count:2")
	if got := h.replicate.count(); got != 1 {
		t.Errorf("повторное нажатие создало предсказание: %d", got)
	}
	if msg := h.api.last(t, 1); msg.text != textStale {
		t.Errorf("ожидалось сообщение об устаревшей кнопке, получено %q", msg.text)
	}
}

func TestGenerateCustomPromptInsufficient(t *testing.T) {
	h := newHarness(t)
	h.text(1, "/start")
	h.readyAvatar(t, 1)

	h.press(1, cbCustomPrompt)
	h.text(1, "я на крыше небоскреба")
	h.press(1, cbImprove)

	prompt := h.session(t, 1).Get(fsm.KeyPrompt)
	if !strings.Contains(prompt, "EN: Я НА КРЫШЕ") || !strings.Contains(prompt, "TOK") {
		t.Fatalf("неожиданный промпт: %q", prompt)
	}

	h.press(1, "count:4")

	msg := h.api.last(t, 1)
	if !strings.Contains(msg.text, "Недостаточно печенек") || !hasButton(msg.keyboard, cbBuy) {
		t.Errorf("ожидалось предложение пополнить баланс, получено %q", msg.text)
	}
	if h.replicate.count() != 0 {
		t.Error("предсказание не должно создаваться без печенек")
	}
	if got := h.user(t, 1).Balance; got != 3 {
		t.Errorf("баланс не должен меняться, получено %d", got)
	}
}

func TestBuyAsksEmailThenCreatesPayment(t *testing.T) {
	h := newHarness(t)
	h.text(1, "/start")

	h.press(1, "tariff:cookies_30")
	if s := h.session(t, 1); s.State != fsm.AwaitingEmail || s.Get(fsm.KeyTariffID) != "cookies_30" {
		t.Fatalf("ожидался запрос email, сессия %+v", s)
	}

	h.text(1, "не почта")
	if msg := h.api.last(t, 1); !strings.Contains(msg.text, "не email") {
		t.Errorf("ожидалась просьба повторить email, получено %q", msg.text)
	}

	h.text(1, "anya@example.com")
	if len(h.gateway.requests) != 1 {
		t.Fatalf("ожидался один платеж, получено %d", len(h.gateway.requests))
	}
	if got := h.gateway.requests[0].Email; got != "anya@example.com" {
		t.Errorf("в чек не передан email: %q", got)
	}
	msg := h.api.last(t, 1)
	if !strings.Contains(msg.text, "290.00") {
		t.Errorf("в сообщении нет суммы: %q", msg.text)
	}
	if msg.keyboard == nil || msg.keyboard.InlineKeyboard[0][0].URL == nil {
		t.Fatal("ожидалась кнопка со ссылкой на оплату")
	}
	if s := h.session(t, 1); s.State != fsm.Idle {
		t.Errorf("сессия не сброшена: %q", s.State)
	}
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	h := newHarness(t)

	h.text(1, "/admin")
	if msg := h.api.last(t, 1); msg.text != textNoAccess {
		t.Errorf("ожидался отказ, получено %q", msg.text)
	}
	h.press(1, cbAdminStats)
	if msg := h.api.last(t, 1); msg.text != textNoAccess {
		t.Errorf("ожидался отказ для callback, получено %q", msg.text)
	}

	h.text(adminID, "/admin")
	if msg := h.api.last(t, adminID); !hasButton(msg.keyboard, cbAdminStats) {
		t.Errorf("ожидалась админ-панель, получено %q", msg.text)
	}
	h.press(adminID, cbAdminStats)
	if msg := h.api.last(t, adminID); !strings.Contains(msg.text, "Статистика") {
		t.Errorf("ожидалась статистика, получено %q", msg.text)
	}
}

func TestAdminGrantFlow(t *testing.T) {
	h := newHarness(t)
	h.text(2, "/start")

	h.press(adminID, cbAdminGrant)
	h.text(adminID, "@user2")
	if s := h.session(t, adminID); s.State != fsm.AdminGrantAmount || s.GetInt(fsm.KeyGrantUserID) != 2 {
		t.Fatalf("неожиданная сессия: %+v", s)
	}
	h.text(adminID, "минус")
	if msg := h.api.last(t, adminID); msg.text != textBadAmount {
		t.Errorf("ожидалась ошибка суммы, получено %q", msg.text)
	}
	h.text(adminID, "15")

	if got := h.user(t, 2).Balance; got != 18 {
		t.Errorf("ожидался баланс 18, получено %d", got)
	}
	if msg := h.api.last(t, 2); !strings.Contains(msg.text, "начислено 15") {
		t.Errorf("пользователь не уведомлен: %q", msg.text)
	}
	if s := h.session(t, adminID); s.State != fsm.Idle {
		t.Errorf("сессия не сброшена: %q", s.State)
	}
}

func TestAdminScheduleBroadcast(t *testing.T) {
	h := newHarness(t)

	h.press(adminID, cbAdminBcast)
	h.text(adminID, "Скидка 20% на все пакеты!")
	h.press(adminID, "aud:paid")
	h.press(adminID, cbBroadcastLate)

	h.text(adminID, "завтра")
	if msg := h.api.last(t, adminID); msg.text != textBadTime {
		t.Errorf("ожидалась ошибка формата, получено %q", msg.text)
	}
	h.text(adminID, "01.01.2020 10:00")
	if msg := h.api.last(t, adminID); msg.text != textPastTime {
		t.Errorf("ожидалась ошибка прошедшего времени, получено %q", msg.text)
	}

	at := time.Now().In(moscow).Add(48 * time.Hour)
	h.text(adminID, at.Format(broadcastTimeLayout))

	list, err := h.broadcasts.ListScheduled(context.Background())
	if err != nil {
		t.Fatalf("ListScheduled: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ожидалась одна рассылка, получено %d", len(list))
	}
	b := list[0]
	if b.Audience != domain.AudiencePaid || b.Text != "Скидка 20% на все пакеты!" || b.AuthorID != adminID {
		t.Errorf("неожиданная рассылка: %+v", b)
	}
	if got := b.ScheduledAt.In(moscow).Format(broadcastTimeLayout); got != at.Format(broadcastTimeLayout) {
		t.Errorf("время рассылки %s, ожидалось %s", got, at.Format(broadcastTimeLayout))
	}

	h.press(adminID, fmt.Sprintf("%s%d", prefixBcastStop, b.ID))
	list, _ = h.broadcasts.ListScheduled(context.Background())
	if len(list) != 0 {
		t.Errorf("рассылка не отменена")
	}
}

func TestCancelResetsSession(t *testing.T) {
	h := newHarness(t)

	h.text(1, "/video")
	if s := h.session(t, 1); s.State != fsm.VideoImage {
		t.Fatalf("ожидалось ожидание фото, получено %q", s.State)
	}
	h.text(1, "текст вместо фото")
	if msg := h.api.last(t, 1); msg.text != textWaitPhoto {
		t.Errorf("ожидалась просьба прислать фото, получено %q", msg.text)
	}

	h.press(1, cbCancel)
	if s := h.session(t, 1); s.State != fsm.Idle {
		t.Errorf("сессия не сброшена: %q", s.State)
	}
	if msg := h.api.last(t, 1); msg.text != textCanceled {
		t.Errorf("неожиданный ответ: %q", msg.text)
	}
}

func TestVideoFlowInsufficient(t *testing.T) {
	h := newHarness(t)

	h.text(1, "/video")
	h.photo(1, "selfie")
	h.text(1, "улыбается")
	if s := h.session(t, 1); s.State != fsm.VideoConfirm || s.Get(fsm.KeyImageFileID) != "selfie" {
		t.Fatalf("неожиданная сессия: %+v", s)
	}
	h.press(1, cbVideoConfirm)

	if msg := h.api.last(t, 1); !strings.Contains(msg.text, "Недостаточно печенек") {
		t.Errorf("ожидался отказ без печенек, получено %q", msg.text)
	}
	if h.replicate.count() != 0 {
		t.Error("видео не должно запускаться без печенек")
	}
}

func TestThrottleDropsFastCallbacks(t *testing.T) {
	h := newHarness(t)
	h.router.throttle = NewMemoryThrottle(time.Hour, 1)

	h.text(1, "/menu")
	h.press(1, cbHelp)

	if got := len(h.api.to(1)); got != 1 {
		t.Errorf("ожидалось одно сообщение, отправлено %d", got)
	}
}
