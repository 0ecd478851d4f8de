package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"pixelpie/internal/domain"
)

func TestBroadcastSendMarksBlocked(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	for id := int64(1); id <= 5; id++ {
		r.addUser(t, domain.User{ID: id})
	}
	n := &fakeNotifier{
		blocked: map[int64]bool{2: true},
		failOn:  map[int64]bool{4: true},
	}
	s := NewBroadcastService(1000, r.broadcasts, r.users, n, testLog)

	delivered, failed, err := s.Send(ctx, &domain.Broadcast{ID: 1, Text: "Привет!", Audience: domain.AudienceAll})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if delivered != 3 || failed != 2 {
		t.Errorf("delivered=%d failed=%d, ожидалось 3 и 2", delivered, failed)
	}

	u, _ := r.users.GetByID(ctx, 2)
	if !u.IsBlocked {
		t.Error("пользователь, заблокировавший бота, не помечен")
	}
	u, _ = r.users.GetByID(ctx, 4)
	if u.IsBlocked {
		t.Error("временная ошибка не должна помечать пользователя")
	}

	// заблокированные исключаются из следующей рассылки
	n.blocked = nil
	n.failOn = nil
	delivered, failed, err = s.Send(ctx, &domain.Broadcast{ID: 2, Text: "Снова", Audience: domain.AudienceAll})
	if err != nil || delivered != 4 || failed != 0 {
		t.Errorf("повторная рассылка: delivered=%d failed=%d err=%v", delivered, failed, err)
	}
}

func TestBroadcastSendAudience(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	r.addUser(t, domain.User{ID: 2})
	if _, err := r.users.MarkPaid(ctx, 2); err != nil {
		t.Fatal(err)
	}
	n := &fakeNotifier{}
	s := NewBroadcastService(1000, r.broadcasts, r.users, n, testLog)

	delivered, _, err := s.Send(ctx, &domain.Broadcast{ID: 1, Text: "Только платящим", Audience: domain.AudiencePaid})
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 1 || len(n.messagesTo(2)) != 1 || len(n.messagesTo(1)) != 0 {
		t.Errorf("рассылка ушла не тем: delivered=%d", delivered)
	}
}

func TestBroadcastRunDueOnce(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	r.addUser(t, domain.User{ID: 2})
	n := &fakeNotifier{}
	s := NewBroadcastService(1000, r.broadcasts, r.users, n, testLog)

	if err := s.Schedule(ctx, &domain.Broadcast{AuthorID: 1, Text: " "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("пустая рассылка: ожидалась ErrInvalidInput, получено %v", err)
	}

	later := &domain.Broadcast{AuthorID: 1, Text: "Завтра", ScheduledAt: time.Now().Add(24 * time.Hour)}
	if err := s.Schedule(ctx, later); err != nil {
		t.Fatal(err)
	}
	now := &domain.Broadcast{AuthorID: 1, Text: "Сейчас"}
	if err := s.SendNow(ctx, now); err != nil {
		t.Fatal(err)
	}

	select {
	case <-s.Woken():
	default:
		t.Error("SendNow должен разбудить воркер")
	}

	sent, err := s.RunDue(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("RunDue: sent=%d err=%v", sent, err)
	}
	sent, err = s.RunDue(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("повторный RunDue: sent=%d err=%v", sent, err)
	}

	got, err := r.broadcasts.GetByID(ctx, now.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.BroadcastStatusSent || got.Delivered != 2 {
		t.Errorf("итоги рассылки: status=%s delivered=%d", got.Status, got.Delivered)
	}
	// пользователь 1 получил рассылку и отчет автора
	if msgs := n.messagesTo(1); len(msgs) != 2 {
		t.Errorf("автор получил %d сообщений, ожидалось 2", len(msgs))
	}

	scheduled, err := s.ListScheduled(ctx)
	if err != nil || len(scheduled) != 1 || scheduled[0].ID != later.ID {
		t.Fatalf("ListScheduled: %v %v", scheduled, err)
	}
	if err := s.Cancel(ctx, later.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	scheduled, _ = s.ListScheduled(ctx)
	if len(scheduled) != 0 {
		t.Errorf("отмененная рассылка осталась в списке")
	}
}

func TestBroadcastReportFailureLogged(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	n := &fakeNotifier{textErr: errors.New("telegram http 502")}
	log, hook := newCapturingLog()
	s := NewBroadcastService(1000, r.broadcasts, r.users, n, log)

	b := &domain.Broadcast{AuthorID: 1, Text: "Сейчас"}
	if err := s.SendNow(ctx, b); err != nil {
		t.Fatal(err)
	}
	sent, err := s.RunDue(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("RunDue: sent=%d err=%v", sent, err)
	}
	if !hasLogEntry(hook, logrus.WarnLevel, "Не удалось отправить отчет о рассылке") {
		t.Error("ошибка отправки отчета автору не записана в лог")
	}
	got, _ := r.broadcasts.GetByID(ctx, b.ID)
	if got.Status != domain.BroadcastStatusSent {
		t.Errorf("статус рассылки %s, ожидался sent", got.Status)
	}
}

func TestAdminLookupAndGrant(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 42, Username: "Masha"})
	readyAvatar(t, r, 42)
	s := NewAdminService(r.users, r.avatars, NewCreditService(r.users), testLog)

	card, err := s.LookupUser(ctx, "@masha")
	if err != nil {
		t.Fatalf("LookupUser: %v", err)
	}
	if card.User.ID != 42 || len(card.Avatars) != 1 {
		t.Errorf("карточка: %+v", card)
	}

	if _, err := s.LookupUser(ctx, "777"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}

	u, err := s.Grant(ctx, 1, "42", 50)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if u.Balance != 50 {
		t.Errorf("баланс = %d, ожидалось 50", u.Balance)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Users != 1 || st.NewUsersToday != 1 || st.ReadyAvatars != 1 {
		t.Errorf("статистика: %+v", st)
	}
	if text := FormatStats(st); text == "" {
		t.Error("пустой текст статистики")
	}
}
