package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/yookassa"
)

func newPaymentService(r repos, gw *fakeGateway, n *fakeNotifier, ttl time.Duration) *PaymentService {
	return NewPaymentService("https://t.me/pixelpie_bot", 10, ttl, r.payments, r.users, NewCreditService(r.users), gw, n, testLog)
}

func TestCreatePaymentRequiresEmail(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	gw := newFakeGateway()
	s := newPaymentService(r, gw, &fakeNotifier{}, time.Hour)

	if _, err := s.CreatePayment(ctx, 1, "cookies_30"); !errors.Is(err, ErrEmailRequired) {
		t.Errorf("ожидалась ErrEmailRequired, получено %v", err)
	}
	if _, err := s.CreatePayment(ctx, 1, "gold"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ожидалась ErrInvalidInput для неизвестного тарифа, получено %v", err)
	}
	if len(gw.requests) != 0 {
		t.Errorf("шлюз не должен вызываться, вызовов: %d", len(gw.requests))
	}
}

func TestPaymentConfirmCreditsOnce(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1, FirstName: "Реферер"})
	referrerID := int64(1)
	r.addUser(t, domain.User{ID: 2, FirstName: "Покупатель", ReferrerID: &referrerID})
	if err := r.users.SetEmail(ctx, 2, "buyer@example.com"); err != nil {
		t.Fatal(err)
	}

	gw := newFakeGateway()
	n := &fakeNotifier{}
	s := newPaymentService(r, gw, n, time.Hour)

	payment, err := s.CreatePayment(ctx, 2, "combo")
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if payment.ConfirmationURL == "" || payment.ProviderPaymentID == "" {
		t.Fatalf("платеж без ссылки или id: %+v", payment)
	}
	req := gw.requests[0]
	if req.Email != "buyer@example.com" || req.Metadata["tariff_id"] != "combo" || req.Metadata["user_id"] != "2" {
		t.Errorf("неверный запрос к шлюзу: %+v", req)
	}

	// pending: ничего не начисляется
	if err := s.Confirm(ctx, payment.ProviderPaymentID); err != nil {
		t.Fatalf("Confirm(pending): %v", err)
	}
	if got := r.balance(t, 2); got != 0 {
		t.Fatalf("начислено до оплаты: %d", got)
	}

	gw.setStatus(payment.ProviderPaymentID, yookassa.StatusSucceeded)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Confirm(ctx, payment.ProviderPaymentID); err != nil {
				t.Errorf("Confirm: %v", err)
			}
		}()
	}
	wg.Wait()

	buyer, err := r.users.GetByID(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if buyer.Balance != 100 || buyer.AvatarSlots != 1 || !buyer.HasPaid {
		t.Errorf("неверное начисление: balance=%d slots=%d paid=%v", buyer.Balance, buyer.AvatarSlots, buyer.HasPaid)
	}
	if got := r.balance(t, 1); got != 10 {
		t.Errorf("реферальный бонус = %d, ожидалось 10", got)
	}
	if got := len(n.messagesTo(2)); got != 1 {
		t.Errorf("покупатель получил %d уведомлений, ожидалось 1", got)
	}
	if got := len(n.messagesTo(1)); got != 1 {
		t.Errorf("реферер получил %d уведомлений, ожидалось 1", got)
	}

	// вторая покупка не дает реферального бонуса
	second, err := s.CreatePayment(ctx, 2, "cookies_30")
	if err != nil {
		t.Fatal(err)
	}
	gw.setStatus(second.ProviderPaymentID, yookassa.StatusSucceeded)
	if err := s.Confirm(ctx, second.ProviderPaymentID); err != nil {
		t.Fatal(err)
	}
	if got := r.balance(t, 1); got != 10 {
		t.Errorf("бонус начислен повторно: %d", got)
	}
	if got := r.balance(t, 2); got != 130 {
		t.Errorf("баланс после второй покупки = %d, ожидалось 130", got)
	}
}

func TestPaymentConfirmRejectsAmountMismatch(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	r.users.SetEmail(ctx, 1, "a@example.com")
	gw := newFakeGateway()
	s := newPaymentService(r, gw, &fakeNotifier{}, time.Hour)

	payment, err := s.CreatePayment(ctx, 1, "cookies_100")
	if err != nil {
		t.Fatal(err)
	}
	gw.mu.Lock()
	gw.payments[payment.ProviderPaymentID].Status = yookassa.StatusSucceeded
	gw.payments[payment.ProviderPaymentID].Amount = yookassa.RUB(payment.Amount.Div(payment.Amount))
	gw.mu.Unlock()

	if err := s.Confirm(ctx, payment.ProviderPaymentID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ожидалась ErrInvalidInput, получено %v", err)
	}
	if got := r.balance(t, 1); got != 0 {
		t.Errorf("начислено при несовпадении суммы: %d", got)
	}
}

func TestPaymentConfirmUnknown(t *testing.T) {
	r := newRepos(t)
	s := newPaymentService(r, newFakeGateway(), &fakeNotifier{}, time.Hour)

	if err := s.Confirm(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestPaymentCheckCancels(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	r.users.SetEmail(ctx, 1, "a@example.com")
	gw := newFakeGateway()

	// отмененный в ЮKassa
	s := newPaymentService(r, gw, &fakeNotifier{}, time.Hour)
	canceled, err := s.CreatePayment(ctx, 1, "cookies_30")
	if err != nil {
		t.Fatal(err)
	}
	gw.setStatus(canceled.ProviderPaymentID, yookassa.StatusCanceled)
	if err := s.Check(ctx, canceled); err != nil {
		t.Fatalf("Check: %v", err)
	}
	got, _ := r.payments.GetByProviderID(ctx, canceled.ProviderPaymentID)
	if got.Status != domain.PaymentStatusCanceled {
		t.Errorf("статус = %s, ожидался canceled", got.Status)
	}

	// просроченный pending отменяется локально
	expiring := newPaymentService(r, gw, &fakeNotifier{}, 0)
	stale, err := expiring.CreatePayment(ctx, 1, "cookies_30")
	if err != nil {
		t.Fatal(err)
	}
	if err := expiring.Check(ctx, stale); err != nil {
		t.Fatalf("Check: %v", err)
	}
	got, _ = r.payments.GetByProviderID(ctx, stale.ProviderPaymentID)
	if got.Status != domain.PaymentStatusCanceled {
		t.Errorf("просроченный платеж в статусе %s", got.Status)
	}
	if got := r.balance(t, 1); got != 0 {
		t.Errorf("начислено за неоплаченные платежи: %d", got)
	}
}

func TestReconcileSettlesAndExpires(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	r.users.SetEmail(ctx, 1, "a@example.com")
	gw := newFakeGateway()
	s := newPaymentService(r, gw, &fakeNotifier{}, 0)
	s.pendingGrace = -time.Second

	paid, err := s.CreatePayment(ctx, 1, "cookies_30")
	if err != nil {
		t.Fatal(err)
	}
	gw.setStatus(paid.ProviderPaymentID, yookassa.StatusSucceeded)
	stale, err := s.CreatePayment(ctx, 1, "cookies_100")
	if err != nil {
		t.Fatal(err)
	}
	// запись, которая так и не дошла до ЮKassa
	orphan := &domain.Payment{UserID: 1, TariffID: "avatar", Amount: decimal.NewFromInt(590), AvatarSlots: 1}
	if err := r.payments.Create(ctx, orphan); err != nil {
		t.Fatal(err)
	}

	checked, failed, err := s.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if checked != 3 || failed != 0 {
		t.Errorf("checked=%d failed=%d, ожидалось 3 и 0", checked, failed)
	}

	got, _ := r.payments.GetByProviderID(ctx, paid.ProviderPaymentID)
	if got.Status != domain.PaymentStatusSucceeded {
		t.Errorf("оплаченный платеж в статусе %s", got.Status)
	}
	got, _ = r.payments.GetByProviderID(ctx, stale.ProviderPaymentID)
	if got.Status != domain.PaymentStatusCanceled {
		t.Errorf("просроченный платеж в статусе %s", got.Status)
	}
	if pending, _ := r.payments.ListPending(ctx, time.Now().Add(time.Minute)); len(pending) != 0 {
		t.Errorf("в ожидании осталось %d платежей", len(pending))
	}
	user, _ := r.users.GetByID(ctx, 1)
	if user.Balance != 30 || user.AvatarSlots != 0 {
		t.Errorf("balance=%d slots=%d, ожидалось 30 и 0", user.Balance, user.AvatarSlots)
	}

	// повторная сверка ничего не находит
	if checked, failed, err := s.Reconcile(ctx); checked != 0 || failed != 0 || err != nil {
		t.Errorf("повторная сверка: checked=%d failed=%d err=%v", checked, failed, err)
	}
}

func TestReconcileBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	r.users.SetEmail(ctx, 1, "a@example.com")
	gw := newFakeGateway()
	s := newPaymentService(r, gw, &fakeNotifier{}, time.Hour)
	s.pendingGrace = -time.Second

	for i := 0; i < 7; i++ {
		if _, err := s.CreatePayment(ctx, 1, "cookies_30"); err != nil {
			t.Fatal(err)
		}
	}
	// один платеж пропал из ЮKassa: ошибка сверки
	gw.mu.Lock()
	delete(gw.payments, "yk-7")
	gw.mu.Unlock()
	gw.delay = 5 * time.Millisecond

	checked, failed, err := s.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if checked != 6 || failed != 1 {
		t.Errorf("checked=%d failed=%d, ожидалось 6 и 1", checked, failed)
	}
	if peak := atomic.LoadInt32(&gw.peak); peak > maxConcurrentChecks {
		t.Errorf("одновременных запросов %d, лимит %d", peak, maxConcurrentChecks)
	}
}

func TestCreatePaymentGatewayErrorCancels(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	r.users.SetEmail(ctx, 1, "a@example.com")
	gw := newFakeGateway()
	gw.err = errors.New("yookassa http 503")
	s := newPaymentService(r, gw, &fakeNotifier{}, time.Hour)

	if _, err := s.CreatePayment(ctx, 1, "cookies_30"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("ожидалась ErrProviderUnavailable, получено %v", err)
	}
	if pending, _ := r.payments.ListPending(ctx, time.Now().Add(time.Minute)); len(pending) != 0 {
		t.Errorf("платеж без ЮKassa остался в ожидании: %d", len(pending))
	}
}

func TestReferralNotificationFailureLogged(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	r.addUser(t, domain.User{ID: 1})
	referrerID := int64(1)
	r.addUser(t, domain.User{ID: 2, ReferrerID: &referrerID})
	r.users.SetEmail(ctx, 2, "b@example.com")

	gw := newFakeGateway()
	log, hook := newCapturingLog()
	n := &fakeNotifier{textErr: errors.New("telegram: bad request")}
	s := NewPaymentService("https://t.me/pixelpie_bot", 10, time.Hour, r.payments, r.users, NewCreditService(r.users), gw, n, log)

	p, err := s.CreatePayment(ctx, 2, "cookies_30")
	if err != nil {
		t.Fatal(err)
	}
	gw.setStatus(p.ProviderPaymentID, yookassa.StatusSucceeded)
	if err := s.Confirm(ctx, p.ProviderPaymentID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if got := r.balance(t, 1); got != 10 {
		t.Errorf("бонус должен начисляться и без уведомления, баланс %d", got)
	}
	if !hasLogEntry(hook, logrus.WarnLevel, "Не удалось уведомить о реферальном бонусе") {
		t.Error("ошибка уведомления реферера не залогирована")
	}
}
