package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"pixelpie/internal/domain"
	"pixelpie/internal/infrastructure/yookassa"
	"pixelpie/internal/monitoring"
)

// maxConcurrentChecks ограничивает одновременные запросы к ЮKassa при сверке
const maxConcurrentChecks = 3

// PaymentService покупка пакетов через ЮKassa
type PaymentService struct {
	returnURL     string
	referralBonus int
	pendingTTL    time.Duration
	pendingGrace  time.Duration // сверяем платежи старше, чтобы не обгонять вебхук
	payments      domain.PaymentRepository
	users         domain.UserRepository
	credits       *CreditService
	gateway       PaymentGateway
	notifier      Notifier
	log           *monitoring.Logger
}

func NewPaymentService(
	returnURL string,
	referralBonus int,
	pendingTTL time.Duration,
	payments domain.PaymentRepository,
	users domain.UserRepository,
	credits *CreditService,
	gateway PaymentGateway,
	notifier Notifier,
	log *monitoring.Logger,
) *PaymentService {
	return &PaymentService{
		returnURL:     returnURL,
		referralBonus: referralBonus,
		pendingTTL:    pendingTTL,
		pendingGrace:  time.Minute,
		payments:      payments,
		users:         users,
		credits:       credits,
		gateway:       gateway,
		notifier:      notifier,
		log:           log,
	}
}

// Tariffs каталог пакетов
func (s *PaymentService) Tariffs() []domain.Tariff {
	return Tariffs()
}

// CreatePayment создает платеж и возвращает его со ссылкой на оплату.
// Без email возвращает ErrEmailRequired: чек без email не отправить.
func (s *PaymentService) CreatePayment(ctx context.Context, userID int64, tariffID string) (*domain.Payment, error) {
	tariff, ok := FindTariff(tariffID)
	if !ok {
		return nil, fmt.Errorf("tariff %q: %w", tariffID, domain.ErrInvalidInput)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Email == "" {
		return nil, ErrEmailRequired
	}

	payment := &domain.Payment{
		UserID:      userID,
		TariffID:    tariff.ID,
		Amount:      tariff.Price,
		Cookies:     tariff.Cookies,
		AvatarSlots: tariff.AvatarSlots,
		Status:      domain.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}

	remote, err := s.gateway.CreatePayment(ctx, yookassa.CreatePaymentRequest{
		Amount:      tariff.Price,
		Description: "PixelPie: " + tariff.Title,
		ReturnURL:   s.returnURL,
		Email:       user.Email,
		Metadata: map[string]string{
			"user_id":    strconv.FormatInt(userID, 10),
			"payment_id": strconv.FormatInt(payment.ID, 10),
			"tariff_id":  tariff.ID,
		},
	})
	if err != nil {
		monitoring.RecordPayment("error", tariff.ID, 0)
		if cerr := s.payments.CancelPending(ctx, payment.ID); cerr != nil {
			s.log.WithContext(ctx).WithFields(monitoring.Fields{"payment_id": payment.ID, "error": cerr}).Error("Не удалось отменить платеж без ЮKassa")
		}
		return nil, fmt.Errorf("create payment: %w: %v", domain.ErrProviderUnavailable, err)
	}

	if err := s.payments.AttachProvider(ctx, payment.ID, remote.ID, remote.ConfirmationURL()); err != nil {
		return nil, fmt.Errorf("attach provider: %w", err)
	}
	payment.ProviderPaymentID = remote.ID
	payment.ConfirmationURL = remote.ConfirmationURL()

	monitoring.RecordPayment("created", tariff.ID, 0)
	s.log.WithFields(monitoring.Fields{
		"user_id":    userID,
		"payment_id": payment.ID,
		"yk_id":      remote.ID,
		"tariff":     tariff.ID,
	}).Info("Платеж создан")
	return payment, nil
}

// Confirm сверяет платеж с ЮKassa и начисляет пакет ровно один раз.
// Повторные вызовы для обработанного платежа ничего не делают.
func (s *PaymentService) Confirm(ctx context.Context, providerPaymentID string) error {
	local, err := s.payments.GetByProviderID(ctx, providerPaymentID)
	if err != nil {
		return err
	}
	if local.Status != domain.PaymentStatusPending {
		return nil
	}

	remote, err := s.gateway.GetPayment(ctx, providerPaymentID)
	if err != nil {
		return fmt.Errorf("get payment: %w: %v", domain.ErrProviderUnavailable, err)
	}

	switch remote.Status {
	case yookassa.StatusSucceeded:
		if !remote.Amount.Value.Equal(local.Amount) {
			return fmt.Errorf("payment %s amount %s != %s: %w", providerPaymentID, remote.Amount.Value, local.Amount, domain.ErrInvalidInput)
		}
		paidAt := time.Now().UTC()
		if remote.CapturedAt != nil {
			paidAt = remote.CapturedAt.UTC()
		}
		return s.settle(ctx, providerPaymentID, paidAt)
	case yookassa.StatusCanceled:
		if err := s.payments.MarkCanceled(ctx, providerPaymentID); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
			return err
		}
		monitoring.RecordPayment("canceled", local.TariffID, 0)
		return nil
	default:
		// pending или waiting_for_capture: ждем следующего уведомления
		return nil
	}
}

func (s *PaymentService) settle(ctx context.Context, providerPaymentID string, paidAt time.Time) error {
	payment, err := s.payments.Settle(ctx, providerPaymentID, paidAt)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settle payment: %w", err)
	}

	amount, _ := payment.Amount.Float64()
	monitoring.RecordPayment("succeeded", payment.TariffID, amount)
	monitoring.RecordCookies("purchased", payment.Cookies)
	s.log.WithFields(monitoring.Fields{
		"user_id":    payment.UserID,
		"payment_id": payment.ID,
		"cookies":    payment.Cookies,
		"slots":      payment.AvatarSlots,
	}).Info("Платеж зачислен")

	s.notifyPaid(ctx, payment)
	s.rewardReferrer(ctx, payment.UserID)
	return nil
}

func (s *PaymentService) notifyPaid(ctx context.Context, p *domain.Payment) {
	text := "✅ Оплата прошла!\n"
	if p.Cookies > 0 {
		text += fmt.Sprintf("\n🍪 +%d печенек", p.Cookies)
	}
	if p.AvatarSlots > 0 {
		text += fmt.Sprintf("\n🧑‍🎨 +%d обучение аватара: /train", p.AvatarSlots)
	}
	if err := s.notifier.SendText(ctx, p.UserID, text); err != nil {
		s.log.WithUser(p.UserID).WithError(err).Warn("Не удалось уведомить об оплате")
	}
}

// rewardReferrer начисляет бонус пригласившему при первой оплате
func (s *PaymentService) rewardReferrer(ctx context.Context, userID int64) {
	first, err := s.users.MarkPaid(ctx, userID)
	if err != nil || !first || s.referralBonus <= 0 {
		return
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil || user.ReferrerID == nil {
		return
	}

	referrerID := *user.ReferrerID
	if err := s.credits.Bonus(ctx, referrerID, s.referralBonus); err != nil {
		s.log.WithUser(referrerID).WithError(err).Error("Не удалось начислить реферальный бонус")
		return
	}
	text := fmt.Sprintf("🎁 Ваш друг %s совершил первую покупку. Вам начислено %d 🍪", user.DisplayName(), s.referralBonus)
	if err := s.notifier.SendText(ctx, referrerID, text); err != nil {
		s.log.WithUser(referrerID).WithError(err).Warn("Не удалось уведомить о реферальном бонусе")
	}
}

// Check сверяет один ожидающий платеж. Платеж без id ЮKassa и платеж
// старше pendingTTL отменяются локально.
func (s *PaymentService) Check(ctx context.Context, p *domain.Payment) error {
	if p.ProviderPaymentID == "" {
		return s.expire(ctx, p)
	}
	if err := s.Confirm(ctx, p.ProviderPaymentID); err != nil {
		return err
	}
	if time.Since(p.CreatedAt) < s.pendingTTL {
		return nil
	}
	return s.expire(ctx, p)
}

func (s *PaymentService) expire(ctx context.Context, p *domain.Payment) error {
	err := s.payments.CancelPending(ctx, p.ID)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return err
	}
	monitoring.RecordPayment("expired", p.TariffID, 0)
	s.log.WithContext(ctx).WithFields(monitoring.Fields{"payment_id": p.ID, "yk_id": p.ProviderPaymentID}).Info("Просроченный платеж отменен")
	return nil
}

// Reconcile сверяет ожидающие дольше минуты платежи, не больше
// maxConcurrentChecks запросов к ЮKassa одновременно
func (s *PaymentService) Reconcile(ctx context.Context) (checked, failed int, err error) {
	pending, err := s.payments.ListPending(ctx, time.Now().UTC().Add(-s.pendingGrace))
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	semaphore := make(chan struct{}, maxConcurrentChecks)
	var (
		wg                   sync.WaitGroup
		successCount, failedCount int32
	)
	for _, p := range pending {
		wg.Add(1)
		go func(payment *domain.Payment) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-semaphore }()

			if err := s.Check(ctx, payment); err != nil {
				atomic.AddInt32(&failedCount, 1)
				s.log.WithContext(ctx).WithFields(monitoring.Fields{
					"user_id": payment.UserID,
					"yk_id":   payment.ProviderPaymentID,
					"error":   err,
				}).Warn("❌ Не удалось сверить платеж")
				return
			}
			atomic.AddInt32(&successCount, 1)
		}(p)
	}
	wg.Wait()

	return int(atomic.LoadInt32(&successCount)), int(atomic.LoadInt32(&failedCount)), ctx.Err()
}
