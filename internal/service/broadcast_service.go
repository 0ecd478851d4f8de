package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pixelpie/internal/domain"
	"pixelpie/internal/monitoring"
)

const audiencePageSize = 500

// BroadcastService рассылки администратора
type BroadcastService struct {
	broadcasts domain.BroadcastRepository
	users      domain.UserRepository
	notifier   Notifier
	perSecond  int
	wake       chan struct{}
	log        *monitoring.Logger
}

func NewBroadcastService(
	perSecond int,
	broadcasts domain.BroadcastRepository,
	users domain.UserRepository,
	notifier Notifier,
	log *monitoring.Logger,
) *BroadcastService {
	if perSecond <= 0 {
		perSecond = 25
	}
	return &BroadcastService{
		broadcasts: broadcasts,
		users:      users,
		notifier:   notifier,
		perSecond:  perSecond,
		wake:       make(chan struct{}, 1),
		log:        log,
	}
}

// Schedule сохраняет рассылку на указанное время
func (s *BroadcastService) Schedule(ctx context.Context, b *domain.Broadcast) error {
	if strings.TrimSpace(b.Text) == "" && b.PhotoFileID == "" {
		return fmt.Errorf("empty broadcast: %w", domain.ErrInvalidInput)
	}
	switch b.Audience {
	case domain.AudienceAll, domain.AudiencePaid, domain.AudienceUnpaid:
	case "":
		b.Audience = domain.AudienceAll
	default:
		return fmt.Errorf("audience %q: %w", b.Audience, domain.ErrInvalidInput)
	}
	if b.ScheduledAt.IsZero() {
		b.ScheduledAt = time.Now()
	}
	b.ScheduledAt = b.ScheduledAt.UTC()
	b.Status = domain.BroadcastStatusScheduled

	if err := s.broadcasts.Create(ctx, b); err != nil {
		return fmt.Errorf("save broadcast: %w", err)
	}
	s.log.WithFields(monitoring.Fields{
		"broadcast_id": b.ID,
		"audience":     b.Audience,
		"scheduled_at": b.ScheduledAt,
	}).Info("Рассылка запланирована")
	return nil
}

// SendNow планирует рассылку на текущий момент и будит воркер
func (s *BroadcastService) SendNow(ctx context.Context, b *domain.Broadcast) error {
	b.ScheduledAt = time.Now()
	if err := s.Schedule(ctx, b); err != nil {
		return err
	}
	s.Wake()
	return nil
}

// Wake сигнализирует воркеру проверить рассылки вне очереди
func (s *BroadcastService) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *BroadcastService) Woken() <-chan struct{} {
	return s.wake
}

func (s *BroadcastService) Cancel(ctx context.Context, id int64) error {
	return s.broadcasts.Cancel(ctx, id)
}

func (s *BroadcastService) ListScheduled(ctx context.Context) ([]*domain.Broadcast, error) {
	return s.broadcasts.ListScheduled(ctx)
}

// RunDue отправляет все рассылки, время которых наступило.
// Каждую рассылку отправляет только тот, кто успел ее забрать.
func (s *BroadcastService) RunDue(ctx context.Context) (int, error) {
	due, err := s.broadcasts.ListDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, b := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := s.broadcasts.Claim(ctx, b.ID); err != nil {
			if !errors.Is(err, domain.ErrAlreadyProcessed) {
				s.log.WithFields(monitoring.Fields{"broadcast_id": b.ID, "error": err}).Error("Не удалось забрать рассылку")
			}
			continue
		}

		delivered, failed, sendErr := s.Send(ctx, b)
		// итоги пишем даже при остановке, чтобы рассылка не зависла в sending
		if err := s.broadcasts.Finish(context.WithoutCancel(ctx), b.ID, delivered, failed, time.Now().UTC()); err != nil {
			s.log.WithFields(monitoring.Fields{"broadcast_id": b.ID, "error": err}).Error("Не удалось сохранить итоги рассылки")
		}
		sent++

		report := fmt.Sprintf("📬 Рассылка #%d завершена\n\nДоставлено: %d\nОшибок: %d", b.ID, delivered, failed)
		if sendErr != nil {
			report += "\n\n⚠️ Прервана: " + sendErr.Error()
		}
		if err := s.notifier.SendText(context.WithoutCancel(ctx), b.AuthorID, report); err != nil {
			s.log.WithFields(monitoring.Fields{"broadcast_id": b.ID, "author_id": b.AuthorID, "error": err}).Warn("Не удалось отправить отчет о рассылке")
		}
	}
	return sent, nil
}

// Send отправляет рассылку аудитории с ограничением скорости.
// Пользователи, заблокировавшие бота, помечаются и в следующие рассылки не попадают.
func (s *BroadcastService) Send(ctx context.Context, b *domain.Broadcast) (delivered, failed int, err error) {
	limiter := rate.NewLimiter(rate.Limit(s.perSecond), 1)
	log := s.log.WithFields(monitoring.Fields{"broadcast_id": b.ID, "audience": b.Audience})
	log.Info("Начинаем рассылку")

	var afterID int64
	for {
		ids, err := s.users.ListAudience(ctx, b.Audience, afterID, audiencePageSize)
		if err != nil {
			return delivered, failed, fmt.Errorf("list audience: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return delivered, failed, err
			}
			switch err := s.notifier.SendBroadcast(ctx, id, b.Text, b.PhotoFileID); {
			case err == nil:
				delivered++
				monitoring.RecordBroadcastMessage("delivered")
			case errors.Is(err, ErrRecipientBlocked):
				failed++
				monitoring.RecordBroadcastMessage("blocked")
				if err := s.users.SetBlocked(ctx, id, true); err != nil {
					log.WithError(err).Warn("Не удалось пометить пользователя")
				}
			default:
				failed++
				monitoring.RecordBroadcastMessage("failed")
				log.WithFields(monitoring.Fields{"user_id": id, "error": err}).Debug("Сообщение рассылки не доставлено")
			}
		}
		afterID = ids[len(ids)-1]
	}

	log.WithFields(monitoring.Fields{"delivered": delivered, "failed": failed}).Info("Рассылка завершена")
	return delivered, failed, nil
}
