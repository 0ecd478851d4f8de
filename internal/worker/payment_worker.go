package worker

import (
	"context"
	"time"

	"pixelpie/internal/monitoring"
)

// PaymentReconciler сверяет ожидающие платежи
type PaymentReconciler interface {
	Reconcile(ctx context.Context) (checked, failed int, err error)
}

// PaymentWorker подтверждает платежи, вебхук по которым не дошел
type PaymentWorker struct {
	payments PaymentReconciler
	interval time.Duration
	log      *monitoring.Logger
}

func NewPaymentWorker(payments PaymentReconciler, interval time.Duration, log *monitoring.Logger) *PaymentWorker {
	return &PaymentWorker{payments: payments, interval: interval, log: log}
}

// Run основной цикл воркера
func (w *PaymentWorker) Run(ctx context.Context) error {
	w.log.WithField("interval", w.interval.String()).Info("🔄 Воркер сверки платежей запущен")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Первая проверка сразу при запуске
	w.processPending(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Воркер сверки платежей остановлен")
			return nil
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *PaymentWorker) processPending(ctx context.Context) {
	checked, failed, err := w.payments.Reconcile(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.WithError(err).Error("❌ Не удалось сверить ожидающие платежи")
		}
		return
	}
	if checked == 0 && failed == 0 {
		w.log.Debug("✅ Нет ожидающих платежей")
		return
	}
	w.log.WithFields(monitoring.Fields{"checked": checked, "failed": failed}).Info("🎉 Сверка платежей завершена")
}
