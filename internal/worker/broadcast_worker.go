package worker

import (
	"context"
	"time"

	"pixelpie/internal/monitoring"
)

// BroadcastRunner отправляет рассылки, время которых наступило
type BroadcastRunner interface {
	RunDue(ctx context.Context) (int, error)
	Woken() <-chan struct{}
}

// BroadcastWorker запускает запланированные рассылки по таймеру
// или сразу после сигнала Wake
type BroadcastWorker struct {
	broadcasts BroadcastRunner
	interval   time.Duration
	log        *monitoring.Logger
}

func NewBroadcastWorker(broadcasts BroadcastRunner, interval time.Duration, log *monitoring.Logger) *BroadcastWorker {
	return &BroadcastWorker{broadcasts: broadcasts, interval: interval, log: log}
}

func (w *BroadcastWorker) Run(ctx context.Context) error {
	w.log.WithField("interval", w.interval.String()).Info("📬 Воркер рассылок запущен")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runDue(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Воркер рассылок остановлен")
			return nil
		case <-ticker.C:
			w.runDue(ctx)
		case <-w.broadcasts.Woken():
			w.runDue(ctx)
		}
	}
}

func (w *BroadcastWorker) runDue(ctx context.Context) {
	sent, err := w.broadcasts.RunDue(ctx)
	if err != nil && ctx.Err() == nil {
		w.log.WithError(err).Error("❌ Ошибка запуска рассылок")
		monitoring.RecordError("broadcast", "worker")
	}
	if sent > 0 {
		w.log.WithField("broadcasts", sent).Info("✅ Рассылки отправлены")
	}
}
