package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelpie_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Telegram бот метрики
	telegramUpdatesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_telegram_updates_total",
			Help: "Total number of Telegram updates received",
		},
		[]string{"type"}, // command, callback, photo, text
	)

	telegramMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_telegram_messages_sent_total",
			Help: "Total number of Telegram messages sent",
		},
		[]string{"type", "status"},
	)

	activeTelegramUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pixelpie_telegram_active_users",
			Help: "Number of currently active Telegram users",
		},
	)

	// Генерации и задачи Replicate
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_generations_total",
			Help: "Total number of tracked generations by kind and final status",
		},
		[]string{"kind", "status"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelpie_task_duration_seconds",
			Help:    "Time from task creation to terminal state",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		},
		[]string{"kind"},
	)

	trackedTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pixelpie_tracked_tasks",
			Help: "Number of tasks currently polled",
		},
		[]string{"kind"},
	)

	// Печеньки
	cookiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_cookies_total",
			Help: "Cookies moved by operation",
		},
		[]string{"operation"}, // spent, refunded, purchased, granted, bonus
	)

	// Платежи
	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_payments_total",
			Help: "Total number of payments",
		},
		[]string{"status", "tariff"},
	)

	paymentAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_payment_amount_total",
			Help: "Total payment amount in rubles",
		},
		[]string{"tariff"},
	)

	// Рассылки
	broadcastMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_broadcast_messages_total",
			Help: "Broadcast messages by result",
		},
		[]string{"result"}, // delivered, failed, blocked
	)

	// Внешние API
	externalAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_external_api_calls_total",
			Help: "Total number of external API calls",
		},
		[]string{"service", "status"}, // replicate, yookassa, translate, llama
	)

	externalAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pixelpie_external_api_latency_seconds",
			Help:    "External API call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "endpoint"},
	)

	// Ошибки
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pixelpie_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type", "component"},
	)
)

func RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func RecordTelegramUpdate(updateType string) {
	telegramUpdatesReceived.WithLabelValues(updateType).Inc()
}

func RecordTelegramMessageSent(messageType string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	telegramMessagesSent.WithLabelValues(messageType, status).Inc()
}

func SetActiveTelegramUsers(count int) {
	activeTelegramUsers.Set(float64(count))
}

// RecordTaskFinished учитывает завершение задачи и ее длительность
func RecordTaskFinished(kind, status string, duration time.Duration) {
	generationsTotal.WithLabelValues(kind, status).Inc()
	taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func IncTrackedTasks(kind string) {
	trackedTasks.WithLabelValues(kind).Inc()
}

func DecTrackedTasks(kind string) {
	trackedTasks.WithLabelValues(kind).Dec()
}

func RecordCookies(operation string, amount int) {
	if amount > 0 {
		cookiesTotal.WithLabelValues(operation).Add(float64(amount))
	}
}

func RecordPayment(status, tariff string, amount float64) {
	paymentsTotal.WithLabelValues(status, tariff).Inc()
	if status == "succeeded" {
		paymentAmount.WithLabelValues(tariff).Add(amount)
	}
}

func RecordBroadcastMessage(result string) {
	broadcastMessages.WithLabelValues(result).Inc()
}

func RecordExternalAPICall(service, endpoint string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	externalAPICalls.WithLabelValues(service, status).Inc()
	externalAPILatency.WithLabelValues(service, endpoint).Observe(duration.Seconds())
}

func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
