package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"pixelpie/internal/domain"
	"pixelpie/internal/monitoring"
)

const maxWebhookBody = 1 << 20

// PaymentConfirmer подтверждает платеж, перепроверив его статус в ЮKassa
type PaymentConfirmer interface {
	Confirm(ctx context.Context, providerPaymentID string) error
}

type YooKassaHandler struct {
	payments PaymentConfirmer
	log      *monitoring.Logger
}

func NewYooKassaHandler(payments PaymentConfirmer, log *monitoring.Logger) *YooKassaHandler {
	return &YooKassaHandler{payments: payments, log: log}
}

type webhookEvent struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// Webhook уведомление ЮKassa.
// URL: POST /yookassa/webhook
//
// Телу уведомления не доверяем: статус платежа перечитывается через API.
// 200 отвечаем и на обработанные, и на проигнорированные события,
// 500 только на временные ошибки, чтобы ЮKassa повторила уведомление.
func (h *YooKassaHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var evt webhookEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&evt); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	log := h.log.WithFields(monitoring.Fields{"event": evt.Event, "provider_payment_id": evt.Object.ID})

	switch evt.Event {
	case "payment.succeeded", "payment.canceled", "payment.waiting_for_capture":
	default:
		log.Debug("Событие ЮKassa пропущено")
		w.WriteHeader(http.StatusOK)
		return
	}
	if evt.Object.ID == "" {
		log.Warn("Уведомление ЮKassa без id платежа")
		w.WriteHeader(http.StatusOK)
		return
	}

	err := h.payments.Confirm(r.Context(), evt.Object.ID)
	switch {
	case err == nil:
		log.Info("Уведомление ЮKassa обработано")
	case errors.Is(err, domain.ErrNotFound):
		log.Warn("Уведомление о неизвестном платеже")
	case errors.Is(err, domain.ErrInvalidInput):
		monitoring.RecordError("payment_mismatch", "api")
		log.WithError(err).Error("Платеж не прошел проверку")
	default:
		monitoring.RecordError("webhook", "api")
		log.WithError(err).Error("Не удалось обработать уведомление ЮKassa")
		http.Error(w, "temporary error", http.StatusInternalServerError)
		return
	}
	w.Write([]byte("ok"))
}

func (h *YooKassaHandler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/yookassa/webhook", h.Webhook).Methods(http.MethodPost)
}
