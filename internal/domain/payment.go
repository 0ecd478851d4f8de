package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus статус платежа
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

// Payment представляет покупку пакета печенек или слотов аватара
type Payment struct {
	ID                int64           `db:"id" json:"id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	TariffID          string          `db:"tariff_id" json:"tariff_id"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Cookies           int             `db:"cookies" json:"cookies"`
	AvatarSlots       int             `db:"avatar_slots" json:"avatar_slots"`
	ProviderPaymentID string          `db:"provider_payment_id" json:"provider_payment_id"`
	Status            PaymentStatus   `db:"status" json:"status"`
	ConfirmationURL   string          `db:"confirmation_url" json:"confirmation_url"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	PaidAt            *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
}

// Tariff пакет, который можно купить
type Tariff struct {
	ID          string
	Title       string
	Price       decimal.Decimal
	Cookies     int
	AvatarSlots int
	Description string
}

// Label возвращает подпись для кнопки
func (t Tariff) Label() string {
	return t.Title + " — " + t.Price.StringFixed(0) + " ₽"
}
