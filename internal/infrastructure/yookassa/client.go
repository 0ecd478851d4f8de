package yookassa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pixelpie/internal/monitoring"
)

// Статусы платежа в ЮKassa
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

type Client struct {
	ShopID    string
	SecretKey string
	BaseURL   string
	HTTP      *http.Client
}

func New(shopID, secretKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		ShopID:    shopID,
		SecretKey: secretKey,
		BaseURL:   "https://api.yookassa.ru/v3",
		HTTP:      httpClient,
	}
}

// Configured сообщает, заданы ли ключи магазина
func (c *Client) Configured() bool {
	return c.ShopID != "" && c.SecretKey != ""
}

func (c *Client) authHeader() string {
	creds := c.ShopID + ":" + c.SecretKey
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

func (c *Client) do(ctx context.Context, idemKey, method, path string, body any, out any) (err error) {
	endpoint := method + " " + pathName(path)
	ctx, span := monitoring.StartSpan(ctx, "yookassa "+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	defer func() {
		monitoring.RecordExternalAPICall("yookassa", endpoint, err, time.Since(start))
		monitoring.RecordSpanError(span, err)
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotence-Key", idemKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	monitoring.AddSpanAttributes(span, attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("yookassa http %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func pathName(path string) string {
	if len(path) > len("/payments/") && path[:len("/payments/")] == "/payments/" {
		return "/payments/{id}"
	}
	return path
}

// Amount сумма в рублях
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// RUB сумма в рублях с двумя знаками
func RUB(v decimal.Decimal) Amount {
	return Amount{Value: v.Round(2), Currency: "RUB"}
}

// MarshalJSON ЮKassa ожидает value строкой с двумя знаками после точки
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"value":    a.Value.StringFixed(2),
		"currency": a.Currency,
	})
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type ReceiptItem struct {
	Description    string `json:"description"`
	Quantity       string `json:"quantity"`
	Amount         Amount `json:"amount"`
	VatCode        int    `json:"vat_code"`
	PaymentMode    string `json:"payment_mode"`
	PaymentSubject string `json:"payment_subject"`
}

type Receipt struct {
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	Items []ReceiptItem `json:"items"`
}

// CreatePaymentRequest параметры нового платежа
type CreatePaymentRequest struct {
	Amount      decimal.Decimal
	Description string
	ReturnURL   string
	Email       string // для чека, пустой - без чека
	Metadata    map[string]string
}

// Payment платеж ЮKassa
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Description  string            `json:"description"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CapturedAt   *time.Time        `json:"captured_at,omitempty"`
}

// ConfirmationURL ссылка для оплаты
func (p *Payment) ConfirmationURL() string {
	if p.Confirmation == nil {
		return ""
	}
	return p.Confirmation.ConfirmationURL
}

// UnmarshalJSON value приходит строкой "290.00"
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return fmt.Errorf("amount %q: %w", raw.Value, err)
	}
	a.Value, a.Currency = v, raw.Currency
	return nil
}

// CreatePayment создает одностадийный платеж с redirect-подтверждением
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	amount := RUB(req.Amount)
	payload := map[string]any{
		"amount":  amount,
		"capture": true,
		"confirmation": Confirmation{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		"description": req.Description,
		"metadata":    req.Metadata,
	}
	if req.Email != "" {
		receipt := Receipt{Items: []ReceiptItem{{
			Description:    req.Description,
			Quantity:       "1.00",
			Amount:         amount,
			VatCode:        1,
			PaymentMode:    "full_payment",
			PaymentSubject: "service",
		}}}
		receipt.Customer.Email = req.Email
		payload["receipt"] = receipt
	}

	var out Payment
	if err := c.do(ctx, uuid.NewString(), http.MethodPost, "/payments", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, "", http.MethodGet, "/payments/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
