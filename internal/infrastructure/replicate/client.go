package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pixelpie/internal/monitoring"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// Статусы предсказаний и обучений
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

type Client struct {
	Token   string
	BaseURL string
	HTTP    *http.Client
}

func New(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		Token:   token,
		BaseURL: defaultBaseURL,
		HTTP:    httpClient,
	}
}

// APIError ответ Replicate с кодом ошибки
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("replicate http %d: %s", e.StatusCode, e.Detail)
}

// IsStatus проверяет код ответа в ошибке
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Prediction предсказание или обучение
type Prediction struct {
	ID        string            `json:"id"`
	Model     string            `json:"model"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Input     json.RawMessage   `json:"input,omitempty"`
	Output    json.RawMessage   `json:"output,omitempty"`
	Error     json.RawMessage   `json:"error,omitempty"`
	Logs      string            `json:"logs,omitempty"`
	CreatedAt string            `json:"created_at"`
	URLs      map[string]string `json:"urls,omitempty"`
}

// Terminal сообщает, что предсказание завершено
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Outputs приводит output (строка или массив строк) к списку ссылок
func (p *Prediction) Outputs() []string {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(p.Output, &list); err == nil {
		out := list[:0]
		for _, s := range list {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ErrorText текст ошибки предсказания
func (p *Prediction) ErrorText() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	return string(p.Error)
}

// TrainedVersion возвращает версию модели из output обучения
func (p *Prediction) TrainedVersion() string {
	var out struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(p.Output, &out); err != nil {
		return ""
	}
	// output.version приходит как owner/name:hash
	if i := strings.LastIndex(out.Version, ":"); i >= 0 {
		return out.Version[i+1:]
	}
	return out.Version
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
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
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, endpointName(path), out)
}

func (c *Client) send(req *http.Request, endpoint string, out any) (err error) {
	ctx, span := monitoring.StartSpan(req.Context(), "replicate "+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	defer func() {
		monitoring.RecordExternalAPICall("replicate", endpoint, err, time.Since(start))
		monitoring.RecordSpanError(span, err)
		span.End()
	}()

	resp, err := c.HTTP.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	monitoring.AddSpanAttributes(span, attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &e) != nil || e.Detail == "" {
			e.Detail = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: e.Detail}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}
	return nil
}

// endpointName убирает идентификаторы из пути для метрик
func endpointName(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 {
		return path
	}
	switch parts[0] {
	case "predictions", "trainings":
		if len(parts) == 1 {
			return parts[0]
		}
		return parts[0] + "/" + parts[len(parts)-1]
	case "models":
		return "models/" + parts[len(parts)-1]
	}
	return parts[0]
}

// splitRef разбирает owner/name[:version]
func splitRef(ref string) (owner, name, version string, err error) {
	model, version, _ := strings.Cut(ref, ":")
	owner, name, ok := strings.Cut(model, "/")
	if !ok || owner == "" || name == "" {
		return "", "", "", fmt.Errorf("некорректная ссылка на модель %q", ref)
	}
	return owner, name, version, nil
}

// CreatePrediction запускает предсказание. ref: owner/name (официальная модель)
// или owner/name:version.
func (c *Client) CreatePrediction(ctx context.Context, ref string, input map[string]any) (*Prediction, error) {
	owner, name, version, err := splitRef(ref)
	if err != nil {
		return nil, err
	}

	var p Prediction
	if version != "" {
		err = c.do(ctx, http.MethodPost, "/predictions", map[string]any{"version": version, "input": input}, &p)
	} else {
		err = c.do(ctx, http.MethodPost, "/models/"+owner+"/"+name+"/predictions", map[string]any{"input": input}, &p)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	var p Prediction
	if err := c.do(ctx, http.MethodGet, "/predictions/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CancelPrediction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/predictions/"+id+"/cancel", nil, nil)
}

// CreateTraining запускает обучение trainer (owner/name:version) в модель destination (owner/name)
func (c *Client) CreateTraining(ctx context.Context, trainer, destination string, input map[string]any) (*Prediction, error) {
	owner, name, version, err := splitRef(trainer)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return nil, fmt.Errorf("у тренера %q не указана версия", trainer)
	}

	var p Prediction
	path := fmt.Sprintf("/models/%s/%s/versions/%s/trainings", owner, name, version)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"destination": destination, "input": input}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetTraining(ctx context.Context, id string) (*Prediction, error) {
	var p Prediction
	if err := c.do(ctx, http.MethodGet, "/trainings/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CancelTraining(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/trainings/"+id+"/cancel", nil, nil)
}

// CreateModel создает приватную модель для весов обучения. Уже существующая модель не ошибка.
func (c *Client) CreateModel(ctx context.Context, owner, name string) error {
	err := c.do(ctx, http.MethodPost, "/models", map[string]any{
		"owner":      owner,
		"name":       name,
		"visibility": "private",
		"hardware":   "gpu-t4",
	}, nil)
	if IsStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}

// UploadFile загружает файл и возвращает ссылку для input
func (c *Client) UploadFile(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreatePart(map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="content"; filename="%s"`, filename)},
		"Content-Type":        {contentType},
	})
	if err != nil {
		return "", fmt.Errorf("ошибка создания формы: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("ошибка копирования файла: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/files", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out struct {
		URLs struct {
			Get string `json:"get"`
		} `json:"urls"`
	}
	if err := c.send(req, "files", &out); err != nil {
		return "", err
	}
	if out.URLs.Get == "" {
		return "", fmt.Errorf("replicate не вернул ссылку на файл")
	}
	return out.URLs.Get, nil
}

// Download скачивает результат по ссылке из output
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ошибка скачивания %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
