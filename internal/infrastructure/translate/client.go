package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"time"
	"unicode"

	"pixelpie/internal/monitoring"
)

const defaultBaseURL = "https://translation.googleapis.com/language/translate/v2"

// Client Google Cloud Translation v2
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{apiKey: apiKey, baseURL: defaultBaseURL, client: httpClient}
}

// HasCyrillic сообщает, нужен ли перевод
func HasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// Translate переводит текст на target. Текст без кириллицы и работа без ключа
// возвращают исходную строку.
func (c *Client) Translate(ctx context.Context, text, target string) (string, error) {
	if c.apiKey == "" || !HasCyrillic(text) {
		return text, nil
	}

	start := time.Now()
	result, err := c.translate(ctx, text, target)
	monitoring.RecordExternalAPICall("translate", "translate", err, time.Since(start))
	return result, err
}

func (c *Client) translate(ctx context.Context, text, target string) (string, error) {
	form := url.Values{
		"q":      {text},
		"target": {target},
		"format": {"text"},
		"key":    {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.URL.RawQuery = form.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ошибка парсинга ответа: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("ошибка API перевода %d: %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK || len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("ошибка API перевода: %s", resp.Status)
	}

	return html.UnescapeString(out.Data.Translations[0].TranslatedText), nil
}
