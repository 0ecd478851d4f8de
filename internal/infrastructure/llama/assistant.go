package llama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"pixelpie/internal/monitoring"
)

const systemPrompt = `You are an assistant that writes prompts for a photorealistic image generation model.
Rewrite the user's idea as one vivid English paragraph under 70 words: subject, setting, lighting, camera and mood.
Keep every concrete detail the user gave. Do not add text, captions, lists or quotes. Answer with the prompt only.`

// Assistant улучшает промпты через OpenAI-совместимый API (Llama)
type Assistant struct {
	client *openai.Client
	model  string
}

// New возвращает nil, если baseURL не задан
func New(baseURL, apiKey, model string, httpClient *http.Client) *Assistant {
	if baseURL == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Assistant{client: openai.NewClientWithConfig(cfg), model: model}
}

// Improve превращает короткую идею в развернутый промпт на английском
func (a *Assistant) Improve(ctx context.Context, prompt string) (string, error) {
	if a == nil {
		return prompt, nil
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("пустой промпт")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	monitoring.RecordExternalAPICall("llama", "chat/completions", err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("ошибка Llama API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("пустой ответ от Llama")
	}

	improved := Clean(resp.Choices[0].Message.Content)
	if improved == "" {
		return "", fmt.Errorf("пустой ответ от Llama")
	}
	return improved, nil
}

// Clean сводит ответ модели к одному абзацу без кавычек и префиксов
func Clean(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Prompt:", "prompt:", "Here is the prompt:", "Here's the prompt:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, `"'«»`)
	return strings.TrimSpace(s)
}
