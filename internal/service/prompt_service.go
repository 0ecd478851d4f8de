package service

import (
	"context"
	"fmt"
	"strings"

	"pixelpie/internal/domain"
	"pixelpie/internal/monitoring"
)

const maxPromptLength = 1000

// PromptService собирает английские промпты для генерации
type PromptService struct {
	translator Translator
	improver   Improver
	log        *monitoring.Logger
}

func NewPromptService(translator Translator, improver Improver, log *monitoring.Logger) *PromptService {
	return &PromptService{translator: translator, improver: improver, log: log}
}

// FromStyle подставляет аватар в шаблон стиля
func (s *PromptService) FromStyle(styleID string, avatar *domain.Avatar) (string, error) {
	style, ok := FindStyle(styleID)
	if !ok {
		return "", fmt.Errorf("style %q: %w", styleID, domain.ErrInvalidInput)
	}
	return fillTemplate(style.Template, avatar), nil
}

// FromText переводит пользовательский текст, по желанию улучшает его
// и добавляет триггер-слово аватара
func (s *PromptService) FromText(ctx context.Context, text string, avatar *domain.Avatar, improve bool) (string, error) {
	prompt, err := s.Prepare(ctx, text, improve)
	if err != nil {
		return "", err
	}
	if avatar != nil && !strings.Contains(prompt, avatar.TriggerWord) {
		prompt = fillTemplate("photo of {trigger} {gender},", avatar) + " " + prompt
	}
	return prompt, nil
}

// Prepare переводит текст на английский и по желанию улучшает его.
// Ошибка улучшения не фатальна: используется переведенный текст.
func (s *PromptService) Prepare(ctx context.Context, text string, improve bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty prompt: %w", domain.ErrInvalidInput)
	}
	if len([]rune(text)) > maxPromptLength {
		return "", fmt.Errorf("prompt too long: %w", domain.ErrInvalidInput)
	}

	translated, err := s.translator.Translate(ctx, text, "en")
	if err != nil {
		s.log.WithFields(monitoring.Fields{"error": err}).Warn("Перевод недоступен, используем исходный текст")
		translated = text
	}

	if !improve || s.improver == nil {
		return translated, nil
	}

	improved, err := s.improver.Improve(ctx, translated)
	if err != nil {
		s.log.WithFields(monitoring.Fields{"error": err}).Warn("Не удалось улучшить промпт")
		return translated, nil
	}
	return improved, nil
}

func fillTemplate(tpl string, avatar *domain.Avatar) string {
	gender := string(domain.GenderPerson)
	trigger := ""
	if avatar != nil {
		trigger = avatar.TriggerWord
		if avatar.Gender != "" {
			gender = string(avatar.Gender)
		}
	}
	r := strings.NewReplacer("{trigger}", trigger, "{gender}", gender)
	return strings.Join(strings.Fields(r.Replace(tpl)), " ")
}
