package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pixelpie/internal/domain"
	"pixelpie/internal/service"
)

// moscow время для планирования рассылок; в Москве нет перехода на летнее время
var moscow = time.FixedZone("MSK", 3*60*60)

const broadcastTimeLayout = "02.01.2006 15:04"

const (
	textUnknown     = "Не понял команду 🤔 Откройте меню: /menu"
	textCanceled    = "Действие отменено."
	textThrottled   = "Слишком часто, попробуйте через секунду"
	textNoAccess    = "Эта команда доступна только администраторам."
	textAskPrompt   = "✍️ Опишите, какое фото вы хотите получить. Можно по-русски, я переведу."
	textAskImprove  = "Улучшить описание с помощью нейросети? Это бесплатно."
	textAskCount    = "Сколько фото сгенерировать?"
	textAskName     = "Как назовем аватар? Например: «Я в отпуске»."
	textAskGender   = "Кто на фотографиях?"
	textAskEmail    = "📧 Для отправки чека нужен email. Напишите его одним сообщением."
	textEmailSaved  = "Email сохранен ✅"
	textVideoPhoto  = "🎬 Пришлите фото, которое нужно оживить."
	textVideoPrompt = "Опишите движение в кадре: например, «улыбается и машет рукой»."
	textWaitPhoto   = "Пришлите, пожалуйста, фотографию."
	textGenerating  = "⏳ Генерирую фото, это займет около минуты. Пришлю результат сюда."
	textVideoStart  = "⏳ Видео в работе, обычно это 5–10 минут. Пришлю результат сюда."
	textAdmin       = "🛠 Админ-панель"
	textAskBcast    = "📣 Пришлите текст рассылки или фото с подписью."
	textAskAudience = "Кому отправить рассылку?"
	textAskWhen     = "Когда отправить?"
	textAskTime     = "Во сколько отправить? Формат ДД.ММ.ГГГГ ЧЧ:ММ по Москве."
	textBadTime     = "Не получилось разобрать время. Пример: 31.12.2025 18:00"
	textPastTime    = "Это время уже прошло, укажите время в будущем."
	textBcastNow    = "🚀 Рассылка запущена, пришлю отчет по завершении."
	textAskUser     = "Пришлите id пользователя или @username."
	textAskAmount   = "Сколько печенек начислить?"
	textBadAmount   = "Нужно целое положительное число."
	textNoPlanned   = "Запланированных рассылок нет."
	textPlanned     = "🗓 Запланированные рассылки. Нажмите, чтобы отменить:"
	textBcastCancel = "Рассылка отменена."
	textChooseStyle = "Выберите стиль:"
)

func welcomeText(u *domain.User, created bool) string {
	if created {
		return fmt.Sprintf("Привет, %s! 👋\n\nЯ PixelPie: обучаю нейросеть на ваших фото и создаю с вами снимки в любом стиле.\n\n"+
			"🎁 Дарю %d 🍪 на первые фото. Начните с создания аватара.", u.DisplayName(), u.Balance)
	}
	return fmt.Sprintf("С возвращением, %s! Что делаем?", u.DisplayName())
}

func helpText(photoCost, videoCost, minPhotos, maxPhotos int) string {
	return fmt.Sprintf("❓ Как это работает\n\n"+
		"1. 🧑‍🎨 Создайте аватар: пришлите от %d до %d фото, где хорошо видно лицо. Обучение занимает 20–40 минут.\n"+
		"2. 📸 Выберите стиль или опишите кадр своими словами. Одно фото стоит %d 🍪.\n"+
		"3. 🎬 Оживите любое фото: видео стоит %d 🍪.\n\n"+
		"Команды: /menu, /generate, /video, /train, /avatars, /balance, /buy, /cancel",
		minPhotos, maxPhotos, photoCost, videoCost)
}

func balanceText(u *domain.User, refLink string) string {
	return fmt.Sprintf("🍪 Баланс: %d\n🧑‍🎨 Обучений аватара: %d\n\n"+
		"Пригласите друга по ссылке и получите бонус после его первой покупки:\n%s",
		u.Balance, u.AvatarSlots, refLink)
}

func tariffsText(tariffs []domain.Tariff) string {
	var b strings.Builder
	b.WriteString("💳 Пакеты\n\n")
	for _, t := range tariffs {
		fmt.Fprintf(&b, "• %s: %s\n", t.Label(), t.Description)
	}
	return b.String()
}

func paymentText(p *domain.Payment) string {
	return fmt.Sprintf("Счет на %s ₽ создан. Печеньки придут сразу после оплаты.", p.Amount.StringFixed(2))
}

func photosProgressText(count, minPhotos, maxPhotos int) string {
	if count < minPhotos {
		return fmt.Sprintf("📥 Получено фото: %d. Нужно еще минимум %d.", count, minPhotos-count)
	}
	return fmt.Sprintf("📥 Получено фото: %d из %d. Можно начинать обучение или прислать еще.", count, maxPhotos)
}

func trainingAskPhotos(minPhotos, maxPhotos int) string {
	return fmt.Sprintf("📷 Пришлите от %d до %d фото. Лучше портреты с разных ракурсов, без очков и других людей в кадре.", minPhotos, maxPhotos)
}

func trainingStarted(a *domain.Avatar) string {
	return fmt.Sprintf("🚀 Обучение аватара «%s» запущено. Это займет 20–40 минут, я сообщу, когда все будет готово.", a.Name)
}

func avatarsText(avatars []*domain.Avatar) string {
	if len(avatars) == 0 {
		return "У вас пока нет аватаров."
	}
	var b strings.Builder
	b.WriteString("🗂 Ваши аватары\n\n")
	for _, a := range avatars {
		status := "⏳ обучается"
		switch a.Status {
		case domain.AvatarStatusReady:
			status = "готов"
			if a.IsActive {
				status = "✅ активен"
			}
		case domain.AvatarStatusFailed:
			status = "❌ ошибка обучения"
		}
		fmt.Fprintf(&b, "• %s: %s\n", a.Name, status)
	}
	b.WriteString("\nНажмите на аватар, чтобы сделать его активным.")
	return b.String()
}

func userCardText(card *service.UserCard) string {
	u := card.User
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s (id %d)\n", u.DisplayName(), u.ID)
	if u.Username != "" {
		fmt.Fprintf(&b, "@%s\n", u.Username)
	}
	fmt.Fprintf(&b, "🍪 %d, слотов: %d\n", u.Balance, u.AvatarSlots)
	fmt.Fprintf(&b, "Платил: %s, заблокировал бота: %s\n", yesNo(u.HasPaid), yesNo(u.IsBlocked))
	fmt.Fprintf(&b, "С нами с %s\n", u.CreatedAt.In(moscow).Format("02.01.2006"))
	fmt.Fprintf(&b, "Аватаров: %d", len(card.Avatars))
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}

// errorText сообщение пользователю по ошибке сервиса
func errorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "Недостаточно печенек 🍪 Пополните баланс."
	case errors.Is(err, domain.ErrNoAvatarSlots):
		return "Нет доступных обучений аватара. Купите пакет с аватаром."
	case errors.Is(err, domain.ErrNoActiveAvatar):
		return "Сначала обучите аватар или выберите активный в разделе «Мои аватары»."
	case errors.Is(err, domain.ErrNotFound):
		return "Ничего не найдено."
	case errors.Is(err, domain.ErrInvalidInput):
		return "Некорректные данные, попробуйте еще раз."
	case errors.Is(err, service.ErrEmailRequired):
		return textAskEmail
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "Сервис временно недоступен, попробуйте позже. Печеньки не списаны."
	default:
		return "Что-то пошло не так 😔 Попробуйте позже."
	}
}
