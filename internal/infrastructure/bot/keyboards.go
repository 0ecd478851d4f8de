package bot

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pixelpie/internal/domain"
	"pixelpie/internal/service"
)

// callback data
const (
	cbMenu          = "menu"
	cbHelp          = "help"
	cbBalance       = "balance"
	cbBuy           = "buy"
	cbAvatars       = "avatars"
	cbTrain         = "train"
	cbTrainConfirm  = "train:confirm"
	cbGenerate      = "gen"
	cbCustomPrompt  = "custom"
	cbImprove       = "prompt:improve"
	cbRawPrompt     = "prompt:raw"
	cbVideo         = "video"
	cbVideoConfirm  = "video:confirm"
	cbCancel        = "cancel"
	cbAdminStats    = "admin:stats"
	cbAdminBcast    = "admin:broadcast"
	cbAdminGrant    = "admin:grant"
	cbAdminLookup   = "admin:lookup"
	cbAdminPlanned  = "admin:scheduled"
	cbBroadcastNow  = "bcast:now"
	cbBroadcastLate = "bcast:later"

	prefixTariff    = "tariff:"
	prefixGender    = "gender:"
	prefixCategory  = "cat:"
	prefixStyle     = "style:"
	prefixCount     = "count:"
	prefixAvatar    = "avatar:"
	prefixAudience  = "aud:"
	prefixBcastStop = "bcast:cancel:"
)

func menuRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🏠 Главное меню", cbMenu),
	)
}

// CreateMainKeyboard создает главное меню
func (b *Bot) CreateMainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📸 Создать фото", cbGenerate),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎬 Оживить фото", cbVideo),
			tgbotapi.NewInlineKeyboardButtonData("🧑‍🎨 Новый аватар", cbTrain),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗂 Мои аватары", cbAvatars),
			tgbotapi.NewInlineKeyboardButtonData("🍪 Баланс", cbBalance),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Купить печеньки", cbBuy),
			tgbotapi.NewInlineKeyboardButtonData("❓ Помощь", cbHelp),
		),
	)
}

// CreateBackKeyboard только кнопка главного меню
func (b *Bot) CreateBackKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(menuRow())
}

// CreateCancelKeyboard кнопка выхода из текущего шага
func (b *Bot) CreateCancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel),
		),
	)
}

// CreateTariffsKeyboard по кнопке на каждый пакет
func (b *Bot) CreateTariffsKeyboard(tariffs []domain.Tariff) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tariffs)+1)
	for _, t := range tariffs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.Label(), prefixTariff+t.ID),
		))
	}
	rows = append(rows, menuRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// CreatePayKeyboard ссылка на оплату в ЮKassa
func (b *Bot) CreatePayKeyboard(url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("💳 Оплатить", url),
		),
		menuRow(),
	)
}

// CreateNoCookiesKeyboard предлагает докупить печеньки
func (b *Bot) CreateNoCookiesKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Купить печеньки", cbBuy),
		),
		menuRow(),
	)
}

// CreateNoAvatarKeyboard предлагает обучить аватар
func (b *Bot) CreateNoAvatarKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧑‍🎨 Обучить аватар", cbTrain),
		),
		menuRow(),
	)
}

// CreateGenderKeyboard выбор пола аватара
func (b *Bot) CreateGenderKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👨 Мужчина", prefixGender+string(domain.GenderMan)),
			tgbotapi.NewInlineKeyboardButtonData("👩 Женщина", prefixGender+string(domain.GenderWoman)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧑 Не указывать", prefixGender+string(domain.GenderPerson)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel),
		),
	)
}

// CreateTrainConfirmKeyboard запуск обучения после загрузки фото
func (b *Bot) CreateTrainConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Начать обучение", cbTrainConfirm),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel),
		),
	)
}

// CreateCategoriesKeyboard категории стилей и свой промпт
func (b *Bot) CreateCategoriesKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range service.Categories() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Title, prefixCategory+c.ID),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Свой промпт", cbCustomPrompt),
		),
		menuRow(),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// CreateStylesKeyboard стили категории по два в ряд
func (b *Bot) CreateStylesKeyboard(category service.StyleCategory) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, s := range category.Styles {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(s.Title, prefixStyle+s.ID))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", cbGenerate),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// CreateImproveKeyboard улучшать ли промпт
func (b *Bot) CreateImproveKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✨ Улучшить", cbImprove),
			tgbotapi.NewInlineKeyboardButtonData("➡️ Как есть", cbRawPrompt),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel),
		),
	)
}

// CreateCountKeyboard выбор количества фото с ценой
func (b *Bot) CreateCountKeyboard(photoCost int) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, 4)
	for n := 1; n <= 4; n++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d 📸 %d🍪", n, n*photoCost), prefixCount+strconv.Itoa(n)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		row[:2], row[2:],
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel),
		),
	)
}

// CreateAvatarsKeyboard готовые аватары; активный отмечен галочкой
func (b *Bot) CreateAvatarsKeyboard(avatars []*domain.Avatar) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range avatars {
		if a.Status != domain.AvatarStatusReady {
			continue
		}
		title := a.Name
		if a.IsActive {
			title = "✅ " + title
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(title, prefixAvatar+strconv.FormatInt(a.ID, 10)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧑‍🎨 Новый аватар", cbTrain),
		),
		menuRow(),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// CreateVideoConfirmKeyboard подтверждение списания за видео
func (b *Bot) CreateVideoConfirmKeyboard(cost int) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🎬 Создать за %d🍪", cost), cbVideoConfirm),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel),
		),
	)
}

// CreateAdminKeyboard админ-панель
func (b *Bot) CreateAdminKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", cbAdminStats),
			tgbotapi.NewInlineKeyboardButtonData("🔎 Найти пользователя", cbAdminLookup),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📣 Рассылка", cbAdminBcast),
			tgbotapi.NewInlineKeyboardButtonData("🗓 Запланированные", cbAdminPlanned),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎁 Начислить печеньки", cbAdminGrant),
		),
		menuRow(),
	)
}

// CreateAudienceKeyboard выбор сегмента рассылки
func (b *Bot) CreateAudienceKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Всем", prefixAudience+string(domain.AudienceAll)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Платившим", prefixAudience+string(domain.AudiencePaid)),
			tgbotapi.NewInlineKeyboardButtonData("🆓 Не платившим", prefixAudience+string(domain.AudienceUnpaid)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel),
		),
	)
}

// CreateBroadcastWhenKeyboard отправить сейчас или запланировать
func (b *Bot) CreateBroadcastWhenKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Отправить сейчас", cbBroadcastNow),
			tgbotapi.NewInlineKeyboardButtonData("🗓 Запланировать", cbBroadcastLate),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", cbCancel),
		),
	)
}

// CreateScheduledKeyboard кнопки отмены запланированных рассылок
func (b *Bot) CreateScheduledKeyboard(list []*domain.Broadcast) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, br := range list {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🗑 #%d %s", br.ID, br.ScheduledAt.In(moscow).Format("02.01 15:04")),
				prefixBcastStop+strconv.FormatInt(br.ID, 10)),
		))
	}
	rows = append(rows, menuRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
