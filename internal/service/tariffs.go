package service

import (
	"github.com/shopspring/decimal"

	"pixelpie/internal/domain"
)

var tariffCatalogue = []domain.Tariff{
	{ID: "cookies_30", Title: "30 печенек", Price: decimal.NewFromInt(290), Cookies: 30, Description: "30 фотографий с вашим аватаром"},
	{ID: "cookies_100", Title: "100 печенек", Price: decimal.NewFromInt(790), Cookies: 100, Description: "100 фотографий или 5 видео"},
	{ID: "cookies_250", Title: "250 печенек", Price: decimal.NewFromInt(1690), Cookies: 250, Description: "Максимальная выгода для активных"},
	{ID: "avatar", Title: "Новый аватар", Price: decimal.NewFromInt(590), AvatarSlots: 1, Description: "Одно обучение персональной модели"},
	{ID: "combo", Title: "Аватар + 100 печенек", Price: decimal.NewFromInt(1190), Cookies: 100, AvatarSlots: 1, Description: "Обучение аватара и 100 печенек"},
}

// Tariffs каталог пакетов
func Tariffs() []domain.Tariff {
	return tariffCatalogue
}

// FindTariff ищет пакет по id
func FindTariff(id string) (domain.Tariff, bool) {
	for _, t := range tariffCatalogue {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Tariff{}, false
}
