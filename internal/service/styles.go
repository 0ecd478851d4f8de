package service

// Style готовый стиль генерации
type Style struct {
	ID       string
	Title    string
	Template string // {trigger} и {gender} подставляются из аватара
}

// StyleCategory группа стилей в меню
type StyleCategory struct {
	ID     string
	Title  string
	Styles []Style
}

var styleCatalogue = []StyleCategory{
	{
		ID:    "portrait",
		Title: "📸 Портреты",
		Styles: []Style{
			{ID: "studio", Title: "Студийный портрет", Template: "professional studio portrait photo of {trigger} {gender}, soft key light, neutral grey background, 85mm lens, sharp focus, high detail skin"},
			{ID: "bw", Title: "Черно-белый", Template: "black and white portrait photo of {trigger} {gender}, dramatic side lighting, film grain, classic fine art photography"},
			{ID: "golden", Title: "Золотой час", Template: "outdoor portrait of {trigger} {gender} at golden hour, warm backlight, bokeh, shallow depth of field, candid smile"},
		},
	},
	{
		ID:    "business",
		Title: "💼 Деловой стиль",
		Styles: []Style{
			{ID: "office", Title: "Офис", Template: "corporate headshot of {trigger} {gender} in a modern office, business suit, confident look, natural window light"},
			{ID: "speaker", Title: "Спикер", Template: "{trigger} {gender} speaking on a conference stage, spotlight, microphone, audience in soft focus, event photography"},
		},
	},
	{
		ID:    "travel",
		Title: "✈️ Путешествия",
		Styles: []Style{
			{ID: "paris", Title: "Париж", Template: "{trigger} {gender} walking on a Paris street near the Eiffel Tower, spring morning, travel photography, 35mm"},
			{ID: "mountains", Title: "Горы", Template: "{trigger} {gender} standing on a mountain ridge above the clouds, hiking outfit, epic landscape, sunrise"},
			{ID: "beach", Title: "Пляж", Template: "{trigger} {gender} on a tropical beach, turquoise water, summer outfit, bright sunlight, lifestyle photography"},
		},
	},
	{
		ID:    "fantasy",
		Title: "🧙 Фэнтези",
		Styles: []Style{
			{ID: "knight", Title: "Рыцарь", Template: "{trigger} {gender} as a medieval knight in ornate armor, castle in background, cinematic lighting, epic fantasy art"},
			{ID: "cyberpunk", Title: "Киберпанк", Template: "{trigger} {gender} in a neon-lit cyberpunk city at night, rain reflections, futuristic jacket, cinematic"},
			{ID: "astronaut", Title: "Космонавт", Template: "{trigger} {gender} as an astronaut in a detailed spacesuit, earth in the background, photorealistic, NASA photo"},
		},
	},
}

// Categories возвращает каталог стилей
func Categories() []StyleCategory {
	return styleCatalogue
}

// FindCategory ищет категорию по id
func FindCategory(id string) (StyleCategory, bool) {
	for _, c := range styleCatalogue {
		if c.ID == id {
			return c, true
		}
	}
	return StyleCategory{}, false
}

// FindStyle ищет стиль по id во всех категориях
func FindStyle(id string) (Style, bool) {
	for _, c := range styleCatalogue {
		for _, s := range c.Styles {
			if s.ID == id {
				return s, true
			}
		}
	}
	return Style{}, false
}
