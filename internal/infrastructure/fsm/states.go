package fsm

// Общие состояния
const (
	Idle               = ""
	AwaitingPrompt     = "bot:awaiting_prompt"
	AwaitingEmail      = "bot:awaiting_email"
	AdminBroadcastText = "admin:broadcast_text"
	AdminBroadcastTime = "admin:broadcast_time"
	AdminGrantUser     = "admin:grant_user"
	AdminGrantAmount   = "admin:grant_amount"
	AdminLookupUser    = "admin:lookup_user"
)

// Обучение аватара
const (
	TrainingName    = "training:name"
	TrainingGender  = "training:gender"
	TrainingPhotos  = "training:photos"
	TrainingConfirm = "training:confirm"
)

// Генерация видео
const (
	VideoImage   = "video:image"
	VideoPrompt  = "video:prompt"
	VideoConfirm = "video:confirm"
)

// Ключи Data
const (
	KeyAvatarName   = "avatar_name"
	KeyGender       = "gender"
	KeyPrompt       = "prompt"
	KeyRawPrompt    = "raw_prompt" // текст пользователя до перевода
	KeyStyle        = "style"
	KeyCount        = "count"
	KeyImageFileID  = "image_file_id"
	KeyBroadcastTxt = "broadcast_text"
	KeyBroadcastPic = "broadcast_photo"
	KeyAudience     = "audience"
	KeyGrantUserID  = "grant_user_id"
	KeyTariffID     = "tariff_id"
)
