package domain

import "time"

// Gender пол аватара, используется в промптах
type Gender string

const (
	GenderMan    Gender = "man"
	GenderWoman  Gender = "woman"
	GenderPerson Gender = "person"
)

// ParseGender возвращает пол по значению из callback
func ParseGender(s string) (Gender, bool) {
	switch Gender(s) {
	case GenderMan, GenderWoman, GenderPerson:
		return Gender(s), true
	}
	return "", false
}

// AvatarStatus статус обучения модели
type AvatarStatus string

const (
	AvatarStatusTraining AvatarStatus = "training"
	AvatarStatusReady    AvatarStatus = "ready"
	AvatarStatusFailed   AvatarStatus = "failed"
)

// Avatar персональная модель, обученная на фото пользователя
type Avatar struct {
	ID          int64        `db:"id" json:"id"`
	UserID      int64        `db:"user_id" json:"user_id"`
	Name        string       `db:"name" json:"name"`
	Gender      Gender       `db:"gender" json:"gender"`
	TriggerWord string       `db:"trigger_word" json:"trigger_word"`
	TrainingID  string       `db:"training_id" json:"training_id"`
	ModelName   string       `db:"model_name" json:"model_name"`
	Version     string       `db:"version" json:"version"`
	Status      AvatarStatus `db:"status" json:"status"`
	IsActive    bool         `db:"is_active" json:"is_active"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// Ref возвращает ссылку на версию модели в формате owner/name:version
func (a *Avatar) Ref() string {
	if a.Version == "" {
		return a.ModelName
	}
	return a.ModelName + ":" + a.Version
}
