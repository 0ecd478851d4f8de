package domain

import "time"

// Audience сегмент пользователей для рассылки
type Audience string

const (
	AudienceAll    Audience = "all"
	AudiencePaid   Audience = "paid"
	AudienceUnpaid Audience = "unpaid"
)

// BroadcastStatus статус рассылки
type BroadcastStatus string

const (
	BroadcastStatusScheduled BroadcastStatus = "scheduled"
	BroadcastStatusSending   BroadcastStatus = "sending"
	BroadcastStatusSent      BroadcastStatus = "sent"
	BroadcastStatusCanceled  BroadcastStatus = "canceled"
)

// Broadcast рассылка от администратора
type Broadcast struct {
	ID          int64           `db:"id" json:"id"`
	AuthorID    int64           `db:"author_id" json:"author_id"`
	Text        string          `db:"text" json:"text"`
	PhotoFileID string          `db:"photo_file_id" json:"photo_file_id"`
	Audience    Audience        `db:"audience" json:"audience"`
	Status      BroadcastStatus `db:"status" json:"status"`
	ScheduledAt time.Time       `db:"scheduled_at" json:"scheduled_at"`
	Delivered   int             `db:"delivered" json:"delivered"`
	Failed      int             `db:"failed" json:"failed"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	FinishedAt  *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}
