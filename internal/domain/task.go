package domain

import (
	"encoding/json"
	"time"
)

// TaskKind тип отслеживаемой задачи
type TaskKind string

const (
	TaskKindImage    TaskKind = "image"
	TaskKindVideo    TaskKind = "video"
	TaskKindTraining TaskKind = "training"
)

// TaskStatus статус отслеживаемой задачи
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusTimeout   TaskStatus = "timeout"
)

// Terminal сообщает, что задача больше не опрашивается
func (s TaskStatus) Terminal() bool {
	return s != TaskStatusRunning
}

// Task задача во внешнем сервисе (предсказание или обучение Replicate)
type Task struct {
	ID           string     `db:"id" json:"id"`
	Kind         TaskKind   `db:"kind" json:"kind"`
	UserID       int64      `db:"user_id" json:"user_id"`
	ChatID       int64      `db:"chat_id" json:"chat_id"`
	PredictionID string     `db:"prediction_id" json:"prediction_id"`
	Cost         int        `db:"cost" json:"cost"`
	Status       TaskStatus `db:"status" json:"status"`
	Attempts     int        `db:"attempts" json:"attempts"`
	Payload      string     `db:"payload" json:"payload"`
	Error        string     `db:"error" json:"error"`
	Deadline     time.Time  `db:"deadline" json:"deadline"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// TaskPayload данные, необходимые для завершения задачи после рестарта
type TaskPayload struct {
	AvatarID    int64  `json:"avatar_id,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Style       string `json:"style,omitempty"`
	Count       int    `json:"count,omitempty"`
	ImageFileID string `json:"image_file_id,omitempty"`
}

// SetPayload сериализует payload в задачу
func (t *Task) SetPayload(p TaskPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	t.Payload = string(data)
	return nil
}

// DecodePayload разбирает payload задачи
func (t *Task) DecodePayload() (TaskPayload, error) {
	var p TaskPayload
	if t.Payload == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(t.Payload), &p)
	return p, err
}
