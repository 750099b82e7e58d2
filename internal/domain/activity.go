package domain

import "time"

// Activity: запись журнала действий пользователя.
type Activity struct {
	ID        int64          `json:"id"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	// ActivityProfileCreated фиксирует первый вход пользователя.
	ActivityProfileCreated = "profile_created"
	// ActivityProfileUpdated фиксирует изменение профиля.
	ActivityProfileUpdated = "profile_updated"
	// ActivityPostCreated фиксирует публикацию ReLink.
	ActivityPostCreated = "post_created"
	// ActivityPostDeleted фиксирует удаление ReLink.
	ActivityPostDeleted = "post_deleted"
	// ActivityPostUpdated фиксирует лайк или комментарий к посту автора.
	ActivityPostUpdated = "post_updated"
	// ActivityLinkSaved фиксирует сохранение ссылки в хранилище.
	ActivityLinkSaved = "link_saved"
	// ActivityConnectionAccepted фиксирует новую дружбу.
	ActivityConnectionAccepted = "connection_accepted"
)

// DefaultActivityLimit: размер выдачи истории по умолчанию.
const DefaultActivityLimit = 10
