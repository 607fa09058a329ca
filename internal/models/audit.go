package models

import "time"

// Источники и статусы записей аудита.
const (
	AuditSourceAuth    = "auth"
	AuditSourceStripe  = "stripe"
	AuditSourceAccess  = "access"
	AuditSourceBilling = "billing"

	AuditStatusSuccess      = "success"
	AuditStatusApplied      = "applied"
	AuditStatusSkippedStale = "skipped_stale"
	AuditStatusIgnored      = "ignored"
	AuditStatusRejected     = "rejected"
	AuditStatusError        = "error"
)

// AuditEntry — неизменяемая запись журнала аудита. Записи только добавляются,
// никогда не изменяются и не удаляются.
type AuditEntry struct {
	ID        string    `json:"id"`
	UserUID   string    `json:"user_uid,omitempty"` // Пустая строка — событие без пользователя
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	RequestID string    `json:"request_id,omitempty"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
