// Package models содержит доменную модель пользователя системы,
// включающую учётную запись, ссылки на внешние сервисы (биллинг, чат)
// и вычисленный уровень доступа. Структуры используются в бизнес‑логике
// и при работе с хранилищем.
package models

import "time"

// Уровни доступа пользователя. AccessLevel всегда является чистой функцией
// от множества подписок пользователя и меняется только функцией пересчёта.
const (
	// AccessFree — базовый уровень без активной подписки.
	AccessFree = "free"
	// AccessPremium — уровень с активной подпиской.
	AccessPremium = "premium"
)

// User представляет пользователя системы.
type User struct {
	UID              string    // Уникальный идентификатор пользователя
	Email            string    // Электронная почта (уникальная, ключ входа)
	StripeCustomerID string    // Идентификатор клиента в биллинге (опционально)
	DiscordUserID    string    // Идентификатор в чат-платформе (опционально)
	AccessLevel      string    // Уровень доступа: free или premium
	CreatedAt        time.Time // Дата создания
	UpdatedAt        time.Time // Дата последнего обновления
}
