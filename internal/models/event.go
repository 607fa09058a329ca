package models

import "time"

// Исходы применения события вебхука к хранилищу подписок.
const (
	OutcomeApplied      = "applied"
	OutcomeSkippedStale = "skipped_stale"
	OutcomeIgnored      = "ignored"
)

// SubscriptionEvent — разобранное событие вебхука биллинга, относящееся
// к подписке. CreatedAt — временная метка создания события у провайдера;
// именно она, а не порядок доставки, служит ключом упорядочивания.
type SubscriptionEvent struct {
	EventID            string     // Уникальный идентификатор события
	EventType          string     // Тип события, например customer.subscription.updated
	CreatedAt          time.Time  // Временная метка создания события у провайдера
	SubscriptionID     string     // Внешний идентификатор подписки
	CustomerID         string     // Внешний идентификатор клиента
	Status             string     // Новый статус подписки
	Plan               string     // Идентификатор тарифа
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	UserUID            string // Из metadata, если провайдеру передавался user_uid
	RequestID          string // Идентификатор HTTP-запроса для аудита
}

// AccessChange — сообщение об изменении уровня доступа пользователя,
// публикуемое для внешних потребителей (например, синхронизации ролей).
type AccessChange struct {
	UserUID   string    `json:"user_uid"`
	OldLevel  string    `json:"old_level"`
	NewLevel  string    `json:"new_level"`
	EventType string    `json:"event_type"`
	ChangedAt time.Time `json:"changed_at"`
}

// ApplyResult — результат атомарного применения события подписки.
type ApplyResult struct {
	Outcome      string // applied или skipped_stale
	UserUID      string
	OldLevel     string
	NewLevel     string
	LevelChanged bool
}
