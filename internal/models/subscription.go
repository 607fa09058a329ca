// Package models содержит доменные структуры подписки: строку хранилища
// и сводку для ответов API.
package models

import "time"

// Статусы подписки, приходящие от биллинга.
const (
	StatusActive     = "active"
	StatusTrialing   = "trialing"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusIncomplete = "incomplete"
)

// Subscription представляет строку хранилища подписок: последнее известное
// состояние внешней подписки. На один внешний идентификатор подписки
// приходится не более одной строки; более новый статус всегда перезаписывает
// старый для того же идентификатора.
type Subscription struct {
	ID                   int        // Внутренний идентификатор строки
	UserUID              string     // Владелец подписки
	StripeSubscriptionID string     // Внешний идентификатор подписки (уникальный)
	StripeCustomerID     string     // Внешний идентификатор клиента
	Plan                 string     // Идентификатор тарифа
	Status               string     // Последний применённый статус
	CurrentPeriodStart   *time.Time // Начало текущего оплаченного периода
	CurrentPeriodEnd     *time.Time // Конец текущего оплаченного периода
	LastEventAt          time.Time  // Временная метка последнего применённого события
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SubscriptionSummary — сводка подписки для ответа /access/status.
type SubscriptionSummary struct {
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	Plan                 string     `json:"plan,omitempty"`
	Status               string     `json:"status"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
}

// Summary возвращает сводку подписки для внешнего API.
func (s *Subscription) Summary() *SubscriptionSummary {
	return &SubscriptionSummary{
		StripeSubscriptionID: s.StripeSubscriptionID,
		Plan:                 s.Plan,
		Status:               s.Status,
		CurrentPeriodEnd:     s.CurrentPeriodEnd,
	}
}
