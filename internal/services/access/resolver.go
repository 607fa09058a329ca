// Package access derives a user's access level from subscription state.
package access

import "github.com/magabrotheeeer/access-gate/internal/models"

// entitled перечисляет статусы подписки, дающие premium-доступ.
// trialing входит как grace-период; past_due доступа не даёт.
var entitled = map[string]struct{}{
	models.StatusActive:   {},
	models.StatusTrialing: {},
}

// Resolve возвращает уровень доступа по множеству статусов подписок
// пользователя. Чистая функция: детерминированная, без побочных эффектов,
// не изменяет вход. Пересчёт можно запускать в любой момент для устранения
// расхождений между уровнем доступа и состоянием подписок.
func Resolve(statuses []string) string {
	for _, status := range statuses {
		if _, ok := entitled[status]; ok {
			return models.AccessPremium
		}
	}
	return models.AccessFree
}
