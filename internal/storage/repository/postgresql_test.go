package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/models"
)

func subscriptionEvent(eventID, subscriptionID, customerID, status string, createdAt time.Time) models.SubscriptionEvent {
	return models.SubscriptionEvent{
		EventID:        eventID,
		EventType:      "customer.subscription.updated",
		CreatedAt:      createdAt,
		SubscriptionID: subscriptionID,
		CustomerID:     customerID,
		Status:         status,
		Plan:           "price_basic",
		RequestID:      "req-" + eventID,
	}
}

func TestUsers(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("создание и чтение пользователя", func(t *testing.T) {
		uid, err := storage.CreateUser(ctx, models.User{
			Email:       "user@example.com",
			AccessLevel: models.AccessFree,
		})
		require.NoError(t, err)
		require.NotEmpty(t, uid)

		byUID, err := storage.GetUser(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", byUID.Email)
		assert.Equal(t, models.AccessFree, byUID.AccessLevel)

		byEmail, err := storage.GetUserByEmail(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, uid, byEmail.UID)
	})

	t.Run("неизвестный email", func(t *testing.T) {
		_, err := storage.GetUserByEmail(ctx, "missing@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("привязка клиента биллинга", func(t *testing.T) {
		factory := NewTestDataFactory(storage)
		uid := factory.CreateUser(t, "billing@example.com", models.AccessFree, "")

		require.NoError(t, storage.SetStripeCustomerID(ctx, uid, "cus_42"))

		user, err := storage.GetUserByStripeCustomerID(ctx, "cus_42")
		require.NoError(t, err)
		assert.Equal(t, uid, user.UID)
	})

	t.Run("повторное создание с тем же email возвращает существующий uid", func(t *testing.T) {
		first, err := storage.CreateUser(ctx, models.User{
			Email:       "twice@example.com",
			AccessLevel: models.AccessFree,
		})
		require.NoError(t, err)

		second, err := storage.CreateUser(ctx, models.User{
			Email:       "twice@example.com",
			AccessLevel: models.AccessFree,
		})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("привязка к несуществующему пользователю", func(t *testing.T) {
		err := storage.SetStripeCustomerID(ctx, "00000000-0000-0000-0000-000000000000", "cus_x")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestApplySubscriptionEvent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("новое событие применяется и повышает доступ", func(t *testing.T) {
		uid := factory.CreateUser(t, "apply@example.com", models.AccessFree, "cus_apply")

		result, err := storage.ApplySubscriptionEvent(ctx,
			subscriptionEvent("evt_1", "sub_apply", "cus_apply", models.StatusActive, base))
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeApplied, result.Outcome)
		assert.Equal(t, uid, result.UserUID)
		assert.Equal(t, models.AccessFree, result.OldLevel)
		assert.Equal(t, models.AccessPremium, result.NewLevel)
		assert.True(t, result.LevelChanged)
		assert.Equal(t, models.AccessPremium, factory.AccessLevel(t, uid))
		assert.Equal(t, 1, factory.CountAudit(t, "customer.subscription.updated", models.AuditStatusApplied))
	})

	t.Run("более старое событие пропускается", func(t *testing.T) {
		uid := factory.CreateUser(t, "stale@example.com", models.AccessFree, "cus_stale")

		_, err := storage.ApplySubscriptionEvent(ctx,
			subscriptionEvent("evt_new", "sub_stale", "cus_stale", models.StatusActive, base))
		require.NoError(t, err)

		result, err := storage.ApplySubscriptionEvent(ctx,
			subscriptionEvent("evt_old", "sub_stale", "cus_stale", models.StatusCanceled, base.Add(-time.Hour)))
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeSkippedStale, result.Outcome)
		assert.False(t, result.LevelChanged)
		assert.Equal(t, models.StatusActive, factory.SubscriptionStatus(t, "sub_stale"))
		assert.Equal(t, models.AccessPremium, factory.AccessLevel(t, uid))
		assert.GreaterOrEqual(t, factory.CountAudit(t, "customer.subscription.updated", models.AuditStatusSkippedStale), 1)
	})

	t.Run("событие с той же меткой времени пропускается", func(t *testing.T) {
		factory.CreateUser(t, "equal@example.com", models.AccessFree, "cus_equal")

		_, err := storage.ApplySubscriptionEvent(ctx,
			subscriptionEvent("evt_a", "sub_equal", "cus_equal", models.StatusActive, base))
		require.NoError(t, err)

		result, err := storage.ApplySubscriptionEvent(ctx,
			subscriptionEvent("evt_b", "sub_equal", "cus_equal", models.StatusCanceled, base))
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeSkippedStale, result.Outcome)
		assert.Equal(t, models.StatusActive, factory.SubscriptionStatus(t, "sub_equal"))
	})

	t.Run("перестановка доставки сходится к последнему состоянию", func(t *testing.T) {
		uid := factory.CreateUser(t, "order@example.com", models.AccessFree, "cus_order")

		// Отмена создана позже активации, но доставлена первой.
		_, err := storage.ApplySubscriptionEvent(ctx,
			subscriptionEvent("evt_cancel", "sub_order", "cus_order", models.StatusCanceled, base.Add(time.Hour)))
		require.NoError(t, err)

		result, err := storage.ApplySubscriptionEvent(ctx,
			subscriptionEvent("evt_activate", "sub_order", "cus_order", models.StatusActive, base))
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeSkippedStale, result.Outcome)
		assert.Equal(t, models.StatusCanceled, factory.SubscriptionStatus(t, "sub_order"))
		assert.Equal(t, models.AccessFree, factory.AccessLevel(t, uid))
	})

	t.Run("конкурентная первая доставка сходится к новому событию", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			subID := fmt.Sprintf("sub_race_%d", i)
			cusID := fmt.Sprintf("cus_race_%d", i)
			uid := factory.CreateUser(t, fmt.Sprintf("race%d@example.com", i), models.AccessFree, cusID)

			older := subscriptionEvent("evt_race_old_"+subID, subID, cusID, models.StatusActive, base)
			newer := subscriptionEvent("evt_race_new_"+subID, subID, cusID, models.StatusCanceled, base.Add(time.Hour))

			var wg sync.WaitGroup
			errs := make(chan error, 2)
			for _, ev := range []models.SubscriptionEvent{older, newer} {
				wg.Add(1)
				go func(ev models.SubscriptionEvent) {
					defer wg.Done()
					_, err := storage.ApplySubscriptionEvent(ctx, ev)
					errs <- err
				}(ev)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			// Каким бы ни был порядок коммитов, остаётся состояние
			// события с более поздней меткой.
			assert.Equal(t, models.StatusCanceled, factory.SubscriptionStatus(t, subID))
			assert.Equal(t, models.AccessFree, factory.AccessLevel(t, uid))
		}
	})

	t.Run("повторная доставка того же события идемпотентна", func(t *testing.T) {
		uid := factory.CreateUser(t, "dup@example.com", models.AccessFree, "cus_dup")
		ev := subscriptionEvent("evt_dup", "sub_dup", "cus_dup", models.StatusActive, base)

		first, err := storage.ApplySubscriptionEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeApplied, first.Outcome)

		second, err := storage.ApplySubscriptionEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSkippedStale, second.Outcome)
		assert.Equal(t, models.AccessPremium, factory.AccessLevel(t, uid))
	})

	t.Run("владелец по user_uid из metadata", func(t *testing.T) {
		uid := factory.CreateUser(t, "meta@example.com", models.AccessFree, "")

		ev := subscriptionEvent("evt_meta", "sub_meta", "cus_unknown", models.StatusActive, base)
		ev.UserUID = uid

		result, err := storage.ApplySubscriptionEvent(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, uid, result.UserUID)
		assert.Equal(t, models.AccessPremium, factory.AccessLevel(t, uid))
	})

	t.Run("событие без владельца отклоняется", func(t *testing.T) {
		_, err := storage.ApplySubscriptionEvent(ctx,
			subscriptionEvent("evt_orphan", "sub_orphan", "cus_orphan", models.StatusActive, base))
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("отмена контекста", func(t *testing.T) {
		cancelledCtx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.ApplySubscriptionEvent(cancelledCtx,
			subscriptionEvent("evt_ctx", "sub_ctx", "cus_ctx", models.StatusActive, base))
		require.Error(t, err)
	})
}

func TestRecomputeAccessLevel(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("расхождение устраняется", func(t *testing.T) {
		// Уровень выставлен вручную и не соответствует подпискам.
		uid := factory.CreateUser(t, "drift@example.com", models.AccessPremium, "")
		factory.CreateSubscription(t, uid, "sub_drift", models.StatusCanceled, base)

		old, updated, err := storage.RecomputeAccessLevel(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, models.AccessPremium, old)
		assert.Equal(t, models.AccessFree, updated)
		assert.Equal(t, models.AccessFree, factory.AccessLevel(t, uid))
	})

	t.Run("повторный пересчет ничего не меняет", func(t *testing.T) {
		uid := factory.CreateUser(t, "steady@example.com", models.AccessFree, "")
		factory.CreateSubscription(t, uid, "sub_steady", models.StatusTrialing, base)

		_, first, err := storage.RecomputeAccessLevel(ctx, uid)
		require.NoError(t, err)
		old, second, err := storage.RecomputeAccessLevel(ctx, uid)
		require.NoError(t, err)

		assert.Equal(t, models.AccessPremium, first)
		assert.Equal(t, first, old)
		assert.Equal(t, first, second)
	})

	t.Run("неизвестный пользователь", func(t *testing.T) {
		_, _, err := storage.RecomputeAccessLevel(ctx, "00000000-0000-0000-0000-000000000000")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestGetLatestSubscription(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("активная приоритетнее свежей отмененной", func(t *testing.T) {
		uid := factory.CreateUser(t, "latest@example.com", models.AccessPremium, "")
		factory.CreateSubscription(t, uid, "sub_active", models.StatusActive, base.Add(-time.Hour))
		factory.CreateSubscription(t, uid, "sub_canceled", models.StatusCanceled, base)

		sub, err := storage.GetLatestSubscription(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, "sub_active", sub.StripeSubscriptionID)
	})

	t.Run("без активных берется самая свежая", func(t *testing.T) {
		uid := factory.CreateUser(t, "fresh@example.com", models.AccessFree, "")
		factory.CreateSubscription(t, uid, "sub_older", models.StatusCanceled, base.Add(-time.Hour))
		factory.CreateSubscription(t, uid, "sub_newer", models.StatusPastDue, base)

		sub, err := storage.GetLatestSubscription(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, "sub_newer", sub.StripeSubscriptionID)
	})

	t.Run("нет подписок", func(t *testing.T) {
		uid := factory.CreateUser(t, "empty@example.com", models.AccessFree, "")

		_, err := storage.GetLatestSubscription(ctx, uid)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestListSubscriptionStatuses(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	uid := factory.CreateUser(t, "list@example.com", models.AccessFree, "")
	factory.CreateSubscription(t, uid, "sub_list_1", models.StatusCanceled, base.Add(-time.Hour))
	factory.CreateSubscription(t, uid, "sub_list_2", models.StatusActive, base)

	statuses, err := storage.ListSubscriptionStatuses(ctx, uid)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.StatusCanceled, models.StatusActive}, statuses)

	statuses, err = storage.ListSubscriptionStatuses(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestAuditLog(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, storage.CreateAuditEntry(ctx, models.AuditEntry{
		EventType: "user_login",
		Source:    models.AuditSourceAuth,
		RequestID: "req-1",
		Status:    models.AuditStatusSuccess,
	}))
	require.NoError(t, storage.CreateAuditEntry(ctx, models.AuditEntry{
		EventType: "user_login",
		Source:    models.AuditSourceAuth,
		RequestID: "req-2",
		Status:    models.AuditStatusSuccess,
	}))

	count, err := storage.CountAuditEntries(ctx, "user_login")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = storage.CountAuditEntries(ctx, "unknown_event")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
