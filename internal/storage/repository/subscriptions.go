package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/models"
	"github.com/magabrotheeeer/access-gate/internal/services/access"
)

// ApplySubscriptionEvent атомарно применяет событие вебхука к хранилищу:
// блокирует строку подписки по внешнему идентификатору, сравнивает временные
// метки (применяется только событие новее последнего применённого), делает
// upsert строки, пересчитывает уровень доступа владельца и пишет запись
// аудита. Вся последовательность выполняется в одной транзакции, поэтому
// конкурентные доставки событий для одной подписки сериализуются. Для ещё
// не существующей строки сериализацию обеспечивает условие на метке события
// внутри самого upsert.
//
// Более старое событие не является ошибкой: возвращается результат
// skipped_stale, запись аудита создаётся всё равно.
func (s *Storage) ApplySubscriptionEvent(ctx context.Context, ev models.SubscriptionEvent) (*models.ApplyResult, error) {
	const op = "storage.ApplySubscriptionEvent"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	userUID, oldLevel, err := findOwner(ctx, tx, ev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var lastEventAt sql.NullTime
	query := `SELECT last_event_at FROM subscriptions
			  WHERE stripe_subscription_id = $1
			  FOR UPDATE`
	err = tx.QueryRowContext(ctx, query, ev.SubscriptionID).Scan(&lastEventAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if lastEventAt.Valid && !ev.CreatedAt.After(lastEventAt.Time) {
		result, err := skipStale(ctx, tx, ev, userUID, oldLevel, lastEventAt.Time)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return result, nil
	}

	// FOR UPDATE по отсутствующей строке ничего не блокирует, поэтому
	// сравнение меток повторяется в самом upsert: при конкурентной первой
	// доставке более старое событие увидит ноль затронутых строк.
	query = `INSERT INTO subscriptions (user_uid, stripe_subscription_id, stripe_customer_id,
			     plan, status, current_period_start, current_period_end, last_event_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (stripe_subscription_id) DO UPDATE
			 SET status = EXCLUDED.status,
			     plan = EXCLUDED.plan,
			     stripe_customer_id = EXCLUDED.stripe_customer_id,
			     current_period_start = EXCLUDED.current_period_start,
			     current_period_end = EXCLUDED.current_period_end,
			     last_event_at = EXCLUDED.last_event_at,
			     updated_at = NOW()
			 WHERE subscriptions.last_event_at < EXCLUDED.last_event_at`
	res, err := tx.ExecContext(ctx, query,
		userUID, ev.SubscriptionID, ev.CustomerID, ev.Plan, ev.Status,
		ev.CurrentPeriodStart, ev.CurrentPeriodEnd, ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		query = `SELECT last_event_at FROM subscriptions WHERE stripe_subscription_id = $1`
		if err = tx.QueryRowContext(ctx, query, ev.SubscriptionID).Scan(&lastEventAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result, err := skipStale(ctx, tx, ev, userUID, oldLevel, lastEventAt.Time)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return result, nil
	}

	newLevel, err := recomputeAccess(ctx, tx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = insertAudit(ctx, tx, models.AuditEntry{
		UserUID:   userUID,
		EventType: ev.EventType,
		Source:    models.AuditSourceStripe,
		RequestID: ev.RequestID,
		Status:    models.AuditStatusApplied,
		Details:   appliedDetails(ev, oldLevel, newLevel),
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.ApplyResult{
		Outcome:      models.OutcomeApplied,
		UserUID:      userUID,
		OldLevel:     oldLevel,
		NewLevel:     newLevel,
		LevelChanged: oldLevel != newLevel,
	}, nil
}

// RecomputeAccessLevel пересчитывает и сохраняет уровень доступа пользователя
// по его подпискам. Используется операцией сверки /access/reconcile.
func (s *Storage) RecomputeAccessLevel(ctx context.Context, userUID string) (old, updated string, err error) {
	const op = "storage.RecomputeAccessLevel"
	select {
	case <-ctx.Done():
		return "", "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT access_level FROM users WHERE uid = $1 FOR UPDATE`
	if err = tx.QueryRowContext(ctx, query, userUID).Scan(&old); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		}
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	updated, err = recomputeAccess(ctx, tx, userUID)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return old, updated, nil
}

// GetLatestSubscription возвращает актуальную подписку пользователя для
// сводки статуса: активную, если есть, иначе с самым свежим событием.
// Возвращает apperr.ErrNotFound, если подписок нет.
func (s *Storage) GetLatestSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetLatestSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, stripe_subscription_id, stripe_customer_id, plan, status,
			      current_period_start, current_period_end, last_event_at, created_at, updated_at
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY (status = 'active') DESC, last_event_at DESC
			  LIMIT 1`
	sub := &models.Subscription{}
	row := s.DB.QueryRowContext(ctx, query, userUID)

	var customerID, plan sql.NullString
	var periodStart, periodEnd sql.NullTime
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.StripeSubscriptionID, &customerID,
		&plan, &sub.Status, &periodStart, &periodEnd, &sub.LastEventAt,
		&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub.StripeCustomerID = customerID.String
	sub.Plan = plan.String
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	return sub, nil
}

// ListSubscriptionStatuses возвращает статусы всех подписок пользователя.
func (s *Storage) ListSubscriptionStatuses(ctx context.Context, userUID string) ([]string, error) {
	const op = "storage.ListSubscriptionStatuses"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	return listStatuses(ctx, s.DB, userUID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// skipStale пишет запись аудита об устаревшем событии и коммитит транзакцию.
// Состояние подписки и уровень доступа не меняются.
func skipStale(ctx context.Context, tx *sql.Tx, ev models.SubscriptionEvent,
	userUID, oldLevel string, lastApplied time.Time) (*models.ApplyResult, error) {
	if err := insertAudit(ctx, tx, models.AuditEntry{
		UserUID:   userUID,
		EventType: ev.EventType,
		Source:    models.AuditSourceStripe,
		RequestID: ev.RequestID,
		Status:    models.AuditStatusSkippedStale,
		Details:   staleDetails(ev, lastApplied),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &models.ApplyResult{
		Outcome:  models.OutcomeSkippedStale,
		UserUID:  userUID,
		OldLevel: oldLevel,
		NewLevel: oldLevel,
	}, nil
}

// findOwner определяет владельца события: сначала по идентификатору клиента
// биллинга, затем по user_uid из metadata события.
func findOwner(ctx context.Context, q querier, ev models.SubscriptionEvent) (userUID, accessLevel string, err error) {
	query := `SELECT uid, access_level FROM users WHERE stripe_customer_id = $1`
	err = q.QueryRowContext(ctx, query, ev.CustomerID).Scan(&userUID, &accessLevel)
	if err == nil {
		return userUID, accessLevel, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", "", err
	}
	if ev.UserUID == "" {
		return "", "", apperr.ErrNotFound
	}

	query = `SELECT uid, access_level FROM users WHERE uid = $1`
	err = q.QueryRowContext(ctx, query, ev.UserUID).Scan(&userUID, &accessLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", apperr.ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return userUID, accessLevel, nil
}

// recomputeAccess пересчитывает уровень доступа пользователя из его подписок
// и сохраняет его. Уровень никогда не выставляется напрямую, только этой функцией.
func recomputeAccess(ctx context.Context, q querier, userUID string) (string, error) {
	statuses, err := listStatuses(ctx, q, userUID)
	if err != nil {
		return "", err
	}
	level := access.Resolve(statuses)

	query := `UPDATE users
			  SET access_level = $1,
			      updated_at = NOW()
			  WHERE uid = $2 AND access_level <> $1`
	if _, err = q.ExecContext(ctx, query, level, userUID); err != nil {
		return "", err
	}
	return level, nil
}

func listStatuses(ctx context.Context, q querier, userUID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT status FROM subscriptions WHERE user_uid = $1`, userUID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var statuses []string
	for rows.Next() {
		var status string
		if err = rows.Scan(&status); err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func staleDetails(ev models.SubscriptionEvent, lastApplied time.Time) string {
	return fmt.Sprintf("event %s created at %d superseded by state from %d",
		ev.EventID, ev.CreatedAt.Unix(), lastApplied.Unix())
}

func appliedDetails(ev models.SubscriptionEvent, oldLevel, newLevel string) string {
	return fmt.Sprintf("event %s: subscription %s -> %s, access %s -> %s",
		ev.EventID, ev.SubscriptionID, ev.Status, oldLevel, newLevel)
}
