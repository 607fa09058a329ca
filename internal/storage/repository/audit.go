package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/access-gate/internal/models"
)

// CreateAuditEntry добавляет запись в журнал аудита. Журнал append-only:
// записи никогда не изменяются и не удаляются.
func (s *Storage) CreateAuditEntry(ctx context.Context, entry models.AuditEntry) error {
	const op = "storage.CreateAuditEntry"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if err := insertAudit(ctx, s.DB, entry); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountAuditEntries возвращает количество записей аудита по типу события.
// Используется в проверках готовности и тестах полноты аудита.
func (s *Storage) CountAuditEntries(ctx context.Context, eventType string) (int, error) {
	const op = "storage.CountAuditEntries"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	query := `SELECT COUNT(*) FROM audit_log WHERE event_type = $1`
	if err := s.DB.QueryRowContext(ctx, query, eventType).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// insertAudit пишет запись аудита через произвольный исполнитель запросов,
// чтобы запись могла входить в транзакцию применения события.
func insertAudit(ctx context.Context, q querier, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	var userUID sql.NullString
	if entry.UserUID != "" {
		userUID = sql.NullString{String: entry.UserUID, Valid: true}
	}

	query := `INSERT INTO audit_log (id, user_uid, event_type, source, request_id, status, details)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := q.ExecContext(ctx, query,
		entry.ID, userUID, entry.EventType, entry.Source,
		entry.RequestID, entry.Status, entry.Details)
	return err
}
