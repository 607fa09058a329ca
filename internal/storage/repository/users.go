package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/models"
)

// CreateUser сохраняет нового пользователя в базу данных и возвращает его UID.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO users (email, access_level)
			  VALUES ($1, $2)
			  ON CONFLICT (email) DO NOTHING
			  RETURNING uid;`
	err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.AccessLevel).Scan(&newUID)
	if errors.Is(err, sql.ErrNoRows) {
		// Конкурентный вход с тем же email уже создал запись.
		existing, err := s.GetUserByEmail(ctx, user.Email)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return existing.UID, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUserByEmail возвращает пользователя по его email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	return s.getUser(ctx, op, `WHERE email = $1`, email)
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	return s.getUser(ctx, op, `WHERE uid = $1`, userUID)
}

// GetUserByStripeCustomerID возвращает пользователя по идентификатору клиента в биллинге.
func (s *Storage) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	const op = "storage.GetUserByStripeCustomerID"
	return s.getUser(ctx, op, `WHERE stripe_customer_id = $1`, customerID)
}

func (s *Storage) getUser(ctx context.Context, op, where string, arg any) (*models.User, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, email, stripe_customer_id, discord_user_id, access_level,
			      created_at, updated_at
			  FROM users ` + where
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, arg)

	var stripeCustomerID, discordUserID sql.NullString
	if err := row.Scan(&u.UID, &u.Email, &stripeCustomerID, &discordUserID,
		&u.AccessLevel, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u.StripeCustomerID = stripeCustomerID.String
	u.DiscordUserID = discordUserID.String
	return u, nil
}

// SetStripeCustomerID привязывает идентификатор клиента биллинга к пользователю.
func (s *Storage) SetStripeCustomerID(ctx context.Context, userUID, customerID string) error {
	const op = "storage.SetStripeCustomerID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET stripe_customer_id = $1,
			      updated_at = NOW()
			  WHERE uid = $2`
	res, err := s.DB.ExecContext(ctx, query, customerID, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return nil
}
