// Package auth содержит логику бизнес-уровня для входа пользователей
// и проверки JWT. Пароля нет: вход по email создаёт пользователя,
// если он ещё не существует.
package auth

import (
	"context"
	"errors"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/access-gate/internal/models"
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUser сохраняет нового пользователя и возвращает его UID.
	CreateUser(ctx context.Context, user models.User) (string, error)
	// GetUserByEmail возвращает пользователя по email или apperr.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	// CreateAuditEntry пишет запись аудита.
	CreateAuditEntry(ctx context.Context, entry models.AuditEntry) error
}

// Service отвечает за вход и валидацию JWT.
type Service struct {
	users    UserRepository
	jwtMaker jwt.Maker
}

// NewService создает новый экземпляр Service.
func NewService(users UserRepository, jwtMaker jwt.Maker) *Service {
	return &Service{
		users:    users,
		jwtMaker: jwtMaker,
	}
}

// LoginResult — результат входа. Created отмечает ветку "пользователь создан":
// вход по неизвестному email заводит учётную запись с уровнем free.
type LoginResult struct {
	Token   string
	User    *models.User
	Created bool
}

// Login находит пользователя по email или создаёт его и возвращает JWT.
// Обе ветки записываются в аудит разными типами событий.
func (s *Service) Login(ctx context.Context, email, requestID string) (*LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	created := false

	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		newUser := models.User{
			Email:       email,
			AccessLevel: models.AccessFree,
		}
		uid, createErr := s.users.CreateUser(ctx, newUser)
		if createErr != nil {
			return nil, createErr
		}
		user, err = s.users.GetUser(ctx, uid)
		if err != nil {
			return nil, err
		}
		created = true
		_ = s.users.CreateAuditEntry(ctx, models.AuditEntry{
			UserUID:   uid,
			EventType: "user_created",
			Source:    models.AuditSourceAuth,
			RequestID: requestID,
			Status:    models.AuditStatusSuccess,
		})
	default:
		return nil, err
	}

	token, err := s.jwtMaker.GenerateToken(user.Email, user.UID)
	if err != nil {
		return nil, err
	}

	_ = s.users.CreateAuditEntry(ctx, models.AuditEntry{
		UserUID:   user.UID,
		EventType: "user_login",
		Source:    models.AuditSourceAuth,
		RequestID: requestID,
		Status:    models.AuditStatusSuccess,
	})

	return &LoginResult{Token: token, User: user, Created: created}, nil
}

// ValidateToken проверяет JWT и возвращает claims с email и UID пользователя.
// Один и тот же валидный токен всегда разрешается в одного пользователя.
func (s *Service) ValidateToken(_ context.Context, token string) (*jwt.CustomClaims, error) {
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid or expired token", err)
	}
	return claims, nil
}

// GetUser возвращает полную запись пользователя по UID.
func (s *Service) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	return s.users.GetUser(ctx, userUID)
}
