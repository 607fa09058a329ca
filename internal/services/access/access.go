package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/models"
)

// cacheTTL — время жизни закешированного статуса доступа. Кеш дополнительно
// инвалидируется при применении событий вебхука.
const cacheTTL = 5 * time.Minute

// CacheKey возвращает ключ кеша статуса доступа пользователя.
func CacheKey(userUID string) string {
	return fmt.Sprintf("access:%s", userUID)
}

// Repository определяет методы хранилища для чтения и пересчёта доступа.
type Repository interface {
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	// GetLatestSubscription возвращает актуальную подписку пользователя.
	GetLatestSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
	// RecomputeAccessLevel пересчитывает и сохраняет уровень доступа.
	RecomputeAccessLevel(ctx context.Context, userUID string) (old, updated string, err error)
	// CreateAuditEntry пишет запись аудита.
	CreateAuditEntry(ctx context.Context, entry models.AuditEntry) error
}

// Cache описывает методы для кэширования статуса доступа.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Status — статус доступа пользователя для внешнего API.
type Status struct {
	UserUID      string                      `json:"user_uid"`
	AccessLevel  string                      `json:"access_level"`
	Subscription *models.SubscriptionSummary `json:"subscription"`
}

// Service реализует чтение статуса доступа и операцию сверки.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// NewService создает новый Service.
func NewService(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetStatus возвращает уровень доступа пользователя и сводку подписки,
// используя кеш или хранилище. Отсутствие подписки не является ошибкой:
// в сводке будет null.
func (s *Service) GetStatus(ctx context.Context, userUID string) (*Status, error) {
	cacheKey := CacheKey(userUID)
	var cached Status
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read access cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	if found {
		return &cached, nil
	}

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		UserUID:     user.UID,
		AccessLevel: user.AccessLevel,
	}
	sub, err := s.repo.GetLatestSubscription(ctx, userUID)
	switch {
	case err == nil:
		status.Subscription = sub.Summary()
	case errors.Is(err, apperr.ErrNotFound):
		// Пользователь без подписок: access_level free, сводка null.
	default:
		return nil, err
	}

	if err := s.cache.Set(cacheKey, status, cacheTTL); err != nil {
		s.log.Warn("failed to cache access status", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return status, nil
}

// Reconcile пересчитывает уровень доступа пользователя из его подписок и
// сохраняет результат. Операция идемпотентна и доступна по требованию для
// устранения расхождений.
func (s *Service) Reconcile(ctx context.Context, userUID, requestID string) (*Status, error) {
	old, updated, err := s.repo.RecomputeAccessLevel(ctx, userUID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(CacheKey(userUID)); err != nil {
		s.log.Warn("failed to invalidate access cache", slog.Any("err", err))
	}
	if err := s.repo.CreateAuditEntry(ctx, models.AuditEntry{
		UserUID:   userUID,
		EventType: "access_reconcile",
		Source:    models.AuditSourceAccess,
		RequestID: requestID,
		Status:    models.AuditStatusSuccess,
		Details:   fmt.Sprintf("access %s -> %s", old, updated),
	}); err != nil {
		s.log.Error("failed to write audit entry", slog.Any("err", err))
	}

	s.log.Info("access level reconciled",
		slog.String("user_uid", userUID),
		slog.String("old", old),
		slog.String("new", updated))
	return s.GetStatus(ctx, userUID)
}
