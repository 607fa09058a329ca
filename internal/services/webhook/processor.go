// Package webhook реализует обработчик событий вебхука биллинга:
// проверку подписи над сырыми байтами, разбор события и идемпотентное
// применение его к хранилищу подписок.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/lib/sl"
	"github.com/magabrotheeeer/access-gate/internal/lib/stripesig"
	"github.com/magabrotheeeer/access-gate/internal/models"
	"github.com/magabrotheeeer/access-gate/internal/services/access"
)

// Типы событий биллинга, меняющие состояние подписок.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventCheckoutCompleted   = "checkout.session.completed"
)

// Repository описывает методы хранилища, нужные обработчику событий.
type Repository interface {
	ApplySubscriptionEvent(ctx context.Context, ev models.SubscriptionEvent) (*models.ApplyResult, error)
	SetStripeCustomerID(ctx context.Context, userUID, customerID string) error
	CreateAuditEntry(ctx context.Context, entry models.AuditEntry) error
}

// Cache описывает инвалидацию кеша статуса доступа.
type Cache interface {
	Invalidate(key string) error
}

// Publisher публикует сообщения об изменении уровня доступа для внешних
// потребителей. Может быть nil, если брокер не настроен.
type Publisher interface {
	PublishAccessChange(change models.AccessChange) error
}

// Service применяет события вебхука к хранилищу. Секрет подписи фиксируется
// при создании и не перечитывается из окружения.
type Service struct {
	repo          Repository
	cache         Cache
	publisher     Publisher
	log           *slog.Logger
	webhookSecret string
	now           func() time.Time
}

// New создает новый Service. Пустой webhookSecret допустим только если конфиг
// явно разрешил работу без проверки подписи (контролируется при загрузке
// конфига); в этом режиме подпись не проверяется.
func New(repo Repository, cache Cache, publisher Publisher, log *slog.Logger, webhookSecret string) *Service {
	return &Service{
		repo:          repo,
		cache:         cache,
		publisher:     publisher,
		log:           log,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

// Result — итог обработки одного вызова вебхука.
type Result struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Outcome   string `json:"outcome"`
}

// payload повторяет форму события биллинга; разбирается только после
// успешной проверки подписи.
type payload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID                 string            `json:"id"`
			Customer           string            `json:"customer"`
			Status             string            `json:"status"`
			ClientReferenceID  string            `json:"client_reference_id"`
			CurrentPeriodStart int64             `json:"current_period_start"`
			CurrentPeriodEnd   int64             `json:"current_period_end"`
			Metadata           map[string]string `json:"metadata"`
			Plan               struct {
				ID string `json:"id"`
			} `json:"plan"`
			Subscription string `json:"subscription"`
		} `json:"object"`
	} `json:"data"`
}

// Process проверяет подпись над сырыми байтами body, разбирает событие и
// применяет его. Любой исход (applied, skipped_stale, ignored, rejected)
// оставляет ровно одну запись аудита.
func (s *Service) Process(ctx context.Context, body []byte, sigHeader, requestID string) (*Result, error) {
	const op = "services.webhook.Process"
	log := s.log.With(slog.String("op", op), slog.String("request_id", requestID))

	if s.webhookSecret == "" {
		log.Warn("webhook signature verification disabled by config")
	} else if err := stripesig.Verify(s.webhookSecret, body, sigHeader, s.now(), stripesig.DefaultTolerance); err != nil {
		log.Error("webhook signature rejected", sl.Err(err))
		s.audit(ctx, models.AuditEntry{
			EventType: "stripe_webhook",
			Source:    models.AuditSourceStripe,
			RequestID: requestID,
			Status:    models.AuditStatusRejected,
			Details:   "signature verification failed: " + err.Error(),
		})
		return nil, apperr.Wrap(apperr.KindInvalidSignature, "invalid webhook signature", err)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		s.audit(ctx, models.AuditEntry{
			EventType: "stripe_webhook",
			Source:    models.AuditSourceStripe,
			RequestID: requestID,
			Status:    models.AuditStatusRejected,
			Details:   "malformed payload",
		})
		return nil, apperr.Wrap(apperr.KindBadRequest, "malformed webhook payload", err)
	}

	switch p.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return s.applySubscription(ctx, log, p, requestID)
	case EventCheckoutCompleted:
		return s.bindCheckout(ctx, log, p, requestID)
	default:
		// Неизвестные типы подтверждаются и записываются в аудит,
		// но состояния не меняют.
		log.Info("ignored webhook event", slog.String("event", p.Type))
		s.audit(ctx, models.AuditEntry{
			EventType: p.Type,
			Source:    models.AuditSourceStripe,
			RequestID: requestID,
			Status:    models.AuditStatusIgnored,
			Details:   "event " + p.ID + ": unhandled event type",
		})
		return &Result{EventID: p.ID, EventType: p.Type, Outcome: models.OutcomeIgnored}, nil
	}
}

func (s *Service) applySubscription(ctx context.Context, log *slog.Logger, p payload, requestID string) (*Result, error) {
	const op = "services.webhook.applySubscription"

	ev := models.SubscriptionEvent{
		EventID:        p.ID,
		EventType:      p.Type,
		CreatedAt:      time.Unix(p.Created, 0).UTC(),
		SubscriptionID: p.Data.Object.ID,
		CustomerID:     p.Data.Object.Customer,
		Status:         p.Data.Object.Status,
		Plan:           p.Data.Object.Plan.ID,
		UserUID:        p.Data.Object.Metadata["user_uid"],
		RequestID:      requestID,
	}
	if start := p.Data.Object.CurrentPeriodStart; start != 0 {
		t := time.Unix(start, 0).UTC()
		ev.CurrentPeriodStart = &t
	}
	if end := p.Data.Object.CurrentPeriodEnd; end != 0 {
		t := time.Unix(end, 0).UTC()
		ev.CurrentPeriodEnd = &t
	}
	if p.Type == EventSubscriptionDeleted {
		ev.Status = models.StatusCanceled
	}

	result, err := s.repo.ApplySubscriptionEvent(ctx, ev)
	if err != nil {
		log.Error("failed to apply subscription event", sl.Err(err),
			slog.String("subscription_id", ev.SubscriptionID))
		s.audit(ctx, models.AuditEntry{
			EventType: p.Type,
			Source:    models.AuditSourceStripe,
			RequestID: requestID,
			Status:    models.AuditStatusRejected,
			Details:   "event " + p.ID + ": " + err.Error(),
		})
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if result.Outcome == models.OutcomeApplied {
		if err := s.cache.Invalidate(access.CacheKey(result.UserUID)); err != nil {
			log.Warn("failed to invalidate access cache", sl.Err(err))
		}
	}
	if result.LevelChanged && s.publisher != nil {
		change := models.AccessChange{
			UserUID:   result.UserUID,
			OldLevel:  result.OldLevel,
			NewLevel:  result.NewLevel,
			EventType: p.Type,
			ChangedAt: s.now().UTC(),
		}
		if err := s.publisher.PublishAccessChange(change); err != nil {
			log.Warn("failed to publish access change", sl.Err(err))
		}
	}

	log.Info("webhook event processed",
		slog.String("event", p.Type),
		slog.String("outcome", result.Outcome),
		slog.String("user_uid", result.UserUID))
	return &Result{EventID: p.ID, EventType: p.Type, Outcome: result.Outcome}, nil
}

// bindCheckout привязывает идентификатор клиента биллинга к пользователю
// после завершения checkout-сессии. Состояние подписок не меняется: оно
// придёт отдельными событиями подписки.
func (s *Service) bindCheckout(ctx context.Context, log *slog.Logger, p payload, requestID string) (*Result, error) {
	userUID := p.Data.Object.ClientReferenceID
	if userUID == "" {
		userUID = p.Data.Object.Metadata["user_uid"]
	}
	customerID := p.Data.Object.Customer

	if userUID == "" || customerID == "" {
		log.Info("checkout event without user reference, acknowledged",
			slog.String("session_id", p.Data.Object.ID))
		s.audit(ctx, models.AuditEntry{
			EventType: p.Type,
			Source:    models.AuditSourceStripe,
			RequestID: requestID,
			Status:    models.AuditStatusIgnored,
			Details:   "event " + p.ID + ": no user reference on checkout session",
		})
		return &Result{EventID: p.ID, EventType: p.Type, Outcome: models.OutcomeIgnored}, nil
	}

	if err := s.repo.SetStripeCustomerID(ctx, userUID, customerID); err != nil {
		log.Error("failed to bind billing customer", sl.Err(err))
		s.audit(ctx, models.AuditEntry{
			UserUID:   userUID,
			EventType: p.Type,
			Source:    models.AuditSourceStripe,
			RequestID: requestID,
			Status:    models.AuditStatusRejected,
			Details:   "event " + p.ID + ": " + err.Error(),
		})
		return nil, fmt.Errorf("services.webhook.bindCheckout: %w", err)
	}

	s.audit(ctx, models.AuditEntry{
		UserUID:   userUID,
		EventType: p.Type,
		Source:    models.AuditSourceStripe,
		RequestID: requestID,
		Status:    models.AuditStatusApplied,
		Details:   "event " + p.ID + ": bound customer " + customerID,
	})
	return &Result{EventID: p.ID, EventType: p.Type, Outcome: models.OutcomeApplied}, nil
}

func (s *Service) audit(ctx context.Context, entry models.AuditEntry) {
	if err := s.repo.CreateAuditEntry(ctx, entry); err != nil {
		s.log.Error("failed to write audit entry", sl.Err(err),
			slog.String("event_type", entry.EventType))
	}
}
