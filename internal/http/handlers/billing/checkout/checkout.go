// Package checkout реализует HTTP-обработчик создания checkout-сессии
// подписки в биллинге. Возвращает URL для перенаправления пользователя.
// Ошибка провайдера не ретраится этим слоем и отдаётся вызывающему
// как 502 upstream_unavailable.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/access-gate/internal/http/response"
	"github.com/magabrotheeeer/access-gate/internal/lib/sl"
	"github.com/magabrotheeeer/access-gate/internal/models"
	"github.com/magabrotheeeer/access-gate/internal/paymentprovider"
)

// Request — необязательное тело запроса с переопределением URL возврата.
type Request struct {
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// Provider описывает интерфейс клиента биллинга.
type Provider interface {
	CreateCustomer(ctx context.Context, params paymentprovider.CreateCustomerParams) (*paymentprovider.Customer, error)
	CreateCheckoutSession(ctx context.Context, params paymentprovider.CreateCheckoutSessionParams) (*paymentprovider.CheckoutSession, error)
}

// Repository описывает методы хранилища, нужные обработчику.
type Repository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userUID, customerID string) error
	CreateAuditEntry(ctx context.Context, entry models.AuditEntry) error
}

// Options — настройки checkout-сессии из конфига.
type Options struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Handler обрабатывает создание checkout-сессии.
type Handler struct {
	log      *slog.Logger
	provider Provider
	repo     Repository
	opts     Options
}

// New создает новый Handler.
func New(log *slog.Logger, provider Provider, repo Repository, opts Options) *Handler {
	return &Handler{
		log:      log,
		provider: provider,
		repo:     repo,
		opts:     opts,
	}
}

// ServeHTTP godoc
// @Summary Создать checkout-сессию
// @Description Создает checkout-сессию подписки в биллинге и возвращает URL для перенаправления.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request false "Переопределение URL возврата"
// @Success 200 {object} map[string]any "Созданная сессия"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 502 {object} response.ErrorResponse "Биллинг недоступен"
// @Router /billing/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"
	requestID := middleware.GetReqID(r.Context())
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", requestID),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error(apperr.KindUnauthenticated, "unauthorized"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error(apperr.KindBadRequest, "invalid request body"))
		return
	}
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = h.opts.SuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = h.opts.CancelURL
	}

	user, err := h.repo.GetUser(r.Context(), userUID)
	if err != nil {
		log.Error("failed to get user", sl.Err(err))
		w.WriteHeader(apperr.HTTPStatus(apperr.KindOf(err)))
		render.JSON(w, r, response.FromError(err))
		return
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		customer, err := h.provider.CreateCustomer(r.Context(), paymentprovider.CreateCustomerParams{
			Email:   user.Email,
			UserUID: user.UID,
		})
		if err != nil {
			log.Error("failed to create billing customer", sl.Err(err))
			w.WriteHeader(apperr.HTTPStatus(apperr.KindOf(err)))
			render.JSON(w, r, response.FromError(err))
			return
		}
		if err := h.repo.SetStripeCustomerID(r.Context(), user.UID, customer.ID); err != nil {
			log.Error("failed to bind billing customer", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.FromError(err))
			return
		}
		customerID = customer.ID
	}

	session, err := h.provider.CreateCheckoutSession(r.Context(), paymentprovider.CreateCheckoutSessionParams{
		CustomerID:        customerID,
		PriceID:           h.opts.PriceID,
		SuccessURL:        successURL,
		CancelURL:         cancelURL,
		ClientReferenceID: user.UID,
		UserUID:           user.UID,
	})
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		w.WriteHeader(apperr.HTTPStatus(apperr.KindOf(err)))
		render.JSON(w, r, response.FromError(err))
		return
	}

	if err := h.repo.CreateAuditEntry(r.Context(), models.AuditEntry{
		UserUID:   user.UID,
		EventType: "checkout_session_created",
		Source:    models.AuditSourceBilling,
		RequestID: requestID,
		Status:    models.AuditStatusSuccess,
		Details:   "session " + session.ID,
	}); err != nil {
		log.Error("failed to write audit entry", sl.Err(err))
	}

	log.Info("checkout session created",
		slog.String("user_uid", user.UID),
		slog.String("session_id", session.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"checkout_url": session.URL,
		"session_id":   session.ID,
	}))
}
