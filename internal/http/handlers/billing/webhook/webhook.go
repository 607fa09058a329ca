// Package webhook реализует HTTP-обработчик вебхука биллинга. Обработчик
// читает сырое тело и передаёт его сервису вместе с заголовком подписи:
// подпись проверяется над байтами до любого парсинга. Любой обработанный
// исход, включая устаревшее событие, отвечает 200; ошибка подписи — 400.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/http/response"
	"github.com/magabrotheeeer/access-gate/internal/lib/sl"
	webhooksvc "github.com/magabrotheeeer/access-gate/internal/services/webhook"
)

// SignatureHeader — заголовок с подписью вебхука.
const SignatureHeader = "Stripe-Signature"

// Service описывает интерфейс обработчика событий вебхука.
type Service interface {
	Process(ctx context.Context, body []byte, sigHeader, requestID string) (*webhooksvc.Result, error)
}

// Handler обрабатывает HTTP-вызовы вебхука.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Вебхук биллинга
// @Description Принимает подписанные события биллинга и идемпотентно применяет их к состоянию подписок.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Success 200 {object} map[string]any "Событие обработано (включая no-op)"
// @Failure 400 {object} response.ErrorResponse "Ошибка подписи"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	requestID := middleware.GetReqID(r.Context())
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", requestID),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error(apperr.KindBadRequest, "failed to read request body"))
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	result, err := h.service.Process(r.Context(), body, r.Header.Get(SignatureHeader), requestID)
	if err != nil {
		webhookEvents.WithLabelValues("rejected").Inc()
		log.Error("failed to process webhook event", sl.Err(err))
		if errors.Is(err, apperr.ErrInvalidSignature) {
			w.WriteHeader(http.StatusBadRequest)
		} else {
			w.WriteHeader(apperr.HTTPStatus(apperr.KindOf(err)))
		}
		render.JSON(w, r, response.FromError(err))
		return
	}

	webhookEvents.WithLabelValues(result.Outcome).Inc()
	log.Info("webhook processed",
		slog.String("event", result.EventType),
		slog.String("outcome", result.Outcome))
	render.JSON(w, r, response.OKWithData(result))
}
