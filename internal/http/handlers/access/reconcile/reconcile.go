// Package reconcile реализует HTTP-обработчик сверки уровня доступа:
// пересчёт access_level из строк подписок по требованию.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/access-gate/internal/http/response"
	"github.com/magabrotheeeer/access-gate/internal/lib/sl"
	"github.com/magabrotheeeer/access-gate/internal/services/access"
)

// Service описывает интерфейс операции сверки.
type Service interface {
	Reconcile(ctx context.Context, userUID, requestID string) (*access.Status, error)
}

// Handler обрабатывает запросы сверки доступа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Сверка уровня доступа
// @Description Пересчитывает уровень доступа текущего пользователя из подписок и сохраняет его.
// @Tags Access
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} map[string]any "Статус доступа после сверки"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /access/reconcile [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.access.reconcile"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error(apperr.KindUnauthenticated, "unauthorized"))
		return
	}

	status, err := h.service.Reconcile(r.Context(), userUID, middleware.GetReqID(r.Context()))
	if err != nil {
		log.Error("failed to reconcile access level", sl.Err(err))
		if errors.Is(err, apperr.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		render.JSON(w, r, response.FromError(err))
		return
	}

	log.Info("access level reconciled", slog.String("user_uid", userUID))
	render.JSON(w, r, response.OKWithData(status))
}
