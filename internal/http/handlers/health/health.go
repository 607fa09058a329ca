// Package health реализует служебные HTTP-обработчики /health и /version.
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/access-gate/internal/lib/sl"
)

// Pinger проверяет доступность базы данных.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler обрабатывает запросы состояния сервиса.
type Handler struct {
	log     *slog.Logger
	db      Pinger
	env     string
	version string
}

// New создает новый Handler.
func New(log *slog.Logger, db Pinger, env, version string) *Handler {
	return &Handler{log: log, db: db, env: env, version: version}
}

// Health godoc
// @Summary Проверка состояния
// @Tags Core
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.Error("database ping failed", sl.Err(err))
		dbStatus = "error"
	}
	render.JSON(w, r, map[string]string{
		"status": "ok",
		"db":     dbStatus,
	})
}

// Version godoc
// @Summary Версия сервиса
// @Tags Core
// @Produce json
// @Success 200 {object} map[string]string
// @Router /version [get]
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"version":     h.version,
		"environment": h.env,
	})
}
