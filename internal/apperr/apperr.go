// Package apperr определяет таксономию ошибок сервиса со стабильными
// машинными кодами (kind), которые попадают в JSON-ответы и записи аудита.
package apperr

import (
	"errors"
	"net/http"
)

// Kind — стабильный машинный код ошибки.
type Kind string

// Коды ошибок внешнего API.
const (
	KindInvalidSignature    Kind = "invalid_signature"
	KindUnauthenticated     Kind = "unauthenticated"
	KindNotFound            Kind = "not_found"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindConflict            Kind = "conflict"
	KindBadRequest          Kind = "bad_request"
	KindInternal            Kind = "internal"
)

// Сигнальные ошибки для сравнения через errors.Is.
var (
	ErrInvalidSignature    = &Error{kind: KindInvalidSignature, msg: "invalid webhook signature"}
	ErrUnauthenticated     = &Error{kind: KindUnauthenticated, msg: "unauthenticated"}
	ErrNotFound            = &Error{kind: KindNotFound, msg: "not found"}
	ErrUpstreamUnavailable = &Error{kind: KindUpstreamUnavailable, msg: "upstream unavailable"}
	ErrConflict            = &Error{kind: KindConflict, msg: "conflict"}
)

// Error — ошибка с машинным кодом и необязательной причиной.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New создаёт ошибку с указанным кодом и сообщением.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap оборачивает причину err в ошибку с указанным кодом.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Is сравнивает ошибки по коду, чтобы errors.Is(err, ErrNotFound)
// срабатывал для любой ошибки с kind=not_found.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.kind == t.kind
}

// Kind возвращает машинный код ошибки.
func (e *Error) Kind() Kind { return e.kind }

// KindOf возвращает машинный код произвольной ошибки,
// KindInternal — если код не задан.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// HTTPStatus сопоставляет код ошибки с HTTP-статусом.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidSignature, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
