// Package stripesig проверяет подпись вебхуков биллинга в схеме
// Stripe-Signature: заголовок вида "t=<unix>,v1=<hex>", где v1 —
// HMAC-SHA256 от строки "<unix>.<сырое тело>". Подпись считается по
// сырым байтам тела до любого парсинга, поэтому повтор валидной подписи
// над другими байтами не проходит проверку.
package stripesig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ошибки разбора и проверки подписи.
var (
	ErrMissingHeader = errors.New("missing signature header")
	ErrBadHeader     = errors.New("malformed signature header")
	ErrNoMatch       = errors.New("no matching v1 signature")
	ErrTooOld        = errors.New("signature timestamp outside tolerance")
)

// DefaultTolerance — допустимый возраст подписи.
const DefaultTolerance = 5 * time.Minute

// Sign возвращает значение заголовка Stripe-Signature для body,
// подписанного secret в момент at. Используется провайдером и тестами.
func Sign(secret string, body []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, computeV1(secret, ts, body))
}

// Verify проверяет заголовок header над сырыми байтами body.
// now передаётся явно, чтобы проверка была детерминированной в тестах.
func Verify(secret string, body []byte, header string, now time.Time, tolerance time.Duration) error {
	if header == "" {
		return ErrMissingHeader
	}

	var ts string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return ErrBadHeader
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if ts == "" || len(candidates) == 0 {
		return ErrBadHeader
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadHeader
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return ErrTooOld
		}
	}

	expected := computeV1(secret, ts, body)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return ErrNoMatch
}

func computeV1(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
