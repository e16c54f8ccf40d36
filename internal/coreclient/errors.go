// errors.go — классификация ошибок Core API.
// Таксономия: AuthExpired (401/403 — маршрутизируется в SessionGuard),
// StaleReference (404 при мутации — локальное состояние устарело),
// остальное — транзиентные ошибки, показываемые оператору.
package coreclient

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthExpired — учётные данные недействительны или истекли.
	// Никогда не показывается как транзиентная ошибка: приводит
	// к принудительному завершению сессии.
	ErrAuthExpired = errors.New("сессия недействительна или истекла")

	// ErrStaleReference — сервер больше не знает указанный id:
	// файл уже решён другим путём, локальная очередь устарела.
	ErrStaleReference = errors.New("файл уже обработан сервером — очередь устарела")
)

// APIError — транзиентная ошибка Core API (таймаут, 5xx, сеть).
// Detail содержит сообщение сервера, если оно было в ответе.
type APIError struct {
	// StatusCode — HTTP статус-код (0 — сетевая ошибка/таймаут).
	StatusCode int
	// Detail — сообщение из поля detail ответа Core API.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("Core API: статус %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("Core API: статус %d", e.StatusCode)
}

// IsAuthExpired сообщает, относится ли ошибка к классу AuthExpired.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// IsStaleReference сообщает, относится ли ошибка к классу StaleReference.
func IsStaleReference(err error) bool {
	return errors.Is(err, ErrStaleReference)
}
