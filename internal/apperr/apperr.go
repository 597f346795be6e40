// Package apperr описывает таксономию ошибок клиента витрины.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthRequired возвращается, если операции нужны учётные данные, а их нет.
	ErrAuthRequired = errors.New("authentication required")
	// ErrInvalidArgument возвращается при некорректных входных данных до любого ввода-вывода.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidStatus возвращается при неизвестном статусе заказа.
	ErrInvalidStatus = fmt.Errorf("%w: invalid order status", ErrInvalidArgument)
	// ErrNotFound соответствует ответу 404 удалённого хранилища или отсутствующей строке корзины.
	ErrNotFound = errors.New("not found")
	// ErrForbidden соответствует ответу 403 удалённого хранилища.
	ErrForbidden = errors.New("forbidden")
	// ErrClientError соответствует прочим ответам 4xx.
	ErrClientError = errors.New("remote rejected request")
	// ErrRemoteUnavailable возвращается при сетевой ошибке или ответе 5xx.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrCorruptLocalState возвращается, если локальное хранилище гостя содержит нечитаемые данные.
	ErrCorruptLocalState = errors.New("corrupt local state")
	// ErrStorageUnavailable возвращается при недоступности локального хранилища.
	ErrStorageUnavailable = errors.New("local storage unavailable")
)

// RemoteError описывает неуспешный ответ удалённого хранилища.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("remote status %d: %s: %v", e.Status, e.Message, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// FromStatus строит RemoteError по HTTP-статусу ответа.
func FromStatus(status int, message string) *RemoteError {
	return &RemoteError{
		Status:  status,
		Message: message,
		Err:     classify(status),
	}
}

func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrAuthRequired
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 400 && status < 500:
		return ErrClientError
	default:
		return ErrRemoteUnavailable
	}
}

// Unavailable оборачивает транспортную ошибку в ErrRemoteUnavailable, сохраняя исходную цепочку.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
}

// HTTPStatus возвращает код ответа консоли для ошибки.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrClientError):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRemoteUnavailable), errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
