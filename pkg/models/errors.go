package models

import (
	"errors"
	"fmt"
)

// Ошибки активации кодов доступа
var (
	ErrCodeNotFound        = errors.New("код доступа не найден")
	ErrCodeDisabled        = errors.New("код доступа отключен")
	ErrCodeExpired         = errors.New("срок действия кода доступа истек")
	ErrCodeCapacityReached = errors.New("достигнут лимит пользователей кода доступа")
	ErrCodeExists          = errors.New("код доступа уже существует")
)

// Ошибки авторизации квоты
var (
	ErrUserNotFound = errors.New("пользователь не найден")
	ErrNoAccessCode = errors.New("у пользователя нет активированного кода доступа")
)

// QuotaExceededError возвращается, когда остатка квоты недостаточно для запроса.
// Required и Available нужны фронтенду для сообщения пользователю.
type QuotaExceededError struct {
	Required  int
	Available int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("недостаточно квоты: требуется %d, доступно %d", e.Required, e.Available)
}

// IsQuotaExceeded проверяет, является ли ошибка превышением квоты
func IsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
