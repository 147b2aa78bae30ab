package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidState       ErrorCode = "INVALID_STATE"
	ErrCodeGateway            ErrorCode = "GATEWAY_ERROR"
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeVerificationFailed ErrorCode = "PAYMENT_VERIFICATION_FAILED"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
)

// AppError — ошибка бизнес-слоя с кодом и HTTP статусом.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	// Fields перечисляет поля запроса, не прошедшие валидацию.
	Fields []string
	Cause  error
}

func (e *AppError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Fields, ", "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду и сообщению, чтобы errors.Is работал с предопределёнными ошибками.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation создаёт ошибку валидации со списком отсутствующих или некорректных полей.
func Validation(message string, fields ...string) *AppError {
	e := New(ErrCodeValidation, message)
	e.Fields = fields
	return e
}

// InvalidState сообщает о недопустимом переходе состояния.
func InvalidState(message string) *AppError {
	return New(ErrCodeInvalidState, message)
}

// Gateway оборачивает ошибку платёжного провайдера, сохраняя его сообщение.
func Gateway(err error) *AppError {
	msg := "ошибка платёжного шлюза"
	if err != nil {
		msg = fmt.Sprintf("%s: %s", msg, err.Error())
	}
	return Wrap(err, ErrCodeGateway, msg)
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeVerificationFailed:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidState:
		return http.StatusConflict
	case ErrCodeGateway:
		return http.StatusBadGateway
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

func IsForbidden(err error) bool {
	return hasCode(err, ErrCodeForbidden)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func IsInvalidState(err error) bool {
	return hasCode(err, ErrCodeInvalidState)
}

func IsGateway(err error) bool {
	return hasCode(err, ErrCodeGateway)
}

func IsConfiguration(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

var (
	ErrOrderNotFound        = New(ErrCodeNotFound, "заказ не найден")
	ErrPaymentNotFound      = New(ErrCodeNotFound, "платёж не найден")
	ErrPackageNotFound      = New(ErrCodeNotFound, "пакет услуг не найден")
	ErrUserNotFound         = New(ErrCodeNotFound, "пользователь не найден")
	ErrUnauthorized         = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden            = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidCredentials   = New(ErrCodeUnauthorized, "неверные учетные данные")
	ErrAlreadyPaid          = New(ErrCodeInvalidState, "заказ уже оплачен")
	ErrPaidCancelledOrder   = New(ErrCodeInvalidState, "заказ отменён, оплата требует возврата")
	ErrSignatureMismatch    = New(ErrCodeVerificationFailed, "подпись платежа не прошла проверку")
	ErrGatewayNotConfigured = New(ErrCodeConfiguration, "ошибка конфигурации сервера")
)
