package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Error представляет кастомную ошибку с дополнительной информацией
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	// Status HTTP статус ответа API, если ошибка пришла с сервера
	Status int   `json:"status,omitempty"`
	Cause  error `json:"-"`
}

// ErrorCode представляет код ошибки
type ErrorCode string

// Определение кодов ошибок
const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrUnavailable    ErrorCode = "UNAVAILABLE"
	ErrSessionExpired ErrorCode = "SESSION_EXPIRED"
)

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Details)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is проверяет, является ли ошибка указанного типа
func (e *Error) Is(target error) bool {
	if targetError, ok := target.(*Error); ok {
		return e.Code == targetError.Code
	}
	return false
}

// New создает новую кастомную ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку в кастомную
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithDetails добавляет детали к ошибке
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Status:  e.Status,
		Cause:   e.Cause,
	}
}

// CodeOf возвращает код ошибки или пустую строку для чужих ошибок
func CodeOf(err error) ErrorCode {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode проверяет код ошибки в цепочке
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// HTTPStatus возвращает соответствующий HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}
	if e.Status != 0 {
		return e.Status
	}

	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrSessionExpired:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus строит ошибку по статусу ответа API
func FromHTTPStatus(status int, details string) *Error {
	var code ErrorCode
	switch {
	case status == http.StatusUnauthorized:
		code = ErrUnauthorized
	case status == http.StatusForbidden:
		code = ErrForbidden
	case status == http.StatusNotFound:
		code = ErrNotFound
	case status == http.StatusConflict:
		code = ErrConflict
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		code = ErrUnavailable
	case status >= 400 && status < 500:
		code = ErrValidation
	default:
		code = ErrInternal
	}

	return &Error{
		Code:    code,
		Message: fmt.Sprintf("api returned status %d", status),
		Details: details,
		Status:  status,
	}
}

// validationIssue элемент списка ошибок валидации API
type validationIssue struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type"`
}

// ParseDetail извлекает поле detail из тела ответа API.
// detail бывает строкой или списком ошибок валидации.
func ParseDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return text
	}

	var issues []validationIssue
	if err := json.Unmarshal(payload.Detail, &issues); err == nil {
		parts := make([]string, 0, len(issues))
		for _, issue := range issues {
			loc := make([]string, 0, len(issue.Loc))
			for _, l := range issue.Loc {
				loc = append(loc, fmt.Sprint(l))
			}
			if len(loc) > 0 {
				parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(loc, "."), issue.Msg))
			} else {
				parts = append(parts, issue.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}

	return string(payload.Detail)
}

// GetUserMessage возвращает пользовательское сообщение об ошибке.
// Детали от сервера показываются как есть.
func (e *Error) GetUserMessage() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return e.Details
	}

	switch e.Code {
	case ErrNotFound:
		return "Ресурс не найден"
	case ErrValidation:
		return "Ошибка валидации данных"
	case ErrUnauthorized:
		return "Не авторизован"
	case ErrForbidden:
		return "Доступ запрещен"
	case ErrConflict:
		return "Конфликт данных (например, дубликат)"
	case ErrUnavailable:
		return "Сервер недоступен, попробуйте еще раз"
	case ErrSessionExpired:
		return "Сессия истекла, выполните вход заново"
	case ErrInternal:
		return "Внутренняя ошибка сервера"
	default:
		return "Произошла ошибка"
	}
}

// UserMessage возвращает пользовательское сообщение для любой ошибки
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.GetUserMessage()
	}
	return err.Error()
}

// Invalid превращает ошибку проверки формы в VALIDATION_ERROR.
// Такие ошибки возникают до обращения к API.
func Invalid(err error) *Error {
	if err == nil {
		return nil
	}
	return New(ErrValidation, "invalid input").WithDetails(err.Error())
}
