package validation

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// clockLayout формат времени суток для расписаний бота
const clockLayout = "15:04"

// Validator предоставляет общие функции валидации форм консоли
type Validator struct{}

// NewValidator создает новый Validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRequired проверяет, что строка не пуста после обрезки пробелов
func (v *Validator) ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateID проверяет идентификатор сущности
func (v *Validator) ValidateID(id int64, fieldName string) error {
	if id <= 0 {
		return fmt.Errorf("%s must be selected", fieldName)
	}
	return nil
}

// ValidateURL проверяет корректность URL
func (v *Validator) ValidateURL(target string, allowedSchemes []string) error {
	if target == "" {
		return fmt.Errorf("url is required")
	}

	if strings.ContainsAny(target, " \t\n\r") {
		return fmt.Errorf("URL contains invalid whitespace characters")
	}

	parsedURL, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if len(allowedSchemes) > 0 {
		schemeValid := false
		for _, scheme := range allowedSchemes {
			if parsedURL.Scheme == scheme {
				schemeValid = true
				break
			}
		}
		if !schemeValid {
			return fmt.Errorf("URL must use one of allowed schemes %v, got: %s", allowedSchemes, parsedURL.Scheme)
		}
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("URL must have a valid host")
	}

	return nil
}

// ValidateEnum проверяет значение на соответствие enum
func (v *Validator) ValidateEnum(value string, allowedValues []string, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}

	return fmt.Errorf("invalid %s: %s, allowed values: %v", fieldName, value, allowedValues)
}

// ValidateStringLength проверяет длину строки в символах
func (v *Validator) ValidateStringLength(value, fieldName string, min, max int) error {
	length := len([]rune(value))
	if length < min {
		return fmt.Errorf("%s must be at least %d characters, got: %d", fieldName, min, length)
	}
	if length > max {
		return fmt.Errorf("%s must not exceed %d characters, got: %d", fieldName, max, length)
	}
	return nil
}

// ValidateClock проверяет время суток в формате HH:MM
func (v *Validator) ValidateClock(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(value) != len(clockLayout) {
		return fmt.Errorf("invalid %s: %s, expected HH:MM", fieldName, value)
	}
	if _, err := time.Parse(clockLayout, value); err != nil {
		return fmt.Errorf("invalid %s: %s, expected HH:MM", fieldName, value)
	}
	return nil
}

// ValidateOptionalClock проверяет время суток, если оно задано
func (v *Validator) ValidateOptionalClock(value *string, fieldName string) error {
	if value == nil || *value == "" {
		return nil
	}
	return v.ValidateClock(*value, fieldName)
}

// ValidateWindow проверяет окно времени: обе границы заданы или обе пусты
func (v *Validator) ValidateWindow(start, end *string, fieldName string) error {
	hasStart := start != nil && *start != ""
	hasEnd := end != nil && *end != ""
	if hasStart != hasEnd {
		return fmt.Errorf("%s requires both start and end", fieldName)
	}
	if err := v.ValidateOptionalClock(start, fieldName+" start"); err != nil {
		return err
	}
	return v.ValidateOptionalClock(end, fieldName+" end")
}
