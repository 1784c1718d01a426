package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestValidateRequired(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateRequired("hello", "text"))
	assert.Error(t, v.ValidateRequired("   ", "text"))
	assert.Error(t, v.ValidateRequired("", "text"))
}

func TestValidateID(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateID(1, "owner"))
	assert.EqualError(t, v.ValidateID(0, "owner"), "owner must be selected")
}

func TestValidateURL(t *testing.T) {
	v := NewValidator()
	schemes := []string{"http", "https"}

	assert.NoError(t, v.ValidateURL("http://localhost:8000", schemes))
	assert.Error(t, v.ValidateURL("ftp://host", schemes))
	assert.Error(t, v.ValidateURL("http://", schemes))
	assert.Error(t, v.ValidateURL("http://a b", schemes))
	assert.Error(t, v.ValidateURL("", schemes))
}

func TestValidateEnum(t *testing.T) {
	v := NewValidator()
	statuses := []string{"new", "in_progress", "done"}

	assert.NoError(t, v.ValidateEnum("done", statuses, "status"))
	assert.Error(t, v.ValidateEnum("closed", statuses, "status"))
	assert.Error(t, v.ValidateEnum("", statuses, "status"))
}

func TestValidateStringLength(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateStringLength("привет", "name", 1, 6))
	assert.Error(t, v.ValidateStringLength("", "name", 1, 6))
	assert.Error(t, v.ValidateStringLength("слишком длинно", "name", 1, 6))
}

func TestValidateClock(t *testing.T) {
	v := NewValidator()

	for _, ok := range []string{"00:00", "09:30", "23:59"} {
		assert.NoError(t, v.ValidateClock(ok, "report_time"), ok)
	}
	for _, bad := range []string{"24:00", "9:30", "09:60", "0930", "ab:cd", ""} {
		assert.Error(t, v.ValidateClock(bad, "report_time"), bad)
	}
}

func TestValidateWindow(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateWindow(nil, nil, "pause"))
	assert.NoError(t, v.ValidateWindow(strPtr(""), strPtr(""), "pause"))
	assert.NoError(t, v.ValidateWindow(strPtr("22:00"), strPtr("08:00"), "pause"))
	assert.Error(t, v.ValidateWindow(strPtr("22:00"), nil, "pause"))
	assert.Error(t, v.ValidateWindow(nil, strPtr("08:00"), "pause"))
	assert.Error(t, v.ValidateWindow(strPtr("25:00"), strPtr("08:00"), "pause"))
}
