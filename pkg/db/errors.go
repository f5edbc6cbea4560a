package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsDuplicate reports whether err is a unique constraint violation. Dialects
// with TranslateError return gorm.ErrDuplicatedKey; the string checks cover
// raw driver errors.
func IsDuplicate(err error) bool {
	return isDuplicate(err)
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

// IsCheckViolation reports whether err comes from a CHECK constraint.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "check constraint")
}
