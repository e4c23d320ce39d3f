package datastore

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mriscan/braintumor-go/internal/errors"
)

// ErrNotFound is matched by errors.Is for missing rows.
var ErrNotFound = gorm.ErrRecordNotFound

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError rejects a record before it reaches the database
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// notFoundError wraps gorm.ErrRecordNotFound so both errors.Is and IsNotFound match
func notFoundError(entity string, id any) error {
	return errors.New(fmt.Errorf("%s %v: %w", entity, id, gorm.ErrRecordNotFound)).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("entity", entity).
		Context("id", fmt.Sprintf("%v", id)).
		Build()
}

// conflictError reports a unique constraint violation
func conflictError(err error, operation, field string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryConflict).
		Context("operation", operation).
		Context("field", field).
		Build()
}

// isUniqueViolation recognises duplicate key errors from SQLite and MySQL.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry")
}
