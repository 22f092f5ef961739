package repository

import (
	"errors"
	"fmt"

	"traceability/internal/apperr"

	"gorm.io/gorm"
)

// notFound maps gorm.ErrRecordNotFound onto the engine's NotFoundError and
// wraps everything else with the operation name.
func notFound(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// isDuplicate reports a unique-constraint violation. Requires the connection
// to be opened with gorm.Config{TranslateError: true}.
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// clampPage applies the default paging window used by every list endpoint.
func clampPage(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return (page - 1) * limit, limit
}
