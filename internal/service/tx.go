package service

import (
	"context"
	"time"

	"traceability/internal/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Scope carries the tenant and actor a call runs for. The engine trusts it;
// it is filled from JWT claims by the HTTP layer or from flags by the CLI.
type Scope struct {
	OrganizationID uuid.UUID
	PlantID        *uuid.UUID
	UserID         *uuid.UUID
}

func (s Scope) validate() error {
	if s.OrganizationID == uuid.Nil {
		return apperr.Validation("organization_id is required")
	}
	return nil
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// RetryOnConflict runs fn up to attempts times while it fails with a
// ConcurrencyConflictError, backing off a little between attempts.
// Any other error, or success, returns immediately.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil || !apperr.IsRetryable(err) {
			return err
		}
		if i == attempts {
			break
		}
		log.Warn().Int("attempt", i).Int("max_attempts", attempts).Msg("concurrency conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i*10) * time.Millisecond):
		}
	}
	return err
}

// now is replaced in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }

func ptr[T any](v T) *T { return &v }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// parseOptionalUUID parses an optional id field of a request.
func parseOptionalUUID(field string, s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, apperr.Validation("%s is not a valid uuid", field)
	}
	return &id, nil
}

func parseUUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperr.Validation("%s is not a valid uuid", field)
	}
	return id, nil
}
