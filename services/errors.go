package services

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across services. Controllers map these onto
// HTTP status codes; services wrap them with %w so the chain stays
// inspectable via errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")
)

// CooldownActiveError is returned when a user searches again before the
// cooldown window elapsed. RetryAfter is how long until the next attempt
// is accepted.
type CooldownActiveError struct {
	RetryAfter time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("search cooldown active, retry in %s", e.RetryAfter.Round(time.Second))
}

// IsCooldownActive extracts a CooldownActiveError from err's chain.
func IsCooldownActive(err error) (*CooldownActiveError, bool) {
	var ce *CooldownActiveError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
