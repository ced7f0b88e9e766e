package service

import (
	"errors"
	"fmt"

	"sarnabroker/internal/repository"

	"gorm.io/gorm"
)

// Error kinds returned by every core operation. Callers match with errors.Is;
// the wrapped message carries the detail.
var (
	ErrNotFound     = errors.New("not found")
	ErrNotOwner     = errors.New("not owner")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation error")

	// ErrForbidden is the same kind as ErrNotOwner.
	ErrForbidden = ErrNotOwner

	// ErrConcurrentUpdate means a competing transaction changed the row
	// first. It is a state error; resubmitting may succeed.
	ErrConcurrentUpdate = fmt.Errorf("%w: modified concurrently, retry", ErrInvalidState)
)

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func invalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notOwner(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotOwner, fmt.Sprintf(format, args...))
}

// conflict maps a failed guarded update to ErrConcurrentUpdate and passes
// anything else through.
func conflict(err error) error {
	if errors.Is(err, repository.ErrConditionFailed) {
		return ErrConcurrentUpdate
	}
	return err
}
