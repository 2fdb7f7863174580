package services

import (
	"errors"
	"regexp"

	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/store"
)

// Notifier broadcasts an event to everyone subscribed to an account.
// Implementations must not block.
type Notifier interface {
	Broadcast(accountID int, event string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(int, string, any) {}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// translate classifies a repository error. notFound is the message used when
// the record is missing.
func translate(op, notFound string, err error) error {
	var appErr *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.Conflict("Email is already in use")
	default:
		return apperr.Persistence(op, err)
	}
}
