package store

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout        = errors.New("sheet request timed out")
	ErrUnavailable    = errors.New("sheet endpoint unavailable")
	ErrBadResponse    = errors.New("sheet endpoint returned an unreadable response")
	ErrActionInFlight = errors.New("action already in flight")
	ErrEntryNotFound  = errors.New("journal entry not found")

	ErrRequestIDReused = errors.New("request id already used for a different action")
)

// BackendError is returned when the endpoint answers with a status other than "ok".
type BackendError struct {
	Status  string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sheet backend status %q", e.Status)
	}
	return fmt.Sprintf("sheet backend status %q: %s", e.Status, e.Message)
}

// BackendMessage returns the message carried by a BackendError anywhere in
// err's chain.
func BackendMessage(err error) (string, bool) {
	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Message != "" {
		return backendErr.Message, true
	}
	return "", false
}
