package queue

import "errors"

var (
	ErrBusy             = errors.New("another action is in progress")
	ErrLoadStalled      = errors.New("queue read did not finish before the fallback timer")
	ErrCustomerNotFound = errors.New("customer not found in the waiting queue")
	ErrPendingEntry     = errors.New("customer is not confirmed by the sheet yet")
	ErrNoCheckout       = errors.New("no checkout in progress")
	ErrNoProducts       = errors.New("select at least one service")
	ErrProductNotFound  = errors.New("service not found in the price list")
	ErrInvalidPayment   = errors.New("payment method must be Cash or Card")
	ErrNoSkipTarget     = errors.New("no customer selected to skip")
)

// ValidationError is a client-side rejection; nothing was sent to the sheet.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
