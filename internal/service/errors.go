package service

import (
	"errors"
	"fmt"

	"github.com/vogiaan1904/consultroom/internal/models"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConsultantNotFound = fmt.Errorf("consultant %w", ErrNotFound)
	ErrSessionNotFound    = fmt.Errorf("session %w", ErrNotFound)
	ErrQueueEntryNotFound = fmt.Errorf("queue entry %w", ErrNotFound)

	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoMatch              = errors.New("no eligible consultant")
	ErrBillingError         = errors.New("billing error")
	ErrRaceLost             = errors.New("admission race lost")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidCapacity      = errors.New("capacity below current occupancy")
	ErrInvalidTransition    = models.ErrInvalidTransition
	ErrSessionAlreadyActive = errors.New("session already active for this consultant and client")
	ErrShuttingDown         = errors.New("service is shutting down")
	ErrInvalidRequest       = errors.New("invalid request")

	ErrInvalidRoomToken = errors.New("invalid room token")
	ErrRoomTokenExpired = errors.New("room token expired")
)

// InsufficientFundsError matches ErrInsufficientFunds and carries what was available
// so a caller can settle a partial final minute.
type InsufficientFundsError struct {
	ClientID  string
	Requested models.Money
	Available models.Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for client %s: requested %s, available %s", e.ClientID, e.Requested, e.Available)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

func (e *InsufficientFundsError) Shortfall() models.Money {
	return e.Requested - e.Available
}

// ValidationError wraps validator output and matches ErrInvalidRequest.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrInvalidRequest, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidRequest, e.Err}
}

type RejectReason string

const (
	RejectNoMatch           RejectReason = "no_match"
	RejectConsultantOffline RejectReason = "consultant_offline"
	RejectPriceAboveLimit   RejectReason = "price_above_limit"
	RejectMethodUnsupported RejectReason = "method_unsupported"
	RejectInsufficientFunds RejectReason = "insufficient_funds"
	RejectAlreadyInSession  RejectReason = "already_in_session"
)
