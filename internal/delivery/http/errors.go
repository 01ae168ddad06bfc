package http

import (
	"errors"
	"net/http"

	"github.com/vogiaan1904/consultroom/internal/service"
	pkgErrors "github.com/vogiaan1904/consultroom/pkg/errors"
)

var (
	errInvalidBody       = pkgErrors.NewHTTPError(http.StatusBadRequest, 40001, "Invalid request body")
	errValidationFailed  = pkgErrors.NewHTTPError(http.StatusBadRequest, 40002, "Validation failed")
	errInvalidAmount     = pkgErrors.NewHTTPError(http.StatusBadRequest, 40003, "Amount must be positive")
	errInvalidRoomToken  = pkgErrors.NewHTTPError(http.StatusUnauthorized, 40101, "Invalid room token")
	errRoomTokenExpired  = pkgErrors.NewHTTPError(http.StatusUnauthorized, 40102, "Room token expired")
	errInsufficientFunds = pkgErrors.NewHTTPError(http.StatusPaymentRequired, 40201, "Insufficient funds")

	errConsultantNotFound = pkgErrors.NewHTTPError(http.StatusNotFound, 40401, "Consultant not found")
	errSessionNotFound    = pkgErrors.NewHTTPError(http.StatusNotFound, 40402, "Session not found")
	errQueueEntryNotFound = pkgErrors.NewHTTPError(http.StatusNotFound, 40403, "Queue entry not found")

	errInvalidCapacity      = pkgErrors.NewHTTPError(http.StatusConflict, 40901, "Capacity below current occupancy")
	errSessionAlreadyActive = pkgErrors.NewHTTPError(http.StatusConflict, 40902, "Session already active")
	errInvalidTransition    = pkgErrors.NewHTTPError(http.StatusConflict, 40903, "Invalid session state transition")

	errShuttingDown = pkgErrors.NewHTTPError(http.StatusServiceUnavailable, 50301, "Service is shutting down")
)

func mapHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrConsultantNotFound):
		return errConsultantNotFound
	case errors.Is(err, service.ErrSessionNotFound):
		return errSessionNotFound
	case errors.Is(err, service.ErrQueueEntryNotFound):
		return errQueueEntryNotFound
	case errors.Is(err, service.ErrInvalidAmount):
		return errInvalidAmount
	case errors.Is(err, service.ErrInsufficientFunds):
		return errInsufficientFunds
	case errors.Is(err, service.ErrInvalidCapacity):
		return errInvalidCapacity
	case errors.Is(err, service.ErrSessionAlreadyActive):
		return errSessionAlreadyActive
	case errors.Is(err, service.ErrInvalidTransition):
		return errInvalidTransition
	case errors.Is(err, service.ErrRoomTokenExpired):
		return errRoomTokenExpired
	case errors.Is(err, service.ErrInvalidRoomToken):
		return errInvalidRoomToken
	case errors.Is(err, service.ErrShuttingDown):
		return errShuttingDown
	case errors.Is(err, service.ErrInvalidRequest):
		return errValidationFailed
	default:
		return err
	}
}
