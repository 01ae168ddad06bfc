package grpc

import (
	"errors"

	"github.com/vogiaan1904/consultroom/internal/service"
	pkgErrors "github.com/vogiaan1904/consultroom/pkg/errors"
	"google.golang.org/grpc/codes"
)

var (
	errConsultantNotFound = pkgErrors.NewGRPCError(codes.NotFound, "CSL001", "Consultant not found")
	errSessionNotFound    = pkgErrors.NewGRPCError(codes.NotFound, "CSL002", "Session not found")
	errQueueEntryNotFound = pkgErrors.NewGRPCError(codes.NotFound, "CSL003", "Queue entry not found")

	errInvalidRequest       = pkgErrors.NewGRPCError(codes.InvalidArgument, "CSL004", "Invalid request")
	errInvalidAmount        = pkgErrors.NewGRPCError(codes.InvalidArgument, "CSL005", "Amount must be positive")
	errInsufficientFunds    = pkgErrors.NewGRPCError(codes.FailedPrecondition, "CSL006", "Insufficient funds")
	errInvalidCapacity      = pkgErrors.NewGRPCError(codes.FailedPrecondition, "CSL007", "Capacity below current occupancy")
	errInvalidTransition    = pkgErrors.NewGRPCError(codes.FailedPrecondition, "CSL008", "Invalid session state transition")
	errSessionAlreadyActive = pkgErrors.NewGRPCError(codes.AlreadyExists, "CSL009", "Session already active")

	errInvalidRoomToken = pkgErrors.NewGRPCError(codes.Unauthenticated, "CSL010", "Invalid room token")
	errRoomTokenExpired = pkgErrors.NewGRPCError(codes.Unauthenticated, "CSL011", "Room token expired")

	errShuttingDown = pkgErrors.NewGRPCError(codes.Unavailable, "CSL012", "Service is shutting down")
)

func mapGRPCError(err error) error {
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
	case errors.Is(err, service.ErrInvalidTransition):
		return errInvalidTransition
	case errors.Is(err, service.ErrSessionAlreadyActive):
		return errSessionAlreadyActive
	case errors.Is(err, service.ErrRoomTokenExpired):
		return errRoomTokenExpired
	case errors.Is(err, service.ErrInvalidRoomToken):
		return errInvalidRoomToken
	case errors.Is(err, service.ErrShuttingDown):
		return errShuttingDown
	case errors.Is(err, service.ErrInvalidRequest):
		return errInvalidRequest
	default:
		return err
	}
}
