package service

import (
	"context"
	"time"

	"github.com/vogiaan1904/consultroom/internal/models"
)

type LedgerService interface {
	GetBalance(ctx context.Context, clientID string) (models.CreditBalance, error)
	// Debit fails with *InsufficientFundsError, leaving the balance untouched, when the total is short.
	Debit(ctx context.Context, in DebitInput) (DebitOutput, error)
	Credit(ctx context.Context, in CreditInput) (models.CreditBalance, error)
	// Purchase applies a credit purchase at most once per PurchaseID.
	Purchase(ctx context.Context, in PurchaseInput) (PurchaseOutput, error)
	// Transfer moves normal credits between clients. Bonus credits never move.
	Transfer(ctx context.Context, in TransferInput) (TransferOutput, error)
	ListTransactions(ctx context.Context, clientID string, limit int) ([]*models.LedgerEntry, error)
}

type RegistryService interface {
	UpsertConsultant(ctx context.Context, in UpsertConsultantInput) (models.ConsultantSnapshot, error)
	TryReserve(ctx context.Context, consultantID string) (bool, error)
	Release(ctx context.Context, consultantID string) error
	SetPresence(ctx context.Context, consultantID string, online bool) (models.ConsultantSnapshot, error)
	Snapshot(ctx context.Context, consultantID string) (models.ConsultantSnapshot, error)
	ListBySpecialty(ctx context.Context, serviceType string) ([]models.ConsultantSnapshot, error)
	List(ctx context.Context) ([]models.ConsultantSnapshot, error)
}

type MatchingService interface {
	RequestConsultation(ctx context.Context, in RequestConsultationInput) (*RequestConsultationOutput, error)
	// CancelQueueEntry is a no-op for unknown or already resolved requests.
	CancelQueueEntry(ctx context.Context, requestID string) error
	GetQueueStatus(ctx context.Context, requestID string) (*QueueStatusOutput, error)
	OnCapacityFreed(ctx context.Context, consultantID string)
	SetPresence(ctx context.Context, consultantID string, online bool) (models.ConsultantSnapshot, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	DrainAll(ctx context.Context) (int, error)
	Close()
}

type SessionManager interface {
	StartSession(ctx context.Context, in StartSessionInput) (*models.ConsultationSession, error)
	// EndSession accepts client_ended, consultant_ended and disconnected. Ending a terminal session is a no-op.
	EndSession(ctx context.Context, sessionID string, reason models.EndReason) (*models.ConsultationSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.ConsultationSession, error)
	FindActive(ctx context.Context, consultantID, clientID string) (*models.ConsultationSession, error)
	ListClientSessions(ctx context.Context, clientID string, limit int) ([]*models.ConsultationSession, error)
	ClientStats(ctx context.Context, clientID string) (*ClientStatsOutput, error)
	ConsultantStats(ctx context.Context, consultantID string) (*ConsultantStatsOutput, error)
	ValidateRoomToken(ctx context.Context, token string) (*RoomClaims, error)
	SetCapacityFreedHandler(fn func(ctx context.Context, consultantID string))
	RecoverOrphans(ctx context.Context) (int, error)
	ActiveCount() int
	Close(ctx context.Context) error
}

type Broadcaster interface {
	Subscribe(clientID string) (<-chan models.ClientUpdate, func())
	Publish(u models.ClientUpdate)
}
