package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vogiaan1904/consultroom/internal/models"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrCapacityBelowOccupancy = errors.New("capacity below current occupancy")
	ErrSelfTransfer           = errors.New("transfer to the same client")
)

type ConsultantRepository interface {
	// Upsert writes the profile fields. Presence and occupancy of an existing consultant are kept.
	Upsert(ctx context.Context, c *models.Consultant) (*models.Consultant, error)
	Get(ctx context.Context, consultantID string) (*models.Consultant, error)
	List(ctx context.Context) ([]*models.Consultant, error)
	ListBySpecialty(ctx context.Context, specialty string) ([]*models.Consultant, error)
	// TryReserve increments occupancy iff the consultant is present and below capacity.
	TryReserve(ctx context.Context, consultantID string) (bool, error)
	// Release decrements occupancy with a floor of zero and returns the new value.
	Release(ctx context.Context, consultantID string) (int, error)
	SetPresence(ctx context.Context, consultantID string, present bool) (*models.Consultant, error)
}

type DebitResult struct {
	Applied    bool
	FromBonus  models.Money
	FromNormal models.Money
	Balance    models.CreditBalance
}

type PurchaseResult struct {
	// Applied is false when the purchase id was already applied.
	Applied bool
	Balance models.CreditBalance
}

type TransferResult struct {
	Applied bool
	From    models.CreditBalance
	To      models.CreditBalance
}

type BalanceRepository interface {
	// Get returns a zero balance for unknown clients.
	Get(ctx context.Context, clientID string) (models.CreditBalance, error)
	// Debit takes bonus first, then normal. When the total is short nothing changes and Applied is false.
	Debit(ctx context.Context, clientID string, amount models.Money) (DebitResult, error)
	Credit(ctx context.Context, clientID string, amount models.Money, kind models.CreditKind) (models.CreditBalance, error)
	// ApplyPurchase credits normal and bonus in one step, at most once per purchaseID.
	ApplyPurchase(ctx context.Context, clientID, purchaseID string, normal, bonus models.Money) (PurchaseResult, error)
	// Transfer moves normal credits between two clients. A short sender leaves both untouched.
	Transfer(ctx context.Context, fromClientID, toClientID string, amount models.Money) (TransferResult, error)
	AppendEntry(ctx context.Context, e *models.LedgerEntry) error
	ListEntries(ctx context.Context, clientID string, limit int) ([]*models.LedgerEntry, error)
}

// EnqueueResult reports the stored entry. Created is false when the client already waited on that target.
type EnqueueResult struct {
	Entry   *models.QueueEntry
	Created bool
}

type QueueRepository interface {
	Enqueue(ctx context.Context, e *models.QueueEntry) (EnqueueResult, error)
	Get(ctx context.Context, requestID string) (*models.QueueEntry, error)
	// Remove returns true only for the caller that actually removed the entry.
	Remove(ctx context.Context, requestID string) (bool, error)
	List(ctx context.Context, target models.QueueTarget, limit int) ([]*models.QueueEntry, error)
	Length(ctx context.Context, target models.QueueTarget) (int64, error)
	Targets(ctx context.Context) ([]models.QueueTarget, error)
	SaveResolution(ctx context.Context, r *models.QueueResolution, ttl time.Duration) error
	GetResolution(ctx context.Context, requestID string) (*models.QueueResolution, error)
}

type SessionRepository interface {
	// ClaimActivePair marks sessionID as the active session for the pair. False if another holds it.
	ClaimActivePair(ctx context.Context, consultantID, clientID, sessionID string) (bool, error)
	// ReleaseActivePair drops the pair claim if sessionID still holds it.
	ReleaseActivePair(ctx context.Context, consultantID, clientID, sessionID string) error
	// Save stores the session. A terminal session drops its active pair claim.
	Save(ctx context.Context, s *models.ConsultationSession) error
	Get(ctx context.Context, sessionID string) (*models.ConsultationSession, error)
	FindActive(ctx context.Context, consultantID, clientID string) (*models.ConsultationSession, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]*models.ConsultationSession, error)
	ListByConsultant(ctx context.Context, consultantID string, limit int) ([]*models.ConsultationSession, error)
	ListActive(ctx context.Context) ([]*models.ConsultationSession, error)
}
