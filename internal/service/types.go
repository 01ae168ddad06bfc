package service

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vogiaan1904/consultroom/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateInput(in any) error {
	if err := validate.Struct(in); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// Ledger

type DebitInput struct {
	ClientID  string       `json:"client_id" validate:"required"`
	Amount    models.Money `json:"amount"`
	Reference string       `json:"reference"`
}

type DebitOutput struct {
	Charged    models.Money         `json:"charged"`
	FromBonus  models.Money         `json:"from_bonus"`
	FromNormal models.Money         `json:"from_normal"`
	Balance    models.CreditBalance `json:"balance"`
}

type CreditInput struct {
	ClientID  string            `json:"client_id" validate:"required"`
	Amount    models.Money      `json:"amount"`
	Kind      models.CreditKind `json:"kind" validate:"omitempty,oneof=normal bonus"`
	Reference string            `json:"reference"`
}

type PurchaseInput struct {
	PurchaseID  string       `json:"purchase_id" validate:"required"`
	ClientID    string       `json:"client_id" validate:"required"`
	Amount      models.Money `json:"amount" validate:"gte=0"`
	BonusAmount models.Money `json:"bonus_amount" validate:"gte=0"`
}

// PurchaseOutput has Applied false when the purchase was already applied.
type PurchaseOutput struct {
	Applied bool                 `json:"applied"`
	Balance models.CreditBalance `json:"balance"`
}

type TransferInput struct {
	FromClientID string       `json:"from_client_id" validate:"required"`
	ToClientID   string       `json:"to_client_id" validate:"required,nefield=FromClientID"`
	Amount       models.Money `json:"amount"`
}

type TransferOutput struct {
	TransferID string               `json:"transfer_id"`
	Amount     models.Money         `json:"amount"`
	From       models.CreditBalance `json:"from"`
	To         models.CreditBalance `json:"to"`
}

// Registry

type UpsertConsultantInput struct {
	ConsultantID         string                       `json:"consultant_id" validate:"required"`
	PricePerMinute       models.Money                 `json:"price_per_minute" validate:"gt=0"`
	Capacity             int                          `json:"capacity" validate:"gte=0"`
	Specialties          []string                     `json:"specialties" validate:"dive,required"`
	CommunicationMethods []models.CommunicationMethod `json:"communication_methods" validate:"min=1,dive,oneof=chat video audio whatsapp"`
}

// Matching

type RequestConsultationInput struct {
	ClientID            string                     `json:"client_id" validate:"required"`
	ConsultantID        string                     `json:"consultant_id" validate:"required_without=ServiceType"`
	ServiceType         string                     `json:"service_type" validate:"required_without=ConsultantID"`
	CommunicationMethod models.CommunicationMethod `json:"communication_method" validate:"required,oneof=chat video audio whatsapp"`
	MaxPricePerMinute   models.Money               `json:"max_price_per_minute" validate:"gt=0"`
}

type Outcome string

const (
	OutcomeAdmitted Outcome = "admitted"
	OutcomeQueued   Outcome = "queued"
	OutcomeRejected Outcome = "rejected"
)

// RequestConsultationOutput is one of Admitted, Queued or Rejected, selected by Outcome.
// EstimatedWaitMinutes is position times the assumed average session length, a heuristic only.
type RequestConsultationOutput struct {
	Outcome              Outcome                     `json:"outcome"`
	SessionID            string                      `json:"session_id,omitempty"`
	Session              *models.ConsultationSession `json:"session,omitempty"`
	RequestID            string                      `json:"request_id,omitempty"`
	Position             int64                       `json:"position,omitempty"`
	QueueLength          int64                       `json:"queue_length,omitempty"`
	EstimatedWaitMinutes int64                       `json:"estimated_wait_minutes,omitempty"`
	RejectReason         RejectReason                `json:"reject_reason,omitempty"`
}

type QueueStatusOutput struct {
	RequestID            string                  `json:"request_id"`
	ClientID             string                  `json:"client_id"`
	Status               string                  `json:"status"` // queued or a resolution status
	Position             int64                   `json:"position,omitempty"`
	QueueLength          int64                   `json:"queue_length,omitempty"`
	EstimatedWaitMinutes int64                   `json:"estimated_wait_minutes,omitempty"`
	Target               models.QueueTarget      `json:"target"`
	EnqueuedAt           time.Time               `json:"enqueued_at,omitempty"`
	SessionID            string                  `json:"session_id,omitempty"`
	Reason               string                  `json:"reason,omitempty"`
	ResolvedAt           *time.Time              `json:"resolved_at,omitempty"`
	Resolution           *models.QueueResolution `json:"-"`
}

const QueueStatusQueued = "queued"

// Sessions

type StartSessionInput struct {
	RequestID           string                     `json:"request_id"`
	ConsultantID        string                     `json:"consultant_id" validate:"required"`
	ClientID            string                     `json:"client_id" validate:"required"`
	CommunicationMethod models.CommunicationMethod `json:"communication_method" validate:"required"`
	RatePerMinute       models.Money               `json:"rate_per_minute" validate:"gt=0"`
}

type RoomClaims struct {
	SessionID    string    `json:"session_id"`
	ClientID     string    `json:"client_id"`
	ConsultantID string    `json:"consultant_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type ClientStatsOutput struct {
	ClientID           string       `json:"client_id"`
	TotalSessions      int          `json:"total_sessions"`
	CompletedSessions  int          `json:"completed_sessions"`
	ActiveSessions     int          `json:"active_sessions"`
	TotalMinutesBilled int64        `json:"total_minutes_billed"`
	TotalSpent         models.Money `json:"total_spent"`
}

// ConsultantStatsOutput covers ended sessions. The monthly figures use sessions started in the last 30 days.
type ConsultantStatsOutput struct {
	ConsultantID          string       `json:"consultant_id"`
	TotalSessions         int          `json:"total_sessions"`
	TotalMinutesBilled    int64        `json:"total_minutes_billed"`
	TotalEarnings         models.Money `json:"total_earnings"`
	MonthlySessions       int          `json:"monthly_sessions"`
	MonthlyEarnings       models.Money `json:"monthly_earnings"`
	ActiveSessions        int          `json:"active_sessions"`
	AverageSessionMinutes float64      `json:"average_session_minutes"`
}
