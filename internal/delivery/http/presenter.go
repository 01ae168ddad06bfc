package http

import (
	"time"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/service"
	"github.com/vogiaan1904/consultroom/pkg/util"
)

type requestConsultationReq struct {
	ClientID            string `json:"client_id" validate:"required"`
	ConsultantID        string `json:"consultant_id" validate:"required_without=ServiceType"`
	ServiceType         string `json:"service_type" validate:"required_without=ConsultantID"`
	CommunicationMethod string `json:"communication_method" validate:"required,oneof=chat video audio whatsapp"`
	MaxPricePerMinute   int64  `json:"max_price_per_minute" validate:"gt=0"`
}

func (r requestConsultationReq) toInput() service.RequestConsultationInput {
	return service.RequestConsultationInput{
		ClientID:            r.ClientID,
		ConsultantID:        r.ConsultantID,
		ServiceType:         r.ServiceType,
		CommunicationMethod: models.CommunicationMethod(r.CommunicationMethod),
		MaxPricePerMinute:   models.Money(r.MaxPricePerMinute),
	}
}

type endSessionReq struct {
	Reason string `json:"reason" validate:"required,oneof=client_ended consultant_ended disconnected"`
}

type upsertConsultantReq struct {
	PricePerMinute       int64    `json:"price_per_minute" validate:"gt=0"`
	Capacity             int      `json:"capacity" validate:"gte=0"`
	Specialties          []string `json:"specialties" validate:"dive,required"`
	CommunicationMethods []string `json:"communication_methods" validate:"min=1,dive,oneof=chat video audio whatsapp"`
}

func (r upsertConsultantReq) toInput(consultantID string) service.UpsertConsultantInput {
	methods := make([]models.CommunicationMethod, 0, len(r.CommunicationMethods))
	for _, m := range r.CommunicationMethods {
		methods = append(methods, models.CommunicationMethod(m))
	}
	return service.UpsertConsultantInput{
		ConsultantID:         consultantID,
		PricePerMinute:       models.Money(r.PricePerMinute),
		Capacity:             r.Capacity,
		Specialties:          r.Specialties,
		CommunicationMethods: methods,
	}
}

type presenceReq struct {
	Online *bool `json:"online" validate:"required"`
}

type creditReq struct {
	Amount    int64  `json:"amount" validate:"gt=0"`
	Kind      string `json:"kind" validate:"omitempty,oneof=normal bonus"`
	Reference string `json:"reference"`
}

type transferReq struct {
	ToClientID string `json:"to_client_id" validate:"required"`
	Amount     int64  `json:"amount" validate:"gt=0"`
}

type transferResp struct {
	TransferID       string      `json:"transfer_id"`
	Amount           int64       `json:"amount"`
	SenderNewBalance int64       `json:"sender_new_balance"`
	Sender           balanceResp `json:"sender"`
}

func newTransferResp(out service.TransferOutput) transferResp {
	return transferResp{
		TransferID:       out.TransferID,
		Amount:           int64(out.Amount),
		SenderNewBalance: int64(out.From.Total()),
		Sender:           newBalanceResp(out.From),
	}
}

type validateRoomReq struct {
	Token string `json:"token" validate:"required"`
}

type balanceResp struct {
	ClientID string `json:"client_id"`
	Normal   int64  `json:"normal"`
	Bonus    int64  `json:"bonus"`
	Total    int64  `json:"total"`
	Display  string `json:"display"`
}

func newBalanceResp(b models.CreditBalance) balanceResp {
	return balanceResp{
		ClientID: b.ClientID,
		Normal:   int64(b.Normal),
		Bonus:    int64(b.Bonus),
		Total:    int64(b.Total()),
		Display:  b.Total().String(),
	}
}

type sessionResp struct {
	ID                  string `json:"id"`
	RequestID           string `json:"request_id,omitempty"`
	ConsultantID        string `json:"consultant_id"`
	ClientID            string `json:"client_id"`
	CommunicationMethod string `json:"communication_method"`
	RatePerMinute       int64  `json:"rate_per_minute"`
	State               string `json:"state"`
	EndReason           string `json:"end_reason,omitempty"`
	MinutesBilled       int64  `json:"minutes_billed"`
	CreditsCharged      int64  `json:"credits_charged"`
	RoomToken           string `json:"room_token,omitempty"`
	StartedAt           string `json:"started_at"`
	EndedAt             string `json:"ended_at,omitempty"`
}

func newSessionResp(s *models.ConsultationSession) *sessionResp {
	if s == nil {
		return nil
	}
	out := &sessionResp{
		ID:                  s.ID,
		RequestID:           s.RequestID,
		ConsultantID:        s.ConsultantID,
		ClientID:            s.ClientID,
		CommunicationMethod: string(s.CommunicationMethod),
		RatePerMinute:       int64(s.RatePerMinute),
		State:               string(s.State),
		EndReason:           string(s.EndReason),
		MinutesBilled:       s.MinutesBilled,
		CreditsCharged:      int64(s.CreditsCharged),
		StartedAt:           util.TimeToISO8601Str(s.StartedAt),
		EndedAt:             util.TimePtrToISO8601Str(s.EndedAt),
	}
	if s.IsActive() {
		out.RoomToken = s.RoomToken
	}
	return out
}

type consultationResp struct {
	Outcome              string       `json:"outcome"`
	RequestID            string       `json:"request_id,omitempty"`
	Session              *sessionResp `json:"session,omitempty"`
	Position             int64        `json:"position,omitempty"`
	QueueLength          int64        `json:"queue_length,omitempty"`
	EstimatedWaitMinutes int64        `json:"estimated_wait_minutes,omitempty"`
	RejectReason         string       `json:"reject_reason,omitempty"`
}

func newConsultationResp(out *service.RequestConsultationOutput) consultationResp {
	return consultationResp{
		Outcome:              string(out.Outcome),
		RequestID:            out.RequestID,
		Session:              newSessionResp(out.Session),
		Position:             out.Position,
		QueueLength:          out.QueueLength,
		EstimatedWaitMinutes: out.EstimatedWaitMinutes,
		RejectReason:         string(out.RejectReason),
	}
}

type queueStatusResp struct {
	RequestID            string `json:"request_id"`
	ClientID             string `json:"client_id"`
	Status               string `json:"status"`
	Target               string `json:"target,omitempty"`
	Position             int64  `json:"position,omitempty"`
	QueueLength          int64  `json:"queue_length,omitempty"`
	EstimatedWaitMinutes int64  `json:"estimated_wait_minutes,omitempty"`
	EnqueuedAt           string `json:"enqueued_at,omitempty"`
	SessionID            string `json:"session_id,omitempty"`
	Reason               string `json:"reason,omitempty"`
	ResolvedAt           string `json:"resolved_at,omitempty"`
}

func newQueueStatusResp(out *service.QueueStatusOutput) queueStatusResp {
	resp := queueStatusResp{
		RequestID:            out.RequestID,
		ClientID:             out.ClientID,
		Status:               out.Status,
		Position:             out.Position,
		QueueLength:          out.QueueLength,
		EstimatedWaitMinutes: out.EstimatedWaitMinutes,
		EnqueuedAt:           util.TimeToISO8601Str(out.EnqueuedAt),
		SessionID:            out.SessionID,
		Reason:               out.Reason,
		ResolvedAt:           util.TimePtrToISO8601Str(out.ResolvedAt),
	}
	if out.Target.ID != "" {
		resp.Target = out.Target.Key()
	}
	return resp
}

type availabilityResp struct {
	ConsultantID         string   `json:"consultant_id"`
	Availability         string   `json:"availability"`
	Occupancy            int      `json:"occupancy"`
	Capacity             int      `json:"capacity"`
	PricePerMinute       int64    `json:"price_per_minute"`
	Specialties          []string `json:"specialties"`
	CommunicationMethods []string `json:"communication_methods"`
}

func newAvailabilityResp(s models.ConsultantSnapshot) availabilityResp {
	methods := make([]string, 0, len(s.CommunicationMethods))
	for _, m := range s.CommunicationMethods {
		methods = append(methods, string(m))
	}
	return availabilityResp{
		ConsultantID:         s.ConsultantID,
		Availability:         string(s.Availability),
		Occupancy:            s.Occupancy,
		Capacity:             s.Capacity,
		PricePerMinute:       int64(s.PricePerMinute),
		Specialties:          s.Specialties,
		CommunicationMethods: methods,
	}
}

type ledgerEntryResp struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Kind         string `json:"kind,omitempty"`
	Amount       int64  `json:"amount"`
	FromBonus    int64  `json:"from_bonus,omitempty"`
	FromNormal   int64  `json:"from_normal,omitempty"`
	BalanceAfter int64  `json:"balance_after"`
	Reference    string `json:"reference,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func newLedgerEntryResps(entries []*models.LedgerEntry) []ledgerEntryResp {
	out := make([]ledgerEntryResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResp{
			ID:           e.ID,
			Type:         string(e.Type),
			Kind:         string(e.Kind),
			Amount:       int64(e.Amount),
			FromBonus:    int64(e.FromBonus),
			FromNormal:   int64(e.FromNormal),
			BalanceAfter: int64(e.BalanceAfter),
			Reference:    e.Reference,
			CreatedAt:    util.TimeToISO8601Str(e.CreatedAt),
		})
	}
	return out
}

type healthResp struct {
	Status         string                   `json:"status"`
	Service        string                   `json:"service"`
	ActiveSessions int                      `json:"active_sessions"`
	Processor      *service.ProcessorStatus `json:"processor,omitempty"`
	Time           string                   `json:"time"`
}

func newHealthResp(active int, processor *service.ProcessorStatus) healthResp {
	return healthResp{
		Status:         "healthy",
		Service:        "consultroom-service",
		ActiveSessions: active,
		Processor:      processor,
		Time:           util.TimeToISO8601Str(time.Now()),
	}
}
