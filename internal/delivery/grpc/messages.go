package grpc

import (
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/service"
	"github.com/vogiaan1904/consultroom/pkg/util"
)

type RequestConsultationRequest struct {
	ClientId            string `json:"client_id"`
	ConsultantId        string `json:"consultant_id,omitempty"`
	ServiceType         string `json:"service_type,omitempty"`
	CommunicationMethod string `json:"communication_method"`
	MaxPricePerMinute   int64  `json:"max_price_per_minute"`
}

type RequestConsultationResponse struct {
	Outcome              string   `json:"outcome"`
	RequestId            string   `json:"request_id,omitempty"`
	Session              *Session `json:"session,omitempty"`
	Position             int64    `json:"position,omitempty"`
	QueueLength          int64    `json:"queue_length,omitempty"`
	EstimatedWaitMinutes int64    `json:"estimated_wait_minutes,omitempty"`
	RejectReason         string   `json:"reject_reason,omitempty"`
}

type QueueRequest struct {
	RequestId string `json:"request_id"`
}

type QueueStatusResponse struct {
	RequestId            string `json:"request_id"`
	ClientId             string `json:"client_id"`
	Status               string `json:"status"`
	Target               string `json:"target,omitempty"`
	Position             int64  `json:"position,omitempty"`
	QueueLength          int64  `json:"queue_length,omitempty"`
	EstimatedWaitMinutes int64  `json:"estimated_wait_minutes,omitempty"`
	SessionId            string `json:"session_id,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

type CancelQueueEntryResponse struct {
	RequestId string `json:"request_id"`
	Message   string `json:"message"`
}

type GetSessionRequest struct {
	SessionId string `json:"session_id"`
}

type EndSessionRequest struct {
	SessionId string `json:"session_id"`
	Reason    string `json:"reason"`
}

type Session struct {
	Id                  string `json:"id"`
	RequestId           string `json:"request_id,omitempty"`
	ConsultantId        string `json:"consultant_id"`
	ClientId            string `json:"client_id"`
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

type ValidateRoomTokenRequest struct {
	Token string `json:"token"`
}

type RoomClaims struct {
	SessionId    string `json:"session_id"`
	ClientId     string `json:"client_id"`
	ConsultantId string `json:"consultant_id"`
	ExpiresAt    string `json:"expires_at"`
}

type SetPresenceRequest struct {
	ConsultantId string `json:"consultant_id"`
	Online       bool   `json:"online"`
}

type Availability struct {
	ConsultantId   string `json:"consultant_id"`
	Availability   string `json:"availability"`
	Occupancy      int32  `json:"occupancy"`
	Capacity       int32  `json:"capacity"`
	PricePerMinute int64  `json:"price_per_minute"`
}

type GetBalanceRequest struct {
	ClientId string `json:"client_id"`
}

type Balance struct {
	ClientId string `json:"client_id"`
	Normal   int64  `json:"normal"`
	Bonus    int64  `json:"bonus"`
	Total    int64  `json:"total"`
}

type StreamClientUpdatesRequest struct {
	ClientId string `json:"client_id"`
}

type ClientUpdate struct {
	ClientId             string `json:"client_id"`
	Type                 string `json:"type"`
	RequestId            string `json:"request_id,omitempty"`
	SessionId            string `json:"session_id,omitempty"`
	Position             int64  `json:"position,omitempty"`
	EstimatedWaitMinutes int64  `json:"estimated_wait_minutes,omitempty"`
	State                string `json:"state,omitempty"`
	EndReason            string `json:"end_reason,omitempty"`
	MinutesBilled        int64  `json:"minutes_billed,omitempty"`
	CreditsCharged       int64  `json:"credits_charged,omitempty"`
	Reason               string `json:"reason,omitempty"`
	Timestamp            string `json:"timestamp"`
}

func toSession(s *models.ConsultationSession) *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		Id:                  s.ID,
		RequestId:           s.RequestID,
		ConsultantId:        s.ConsultantID,
		ClientId:            s.ClientID,
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

func toQueueStatus(out *service.QueueStatusOutput) *QueueStatusResponse {
	resp := &QueueStatusResponse{
		RequestId:            out.RequestID,
		ClientId:             out.ClientID,
		Status:               out.Status,
		Position:             out.Position,
		QueueLength:          out.QueueLength,
		EstimatedWaitMinutes: out.EstimatedWaitMinutes,
		SessionId:            out.SessionID,
		Reason:               out.Reason,
	}
	if out.Target.ID != "" {
		resp.Target = out.Target.Key()
	}
	return resp
}

func toAvailability(s models.ConsultantSnapshot) *Availability {
	return &Availability{
		ConsultantId:   s.ConsultantID,
		Availability:   string(s.Availability),
		Occupancy:      int32(s.Occupancy),
		Capacity:       int32(s.Capacity),
		PricePerMinute: int64(s.PricePerMinute),
	}
}

func toClientUpdate(u models.ClientUpdate) *ClientUpdate {
	return &ClientUpdate{
		ClientId:             u.ClientID,
		Type:                 string(u.Type),
		RequestId:            u.RequestID,
		SessionId:            u.SessionID,
		Position:             u.Position,
		EstimatedWaitMinutes: u.EstimatedWaitMinutes,
		State:                string(u.State),
		EndReason:            string(u.EndReason),
		MinutesBilled:        u.MinutesBilled,
		CreditsCharged:       int64(u.CreditsCharged),
		Reason:               u.Reason,
		Timestamp:            util.TimeToISO8601Str(u.Timestamp),
	}
}
