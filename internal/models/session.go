package models

import (
	"errors"
	"slices"
	"time"
)

var ErrInvalidTransition = errors.New("invalid session state transition")

type SessionState string

const (
	SessionStateRequested SessionState = "requested"
	SessionStateAdmitted  SessionState = "admitted"
	SessionStateActive    SessionState = "active"
	SessionStateCompleted SessionState = "completed"
	SessionStateCancelled SessionState = "cancelled"
	SessionStateFailed    SessionState = "failed"
)

var sessionTransitions = map[SessionState][]SessionState{
	SessionStateRequested: {SessionStateAdmitted, SessionStateCancelled},
	SessionStateAdmitted:  {SessionStateActive, SessionStateCancelled, SessionStateFailed},
	SessionStateActive:    {SessionStateCompleted, SessionStateCancelled, SessionStateFailed},
}

func CanTransition(from, to SessionState) bool {
	return slices.Contains(sessionTransitions[from], to)
}

func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionStateCompleted, SessionStateCancelled, SessionStateFailed:
		return true
	}
	return false
}

type EndReason string

const (
	EndReasonClientEnded      EndReason = "client_ended"
	EndReasonConsultantEnded  EndReason = "consultant_ended"
	EndReasonDisconnected     EndReason = "disconnected"
	EndReasonCreditsExhausted EndReason = "credits_exhausted"
	EndReasonTimeout          EndReason = "timeout"
	EndReasonBillingError     EndReason = "billing_error"
	EndReasonShutdown         EndReason = "service_shutdown"
)

// TerminalState maps an end reason to the state the session settles in.
func (r EndReason) TerminalState() SessionState {
	switch r {
	case EndReasonDisconnected, EndReasonShutdown:
		return SessionStateCancelled
	case EndReasonBillingError:
		return SessionStateFailed
	default:
		return SessionStateCompleted
	}
}

// IsCallerReason reports whether a party may end a session with this reason.
func (r EndReason) IsCallerReason() bool {
	switch r {
	case EndReasonClientEnded, EndReasonConsultantEnded, EndReasonDisconnected:
		return true
	}
	return false
}

type ConsultationSession struct {
	ID                  string              `json:"id"`
	RequestID           string              `json:"request_id"`
	ConsultantID        string              `json:"consultant_id"`
	ClientID            string              `json:"client_id"`
	CommunicationMethod CommunicationMethod `json:"communication_method"`
	RatePerMinute       Money               `json:"rate_per_minute"`
	State               SessionState        `json:"state"`
	EndReason           EndReason           `json:"end_reason,omitempty"`
	MinutesBilled       int64               `json:"minutes_billed"`
	CreditsCharged      Money               `json:"credits_charged"`
	RoomToken           string              `json:"room_token,omitempty"`
	StartedAt           time.Time           `json:"started_at"`
	EndedAt             *time.Time          `json:"ended_at,omitempty"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func (s *ConsultationSession) IsActive() bool {
	return s.State == SessionStateActive
}

func (s *ConsultationSession) Transition(to SessionState, at time.Time) error {
	if !CanTransition(s.State, to) {
		return ErrInvalidTransition
	}
	s.State = to
	s.UpdatedAt = at
	return nil
}

func (s *ConsultationSession) Clone() *ConsultationSession {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
