package models

import "time"

type UpdateType string

const (
	UpdateTypeQueued          UpdateType = "queued"
	UpdateTypePositionChanged UpdateType = "position_changed"
	UpdateTypeQueueLeft       UpdateType = "queue_left"
	UpdateTypeAdmitted        UpdateType = "admitted"
	UpdateTypeSessionBilled   UpdateType = "session_billed"
	UpdateTypeSessionEnded    UpdateType = "session_ended"
)

// ClientUpdate is pushed to a client's live streams when their queue entry or session changes.
type ClientUpdate struct {
	ClientID             string       `json:"client_id"`
	Type                 UpdateType   `json:"type"`
	RequestID            string       `json:"request_id,omitempty"`
	SessionID            string       `json:"session_id,omitempty"`
	Position             int64        `json:"position,omitempty"`
	EstimatedWaitMinutes int64        `json:"estimated_wait_minutes,omitempty"`
	State                SessionState `json:"state,omitempty"`
	EndReason            EndReason    `json:"end_reason,omitempty"`
	MinutesBilled        int64        `json:"minutes_billed,omitempty"`
	CreditsCharged       Money        `json:"credits_charged,omitempty"`
	Reason               string       `json:"reason,omitempty"`
	Timestamp            time.Time    `json:"timestamp"`
}
