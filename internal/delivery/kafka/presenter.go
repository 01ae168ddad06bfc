package kafka

import "time"

// Events published BY Consultroom Service. Amounts are minor currency units.

type SessionStartedEvent struct {
	SessionID           string    `json:"session_id"`
	RequestID           string    `json:"request_id"`
	ClientID            string    `json:"client_id"`
	ConsultantID        string    `json:"consultant_id"`
	CommunicationMethod string    `json:"communication_method"`
	RatePerMinute       int64     `json:"rate_per_minute"`
	RoomToken           string    `json:"room_token"`
	StartedAt           time.Time `json:"started_at"`
	Timestamp           time.Time `json:"timestamp"`
}

type SessionBilledEvent struct {
	SessionID      string    `json:"session_id"`
	ClientID       string    `json:"client_id"`
	ConsultantID   string    `json:"consultant_id"`
	Minute         int64     `json:"minute"`
	Amount         int64     `json:"amount"`
	CreditsCharged int64     `json:"credits_charged"`
	BalanceAfter   int64     `json:"balance_after"`
	Partial        bool      `json:"partial"`
	Timestamp      time.Time `json:"timestamp"`
}

type SessionEndedEvent struct {
	SessionID       string    `json:"session_id"`
	ClientID        string    `json:"client_id"`
	ConsultantID    string    `json:"consultant_id"`
	State           string    `json:"state"`
	EndReason       string    `json:"end_reason"`
	MinutesBilled   int64     `json:"minutes_billed"`
	CreditsCharged  int64     `json:"credits_charged"`
	DurationMinutes int64     `json:"duration_minutes"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Timestamp       time.Time `json:"timestamp"`
}

type QueueJoinedEvent struct {
	RequestID            string    `json:"request_id"`
	ClientID             string    `json:"client_id"`
	ConsultantID         string    `json:"consultant_id,omitempty"`
	ServiceType          string    `json:"service_type,omitempty"`
	Position             int64     `json:"position"`
	EstimatedWaitMinutes int64     `json:"estimated_wait_minutes"`
	JoinedAt             time.Time `json:"joined_at"`
	Timestamp            time.Time `json:"timestamp"`
}

type QueueLeftEvent struct {
	RequestID    string    `json:"request_id"`
	ClientID     string    `json:"client_id"`
	ConsultantID string    `json:"consultant_id,omitempty"`
	ServiceType  string    `json:"service_type,omitempty"`
	Reason       string    `json:"reason"` // cancelled, expired, insufficient_funds, admission_failed
	LeftAt       time.Time `json:"left_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// QueueAdmittedEvent tells the notification channel that a waiting client got a consultant.
type QueueAdmittedEvent struct {
	RequestID    string    `json:"request_id"`
	SessionID    string    `json:"session_id"`
	ClientID     string    `json:"client_id"`
	ConsultantID string    `json:"consultant_id"`
	RoomToken    string    `json:"room_token"`
	AdmittedAt   time.Time `json:"admitted_at"`
	Timestamp    time.Time `json:"timestamp"`
}

type CreditsLedgerEvent struct {
	EntryID      string    `json:"entry_id"`
	ClientID     string    `json:"client_id"`
	Type         string    `json:"type"`
	Kind         string    `json:"kind,omitempty"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type BillingAlertEvent struct {
	SessionID    string    `json:"session_id,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ConsultantID string    `json:"consultant_id,omitempty"`
	Reason       string    `json:"reason"`
	Error        string    `json:"error"`
	Amount       int64     `json:"amount,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Events consumed BY Consultroom Service

type ConsultantProfileUpdatedEvent struct {
	ConsultantID         string    `json:"consultant_id"`
	PricePerMinute       int64     `json:"price_per_minute"`
	Capacity             int       `json:"capacity"`
	Specialties          []string  `json:"specialties"`
	CommunicationMethods []string  `json:"communication_methods"`
	Timestamp            time.Time `json:"timestamp"`
}

type ConsultantPresenceChangedEvent struct {
	ConsultantID string    `json:"consultant_id"`
	Online       bool      `json:"online"`
	Timestamp    time.Time `json:"timestamp"`
}

type CreditsPurchasedEvent struct {
	PurchaseID  string    `json:"purchase_id"`
	ClientID    string    `json:"client_id"`
	Amount      int64     `json:"amount"`
	BonusAmount int64     `json:"bonus_amount"`
	Timestamp   time.Time `json:"timestamp"`
}

type ConsultationDisconnectedEvent struct {
	SessionID string    `json:"session_id"`
	Party     string    `json:"party"` // client, consultant
	Timestamp time.Time `json:"timestamp"`
}
