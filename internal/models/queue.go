package models

import (
	"strings"
	"time"
)

type TargetKind string

const (
	TargetConsultant TargetKind = "consultant"
	TargetService    TargetKind = "service"
)

// QueueTarget names one FIFO queue: a specific consultant or a service type.
type QueueTarget struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

func ConsultantTarget(consultantID string) QueueTarget {
	return QueueTarget{Kind: TargetConsultant, ID: consultantID}
}

func ServiceTarget(serviceType string) QueueTarget {
	return QueueTarget{Kind: TargetService, ID: serviceType}
}

func (t QueueTarget) Key() string {
	return string(t.Kind) + ":" + t.ID
}

func ParseQueueTarget(key string) (QueueTarget, bool) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return QueueTarget{}, false
	}
	switch TargetKind(kind) {
	case TargetConsultant, TargetService:
		return QueueTarget{Kind: TargetKind(kind), ID: id}, true
	}
	return QueueTarget{}, false
}

type QueueEntry struct {
	RequestID           string              `json:"request_id"`
	ClientID            string              `json:"client_id"`
	ConsultantID        string              `json:"consultant_id,omitempty"`
	ServiceType         string              `json:"service_type,omitempty"`
	CommunicationMethod CommunicationMethod `json:"communication_method"`
	MaxPricePerMinute   Money               `json:"max_price_per_minute"`
	EnqueuedAt          time.Time           `json:"enqueued_at"`
	Seq                 int64               `json:"seq"`
	// Position is 1-based and only meaningful on the value returned by a read.
	Position int64 `json:"position,omitempty"`
}

func (e *QueueEntry) Target() QueueTarget {
	if e.ConsultantID != "" {
		return ConsultantTarget(e.ConsultantID)
	}
	return ServiceTarget(e.ServiceType)
}

// EligibleFor reports whether the consultant can serve this entry.
func (e *QueueEntry) EligibleFor(c ConsultantSnapshot) bool {
	if e.ConsultantID != "" && e.ConsultantID != c.ConsultantID {
		return false
	}
	if e.ConsultantID == "" && !c.HasSpecialty(e.ServiceType) {
		return false
	}
	return c.Supports(e.CommunicationMethod) && c.PricePerMinute <= e.MaxPricePerMinute
}

func (e *QueueEntry) IsExpired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(e.EnqueuedAt) > ttl
}

type ResolutionStatus string

const (
	ResolutionAdmitted  ResolutionStatus = "admitted"
	ResolutionCancelled ResolutionStatus = "cancelled"
	ResolutionExpired   ResolutionStatus = "expired"
	ResolutionRejected  ResolutionStatus = "rejected"
)

// QueueResolution records what happened to a request after it left its queue.
type QueueResolution struct {
	RequestID string           `json:"request_id"`
	ClientID  string           `json:"client_id"`
	Status    ResolutionStatus `json:"status"`
	SessionID string           `json:"session_id,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	At        time.Time        `json:"at"`
}
