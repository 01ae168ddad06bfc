package models

import (
	"slices"
	"time"
)

type CommunicationMethod string

const (
	MethodChat     CommunicationMethod = "chat"
	MethodVideo    CommunicationMethod = "video"
	MethodAudio    CommunicationMethod = "audio"
	MethodWhatsApp CommunicationMethod = "whatsapp"
)

func (m CommunicationMethod) IsValid() bool {
	switch m {
	case MethodChat, MethodVideo, MethodAudio, MethodWhatsApp:
		return true
	}
	return false
}

type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityBusy    Availability = "busy"
	AvailabilityOffline Availability = "offline"
)

type Consultant struct {
	ID                   string                `json:"id"`
	PricePerMinute       Money                 `json:"price_per_minute"`
	Capacity             int                   `json:"capacity"`
	Specialties          []string              `json:"specialties"`
	CommunicationMethods []CommunicationMethod `json:"communication_methods"`
	Present              bool                  `json:"present"`
	Occupancy            int                   `json:"occupancy"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// Availability is derived: presence wins over occupancy.
func (c *Consultant) Availability() Availability {
	if !c.Present {
		return AvailabilityOffline
	}
	if c.Occupancy >= c.Capacity {
		return AvailabilityBusy
	}
	return AvailabilityOnline
}

func (c *Consultant) HasSpecialty(s string) bool {
	return slices.Contains(c.Specialties, s)
}

func (c *Consultant) Supports(m CommunicationMethod) bool {
	return slices.Contains(c.CommunicationMethods, m)
}

func (c *Consultant) Snapshot() ConsultantSnapshot {
	return ConsultantSnapshot{
		ConsultantID:         c.ID,
		Availability:         c.Availability(),
		Occupancy:            c.Occupancy,
		Capacity:             c.Capacity,
		PricePerMinute:       c.PricePerMinute,
		Specialties:          slices.Clone(c.Specialties),
		CommunicationMethods: slices.Clone(c.CommunicationMethods),
	}
}

type ConsultantSnapshot struct {
	ConsultantID         string                `json:"consultant_id"`
	Availability         Availability          `json:"availability"`
	Occupancy            int                   `json:"occupancy"`
	Capacity             int                   `json:"capacity"`
	PricePerMinute       Money                 `json:"price_per_minute"`
	Specialties          []string              `json:"specialties"`
	CommunicationMethods []CommunicationMethod `json:"communication_methods"`
}

func (s ConsultantSnapshot) HasSpecialty(specialty string) bool {
	return slices.Contains(s.Specialties, specialty)
}

func (s ConsultantSnapshot) Supports(m CommunicationMethod) bool {
	return slices.Contains(s.CommunicationMethods, m)
}
