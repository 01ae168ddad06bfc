package models

import (
	"testing"
	"time"
)

func TestMoneyString(t *testing.T) {
	tests := []struct {
		in   Money
		want string
	}{
		{400, "4.00"},
		{901, "9.01"},
		{5, "0.05"},
		{-150, "-1.50"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Fatalf("Money(%d).String() = %q, want %q", int64(tt.in), got, tt.want)
		}
	}
}

func TestConsultantAvailability(t *testing.T) {
	tests := []struct {
		name string
		c    Consultant
		want Availability
	}{
		{"offline wins over free capacity", Consultant{Capacity: 2, Occupancy: 0, Present: false}, AvailabilityOffline},
		{"offline wins over full", Consultant{Capacity: 1, Occupancy: 1, Present: false}, AvailabilityOffline},
		{"busy at capacity", Consultant{Capacity: 2, Occupancy: 2, Present: true}, AvailabilityBusy},
		{"online with room", Consultant{Capacity: 2, Occupancy: 1, Present: true}, AvailabilityOnline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Availability(); got != tt.want {
				t.Fatalf("Availability() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQueueTargetRoundTrip(t *testing.T) {
	for _, target := range []QueueTarget{ConsultantTarget("c-1"), ServiceTarget("tarot")} {
		got, ok := ParseQueueTarget(target.Key())
		if !ok || got != target {
			t.Fatalf("ParseQueueTarget(%q) = %v, %v", target.Key(), got, ok)
		}
	}

	for _, bad := range []string{"", "consultant:", "room:1", "nocolon"} {
		if _, ok := ParseQueueTarget(bad); ok {
			t.Fatalf("ParseQueueTarget(%q) should fail", bad)
		}
	}
}

func TestQueueEntryEligibleFor(t *testing.T) {
	snap := ConsultantSnapshot{
		ConsultantID:         "c-1",
		PricePerMinute:       400,
		Specialties:          []string{"tarot"},
		CommunicationMethods: []CommunicationMethod{MethodChat},
	}

	tests := []struct {
		name  string
		entry QueueEntry
		want  bool
	}{
		{"direct match", QueueEntry{ConsultantID: "c-1", CommunicationMethod: MethodChat, MaxPricePerMinute: 400}, true},
		{"direct other consultant", QueueEntry{ConsultantID: "c-2", CommunicationMethod: MethodChat, MaxPricePerMinute: 400}, false},
		{"service match", QueueEntry{ServiceType: "tarot", CommunicationMethod: MethodChat, MaxPricePerMinute: 500}, true},
		{"service wrong specialty", QueueEntry{ServiceType: "astrology", CommunicationMethod: MethodChat, MaxPricePerMinute: 500}, false},
		{"price above limit", QueueEntry{ServiceType: "tarot", CommunicationMethod: MethodChat, MaxPricePerMinute: 399}, false},
		{"method unsupported", QueueEntry{ServiceType: "tarot", CommunicationMethod: MethodVideo, MaxPricePerMinute: 500}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.EligibleFor(snap); got != tt.want {
				t.Fatalf("EligibleFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionTransitions(t *testing.T) {
	now := time.Now()
	s := &ConsultationSession{State: SessionStateAdmitted}

	if err := s.Transition(SessionStateActive, now); err != nil {
		t.Fatalf("admitted -> active: %v", err)
	}
	if err := s.Transition(SessionStateCompleted, now); err != nil {
		t.Fatalf("active -> completed: %v", err)
	}
	if err := s.Transition(SessionStateActive, now); err != ErrInvalidTransition {
		t.Fatalf("terminal state must be absorbing, got %v", err)
	}
}

func TestEndReasonTerminalState(t *testing.T) {
	tests := map[EndReason]SessionState{
		EndReasonClientEnded:      SessionStateCompleted,
		EndReasonConsultantEnded:  SessionStateCompleted,
		EndReasonCreditsExhausted: SessionStateCompleted,
		EndReasonTimeout:          SessionStateCompleted,
		EndReasonDisconnected:     SessionStateCancelled,
		EndReasonShutdown:         SessionStateCancelled,
		EndReasonBillingError:     SessionStateFailed,
	}
	for reason, want := range tests {
		if got := reason.TerminalState(); got != want {
			t.Fatalf("%s.TerminalState() = %s, want %s", reason, got, want)
		}
	}
}
