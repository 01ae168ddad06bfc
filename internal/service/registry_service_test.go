package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vogiaan1904/consultroom/internal/models"
)

func TestRegistryUpsertDefaultsAndKeepsPresence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	snap, err := env.registry.UpsertConsultant(ctx, UpsertConsultantInput{
		ConsultantID:         "c-1",
		PricePerMinute:       250,
		Specialties:          []string{"tarot"},
		CommunicationMethods: []models.CommunicationMethod{models.MethodChat},
	})
	if err != nil {
		t.Fatalf("UpsertConsultant() error = %v", err)
	}
	if snap.Capacity != 1 || snap.Availability != models.AvailabilityOffline {
		t.Fatalf("snapshot = %+v, want capacity 1 offline", snap)
	}

	if _, err := env.registry.SetPresence(ctx, "c-1", true); err != nil {
		t.Fatalf("SetPresence() error = %v", err)
	}

	snap, err = env.registry.UpsertConsultant(ctx, UpsertConsultantInput{
		ConsultantID:         "c-1",
		PricePerMinute:       300,
		Capacity:             3,
		Specialties:          []string{"tarot", "astrology"},
		CommunicationMethods: []models.CommunicationMethod{models.MethodChat, models.MethodAudio},
	})
	if err != nil {
		t.Fatalf("UpsertConsultant() error = %v", err)
	}
	if snap.Availability != models.AvailabilityOnline || snap.PricePerMinute != 300 || snap.Capacity != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	byAstro, err := env.registry.ListBySpecialty(ctx, "astrology")
	if err != nil || len(byAstro) != 1 {
		t.Fatalf("ListBySpecialty() = %v, %v", byAstro, err)
	}
}

func TestRegistryCapacityBelowOccupancy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 2)

	for range 2 {
		if ok, err := env.registry.TryReserve(ctx, "c-1"); !ok || err != nil {
			t.Fatalf("TryReserve() = %v, %v", ok, err)
		}
	}
	if ok, _ := env.registry.TryReserve(ctx, "c-1"); ok {
		t.Fatalf("TryReserve() succeeded above capacity")
	}

	_, err := env.registry.UpsertConsultant(ctx, UpsertConsultantInput{
		ConsultantID:         "c-1",
		PricePerMinute:       100,
		Capacity:             1,
		CommunicationMethods: []models.CommunicationMethod{models.MethodChat},
	})
	if !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("UpsertConsultant() error = %v, want ErrInvalidCapacity", err)
	}
}

func TestRegistryUnknownConsultant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.registry.Snapshot(ctx, "ghost"); !errors.Is(err, ErrConsultantNotFound) {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if _, err := env.registry.SetPresence(ctx, "ghost", true); !errors.Is(err, ErrConsultantNotFound) {
		t.Fatalf("SetPresence() error = %v", err)
	}
	if _, err := env.registry.TryReserve(ctx, "ghost"); !errors.Is(err, ErrConsultantNotFound) {
		t.Fatalf("TryReserve() error = %v", err)
	}
}

func TestRegistryUpsertValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.UpsertConsultant(context.Background(), UpsertConsultantInput{
		ConsultantID:         "c-1",
		PricePerMinute:       100,
		CommunicationMethods: []models.CommunicationMethod{"pigeon"},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}
