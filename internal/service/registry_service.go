package service

import (
	"context"
	"errors"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

type registryService struct {
	repo            repository.ConsultantRepository
	defaultCapacity int
	l               logger.Logger
}

func NewRegistryService(repo repository.ConsultantRepository, defaultCapacity int, l logger.Logger) RegistryService {
	if defaultCapacity < 1 {
		defaultCapacity = 1
	}
	return &registryService{
		repo:            repo,
		defaultCapacity: defaultCapacity,
		l:               l,
	}
}

func mapRepoError(err error, notFound error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrCapacityBelowOccupancy):
		return ErrInvalidCapacity
	default:
		return err
	}
}

func (s *registryService) UpsertConsultant(ctx context.Context, in UpsertConsultantInput) (models.ConsultantSnapshot, error) {
	if err := validateInput(in); err != nil {
		return models.ConsultantSnapshot{}, err
	}

	capacity := in.Capacity
	if capacity == 0 {
		capacity = s.defaultCapacity
	}

	c, err := s.repo.Upsert(ctx, &models.Consultant{
		ID:                   in.ConsultantID,
		PricePerMinute:       in.PricePerMinute,
		Capacity:             capacity,
		Specialties:          in.Specialties,
		CommunicationMethods: in.CommunicationMethods,
	})
	if err != nil {
		s.l.Warnf(ctx, "service.registryService.UpsertConsultant: %v", err)
		return models.ConsultantSnapshot{}, mapRepoError(err, ErrConsultantNotFound)
	}

	return c.Snapshot(), nil
}

func (s *registryService) TryReserve(ctx context.Context, consultantID string) (bool, error) {
	ok, err := s.repo.TryReserve(ctx, consultantID)
	if err != nil {
		return false, mapRepoError(err, ErrConsultantNotFound)
	}
	return ok, nil
}

func (s *registryService) Release(ctx context.Context, consultantID string) error {
	if _, err := s.repo.Release(ctx, consultantID); err != nil {
		s.l.Errorf(ctx, "service.registryService.Release: consultant=%s: %v", consultantID, err)
		return mapRepoError(err, ErrConsultantNotFound)
	}
	return nil
}

func (s *registryService) SetPresence(ctx context.Context, consultantID string, online bool) (models.ConsultantSnapshot, error) {
	c, err := s.repo.SetPresence(ctx, consultantID, online)
	if err != nil {
		return models.ConsultantSnapshot{}, mapRepoError(err, ErrConsultantNotFound)
	}

	s.l.Infof(ctx, "Consultant %s presence set, availability %s", consultantID, c.Availability())
	return c.Snapshot(), nil
}

func (s *registryService) Snapshot(ctx context.Context, consultantID string) (models.ConsultantSnapshot, error) {
	c, err := s.repo.Get(ctx, consultantID)
	if err != nil {
		return models.ConsultantSnapshot{}, mapRepoError(err, ErrConsultantNotFound)
	}
	return c.Snapshot(), nil
}

func (s *registryService) ListBySpecialty(ctx context.Context, serviceType string) ([]models.ConsultantSnapshot, error) {
	cs, err := s.repo.ListBySpecialty(ctx, serviceType)
	if err != nil {
		s.l.Errorf(ctx, "service.registryService.ListBySpecialty: %v", err)
		return nil, err
	}
	return snapshots(cs), nil
}

func (s *registryService) List(ctx context.Context) ([]models.ConsultantSnapshot, error) {
	cs, err := s.repo.List(ctx)
	if err != nil {
		s.l.Errorf(ctx, "service.registryService.List: %v", err)
		return nil, err
	}
	return snapshots(cs), nil
}

func snapshots(cs []*models.Consultant) []models.ConsultantSnapshot {
	out := make([]models.ConsultantSnapshot, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Snapshot())
	}
	return out
}
