package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
)

// consultantSlot serializes every occupancy change of one consultant.
type consultantSlot struct {
	mu sync.Mutex
	c  models.Consultant
}

type consultantRepository struct {
	mu    sync.RWMutex
	slots map[string]*consultantSlot
}

func NewConsultantRepository() repository.ConsultantRepository {
	return &consultantRepository{
		slots: make(map[string]*consultantSlot),
	}
}

func cloneConsultant(c *models.Consultant) *models.Consultant {
	out := *c
	out.Specialties = slices.Clone(c.Specialties)
	out.CommunicationMethods = slices.Clone(c.CommunicationMethods)
	return &out
}

func (r *consultantRepository) slot(id string) (*consultantSlot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	return s, ok
}

func (r *consultantRepository) Upsert(ctx context.Context, c *models.Consultant) (*models.Consultant, error) {
	r.mu.Lock()
	s, ok := r.slots[c.ID]
	if !ok {
		s = &consultantSlot{c: models.Consultant{ID: c.ID}}
		r.slots[c.ID] = s
	}
	r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Capacity < s.c.Occupancy {
		return nil, repository.ErrCapacityBelowOccupancy
	}

	s.c.PricePerMinute = c.PricePerMinute
	s.c.Capacity = c.Capacity
	s.c.Specialties = slices.Clone(c.Specialties)
	s.c.CommunicationMethods = slices.Clone(c.CommunicationMethods)
	s.c.UpdatedAt = time.Now()

	return cloneConsultant(&s.c), nil
}

func (r *consultantRepository) Get(ctx context.Context, consultantID string) (*models.Consultant, error) {
	s, ok := r.slot(consultantID)
	if !ok {
		return nil, repository.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneConsultant(&s.c), nil
}

func (r *consultantRepository) List(ctx context.Context) ([]*models.Consultant, error) {
	return r.filter(func(*models.Consultant) bool { return true }), nil
}

func (r *consultantRepository) ListBySpecialty(ctx context.Context, specialty string) ([]*models.Consultant, error) {
	return r.filter(func(c *models.Consultant) bool { return c.HasSpecialty(specialty) }), nil
}

func (r *consultantRepository) filter(keep func(*models.Consultant) bool) []*models.Consultant {
	r.mu.RLock()
	slots := make([]*consultantSlot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	out := make([]*models.Consultant, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		if keep(&s.c) {
			out = append(out, cloneConsultant(&s.c))
		}
		s.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *consultantRepository) TryReserve(ctx context.Context, consultantID string) (bool, error) {
	s, ok := r.slot(consultantID)
	if !ok {
		return false, repository.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.c.Present || s.c.Occupancy >= s.c.Capacity {
		return false, nil
	}

	s.c.Occupancy++
	s.c.UpdatedAt = time.Now()
	return true, nil
}

func (r *consultantRepository) Release(ctx context.Context, consultantID string) (int, error) {
	s, ok := r.slot(consultantID)
	if !ok {
		return 0, repository.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c.Occupancy > 0 {
		s.c.Occupancy--
		s.c.UpdatedAt = time.Now()
	}
	return s.c.Occupancy, nil
}

func (r *consultantRepository) SetPresence(ctx context.Context, consultantID string, present bool) (*models.Consultant, error) {
	s, ok := r.slot(consultantID)
	if !ok {
		return nil, repository.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Present = present
	s.c.UpdatedAt = time.Now()
	return cloneConsultant(&s.c), nil
}
