package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
)

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.ConsultationSession
	byClient     map[string][]string
	byConsultant map[string][]string
	pairs        map[string]string
}

func NewSessionRepository() repository.SessionRepository {
	return &sessionRepository{
		sessions: make(map[string]*models.ConsultationSession),
		byClient:     make(map[string][]string),
		byConsultant: make(map[string][]string),
		pairs:        make(map[string]string),
	}
}

func pairKey(consultantID, clientID string) string {
	return consultantID + "|" + clientID
}

func (r *sessionRepository) ClaimActivePair(ctx context.Context, consultantID, clientID, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(consultantID, clientID)
	if holder, ok := r.pairs[key]; ok && holder != sessionID {
		return false, nil
	}
	r.pairs[key] = sessionID
	return true, nil
}

func (r *sessionRepository) ReleaseActivePair(ctx context.Context, consultantID, clientID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(consultantID, clientID)
	if r.pairs[key] == sessionID {
		delete(r.pairs, key)
	}
	return nil
}

func (r *sessionRepository) Save(ctx context.Context, s *models.ConsultationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		r.byClient[s.ClientID] = append(r.byClient[s.ClientID], s.ID)
		r.byConsultant[s.ConsultantID] = append(r.byConsultant[s.ConsultantID], s.ID)
	}
	r.sessions[s.ID] = s.Clone()

	if s.State.IsTerminal() {
		key := pairKey(s.ConsultantID, s.ClientID)
		if r.pairs[key] == s.ID {
			delete(r.pairs, key)
		}
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (*models.ConsultationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *sessionRepository) FindActive(ctx context.Context, consultantID, clientID string) (*models.ConsultationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.pairs[pairKey(consultantID, clientID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

// ListByClient returns newest first.
func (r *sessionRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]*models.ConsultationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.newestFirst(r.byClient[clientID], limit), nil
}

func (r *sessionRepository) ListByConsultant(ctx context.Context, consultantID string, limit int) ([]*models.ConsultationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.newestFirst(r.byConsultant[consultantID], limit), nil
}

func (r *sessionRepository) newestFirst(ids []string, limit int) []*models.ConsultationSession {
	out := make([]*models.ConsultationSession, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r.sessions[ids[i]].Clone())
	}
	return out
}

func (r *sessionRepository) ListActive(ctx context.Context) ([]*models.ConsultationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ConsultationSession
	for _, s := range r.sessions {
		if !s.State.IsTerminal() {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
