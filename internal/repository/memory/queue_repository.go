package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
)

type targetQueue struct {
	mu      sync.Mutex
	target  models.QueueTarget
	entries []*models.QueueEntry
}

func (q *targetQueue) indexOf(requestID string) int {
	for i, e := range q.entries {
		if e.RequestID == requestID {
			return i
		}
	}
	return -1
}

type resolutionRecord struct {
	r         models.QueueResolution
	expiresAt time.Time
}

type queueRepository struct {
	seq atomic.Int64

	mu     sync.RWMutex
	queues map[string]*targetQueue

	// requestID -> target key
	index sync.Map

	resMu       sync.Mutex
	resolutions map[string]resolutionRecord
	now         func() time.Time
}

func NewQueueRepository() repository.QueueRepository {
	return &queueRepository{
		queues:      make(map[string]*targetQueue),
		resolutions: make(map[string]resolutionRecord),
		now:         time.Now,
	}
}

func (r *queueRepository) queue(target models.QueueTarget, create bool) *targetQueue {
	key := target.Key()

	r.mu.RLock()
	q, ok := r.queues[key]
	r.mu.RUnlock()
	if ok || !create {
		return q
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok = r.queues[key]; !ok {
		q = &targetQueue{target: target}
		r.queues[key] = q
	}
	return q
}

func withPosition(e *models.QueueEntry, pos int) *models.QueueEntry {
	out := *e
	out.Position = int64(pos + 1)
	return &out
}

func (r *queueRepository) Enqueue(ctx context.Context, e *models.QueueEntry) (repository.EnqueueResult, error) {
	q := r.queue(e.Target(), true)
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, existing := range q.entries {
		if existing.ClientID == e.ClientID {
			return repository.EnqueueResult{Entry: withPosition(existing, i)}, nil
		}
	}

	entry := *e
	entry.Seq = r.seq.Add(1)
	entry.Position = 0
	q.entries = append(q.entries, &entry)
	r.index.Store(entry.RequestID, q.target.Key())

	return repository.EnqueueResult{Entry: withPosition(&entry, len(q.entries)-1), Created: true}, nil
}

func (r *queueRepository) lookup(requestID string) *targetQueue {
	key, ok := r.index.Load(requestID)
	if !ok {
		return nil
	}
	target, ok := models.ParseQueueTarget(key.(string))
	if !ok {
		return nil
	}
	return r.queue(target, false)
}

func (r *queueRepository) Get(ctx context.Context, requestID string) (*models.QueueEntry, error) {
	q := r.lookup(requestID)
	if q == nil {
		return nil, repository.ErrNotFound
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(requestID)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	return withPosition(q.entries[i], i), nil
}

func (r *queueRepository) Remove(ctx context.Context, requestID string) (bool, error) {
	q := r.lookup(requestID)
	if q == nil {
		return false, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(requestID)
	if i < 0 {
		return false, nil
	}

	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	r.index.Delete(requestID)
	return true, nil
}

func (r *queueRepository) List(ctx context.Context, target models.QueueTarget, limit int) ([]*models.QueueEntry, error) {
	q := r.queue(target, false)
	if q == nil {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*models.QueueEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, withPosition(q.entries[i], i))
	}
	return out, nil
}

func (r *queueRepository) Length(ctx context.Context, target models.QueueTarget) (int64, error) {
	q := r.queue(target, false)
	if q == nil {
		return 0, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.entries)), nil
}

// Targets lists targets with at least one waiting entry.
func (r *queueRepository) Targets(ctx context.Context) ([]models.QueueTarget, error) {
	r.mu.RLock()
	queues := make([]*targetQueue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.RUnlock()

	out := make([]models.QueueTarget, 0, len(queues))
	for _, q := range queues {
		q.mu.Lock()
		if len(q.entries) > 0 {
			out = append(out, q.target)
		}
		q.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (r *queueRepository) SaveResolution(ctx context.Context, res *models.QueueResolution, ttl time.Duration) error {
	r.resMu.Lock()
	defer r.resMu.Unlock()

	now := r.now()
	for id, rec := range r.resolutions {
		if !rec.expiresAt.IsZero() && now.After(rec.expiresAt) {
			delete(r.resolutions, id)
		}
	}

	rec := resolutionRecord{r: *res}
	if ttl > 0 {
		rec.expiresAt = now.Add(ttl)
	}
	r.resolutions[res.RequestID] = rec
	return nil
}

func (r *queueRepository) GetResolution(ctx context.Context, requestID string) (*models.QueueResolution, error) {
	r.resMu.Lock()
	defer r.resMu.Unlock()

	rec, ok := r.resolutions[requestID]
	if !ok || (!rec.expiresAt.IsZero() && r.now().After(rec.expiresAt)) {
		return nil, repository.ErrNotFound
	}
	res := rec.r
	return &res, nil
}
