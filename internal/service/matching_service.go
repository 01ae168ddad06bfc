package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vogiaan1904/consultroom/config"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

const (
	admitScanLimit  = 50
	notifyScanLimit = 100
)

const (
	leftReasonCancelled         = "cancelled"
	leftReasonExpired           = "expired"
	leftReasonInsufficientFunds = "insufficient_funds"
	leftReasonAdmissionFailed   = "admission_failed"
	leftReasonShutdown          = "service_shutdown"
)

type matchingService struct {
	registry RegistryService
	ledger   LedgerService
	sessions SessionManager
	queue    repository.QueueRepository
	pub      *AsyncPublisher
	bc       Broadcaster
	cfg      config.MatchingConfig
	minStart models.Money
	locks    *keyLocker
	l        logger.Logger
	now      func() time.Time
	closed   atomic.Bool
}

func NewMatchingService(
	registry RegistryService,
	ledger LedgerService,
	sessions SessionManager,
	queue repository.QueueRepository,
	pub *AsyncPublisher,
	bc Broadcaster,
	cfg config.MatchingConfig,
	minStart models.Money,
	l logger.Logger,
) MatchingService {
	return &matchingService{
		registry: registry,
		ledger:   ledger,
		sessions: sessions,
		queue:    queue,
		pub:      pub,
		bc:       bc,
		cfg:      cfg,
		minStart: minStart,
		locks:    newKeyLocker(),
		l:        l,
		now:      time.Now,
	}
}

func rejected(reason RejectReason) *RequestConsultationOutput {
	return &RequestConsultationOutput{Outcome: OutcomeRejected, RejectReason: reason}
}

func (s *matchingService) estimate(position int64) int64 {
	return position * int64(s.cfg.AssumedAverageSessionMinutes)
}

func (s *matchingService) RequestConsultation(ctx context.Context, in RequestConsultationInput) (*RequestConsultationOutput, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrShuttingDown
	}

	bal, err := s.ledger.GetBalance(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if bal.Total() < s.minStart {
		return rejected(RejectInsufficientFunds), nil
	}

	if in.ConsultantID != "" {
		return s.requestDirect(ctx, in)
	}
	return s.requestByService(ctx, in)
}

func (s *matchingService) requestDirect(ctx context.Context, in RequestConsultationInput) (*RequestConsultationOutput, error) {
	c, err := s.registry.Snapshot(ctx, in.ConsultantID)
	if err != nil {
		return nil, err
	}

	switch {
	case !c.Supports(in.CommunicationMethod):
		return rejected(RejectMethodUnsupported), nil
	case c.PricePerMinute > in.MaxPricePerMinute:
		return rejected(RejectPriceAboveLimit), nil
	case c.Availability == models.AvailabilityOffline:
		return rejected(RejectConsultantOffline), nil
	}

	inSession, err := s.hasActivePair(ctx, c.ConsultantID, in.ClientID)
	if err != nil {
		return nil, err
	}
	if inSession {
		return rejected(RejectAlreadyInSession), nil
	}

	target := models.ConsultantTarget(c.ConsultantID)
	unlock := s.locks.Lock(target.Key())
	defer unlock()

	length, err := s.queue.Length(ctx, target)
	if err != nil {
		s.l.Errorf(ctx, "service.matchingService.requestDirect: %v", err)
		return nil, err
	}

	// Waiting clients go first; only an empty queue may be skipped.
	if length == 0 {
		out, err := s.tryAdmit(ctx, c, in)
		if err != nil || out != nil {
			return out, err
		}
	}

	return s.enqueue(ctx, target, in)
}

func (s *matchingService) requestByService(ctx context.Context, in RequestConsultationInput) (*RequestConsultationOutput, error) {
	cs, err := s.registry.ListBySpecialty(ctx, in.ServiceType)
	if err != nil {
		return nil, err
	}

	eligible := make([]models.ConsultantSnapshot, 0, len(cs))
	for _, c := range cs {
		if c.Availability == models.AvailabilityOffline {
			continue
		}
		if !c.Supports(in.CommunicationMethod) || c.PricePerMinute > in.MaxPricePerMinute {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		s.l.Debugf(ctx, "service.matchingService.requestByService: %v for %s", ErrNoMatch, in.ServiceType)
		return rejected(RejectNoMatch), nil
	}

	target := models.ServiceTarget(in.ServiceType)
	unlock := s.locks.Lock(target.Key())
	defer unlock()

	length, err := s.queue.Length(ctx, target)
	if err != nil {
		s.l.Errorf(ctx, "service.matchingService.requestByService: %v", err)
		return nil, err
	}

	if length == 0 {
		candidates, err := s.rankCandidates(ctx, eligible, in.ClientID)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			out, err := s.tryAdmit(ctx, c, in)
			if err != nil {
				if errors.Is(err, ErrConsultantNotFound) {
					continue
				}
				return nil, err
			}
			if out != nil && out.Outcome == OutcomeAdmitted {
				return out, nil
			}
		}
	}

	return s.enqueue(ctx, target, in)
}

// rankCandidates keeps online consultants with an empty direct queue, cheapest first.
func (s *matchingService) rankCandidates(ctx context.Context, eligible []models.ConsultantSnapshot, clientID string) ([]models.ConsultantSnapshot, error) {
	out := make([]models.ConsultantSnapshot, 0, len(eligible))
	for _, c := range eligible {
		if c.Availability != models.AvailabilityOnline {
			continue
		}

		direct, err := s.queue.Length(ctx, models.ConsultantTarget(c.ConsultantID))
		if err != nil {
			return nil, err
		}
		if direct > 0 {
			continue
		}

		inSession, err := s.hasActivePair(ctx, c.ConsultantID, clientID)
		if err != nil {
			return nil, err
		}
		if inSession {
			continue
		}
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b models.ConsultantSnapshot) int {
		if n := cmp.Compare(a.PricePerMinute, b.PricePerMinute); n != 0 {
			return n
		}
		return cmp.Compare(a.ConsultantID, b.ConsultantID)
	})
	return out, nil
}

// tryAdmit returns nil, nil when the consultant had no free slot.
func (s *matchingService) tryAdmit(ctx context.Context, c models.ConsultantSnapshot, in RequestConsultationInput) (*RequestConsultationOutput, error) {
	ok, err := s.registry.TryReserve(ctx, c.ConsultantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	requestID := uuid.New().String()
	sess, err := s.sessions.StartSession(ctx, StartSessionInput{
		RequestID:           requestID,
		ConsultantID:        c.ConsultantID,
		ClientID:            in.ClientID,
		CommunicationMethod: in.CommunicationMethod,
		RatePerMinute:       c.PricePerMinute,
	})
	if err != nil {
		s.release(ctx, c.ConsultantID)
		if errors.Is(err, ErrSessionAlreadyActive) {
			return rejected(RejectAlreadyInSession), nil
		}
		return nil, err
	}

	s.bc.Publish(models.ClientUpdate{
		ClientID:  in.ClientID,
		Type:      models.UpdateTypeAdmitted,
		RequestID: requestID,
		SessionID: sess.ID,
		State:     sess.State,
	})

	return &RequestConsultationOutput{
		Outcome:   OutcomeAdmitted,
		SessionID: sess.ID,
		Session:   sess,
		RequestID: requestID,
	}, nil
}

// enqueue must be called with the target lock held.
func (s *matchingService) enqueue(ctx context.Context, target models.QueueTarget, in RequestConsultationInput) (*RequestConsultationOutput, error) {
	entry := &models.QueueEntry{
		RequestID:           uuid.New().String(),
		ClientID:            in.ClientID,
		CommunicationMethod: in.CommunicationMethod,
		MaxPricePerMinute:   in.MaxPricePerMinute,
		EnqueuedAt:          s.now(),
	}
	if target.Kind == models.TargetConsultant {
		entry.ConsultantID = target.ID
	} else {
		entry.ServiceType = target.ID
	}

	res, err := s.queue.Enqueue(ctx, entry)
	if err != nil {
		s.l.Errorf(ctx, "service.matchingService.enqueue: %v", err)
		return nil, err
	}

	length, err := s.queue.Length(ctx, target)
	if err != nil {
		s.l.Errorf(ctx, "service.matchingService.enqueue: %v", err)
		return nil, err
	}

	e := res.Entry
	wait := s.estimate(e.Position)

	if res.Created {
		event := kafka.QueueJoinedEvent{
			RequestID:            e.RequestID,
			ClientID:             e.ClientID,
			ConsultantID:         e.ConsultantID,
			ServiceType:          e.ServiceType,
			Position:             e.Position,
			EstimatedWaitMinutes: wait,
			JoinedAt:             e.EnqueuedAt,
		}
		s.pub.Publish("PublishQueueJoined", func(ctx context.Context, prod producer.Producer) error {
			return prod.PublishQueueJoined(ctx, event)
		})

		s.bc.Publish(models.ClientUpdate{
			ClientID:             e.ClientID,
			Type:                 models.UpdateTypeQueued,
			RequestID:            e.RequestID,
			Position:             e.Position,
			EstimatedWaitMinutes: wait,
		})

		s.l.Infof(ctx, "Client %s queued on %s at position %d", e.ClientID, target.Key(), e.Position)
	}

	return &RequestConsultationOutput{
		Outcome:              OutcomeQueued,
		RequestID:            e.RequestID,
		Position:             e.Position,
		QueueLength:          length,
		EstimatedWaitMinutes: wait,
	}, nil
}

func (s *matchingService) hasActivePair(ctx context.Context, consultantID, clientID string) (bool, error) {
	_, err := s.sessions.FindActive(ctx, consultantID, clientID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *matchingService) release(ctx context.Context, consultantID string) {
	if err := s.registry.Release(ctx, consultantID); err != nil {
		s.l.Errorf(ctx, "service.matchingService.release: consultant=%s: %v", consultantID, err)
	}
}

func (s *matchingService) OnCapacityFreed(ctx context.Context, consultantID string) {
	s.drain(ctx, consultantID)
}

// drain admits waiting clients to the consultant until it has no free slot or nobody fits.
// The direct queue is served before any service-type queue.
func (s *matchingService) drain(ctx context.Context, consultantID string) int {
	admitted := 0
	for !s.closed.Load() {
		c, err := s.registry.Snapshot(ctx, consultantID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.l.Errorf(ctx, "service.matchingService.drain: %v", err)
			}
			return admitted
		}
		if c.Availability != models.AvailabilityOnline {
			return admitted
		}

		ok, err := s.admitFromTarget(ctx, c, models.ConsultantTarget(consultantID))
		if err != nil {
			s.l.Warnf(ctx, "service.matchingService.drain: consultant=%s: %v", consultantID, err)
		}
		if ok {
			admitted++
			continue
		}

		target, found, err := s.oldestServiceTarget(ctx, c)
		if err != nil {
			s.l.Errorf(ctx, "service.matchingService.drain: %v", err)
			return admitted
		}
		if !found {
			return admitted
		}

		ok, err = s.admitFromTarget(ctx, c, target)
		if err != nil {
			s.l.Warnf(ctx, "service.matchingService.drain: consultant=%s target=%s: %v", consultantID, target.Key(), err)
		}
		if !ok {
			return admitted
		}
		admitted++
	}
	return admitted
}

// oldestServiceTarget picks the specialty queue whose first entry the consultant can serve joined earliest.
func (s *matchingService) oldestServiceTarget(ctx context.Context, c models.ConsultantSnapshot) (models.QueueTarget, bool, error) {
	var (
		best    models.QueueTarget
		bestSeq int64
		found   bool
	)

	for _, specialty := range c.Specialties {
		target := models.ServiceTarget(specialty)
		entries, err := s.queue.List(ctx, target, admitScanLimit)
		if err != nil {
			return models.QueueTarget{}, false, err
		}

		for _, e := range entries {
			if !e.EligibleFor(c) {
				continue
			}
			if !found || e.Seq < bestSeq {
				best, bestSeq, found = target, e.Seq, true
			}
			break
		}
	}
	return best, found, nil
}

// admitFromTarget admits at most one entry, in FIFO order, from the target queue.
func (s *matchingService) admitFromTarget(ctx context.Context, c models.ConsultantSnapshot, target models.QueueTarget) (bool, error) {
	unlock := s.locks.Lock(target.Key())
	defer unlock()

	entries, err := s.queue.List(ctx, target, admitScanLimit)
	if err != nil {
		return false, err
	}

	removed := false
	defer func() {
		if removed {
			s.notifyPositions(ctx, target)
		}
	}()

	for _, e := range entries {
		if !e.EligibleFor(c) {
			continue
		}

		inSession, err := s.hasActivePair(ctx, c.ConsultantID, e.ClientID)
		if err != nil {
			return false, err
		}
		if inSession {
			continue
		}

		ok, err := s.registry.TryReserve(ctx, c.ConsultantID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}

		claimed, err := s.queue.Remove(ctx, e.RequestID)
		if err != nil {
			s.release(ctx, c.ConsultantID)
			return false, err
		}
		if !claimed {
			s.release(ctx, c.ConsultantID)
			s.l.Debugf(ctx, "service.matchingService.admitFromTarget: %v for request %s", ErrRaceLost, e.RequestID)
			continue
		}
		removed = true

		bal, err := s.ledger.GetBalance(ctx, e.ClientID)
		if err != nil || bal.Total() < s.minStart {
			s.release(ctx, c.ConsultantID)
			reason := leftReasonInsufficientFunds
			if err != nil {
				reason = leftReasonAdmissionFailed
			}
			s.resolveLeft(ctx, e, models.ResolutionRejected, reason)
			continue
		}

		sess, err := s.sessions.StartSession(ctx, StartSessionInput{
			RequestID:           e.RequestID,
			ConsultantID:        c.ConsultantID,
			ClientID:            e.ClientID,
			CommunicationMethod: e.CommunicationMethod,
			RatePerMinute:       c.PricePerMinute,
		})
		if err != nil {
			s.release(ctx, c.ConsultantID)
			if errors.Is(err, ErrShuttingDown) {
				s.resolveLeft(ctx, e, models.ResolutionRejected, leftReasonShutdown)
				return false, err
			}
			s.l.Warnf(ctx, "service.matchingService.admitFromTarget: request %s: %v", e.RequestID, err)
			s.resolveLeft(ctx, e, models.ResolutionRejected, leftReasonAdmissionFailed)
			continue
		}

		s.resolveAdmitted(ctx, e, sess)
		return true, nil
	}

	return false, nil
}

func (s *matchingService) saveResolution(ctx context.Context, r *models.QueueResolution) {
	if err := s.queue.SaveResolution(ctx, r, s.cfg.ResolutionTTL); err != nil {
		s.l.Errorf(ctx, "service.matchingService.saveResolution: request=%s: %v", r.RequestID, err)
	}
}

func (s *matchingService) resolveAdmitted(ctx context.Context, e *models.QueueEntry, sess *models.ConsultationSession) {
	now := s.now()
	s.saveResolution(ctx, &models.QueueResolution{
		RequestID: e.RequestID,
		ClientID:  e.ClientID,
		Status:    models.ResolutionAdmitted,
		SessionID: sess.ID,
		At:        now,
	})

	event := kafka.QueueAdmittedEvent{
		RequestID:    e.RequestID,
		SessionID:    sess.ID,
		ClientID:     e.ClientID,
		ConsultantID: sess.ConsultantID,
		RoomToken:    sess.RoomToken,
		AdmittedAt:   now,
	}
	s.pub.Publish("PublishQueueAdmitted", func(ctx context.Context, prod producer.Producer) error {
		return prod.PublishQueueAdmitted(ctx, event)
	})

	s.bc.Publish(models.ClientUpdate{
		ClientID:  e.ClientID,
		Type:      models.UpdateTypeAdmitted,
		RequestID: e.RequestID,
		SessionID: sess.ID,
		State:     sess.State,
	})

	s.l.Infof(ctx, "Admitted queued client %s to consultant %s, session %s", e.ClientID, sess.ConsultantID, sess.ID)
}

func (s *matchingService) resolveLeft(ctx context.Context, e *models.QueueEntry, status models.ResolutionStatus, reason string) {
	now := s.now()
	s.saveResolution(ctx, &models.QueueResolution{
		RequestID: e.RequestID,
		ClientID:  e.ClientID,
		Status:    status,
		Reason:    reason,
		At:        now,
	})

	event := kafka.QueueLeftEvent{
		RequestID:    e.RequestID,
		ClientID:     e.ClientID,
		ConsultantID: e.ConsultantID,
		ServiceType:  e.ServiceType,
		Reason:       reason,
		LeftAt:       now,
	}
	s.pub.Publish("PublishQueueLeft", func(ctx context.Context, prod producer.Producer) error {
		return prod.PublishQueueLeft(ctx, event)
	})

	s.bc.Publish(models.ClientUpdate{
		ClientID:  e.ClientID,
		Type:      models.UpdateTypeQueueLeft,
		RequestID: e.RequestID,
		Reason:    reason,
	})
}

func (s *matchingService) notifyPositions(ctx context.Context, target models.QueueTarget) {
	entries, err := s.queue.List(ctx, target, notifyScanLimit)
	if err != nil {
		s.l.Warnf(ctx, "service.matchingService.notifyPositions: %v", err)
		return
	}

	for _, e := range entries {
		s.bc.Publish(models.ClientUpdate{
			ClientID:             e.ClientID,
			Type:                 models.UpdateTypePositionChanged,
			RequestID:            e.RequestID,
			Position:             e.Position,
			EstimatedWaitMinutes: s.estimate(e.Position),
		})
	}
}

func (s *matchingService) CancelQueueEntry(ctx context.Context, requestID string) error {
	if requestID == "" {
		return ErrInvalidRequest
	}

	e, err := s.queue.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		s.l.Errorf(ctx, "service.matchingService.CancelQueueEntry: %v", err)
		return err
	}

	target := e.Target()
	unlock := s.locks.Lock(target.Key())
	defer unlock()

	removed, err := s.queue.Remove(ctx, requestID)
	if err != nil {
		s.l.Errorf(ctx, "service.matchingService.CancelQueueEntry: %v", err)
		return err
	}
	if !removed {
		return nil
	}

	s.resolveLeft(ctx, e, models.ResolutionCancelled, leftReasonCancelled)
	s.notifyPositions(ctx, target)

	s.l.Infof(ctx, "Client %s left queue %s", e.ClientID, target.Key())
	return nil
}

func (s *matchingService) GetQueueStatus(ctx context.Context, requestID string) (*QueueStatusOutput, error) {
	if requestID == "" {
		return nil, ErrInvalidRequest
	}

	e, err := s.queue.Get(ctx, requestID)
	if err == nil {
		length, err := s.queue.Length(ctx, e.Target())
		if err != nil {
			return nil, err
		}
		return &QueueStatusOutput{
			RequestID:            e.RequestID,
			ClientID:             e.ClientID,
			Status:               QueueStatusQueued,
			Position:             e.Position,
			QueueLength:          length,
			EstimatedWaitMinutes: s.estimate(e.Position),
			Target:               e.Target(),
			EnqueuedAt:           e.EnqueuedAt,
		}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.l.Errorf(ctx, "service.matchingService.GetQueueStatus: %v", err)
		return nil, err
	}

	r, err := s.queue.GetResolution(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQueueEntryNotFound
		}
		s.l.Errorf(ctx, "service.matchingService.GetQueueStatus: %v", err)
		return nil, err
	}

	at := r.At
	return &QueueStatusOutput{
		RequestID:  r.RequestID,
		ClientID:   r.ClientID,
		Status:     string(r.Status),
		SessionID:  r.SessionID,
		Reason:     r.Reason,
		ResolvedAt: &at,
		Resolution: r,
	}, nil
}

// SetPresence toggles presence. Going online drains waiting clients; direct entries survive going offline.
func (s *matchingService) SetPresence(ctx context.Context, consultantID string, online bool) (models.ConsultantSnapshot, error) {
	snap, err := s.registry.SetPresence(ctx, consultantID, online)
	if err != nil {
		return models.ConsultantSnapshot{}, err
	}
	if !online || snap.Availability != models.AvailabilityOnline {
		return snap, nil
	}

	if s.drain(ctx, consultantID) == 0 {
		return snap, nil
	}
	return s.registry.Snapshot(ctx, consultantID)
}

func (s *matchingService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	targets, err := s.queue.Targets(ctx)
	if err != nil {
		s.l.Errorf(ctx, "service.matchingService.ExpireStale: %v", err)
		return 0, err
	}

	total := 0
	for _, t := range targets {
		n, err := s.expireTarget(ctx, t, now)
		if err != nil {
			s.l.Warnf(ctx, "service.matchingService.ExpireStale: target=%s: %v", t.Key(), err)
		}
		total += n
	}
	return total, nil
}

func (s *matchingService) expireTarget(ctx context.Context, target models.QueueTarget, now time.Time) (int, error) {
	unlock := s.locks.Lock(target.Key())
	defer unlock()

	entries, err := s.queue.List(ctx, target, 0)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range entries {
		if !e.IsExpired(now, s.cfg.QueueEntryTTL) {
			continue
		}
		removed, err := s.queue.Remove(ctx, e.RequestID)
		if err != nil {
			return count, err
		}
		if !removed {
			continue
		}
		s.resolveLeft(ctx, e, models.ResolutionExpired, leftReasonExpired)
		count++
	}

	if count > 0 {
		s.notifyPositions(ctx, target)
		s.l.Infof(ctx, "Expired %d entries from %s", count, target.Key())
	}
	return count, nil
}

func (s *matchingService) DrainAll(ctx context.Context) (int, error) {
	cs, err := s.registry.List(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range cs {
		if s.closed.Load() {
			break
		}
		if c.Availability != models.AvailabilityOnline {
			continue
		}
		total += s.drain(ctx, c.ConsultantID)
	}
	return total, nil
}

func (s *matchingService) Close() {
	s.closed.Store(true)
}
