package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vogiaan1904/consultroom/config"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/pkg/logger"
	"github.com/vogiaan1904/consultroom/pkg/util"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	// lateDebitTimeout bounds the refund of a debit that landed after its tick gave up.
	lateDebitTimeout = 5 * time.Second
	earningsWindow   = 30 * 24 * time.Hour
)

// liveSession is a session owned by this process. mu serializes ticks and terminal transitions.
type liveSession struct {
	mu   sync.Mutex
	s    *models.ConsultationSession
	stop chan struct{}
	ctx  context.Context
}

type sessionManager struct {
	repo     repository.SessionRepository
	registry RegistryService
	ledger   LedgerService
	pub      *AsyncPublisher
	bc       Broadcaster
	billing  config.BillingConfig
	jwt      config.JWTConfig
	l        logger.Logger
	now      func() time.Time

	freedMu sync.RWMutex
	onFreed func(ctx context.Context, consultantID string)

	mu      sync.Mutex
	live    map[string]*liveSession
	closing bool
	wg      sync.WaitGroup
}

func NewSessionManager(
	repo repository.SessionRepository,
	registry RegistryService,
	ledger LedgerService,
	pub *AsyncPublisher,
	bc Broadcaster,
	billing config.BillingConfig,
	jwtCfg config.JWTConfig,
	l logger.Logger,
) SessionManager {
	return &sessionManager{
		repo:     repo,
		registry: registry,
		ledger:   ledger,
		pub:      pub,
		bc:       bc,
		billing:  billing,
		jwt:      jwtCfg,
		l:        l,
		now:      time.Now,
		live:     make(map[string]*liveSession),
	}
}

func (m *sessionManager) SetCapacityFreedHandler(fn func(ctx context.Context, consultantID string)) {
	m.freedMu.Lock()
	defer m.freedMu.Unlock()
	m.onFreed = fn
}

func (m *sessionManager) capacityFreed(ctx context.Context, consultantID string) {
	m.freedMu.RLock()
	fn := m.onFreed
	m.freedMu.RUnlock()

	if fn != nil {
		fn(ctx, consultantID)
	}
}

func (m *sessionManager) StartSession(ctx context.Context, in StartSessionInput) (*models.ConsultationSession, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	closing := m.closing
	m.mu.Unlock()
	if closing {
		return nil, ErrShuttingDown
	}

	now := m.now()
	s := &models.ConsultationSession{
		ID:                  uuid.New().String(),
		RequestID:           in.RequestID,
		ConsultantID:        in.ConsultantID,
		ClientID:            in.ClientID,
		CommunicationMethod: in.CommunicationMethod,
		RatePerMinute:       in.RatePerMinute,
		State:               models.SessionStateAdmitted,
		StartedAt:           now,
		UpdatedAt:           now,
	}

	claimed, err := m.repo.ClaimActivePair(ctx, in.ConsultantID, in.ClientID, s.ID)
	if err != nil {
		m.l.Errorf(ctx, "service.sessionManager.StartSession: %v", err)
		return nil, err
	}
	if !claimed {
		return nil, ErrSessionAlreadyActive
	}

	token, err := m.signRoomToken(s)
	if err != nil {
		m.abandon(ctx, s)
		return nil, err
	}
	s.RoomToken = token

	if err := s.Transition(models.SessionStateActive, now); err != nil {
		m.abandon(ctx, s)
		return nil, err
	}

	if err := m.repo.Save(ctx, s); err != nil {
		m.l.Errorf(ctx, "service.sessionManager.StartSession: %v", err)
		m.abandon(ctx, s)
		return nil, err
	}

	ls := &liveSession{
		s:    s,
		stop: make(chan struct{}),
		ctx:  m.l.WithFields(context.Background(), "session_id", s.ID, "client_id", s.ClientID, "consultant_id", s.ConsultantID),
	}
	out := s.Clone()

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		m.abandon(ctx, s)
		return nil, ErrShuttingDown
	}
	m.live[s.ID] = ls
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ls)

	event := kafka.SessionStartedEvent{
		SessionID:           out.ID,
		RequestID:           out.RequestID,
		ClientID:            out.ClientID,
		ConsultantID:        out.ConsultantID,
		CommunicationMethod: string(out.CommunicationMethod),
		RatePerMinute:       int64(out.RatePerMinute),
		RoomToken:           out.RoomToken,
		StartedAt:           out.StartedAt,
	}
	m.pub.Publish("PublishSessionStarted", func(ctx context.Context, prod producer.Producer) error {
		return prod.PublishSessionStarted(ctx, event)
	})

	m.l.Infof(ls.ctx, "Session started at %s per minute", out.RatePerMinute)

	return out, nil
}

// abandon drops the pair claim of a session that never became live.
func (m *sessionManager) abandon(ctx context.Context, s *models.ConsultationSession) {
	now := m.now()
	s.State = models.SessionStateFailed
	s.EndedAt = &now
	s.UpdatedAt = now
	if err := m.repo.Save(ctx, s); err != nil {
		m.l.Errorf(ctx, "service.sessionManager.abandon: session=%s: %v", s.ID, err)
		if err := m.repo.ReleaseActivePair(ctx, s.ConsultantID, s.ClientID, s.ID); err != nil {
			m.l.Errorf(ctx, "service.sessionManager.abandon: release pair: session=%s: %v", s.ID, err)
		}
	}
}

func (m *sessionManager) run(ls *liveSession) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.billing.TickInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if m.billing.MaxSessionDuration > 0 {
		timer := time.NewTimer(m.billing.MaxSessionDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ls.stop:
			return
		case <-ticker.C:
			if done := m.tick(ls); done {
				return
			}
		case <-deadline:
			ls.mu.Lock()
			snap := m.terminate(ls, models.EndReasonTimeout)
			ls.mu.Unlock()
			if snap != nil {
				m.afterTerminate(ls.ctx, snap)
			}
			return
		}
	}
}

// tick bills one minute. It returns true once the session is terminal.
func (m *sessionManager) tick(ls *liveSession) bool {
	ls.mu.Lock()

	s := ls.s
	if !s.IsActive() {
		ls.mu.Unlock()
		return true
	}

	minute := s.MinutesBilled + 1
	ref := fmt.Sprintf("session:%s:minute:%d", s.ID, minute)

	out, err := m.debit(ls.ctx, s, s.RatePerMinute, ref)
	if err == nil {
		s.MinutesBilled = minute
		s.CreditsCharged += s.RatePerMinute
		s.UpdatedAt = m.now()
		m.persist(ls.ctx, s)
		snap := s.Clone()
		ls.mu.Unlock()

		m.publishBilled(ls.ctx, snap, minute, s.RatePerMinute, out.Balance.Total(), false)
		return false
	}

	reason := models.EndReasonBillingError
	var (
		partial    models.Money
		partialBal models.Money
		ife        *InsufficientFundsError
	)

	if errors.As(err, &ife) {
		reason = models.EndReasonCreditsExhausted
		if ife.Available > 0 {
			pout, perr := m.debit(ls.ctx, s, ife.Available, ref+":partial")
			switch {
			case perr == nil:
				partial = ife.Available
				partialBal = pout.Balance.Total()
				s.CreditsCharged += partial
			case errors.Is(perr, ErrInsufficientFunds):
				// The balance moved under us. Nothing more to take.
			default:
				reason = models.EndReasonBillingError
				err = perr
			}
		}
	}

	snap := m.terminate(ls, reason)
	ls.mu.Unlock()

	if partial > 0 {
		m.publishBilled(ls.ctx, snap, minute, partial, partialBal, true)
	}
	if reason == models.EndReasonBillingError {
		m.alert(ls.ctx, snap, "billing_error", err)
	}
	m.afterTerminate(ls.ctx, snap)
	return true
}

type debitResult struct {
	out DebitOutput
	err error
}

// debit bounds the ledger call by the tick timeout. Anything other than
// insufficient funds comes back wrapped in ErrBillingError.
func (m *sessionManager) debit(ctx context.Context, s *models.ConsultationSession, amount models.Money, ref string) (DebitOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, m.billing.TickTimeout)
	defer cancel()

	ch := make(chan debitResult, 1)
	go func() {
		out, err := m.ledger.Debit(ctx, DebitInput{ClientID: s.ClientID, Amount: amount, Reference: ref})
		ch <- debitResult{out: out, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && !errors.Is(r.err, ErrInsufficientFunds) {
			return r.out, fmt.Errorf("%w: %w", ErrBillingError, r.err)
		}
		return r.out, r.err
	case <-ctx.Done():
		m.voidLateDebit(ctx, s.Clone(), ref, ch)
		return DebitOutput{}, fmt.Errorf("%w: ledger call exceeded %s", ErrBillingError, m.billing.TickTimeout)
	}
}

// voidLateDebit waits for an abandoned ledger call. A debit that still went through
// is refunded under ref+":void" so the session record and the balance agree.
func (m *sessionManager) voidLateDebit(ctx context.Context, snap *models.ConsultationSession, ref string, ch <-chan debitResult) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		r := <-ch
		if r.err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lateDebitTimeout)
		defer cancel()

		var errs []error
		if r.out.FromNormal > 0 {
			if _, err := m.ledger.Credit(ctx, CreditInput{
				ClientID:  snap.ClientID,
				Amount:    r.out.FromNormal,
				Kind:      models.CreditKindNormal,
				Reference: ref + ":void",
			}); err != nil {
				errs = append(errs, err)
			}
		}
		if r.out.FromBonus > 0 {
			if _, err := m.ledger.Credit(ctx, CreditInput{
				ClientID:  snap.ClientID,
				Amount:    r.out.FromBonus,
				Kind:      models.CreditKindBonus,
				Reference: ref + ":void:bonus",
			}); err != nil {
				errs = append(errs, err)
			}
		}

		if err := errors.Join(errs...); err != nil {
			m.publishAlert(ctx, snap, "late_debit_unrefunded", err, r.out.Charged, ref)
			return
		}
		m.publishAlert(ctx, snap, "late_debit_voided",
			fmt.Errorf("debit landed after %s and was refunded", m.billing.TickTimeout), r.out.Charged, ref)
	}()
}

// terminate must be called with ls.mu held. It returns nil if the session already ended.
func (m *sessionManager) terminate(ls *liveSession, reason models.EndReason) *models.ConsultationSession {
	s := ls.s
	now := m.now()
	if err := s.Transition(reason.TerminalState(), now); err != nil {
		return nil
	}
	s.EndReason = reason
	s.EndedAt = &now
	m.persist(ls.ctx, s)
	close(ls.stop)

	m.mu.Lock()
	delete(m.live, s.ID)
	m.mu.Unlock()

	return s.Clone()
}

// afterTerminate runs outside the session lock: release the slot, announce, then wake the queue.
func (m *sessionManager) afterTerminate(ctx context.Context, snap *models.ConsultationSession) {
	if err := m.registry.Release(ctx, snap.ConsultantID); err != nil {
		m.alert(ctx, snap, "release_failed", err)
	}

	event := kafka.SessionEndedEvent{
		SessionID:       snap.ID,
		ClientID:        snap.ClientID,
		ConsultantID:    snap.ConsultantID,
		State:           string(snap.State),
		EndReason:       string(snap.EndReason),
		MinutesBilled:   snap.MinutesBilled,
		CreditsCharged:  int64(snap.CreditsCharged),
		DurationMinutes: util.WholeMinutes(snap.EndedAt.Sub(snap.StartedAt)),
		StartedAt:       snap.StartedAt,
		EndedAt:         *snap.EndedAt,
	}
	m.pub.Publish("PublishSessionEnded", func(ctx context.Context, prod producer.Producer) error {
		return prod.PublishSessionEnded(ctx, event)
	})

	m.bc.Publish(models.ClientUpdate{
		ClientID:       snap.ClientID,
		Type:           models.UpdateTypeSessionEnded,
		RequestID:      snap.RequestID,
		SessionID:      snap.ID,
		State:          snap.State,
		EndReason:      snap.EndReason,
		MinutesBilled:  snap.MinutesBilled,
		CreditsCharged: snap.CreditsCharged,
	})

	m.l.Infof(ctx, "Session ended: state=%s reason=%s minutes=%d charged=%s", snap.State, snap.EndReason, snap.MinutesBilled, snap.CreditsCharged)

	m.capacityFreed(ctx, snap.ConsultantID)
}

func (m *sessionManager) persist(ctx context.Context, s *models.ConsultationSession) {
	if err := m.repo.Save(ctx, s); err != nil {
		m.l.Errorf(ctx, "service.sessionManager.persist: %v", err)
	}
}

func (m *sessionManager) publishBilled(ctx context.Context, snap *models.ConsultationSession, minute int64, amount, balanceAfter models.Money, partial bool) {
	event := kafka.SessionBilledEvent{
		SessionID:      snap.ID,
		ClientID:       snap.ClientID,
		ConsultantID:   snap.ConsultantID,
		Minute:         minute,
		Amount:         int64(amount),
		CreditsCharged: int64(snap.CreditsCharged),
		BalanceAfter:   int64(balanceAfter),
		Partial:        partial,
	}
	m.pub.Publish("PublishSessionBilled", func(ctx context.Context, prod producer.Producer) error {
		return prod.PublishSessionBilled(ctx, event)
	})

	m.bc.Publish(models.ClientUpdate{
		ClientID:       snap.ClientID,
		Type:           models.UpdateTypeSessionBilled,
		SessionID:      snap.ID,
		State:          snap.State,
		MinutesBilled:  snap.MinutesBilled,
		CreditsCharged: snap.CreditsCharged,
	})

	m.l.Debugf(ctx, "Billed minute %d: %s (partial=%v), balance %s", minute, amount, partial, balanceAfter)
}

func (m *sessionManager) alert(ctx context.Context, snap *models.ConsultationSession, reason string, err error) {
	m.publishAlert(ctx, snap, reason, err, 0, "")
}

func (m *sessionManager) publishAlert(ctx context.Context, snap *models.ConsultationSession, reason string, err error, amount models.Money, ref string) {
	m.l.Errorf(ctx, "service.sessionManager: %s: session=%s client=%s consultant=%s ref=%s: %v", reason, snap.ID, snap.ClientID, snap.ConsultantID, ref, err)

	event := kafka.BillingAlertEvent{
		SessionID:    snap.ID,
		ClientID:     snap.ClientID,
		ConsultantID: snap.ConsultantID,
		Reason:       reason,
		Error:        err.Error(),
		Amount:       int64(amount),
		Reference:    ref,
	}
	m.pub.Publish("PublishBillingAlert", func(ctx context.Context, prod producer.Producer) error {
		return prod.PublishBillingAlert(ctx, event)
	})
}

func (m *sessionManager) EndSession(ctx context.Context, sessionID string, reason models.EndReason) (*models.ConsultationSession, error) {
	if !reason.IsCallerReason() {
		return nil, ErrInvalidRequest
	}

	m.mu.Lock()
	ls := m.live[sessionID]
	m.mu.Unlock()

	if ls == nil {
		s, err := m.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if s.State.IsTerminal() {
			return s, nil
		}
		return m.endOrphan(ctx, s, reason)
	}

	ls.mu.Lock()
	if ls.s.State.IsTerminal() {
		snap := ls.s.Clone()
		ls.mu.Unlock()
		return snap, nil
	}
	snap := m.terminate(ls, reason)
	ls.mu.Unlock()

	m.afterTerminate(ls.ctx, snap)
	return snap, nil
}

// endOrphan closes a session the store reports active but no live goroutine owns.
func (m *sessionManager) endOrphan(ctx context.Context, s *models.ConsultationSession, reason models.EndReason) (*models.ConsultationSession, error) {
	now := m.now()
	if err := s.Transition(reason.TerminalState(), now); err != nil {
		return nil, err
	}
	s.EndReason = reason
	s.EndedAt = &now

	if err := m.repo.Save(ctx, s); err != nil {
		m.l.Errorf(ctx, "service.sessionManager.endOrphan: %v", err)
		return nil, err
	}

	m.afterTerminate(ctx, s)
	return s.Clone(), nil
}

func (m *sessionManager) RecoverOrphans(ctx context.Context) (int, error) {
	active, err := m.repo.ListActive(ctx)
	if err != nil {
		m.l.Errorf(ctx, "service.sessionManager.RecoverOrphans: %v", err)
		return 0, err
	}

	count := 0
	for _, s := range active {
		m.mu.Lock()
		_, owned := m.live[s.ID]
		m.mu.Unlock()
		if owned {
			continue
		}

		if _, err := m.endOrphan(ctx, s, models.EndReasonShutdown); err != nil {
			m.l.Warnf(ctx, "service.sessionManager.RecoverOrphans: session=%s: %v", s.ID, err)
			continue
		}
		count++
	}

	if count > 0 {
		m.l.Warnf(ctx, "Recovered %d orphaned sessions from a previous run", count)
	}
	return count, nil
}

func (m *sessionManager) GetSession(ctx context.Context, sessionID string) (*models.ConsultationSession, error) {
	m.mu.Lock()
	ls := m.live[sessionID]
	m.mu.Unlock()

	if ls != nil {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		return ls.s.Clone(), nil
	}

	s, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, mapRepoError(err, ErrSessionNotFound)
	}
	return s, nil
}

func (m *sessionManager) FindActive(ctx context.Context, consultantID, clientID string) (*models.ConsultationSession, error) {
	s, err := m.repo.FindActive(ctx, consultantID, clientID)
	if err != nil {
		return nil, mapRepoError(err, ErrSessionNotFound)
	}
	return s, nil
}

func (m *sessionManager) ListClientSessions(ctx context.Context, clientID string, limit int) ([]*models.ConsultationSession, error) {
	if clientID == "" {
		return nil, ErrInvalidRequest
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	ss, err := m.repo.ListByClient(ctx, clientID, limit)
	if err != nil {
		m.l.Errorf(ctx, "service.sessionManager.ListClientSessions: %v", err)
		return nil, err
	}
	return ss, nil
}

func (m *sessionManager) ClientStats(ctx context.Context, clientID string) (*ClientStatsOutput, error) {
	ss, err := m.ListClientSessions(ctx, clientID, maxHistoryLimit)
	if err != nil {
		return nil, err
	}

	out := &ClientStatsOutput{ClientID: clientID, TotalSessions: len(ss)}
	for _, s := range ss {
		switch {
		case s.State == models.SessionStateCompleted:
			out.CompletedSessions++
		case !s.State.IsTerminal():
			out.ActiveSessions++
		}
		out.TotalMinutesBilled += s.MinutesBilled
		out.TotalSpent += s.CreditsCharged
	}
	return out, nil
}

func (m *sessionManager) ConsultantStats(ctx context.Context, consultantID string) (*ConsultantStatsOutput, error) {
	if consultantID == "" {
		return nil, ErrInvalidRequest
	}
	if _, err := m.registry.Snapshot(ctx, consultantID); err != nil {
		return nil, err
	}

	ss, err := m.repo.ListByConsultant(ctx, consultantID, 0)
	if err != nil {
		m.l.Errorf(ctx, "service.sessionManager.ConsultantStats: %v", err)
		return nil, err
	}

	since := m.now().Add(-earningsWindow)
	out := &ConsultantStatsOutput{ConsultantID: consultantID}
	for _, s := range ss {
		if !s.State.IsTerminal() {
			out.ActiveSessions++
			continue
		}
		out.TotalSessions++
		out.TotalMinutesBilled += s.MinutesBilled
		out.TotalEarnings += s.CreditsCharged
		if !s.StartedAt.Before(since) {
			out.MonthlySessions++
			out.MonthlyEarnings += s.CreditsCharged
		}
	}
	if out.TotalSessions > 0 {
		out.AverageSessionMinutes = float64(out.TotalMinutesBilled) / float64(out.TotalSessions)
	}
	return out, nil
}

func (m *sessionManager) signRoomToken(s *models.ConsultationSession) (string, error) {
	now := m.now()
	claims := jwt.MapClaims{
		"session_id":    s.ID,
		"client_id":     s.ClientID,
		"consultant_id": s.ConsultantID,
		"exp":           now.Add(m.jwt.Expiry).Unix(),
		"iat":           now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(m.jwt.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign room token: %w", err)
	}
	return tokenStr, nil
}

func (m *sessionManager) ValidateRoomToken(ctx context.Context, tokenStr string) (*RoomClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(m.jwt.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrRoomTokenExpired
		}
		return nil, ErrInvalidRoomToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidRoomToken
	}

	sessionID, _ := claims["session_id"].(string)
	clientID, _ := claims["client_id"].(string)
	consultantID, _ := claims["consultant_id"].(string)
	if sessionID == "" {
		return nil, ErrInvalidRoomToken
	}

	s, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive() || s.RoomToken != tokenStr {
		return nil, ErrInvalidRoomToken
	}

	out := &RoomClaims{SessionID: sessionID, ClientID: clientID, ConsultantID: consultantID}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func (m *sessionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close ends every live session as cancelled/service_shutdown and waits for their goroutines.
func (m *sessionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	lives := make([]*liveSession, 0, len(m.live))
	for _, ls := range m.live {
		lives = append(lives, ls)
	}
	m.mu.Unlock()

	for _, ls := range lives {
		ls.mu.Lock()
		snap := m.terminate(ls, models.EndReasonShutdown)
		ls.mu.Unlock()
		if snap != nil {
			m.afterTerminate(ls.ctx, snap)
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.l.Infof(ctx, "Session manager closed, %d sessions ended", len(lives))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
