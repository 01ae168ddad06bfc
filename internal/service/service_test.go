package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vogiaan1904/consultroom/config"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/internal/repository/memory"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

type recordingProducer struct {
	producer.Producer

	mu       sync.Mutex
	billed   []kafka.SessionBilledEvent
	ended    []kafka.SessionEndedEvent
	alerts   []kafka.BillingAlertEvent
	admitted []kafka.QueueAdmittedEvent
	left     []kafka.QueueLeftEvent
}

func newRecordingProducer(l logger.Logger) *recordingProducer {
	return &recordingProducer{Producer: producer.NewNopProducer(l)}
}

func (p *recordingProducer) PublishSessionBilled(ctx context.Context, e kafka.SessionBilledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.billed = append(p.billed, e)
	return nil
}

func (p *recordingProducer) PublishSessionEnded(ctx context.Context, e kafka.SessionEndedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, e)
	return nil
}

func (p *recordingProducer) PublishBillingAlert(ctx context.Context, e kafka.BillingAlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, e)
	return nil
}

func (p *recordingProducer) PublishQueueAdmitted(ctx context.Context, e kafka.QueueAdmittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.admitted = append(p.admitted, e)
	return nil
}

func (p *recordingProducer) PublishQueueLeft(ctx context.Context, e kafka.QueueLeftEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left = append(p.left, e)
	return nil
}

func (p *recordingProducer) alertList() []kafka.BillingAlertEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.BillingAlertEvent(nil), p.alerts...)
}

func (p *recordingProducer) counts() (billed, ended, alerts, admitted, left int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.billed), len(p.ended), len(p.alerts), len(p.admitted), len(p.left)
}

type testEnv struct {
	l        logger.Logger
	prod     *recordingProducer
	pub      *AsyncPublisher
	bc       Broadcaster
	ledger   LedgerService
	registry RegistryService
	sessRepo repository.SessionRepository
	queues   repository.QueueRepository
	sessions *sessionManager
	matching *matchingService
}

type envOption func(*config.BillingConfig, *LedgerService)

func withTick(tick time.Duration) envOption {
	return func(b *config.BillingConfig, _ *LedgerService) {
		b.TickInterval = tick
		b.TickTimeout = tick / 2
	}
}

func withLedger(wrap func(LedgerService) LedgerService) envOption {
	return func(_ *config.BillingConfig, l *LedgerService) {
		*l = wrap(*l)
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	l := logger.InitializeNopLogger()
	prod := newRecordingProducer(l)
	pub := NewAsyncPublisher(prod, l, 1024)
	bc := NewBroadcaster(l)

	billing := config.BillingConfig{
		TickInterval:         time.Hour,
		TickTimeout:          time.Second,
		MinStartBalanceCents: 500,
	}

	ledger := NewLedgerService(memory.NewBalanceRepository(), pub, 50, l)
	sessionLedger := ledger
	for _, opt := range opts {
		opt(&billing, &sessionLedger)
	}

	registry := NewRegistryService(memory.NewConsultantRepository(), 1, l)
	sessRepo := memory.NewSessionRepository()
	queues := memory.NewQueueRepository()

	sessions := NewSessionManager(sessRepo, registry, sessionLedger, pub, bc, billing,
		config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}, l).(*sessionManager)

	matching := NewMatchingService(registry, ledger, sessions, queues, pub, bc, config.MatchingConfig{
		AssumedAverageSessionMinutes: 10,
		DefaultCapacity:              1,
		QueueEntryTTL:                30 * time.Minute,
		ResolutionTTL:                time.Hour,
		ProcessInterval:              time.Second,
	}, models.Money(billing.MinStartBalanceCents), l).(*matchingService)

	sessions.SetCapacityFreedHandler(matching.OnCapacityFreed)

	t.Cleanup(func() {
		matching.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sessions.Close(ctx)
		pub.Close()
	})

	return &testEnv{
		l:        l,
		prod:     prod,
		pub:      pub,
		bc:       bc,
		ledger:   ledger,
		registry: registry,
		sessRepo: sessRepo,
		queues:   queues,
		sessions: sessions,
		matching: matching,
	}
}

// addConsultant registers an online consultant offering chat and video.
func (e *testEnv) addConsultant(t *testing.T, id string, price models.Money, capacity int, specialties ...string) {
	t.Helper()
	ctx := context.Background()

	_, err := e.registry.UpsertConsultant(ctx, UpsertConsultantInput{
		ConsultantID:         id,
		PricePerMinute:       price,
		Capacity:             capacity,
		Specialties:          specialties,
		CommunicationMethods: []models.CommunicationMethod{models.MethodChat, models.MethodVideo},
	})
	if err != nil {
		t.Fatalf("UpsertConsultant(%s) error = %v", id, err)
	}
	if _, err := e.registry.SetPresence(ctx, id, true); err != nil {
		t.Fatalf("SetPresence(%s) error = %v", id, err)
	}
}

func (e *testEnv) fund(t *testing.T, clientID string, amount models.Money) {
	t.Helper()
	if _, err := e.ledger.Credit(context.Background(), CreditInput{ClientID: clientID, Amount: amount}); err != nil {
		t.Fatalf("Credit(%s) error = %v", clientID, err)
	}
}

func (e *testEnv) request(t *testing.T, clientID, consultantID string) *RequestConsultationOutput {
	t.Helper()
	out, err := e.matching.RequestConsultation(context.Background(), RequestConsultationInput{
		ClientID:            clientID,
		ConsultantID:        consultantID,
		CommunicationMethod: models.MethodChat,
		MaxPricePerMinute:   10_000,
	})
	if err != nil {
		t.Fatalf("RequestConsultation(%s -> %s) error = %v", clientID, consultantID, err)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
