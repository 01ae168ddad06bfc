package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vogiaan1904/consultroom/config"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

func TestKeyLockerSerializesAndForgets(t *testing.T) {
	k := newKeyLocker()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)
	for range 50 {
		wg.Go(func() {
			unlock := k.Lock("consultant:c-1")
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		})
	}
	wg.Wait()

	if overlap.Load() {
		t.Fatalf("two holders inside the same key")
	}
	if n := k.size(); n != 0 {
		t.Fatalf("size = %d after all unlocks, want 0", n)
	}
}

func TestKeyLockerIndependentKeys(t *testing.T) {
	k := newKeyLocker()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on b blocked behind a")
	}
}

func TestBroadcasterDeliversPerClient(t *testing.T) {
	b := NewBroadcaster(logger.InitializeNopLogger())

	alice, unsubA := b.Subscribe("alice")
	bob, unsubB := b.Subscribe("bob")
	defer unsubB()

	b.Publish(models.ClientUpdate{ClientID: "alice", Type: models.UpdateTypeQueued, Position: 2})

	select {
	case u := <-alice:
		if u.Position != 2 || u.Timestamp.IsZero() {
			t.Fatalf("update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatalf("alice got nothing")
	}

	select {
	case u := <-bob:
		t.Fatalf("bob got %+v", u)
	default:
	}

	unsubA()
	unsubA()
	if _, ok := <-alice; ok {
		t.Fatalf("channel still open after unsubscribe")
	}

	// Publishing to a client with no subscribers must not panic.
	b.Publish(models.ClientUpdate{ClientID: "alice", Type: models.UpdateTypeQueueLeft})
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(logger.InitializeNopLogger())
	ch, unsub := b.Subscribe("alice")
	defer unsub()

	for i := range subscriberBuffer * 2 {
		b.Publish(models.ClientUpdate{ClientID: "alice", Position: int64(i)})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

type countingProducer struct {
	producer.Producer
	n atomic.Int32
}

func TestAsyncPublisherFlushesOnClose(t *testing.T) {
	l := logger.InitializeNopLogger()
	prod := &countingProducer{Producer: producer.NewNopProducer(l)}
	pub := NewAsyncPublisher(prod, l, 64)

	for range 10 {
		pub.Publish("test", func(ctx context.Context, p producer.Producer) error {
			prod.n.Add(1)
			return nil
		})
	}
	pub.Publish("failing", func(ctx context.Context, p producer.Producer) error {
		return errors.New("broker down")
	})
	pub.Close()
	pub.Close()

	if got := prod.n.Load(); got != 10 {
		t.Fatalf("published %d, want 10", got)
	}

	// Dropped after close.
	pub.Publish("late", func(ctx context.Context, p producer.Producer) error {
		prod.n.Add(1)
		return nil
	})
	if got := prod.n.Load(); got != 10 {
		t.Fatalf("late publish ran")
	}
}

func TestQueueProcessorLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 1)
	env.fund(t, "a", 5_000)
	env.fund(t, "b", 5_000)

	a := env.request(t, "a", "c-1")
	b := env.request(t, "b", "c-1")

	env.sessions.SetCapacityFreedHandler(nil)
	if _, err := env.sessions.EndSession(ctx, a.SessionID, models.EndReasonClientEnded); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	qp := NewQueueProcessor(env.matching, env.sessions, env.l, config.MatchingConfig{ProcessInterval: 10 * time.Millisecond})
	if err := qp.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := qp.Start(ctx); err == nil {
		t.Fatalf("second Start() should fail")
	}

	waitFor(t, "processor to admit b", func() bool {
		return qp.GetStatus().TotalAdmitted == 1
	})

	status, _ := env.matching.GetQueueStatus(ctx, b.RequestID)
	if status.Status != string(models.ResolutionAdmitted) {
		t.Fatalf("b status = %s, want admitted", status.Status)
	}

	st := qp.GetStatus()
	if !st.IsRunning || st.ActiveSessions != 1 || st.LastProcessed.IsZero() {
		t.Fatalf("status = %+v", st)
	}

	if err := qp.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if qp.GetStatus().IsRunning {
		t.Fatalf("still running after Stop")
	}
	if err := qp.Stop(); err == nil {
		t.Fatalf("second Stop() should fail")
	}
}
