package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vogiaan1904/consultroom/internal/models"
)

func TestRequestConsultationAdmitsThenQueues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 400, 1)
	env.fund(t, "alice", 5_000)
	env.fund(t, "bob", 5_000)

	a := env.request(t, "alice", "c-1")
	if a.Outcome != OutcomeAdmitted || a.SessionID == "" {
		t.Fatalf("alice outcome = %+v, want admitted with a session", a)
	}
	if a.Session.RatePerMinute != 400 || a.Session.State != models.SessionStateActive {
		t.Fatalf("alice session = %+v", a.Session)
	}

	b := env.request(t, "bob", "c-1")
	if b.Outcome != OutcomeQueued {
		t.Fatalf("bob outcome = %s, want queued", b.Outcome)
	}
	if b.Position != 1 || b.QueueLength != 1 || b.EstimatedWaitMinutes != 10 {
		t.Fatalf("bob queued = %+v, want position 1, length 1, wait 10", b)
	}

	snap, err := env.registry.Snapshot(ctx, "c-1")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Availability != models.AvailabilityBusy || snap.Occupancy != 1 {
		t.Fatalf("consultant = %+v, want busy with occupancy 1", snap)
	}

	if _, err := env.sessions.EndSession(ctx, a.SessionID, models.EndReasonClientEnded); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	status, err := env.matching.GetQueueStatus(ctx, b.RequestID)
	if err != nil {
		t.Fatalf("GetQueueStatus() error = %v", err)
	}
	if status.Status != string(models.ResolutionAdmitted) || status.SessionID == "" {
		t.Fatalf("bob status = %+v, want admitted", status)
	}

	active, err := env.sessions.FindActive(ctx, "c-1", "bob")
	if err != nil {
		t.Fatalf("FindActive() error = %v", err)
	}
	if active.ID != status.SessionID || active.RequestID != b.RequestID {
		t.Fatalf("active session = %+v, want id %s request %s", active, status.SessionID, b.RequestID)
	}

	waitFor(t, "queue admitted event", func() bool {
		_, _, _, admitted, _ := env.prod.counts()
		return admitted == 1
	})
}

func TestRequestConsultationRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 400, 2, "tarot")
	env.fund(t, "rich", 5_000)
	env.fund(t, "poor", 100)

	if _, err := env.registry.UpsertConsultant(ctx, UpsertConsultantInput{
		ConsultantID:         "c-off",
		PricePerMinute:       100,
		CommunicationMethods: []models.CommunicationMethod{models.MethodChat},
	}); err != nil {
		t.Fatalf("UpsertConsultant() error = %v", err)
	}

	tcs := map[string]struct {
		in   RequestConsultationInput
		want RejectReason
	}{
		"insufficient_funds": {
			in:   RequestConsultationInput{ClientID: "poor", ConsultantID: "c-1", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 1000},
			want: RejectInsufficientFunds,
		},
		"price_above_limit": {
			in:   RequestConsultationInput{ClientID: "rich", ConsultantID: "c-1", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 399},
			want: RejectPriceAboveLimit,
		},
		"method_unsupported": {
			in:   RequestConsultationInput{ClientID: "rich", ConsultantID: "c-1", CommunicationMethod: models.MethodWhatsApp, MaxPricePerMinute: 1000},
			want: RejectMethodUnsupported,
		},
		"offline": {
			in:   RequestConsultationInput{ClientID: "rich", ConsultantID: "c-off", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 1000},
			want: RejectConsultantOffline,
		},
		"no_match": {
			in:   RequestConsultationInput{ClientID: "rich", ServiceType: "astrology", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 1000},
			want: RejectNoMatch,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			out, err := env.matching.RequestConsultation(ctx, tc.in)
			if err != nil {
				t.Fatalf("RequestConsultation() error = %v", err)
			}
			if out.Outcome != OutcomeRejected || out.RejectReason != tc.want {
				t.Fatalf("outcome = %s/%s, want rejected/%s", out.Outcome, out.RejectReason, tc.want)
			}
		})
	}
}

func TestRequestConsultationAlreadyInSession(t *testing.T) {
	env := newTestEnv(t)
	env.addConsultant(t, "c-1", 400, 2)
	env.fund(t, "alice", 5_000)

	if out := env.request(t, "alice", "c-1"); out.Outcome != OutcomeAdmitted {
		t.Fatalf("first outcome = %s, want admitted", out.Outcome)
	}
	out := env.request(t, "alice", "c-1")
	if out.Outcome != OutcomeRejected || out.RejectReason != RejectAlreadyInSession {
		t.Fatalf("second outcome = %s/%s, want already_in_session", out.Outcome, out.RejectReason)
	}
}

func TestRequestConsultationValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tcs := map[string]RequestConsultationInput{
		"missing client":   {ConsultantID: "c-1", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 100},
		"missing target":   {ClientID: "a", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 100},
		"bad method":       {ClientID: "a", ConsultantID: "c-1", CommunicationMethod: "fax", MaxPricePerMinute: 100},
		"non-positive max": {ClientID: "a", ConsultantID: "c-1", CommunicationMethod: models.MethodChat},
	}
	for name, in := range tcs {
		t.Run(name, func(t *testing.T) {
			_, err := env.matching.RequestConsultation(ctx, in)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}

	env.fund(t, "a", 5_000)
	_, err := env.matching.RequestConsultation(ctx, RequestConsultationInput{
		ClientID: "a", ConsultantID: "ghost", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 100,
	})
	if !errors.Is(err, ErrConsultantNotFound) {
		t.Fatalf("unknown consultant error = %v, want ErrConsultantNotFound", err)
	}
}

func TestConcurrentRequestsNeverOverAdmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 1)

	const clients = 20
	for i := range clients {
		env.fund(t, fmt.Sprintf("client-%d", i), 5_000)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		outs []*RequestConsultationOutput
	)
	for i := range clients {
		wg.Go(func() {
			out, err := env.matching.RequestConsultation(ctx, RequestConsultationInput{
				ClientID:            fmt.Sprintf("client-%d", i),
				ConsultantID:        "c-1",
				CommunicationMethod: models.MethodChat,
				MaxPricePerMinute:   100,
			})
			if err != nil {
				t.Errorf("RequestConsultation() error = %v", err)
				return
			}
			mu.Lock()
			outs = append(outs, out)
			mu.Unlock()
		})
	}
	wg.Wait()

	admitted := 0
	positions := make(map[int64]bool)
	for _, out := range outs {
		switch out.Outcome {
		case OutcomeAdmitted:
			admitted++
		case OutcomeQueued:
			if positions[out.Position] {
				t.Fatalf("duplicate queue position %d", out.Position)
			}
			positions[out.Position] = true
		default:
			t.Fatalf("unexpected outcome %+v", out)
		}
	}
	if admitted != 1 || len(positions) != clients-1 {
		t.Fatalf("admitted=%d queued=%d, want 1 and %d", admitted, len(positions), clients-1)
	}

	snap, _ := env.registry.Snapshot(ctx, "c-1")
	if snap.Occupancy != 1 {
		t.Fatalf("occupancy = %d, want 1", snap.Occupancy)
	}
}

func TestQueueIsServedInOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 1)

	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		env.fund(t, n, 5_000)
	}

	first := env.request(t, "a", "c-1")
	if first.Outcome != OutcomeAdmitted {
		t.Fatalf("a outcome = %s", first.Outcome)
	}
	for i, n := range names[1:] {
		out := env.request(t, n, "c-1")
		if out.Position != int64(i+1) {
			t.Fatalf("%s position = %d, want %d", n, out.Position, i+1)
		}
	}

	current := first.SessionID
	for _, next := range names[1:] {
		if _, err := env.sessions.EndSession(ctx, current, models.EndReasonConsultantEnded); err != nil {
			t.Fatalf("EndSession() error = %v", err)
		}
		s, err := env.sessions.FindActive(ctx, "c-1", next)
		if err != nil {
			t.Fatalf("expected %s admitted next: %v", next, err)
		}
		current = s.ID
	}
}

func TestServiceTypeRequestPicksCheapestOnline(t *testing.T) {
	env := newTestEnv(t)
	env.addConsultant(t, "c-pricey", 300, 1, "tarot")
	env.addConsultant(t, "c-cheap", 200, 1, "tarot")
	env.addConsultant(t, "c-other", 100, 1, "astrology")
	env.fund(t, "alice", 5_000)

	out, err := env.matching.RequestConsultation(context.Background(), RequestConsultationInput{
		ClientID:            "alice",
		ServiceType:         "tarot",
		CommunicationMethod: models.MethodVideo,
		MaxPricePerMinute:   500,
	})
	if err != nil {
		t.Fatalf("RequestConsultation() error = %v", err)
	}
	if out.Outcome != OutcomeAdmitted || out.Session.ConsultantID != "c-cheap" {
		t.Fatalf("outcome = %+v, want admitted to c-cheap", out)
	}
}

func TestServiceQueueDrainsWhenCapacityFrees(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 200, 1, "tarot")
	env.fund(t, "alice", 5_000)
	env.fund(t, "bob", 5_000)

	a := env.request(t, "alice", "c-1")

	b, err := env.matching.RequestConsultation(ctx, RequestConsultationInput{
		ClientID:            "bob",
		ServiceType:         "tarot",
		CommunicationMethod: models.MethodChat,
		MaxPricePerMinute:   500,
	})
	if err != nil {
		t.Fatalf("RequestConsultation() error = %v", err)
	}
	if b.Outcome != OutcomeQueued {
		t.Fatalf("bob outcome = %s, want queued", b.Outcome)
	}

	if _, err := env.sessions.EndSession(ctx, a.SessionID, models.EndReasonClientEnded); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	status, err := env.matching.GetQueueStatus(ctx, b.RequestID)
	if err != nil {
		t.Fatalf("GetQueueStatus() error = %v", err)
	}
	if status.Status != string(models.ResolutionAdmitted) {
		t.Fatalf("bob status = %s, want admitted", status.Status)
	}
}

func TestDirectQueueBeatsServiceQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 200, 1, "tarot")
	for _, n := range []string{"a", "svc", "direct"} {
		env.fund(t, n, 5_000)
	}

	a := env.request(t, "a", "c-1")
	if _, err := env.matching.RequestConsultation(ctx, RequestConsultationInput{
		ClientID: "svc", ServiceType: "tarot", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 500,
	}); err != nil {
		t.Fatalf("RequestConsultation() error = %v", err)
	}
	env.request(t, "direct", "c-1")

	if _, err := env.sessions.EndSession(ctx, a.SessionID, models.EndReasonClientEnded); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if _, err := env.sessions.FindActive(ctx, "c-1", "direct"); err != nil {
		t.Fatalf("direct client not admitted: %v", err)
	}
	if _, err := env.sessions.FindActive(ctx, "c-1", "svc"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("service client admitted early: %v", err)
	}
}

func TestQueuedClientWithoutFundsIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 1)
	env.fund(t, "a", 5_000)
	env.fund(t, "broke", 600)
	env.fund(t, "c", 5_000)

	a := env.request(t, "a", "c-1")
	broke := env.request(t, "broke", "c-1")
	c := env.request(t, "c", "c-1")

	// broke spends below the minimum while waiting.
	if _, err := env.ledger.Debit(ctx, DebitInput{ClientID: "broke", Amount: 200}); err != nil {
		t.Fatalf("Debit() error = %v", err)
	}

	if _, err := env.sessions.EndSession(ctx, a.SessionID, models.EndReasonClientEnded); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	bs, err := env.matching.GetQueueStatus(ctx, broke.RequestID)
	if err != nil {
		t.Fatalf("GetQueueStatus() error = %v", err)
	}
	if bs.Status != string(models.ResolutionRejected) || bs.Reason != leftReasonInsufficientFunds {
		t.Fatalf("broke status = %+v, want rejected/insufficient_funds", bs)
	}
	cs, err := env.matching.GetQueueStatus(ctx, c.RequestID)
	if err != nil {
		t.Fatalf("GetQueueStatus() error = %v", err)
	}
	if cs.Status != string(models.ResolutionAdmitted) {
		t.Fatalf("c status = %s, want admitted", cs.Status)
	}
}

func TestCancelQueueEntryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 1)
	env.fund(t, "a", 5_000)
	env.fund(t, "b", 5_000)
	env.fund(t, "c", 5_000)

	env.request(t, "a", "c-1")
	b := env.request(t, "b", "c-1")
	c := env.request(t, "c", "c-1")

	updates, unsubscribe := env.bc.Subscribe("c")
	defer unsubscribe()

	for range 2 {
		if err := env.matching.CancelQueueEntry(ctx, b.RequestID); err != nil {
			t.Fatalf("CancelQueueEntry() error = %v", err)
		}
	}
	if err := env.matching.CancelQueueEntry(ctx, "unknown"); err != nil {
		t.Fatalf("CancelQueueEntry(unknown) error = %v", err)
	}

	status, err := env.matching.GetQueueStatus(ctx, b.RequestID)
	if err != nil {
		t.Fatalf("GetQueueStatus() error = %v", err)
	}
	if status.Status != string(models.ResolutionCancelled) {
		t.Fatalf("status = %s, want cancelled", status.Status)
	}

	cStatus, err := env.matching.GetQueueStatus(ctx, c.RequestID)
	if err != nil {
		t.Fatalf("GetQueueStatus() error = %v", err)
	}
	if cStatus.Status != QueueStatusQueued || cStatus.Position != 1 {
		t.Fatalf("c status = %+v, want queued at 1", cStatus)
	}

	select {
	case u := <-updates:
		if u.Type != models.UpdateTypePositionChanged || u.Position != 1 {
			t.Fatalf("update = %+v, want position_changed to 1", u)
		}
	case <-time.After(time.Second):
		t.Fatalf("no position update for c")
	}

	waitFor(t, "one queue left event", func() bool {
		_, _, _, _, left := env.prod.counts()
		return left == 1
	})
}

func TestGetQueueStatusUnknown(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.matching.GetQueueStatus(context.Background(), "nope")
	if !errors.Is(err, ErrQueueEntryNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrQueueEntryNotFound", err)
	}
}

func TestExpireStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 1)
	env.fund(t, "a", 5_000)
	env.fund(t, "b", 5_000)

	env.request(t, "a", "c-1")
	b := env.request(t, "b", "c-1")

	n, err := env.matching.ExpireStale(ctx, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("ExpireStale(now) = %d, %v, want 0", n, err)
	}

	n, err = env.matching.ExpireStale(ctx, time.Now().Add(31*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("ExpireStale(+31m) = %d, %v, want 1", n, err)
	}

	status, err := env.matching.GetQueueStatus(ctx, b.RequestID)
	if err != nil {
		t.Fatalf("GetQueueStatus() error = %v", err)
	}
	if status.Status != string(models.ResolutionExpired) {
		t.Fatalf("status = %s, want expired", status.Status)
	}
}

func TestSetPresenceOnlineDrainsDirectQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 1)
	env.fund(t, "a", 5_000)
	env.fund(t, "b", 5_000)

	a := env.request(t, "a", "c-1")
	b := env.request(t, "b", "c-1")

	if _, err := env.matching.SetPresence(ctx, "c-1", false); err != nil {
		t.Fatalf("SetPresence(false) error = %v", err)
	}
	if _, err := env.sessions.EndSession(ctx, a.SessionID, models.EndReasonClientEnded); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	status, _ := env.matching.GetQueueStatus(ctx, b.RequestID)
	if status.Status != QueueStatusQueued {
		t.Fatalf("b admitted while consultant offline: %s", status.Status)
	}

	snap, err := env.matching.SetPresence(ctx, "c-1", true)
	if err != nil {
		t.Fatalf("SetPresence(true) error = %v", err)
	}
	if snap.Occupancy != 1 {
		t.Fatalf("occupancy = %d, want 1", snap.Occupancy)
	}

	status, _ = env.matching.GetQueueStatus(ctx, b.RequestID)
	if status.Status != string(models.ResolutionAdmitted) {
		t.Fatalf("b status = %s, want admitted", status.Status)
	}
}

func TestRequestAfterCloseFails(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "a", 5_000)
	env.matching.Close()

	_, err := env.matching.RequestConsultation(context.Background(), RequestConsultationInput{
		ClientID: "a", ConsultantID: "c-1", CommunicationMethod: models.MethodChat, MaxPricePerMinute: 100,
	})
	if !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("error = %v, want ErrShuttingDown", err)
	}
}

func TestDrainAllAdmitsForOnlineConsultants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addConsultant(t, "c-1", 100, 1)
	env.fund(t, "a", 5_000)
	env.fund(t, "b", 5_000)

	a := env.request(t, "a", "c-1")
	b := env.request(t, "b", "c-1")

	// Free the slot without the capacity-freed hook.
	env.sessions.SetCapacityFreedHandler(nil)
	if _, err := env.sessions.EndSession(ctx, a.SessionID, models.EndReasonClientEnded); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	n, err := env.matching.DrainAll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("DrainAll() = %d, %v, want 1", n, err)
	}
	status, _ := env.matching.GetQueueStatus(ctx, b.RequestID)
	if status.Status != string(models.ResolutionAdmitted) {
		t.Fatalf("b status = %s, want admitted", status.Status)
	}
}
