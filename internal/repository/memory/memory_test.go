package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
)

func TestConsultantTryReserveConcurrent(t *testing.T) {
	ctx := context.Background()
	r := NewConsultantRepository()

	if _, err := r.Upsert(ctx, &models.Consultant{ID: "c-1", Capacity: 3, PricePerMinute: 400}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := r.SetPresence(ctx, "c-1", true); err != nil {
		t.Fatalf("SetPresence: %v", err)
	}

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.TryReserve(ctx, "c-1")
			if err != nil {
				t.Errorf("TryReserve: %v", err)
			}
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 3 {
		t.Fatalf("granted = %d, want 3", granted.Load())
	}

	c, _ := r.Get(ctx, "c-1")
	if c.Occupancy != 3 || c.Availability() != models.AvailabilityBusy {
		t.Fatalf("occupancy = %d availability = %s", c.Occupancy, c.Availability())
	}
}

func TestConsultantUpsertRules(t *testing.T) {
	ctx := context.Background()
	r := NewConsultantRepository()

	c, err := r.Upsert(ctx, &models.Consultant{ID: "c-1", Capacity: 2, Present: true})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if c.Present {
		t.Fatalf("new consultants start offline")
	}

	_, _ = r.SetPresence(ctx, "c-1", true)
	_, _ = r.TryReserve(ctx, "c-1")
	_, _ = r.TryReserve(ctx, "c-1")

	if _, err := r.Upsert(ctx, &models.Consultant{ID: "c-1", Capacity: 1}); !errors.Is(err, repository.ErrCapacityBelowOccupancy) {
		t.Fatalf("shrinking below occupancy: err = %v", err)
	}

	c, err = r.Upsert(ctx, &models.Consultant{ID: "c-1", Capacity: 4, PricePerMinute: 500})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !c.Present || c.Occupancy != 2 || c.PricePerMinute != 500 {
		t.Fatalf("upsert must keep presence and occupancy: %+v", c)
	}
}

func TestConsultantReleaseFloorAndOffline(t *testing.T) {
	ctx := context.Background()
	r := NewConsultantRepository()
	_, _ = r.Upsert(ctx, &models.Consultant{ID: "c-1", Capacity: 1})

	if ok, _ := r.TryReserve(ctx, "c-1"); ok {
		t.Fatalf("offline consultant must not be reserved")
	}

	occ, err := r.Release(ctx, "c-1")
	if err != nil || occ != 0 {
		t.Fatalf("Release = %d, %v", occ, err)
	}

	if _, err := r.TryReserve(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown consultant: err = %v", err)
	}
}

func TestBalanceDebitBonusFirst(t *testing.T) {
	ctx := context.Background()
	r := NewBalanceRepository()

	_, _ = r.Credit(ctx, "u-1", 300, models.CreditKindNormal)
	_, _ = r.Credit(ctx, "u-1", 250, models.CreditKindBonus)

	res, err := r.Debit(ctx, "u-1", 400)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if !res.Applied || res.FromBonus != 250 || res.FromNormal != 150 {
		t.Fatalf("res = %+v", res)
	}
	if res.Balance.Normal != 150 || res.Balance.Bonus != 0 {
		t.Fatalf("balance = %+v", res.Balance)
	}

	res, err = r.Debit(ctx, "u-1", 151)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if res.Applied || res.Balance.Total() != 150 {
		t.Fatalf("short debit must not apply: %+v", res)
	}

	bal, _ := r.Get(ctx, "nobody")
	if bal.Total() != 0 || bal.ClientID != "nobody" {
		t.Fatalf("unknown client balance = %+v", bal)
	}
}

func TestBalanceEntriesNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := NewBalanceRepository()

	for i, ref := range []string{"a", "b", "c"} {
		_ = r.AppendEntry(ctx, &models.LedgerEntry{ID: ref, ClientID: "u-1", Amount: models.Money(i)})
	}

	got, _ := r.ListEntries(ctx, "u-1", 2)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestQueueFIFOAndClaim(t *testing.T) {
	ctx := context.Background()
	r := NewQueueRepository()
	target := models.ConsultantTarget("c-1")

	for _, id := range []string{"r1", "r2", "r3"} {
		res, err := r.Enqueue(ctx, &models.QueueEntry{RequestID: id, ClientID: "u-" + id, ConsultantID: "c-1"})
		if err != nil || !res.Created {
			t.Fatalf("Enqueue(%s) = %+v, %v", id, res, err)
		}
	}

	dup, _ := r.Enqueue(ctx, &models.QueueEntry{RequestID: "r9", ClientID: "u-r2", ConsultantID: "c-1"})
	if dup.Created || dup.Entry.RequestID != "r2" || dup.Entry.Position != 2 {
		t.Fatalf("duplicate client enqueue = %+v", dup)
	}

	ok, _ := r.Remove(ctx, "r1")
	if !ok {
		t.Fatalf("first Remove should claim")
	}
	if ok, _ = r.Remove(ctx, "r1"); ok {
		t.Fatalf("second Remove must not claim")
	}

	e, err := r.Get(ctx, "r3")
	if err != nil || e.Position != 2 {
		t.Fatalf("r3 = %+v, %v", e, err)
	}

	list, _ := r.List(ctx, target, 0)
	if len(list) != 2 || list[0].RequestID != "r2" || list[0].Position != 1 {
		t.Fatalf("list = %+v", list)
	}

	if n, _ := r.Length(ctx, target); n != 2 {
		t.Fatalf("length = %d", n)
	}

	targets, _ := r.Targets(ctx)
	if len(targets) != 1 || targets[0] != target {
		t.Fatalf("targets = %v", targets)
	}

	if _, err := r.Get(ctx, "r1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("removed entry: err = %v", err)
	}
}

func TestQueueResolutionTTL(t *testing.T) {
	ctx := context.Background()
	r := NewQueueRepository().(*queueRepository)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_ = r.SaveResolution(ctx, &models.QueueResolution{RequestID: "r1", Status: models.ResolutionAdmitted, SessionID: "s1"}, time.Minute)

	res, err := r.GetResolution(ctx, "r1")
	if err != nil || res.SessionID != "s1" {
		t.Fatalf("GetResolution = %+v, %v", res, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := r.GetResolution(ctx, "r1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expired resolution: err = %v", err)
	}
}

func TestSessionPairClaim(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepository()

	ok, _ := r.ClaimActivePair(ctx, "c-1", "u-1", "s1")
	if !ok {
		t.Fatalf("first claim should succeed")
	}
	if ok, _ = r.ClaimActivePair(ctx, "c-1", "u-1", "s2"); ok {
		t.Fatalf("second claim for the pair must fail")
	}

	s := &models.ConsultationSession{ID: "s1", ConsultantID: "c-1", ClientID: "u-1", State: models.SessionStateActive}
	_ = r.Save(ctx, s)

	active, err := r.FindActive(ctx, "c-1", "u-1")
	if err != nil || active.ID != "s1" {
		t.Fatalf("FindActive = %+v, %v", active, err)
	}

	s.State = models.SessionStateCompleted
	_ = r.Save(ctx, s)

	if _, err := r.FindActive(ctx, "c-1", "u-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("terminal session must drop the pair: err = %v", err)
	}
	if ok, _ = r.ClaimActivePair(ctx, "c-1", "u-1", "s2"); !ok {
		t.Fatalf("pair should be free after termination")
	}

	hist, _ := r.ListByClient(ctx, "u-1", 10)
	if len(hist) != 1 || hist[0].State != models.SessionStateCompleted {
		t.Fatalf("history = %+v", hist)
	}
}

func TestBalanceReadsDoNotAllocate(t *testing.T) {
	ctx := context.Background()
	r := NewBalanceRepository().(*balanceRepository)

	for i := range 100 {
		id := "poller-" + string(rune('a'+i%26))
		_, _ = r.Get(ctx, id)
		_, _ = r.ListEntries(ctx, id, 10)
	}
	if n := len(r.slots); n != 0 {
		t.Fatalf("slots = %d after reads only, want 0", n)
	}

	entries, err := r.ListEntries(ctx, "nobody", 5)
	if err != nil || entries == nil || len(entries) != 0 {
		t.Fatalf("ListEntries(nobody) = %v, %v", entries, err)
	}
}

func TestBalancePurchaseOnce(t *testing.T) {
	ctx := context.Background()
	r := NewBalanceRepository()

	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)
	for range 20 {
		wg.Go(func() {
			res, err := r.ApplyPurchase(ctx, "u-1", "p-1", 1000, 200)
			if err == nil && res.Applied {
				applied.Add(1)
			}
		})
	}
	wg.Wait()

	if n := applied.Load(); n != 1 {
		t.Fatalf("applied %d times, want 1", n)
	}
	bal, _ := r.Get(ctx, "u-1")
	if bal.Normal != 1000 || bal.Bonus != 200 {
		t.Fatalf("balance = %+v", bal)
	}
}

func TestBalanceTransfer(t *testing.T) {
	ctx := context.Background()
	r := NewBalanceRepository()
	_, _ = r.Credit(ctx, "u-1", 500, models.CreditKindNormal)
	_, _ = r.Credit(ctx, "u-1", 300, models.CreditKindBonus)

	res, err := r.Transfer(ctx, "u-1", "u-2", 400)
	if err != nil || !res.Applied {
		t.Fatalf("Transfer = %+v, %v", res, err)
	}
	if res.From.Normal != 100 || res.From.Bonus != 300 || res.To.Normal != 400 {
		t.Fatalf("res = %+v", res)
	}

	if res, _ = r.Transfer(ctx, "u-1", "u-2", 101); res.Applied {
		t.Fatalf("bonus credits must not cover a transfer: %+v", res)
	}
	if _, err := r.Transfer(ctx, "u-1", "u-1", 1); !errors.Is(err, repository.ErrSelfTransfer) {
		t.Fatalf("self transfer err = %v", err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() { _, _ = r.Transfer(ctx, "u-2", "u-1", 10) })
		wg.Go(func() { _, _ = r.Transfer(ctx, "u-1", "u-2", 10) })
	}
	wg.Wait()

	a, _ := r.Get(ctx, "u-1")
	b, _ := r.Get(ctx, "u-2")
	if a.Normal+b.Normal != 500 {
		t.Fatalf("normal credits not conserved: %d + %d", a.Normal, b.Normal)
	}
}

func TestSessionReleasePairAndConsultantHistory(t *testing.T) {
	ctx := context.Background()
	r := NewSessionRepository()

	_, _ = r.ClaimActivePair(ctx, "c-1", "u-1", "s1")
	if err := r.ReleaseActivePair(ctx, "c-1", "u-1", "other"); err != nil {
		t.Fatalf("ReleaseActivePair: %v", err)
	}
	if ok, _ := r.ClaimActivePair(ctx, "c-1", "u-1", "s2"); ok {
		t.Fatalf("release by a non-holder must keep the claim")
	}

	_ = r.ReleaseActivePair(ctx, "c-1", "u-1", "s1")
	if ok, _ := r.ClaimActivePair(ctx, "c-1", "u-1", "s2"); !ok {
		t.Fatalf("pair should be free after the holder released it")
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		_ = r.Save(ctx, &models.ConsultationSession{ID: id, ConsultantID: "c-1", ClientID: "u-" + id, State: models.SessionStateCompleted})
	}
	_ = r.Save(ctx, &models.ConsultationSession{ID: "s4", ConsultantID: "c-2", ClientID: "u-1", State: models.SessionStateCompleted})

	hist, _ := r.ListByConsultant(ctx, "c-1", 2)
	if len(hist) != 2 || hist[0].ID != "s3" || hist[1].ID != "s2" {
		t.Fatalf("consultant history = %+v", hist)
	}
	if all, _ := r.ListByConsultant(ctx, "c-1", 0); len(all) != 3 {
		t.Fatalf("full consultant history = %d, want 3", len(all))
	}
}
