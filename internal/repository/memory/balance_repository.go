package memory

import (
	"context"
	"sync"

	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
)

type balanceSlot struct {
	mu      sync.Mutex
	bal     models.CreditBalance
	entries []*models.LedgerEntry
}

type balanceRepository struct {
	mu        sync.Mutex
	slots     map[string]*balanceSlot
	purchases map[string]struct{}
}

func NewBalanceRepository() repository.BalanceRepository {
	return &balanceRepository{
		slots:     make(map[string]*balanceSlot),
		purchases: make(map[string]struct{}),
	}
}

func (r *balanceRepository) slot(clientID string) *balanceSlot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[clientID]
	if !ok {
		s = &balanceSlot{bal: models.CreditBalance{ClientID: clientID}}
		r.slots[clientID] = s
	}
	return s
}

// lookup never creates a slot, so reads for unknown clients leave no trace.
func (r *balanceRepository) lookup(clientID string) (*balanceSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[clientID]
	return s, ok
}

func (r *balanceRepository) Get(ctx context.Context, clientID string) (models.CreditBalance, error) {
	s, ok := r.lookup(clientID)
	if !ok {
		return models.CreditBalance{ClientID: clientID}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bal, nil
}

func (r *balanceRepository) Debit(ctx context.Context, clientID string, amount models.Money) (repository.DebitResult, error) {
	s := r.slot(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bal.Total() < amount {
		return repository.DebitResult{Balance: s.bal}, nil
	}

	fromBonus := min(s.bal.Bonus, amount)
	fromNormal := amount - fromBonus
	s.bal.Bonus -= fromBonus
	s.bal.Normal -= fromNormal

	return repository.DebitResult{
		Applied:    true,
		FromBonus:  fromBonus,
		FromNormal: fromNormal,
		Balance:    s.bal,
	}, nil
}

func (r *balanceRepository) Credit(ctx context.Context, clientID string, amount models.Money, kind models.CreditKind) (models.CreditBalance, error) {
	s := r.slot(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == models.CreditKindBonus {
		s.bal.Bonus += amount
	} else {
		s.bal.Normal += amount
	}
	return s.bal, nil
}

func (r *balanceRepository) ApplyPurchase(ctx context.Context, clientID, purchaseID string, normal, bonus models.Money) (repository.PurchaseResult, error) {
	s := r.slot(clientID)

	// r.mu covers the dedupe check and the credit so a retry cannot interleave.
	r.mu.Lock()
	defer r.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := r.purchases[purchaseID]; done {
		return repository.PurchaseResult{Balance: s.bal}, nil
	}
	r.purchases[purchaseID] = struct{}{}

	s.bal.Normal += normal
	s.bal.Bonus += bonus
	return repository.PurchaseResult{Applied: true, Balance: s.bal}, nil
}

func (r *balanceRepository) Transfer(ctx context.Context, fromClientID, toClientID string, amount models.Money) (repository.TransferResult, error) {
	if fromClientID == toClientID {
		return repository.TransferResult{}, repository.ErrSelfTransfer
	}
	from := r.slot(fromClientID)
	to := r.slot(toClientID)

	// Lock in id order.
	first, second := from, to
	if toClientID < fromClientID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if from.bal.Normal < amount {
		return repository.TransferResult{From: from.bal, To: to.bal}, nil
	}

	from.bal.Normal -= amount
	to.bal.Normal += amount
	return repository.TransferResult{Applied: true, From: from.bal, To: to.bal}, nil
}

func (r *balanceRepository) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	s := r.slot(e.ClientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := *e
	s.entries = append(s.entries, &entry)
	return nil
}

// ListEntries returns newest first.
func (r *balanceRepository) ListEntries(ctx context.Context, clientID string, limit int) ([]*models.LedgerEntry, error) {
	s, ok := r.lookup(clientID)
	if !ok {
		return []*models.LedgerEntry{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*models.LedgerEntry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		e := *s.entries[i]
		out = append(out, &e)
	}
	return out, nil
}
