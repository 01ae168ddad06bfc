package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vogiaan1904/consultroom/internal/models"
)

func TestLedgerDebitTakesBonusFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.ledger.Credit(ctx, CreditInput{ClientID: "a", Amount: 1000}); err != nil {
		t.Fatalf("Credit(normal) error = %v", err)
	}
	if _, err := env.ledger.Credit(ctx, CreditInput{ClientID: "a", Amount: 300, Kind: models.CreditKindBonus}); err != nil {
		t.Fatalf("Credit(bonus) error = %v", err)
	}

	out, err := env.ledger.Debit(ctx, DebitInput{ClientID: "a", Amount: 500, Reference: "ref-1"})
	if err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if out.FromBonus != 300 || out.FromNormal != 200 {
		t.Fatalf("split = bonus %s normal %s, want 3.00 and 2.00", out.FromBonus, out.FromNormal)
	}
	if out.Balance.Bonus != 0 || out.Balance.Normal != 800 {
		t.Fatalf("balance = %+v", out.Balance)
	}

	entries, err := env.ledger.ListTransactions(ctx, "a", 0)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(entries) != 3 || entries[0].Type != models.LedgerEntryDebit || entries[0].Reference != "ref-1" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].BalanceAfter != 800 {
		t.Fatalf("balance after = %s, want 8.00", entries[0].BalanceAfter)
	}
}

func TestLedgerDebitInsufficientLeavesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "a", 250)

	_, err := env.ledger.Debit(ctx, DebitInput{ClientID: "a", Amount: 400})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Debit() error = %v, want ErrInsufficientFunds", err)
	}

	var ife *InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("error %T is not *InsufficientFundsError", err)
	}
	if ife.Available != 250 || ife.Shortfall() != 150 {
		t.Fatalf("available=%s shortfall=%s", ife.Available, ife.Shortfall())
	}

	bal, _ := env.ledger.GetBalance(ctx, "a")
	if bal.Total() != 250 {
		t.Fatalf("balance = %s, want 2.50", bal.Total())
	}
}

func TestLedgerRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.ledger.Debit(ctx, DebitInput{ClientID: "a", Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Debit(0) error = %v, want ErrInvalidAmount", err)
	}
	if _, err := env.ledger.Credit(ctx, CreditInput{ClientID: "a", Amount: -5}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Credit(-5) error = %v, want ErrInvalidAmount", err)
	}
	if _, err := env.ledger.Credit(ctx, CreditInput{ClientID: "a", Amount: 5, Kind: "gift"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Credit(gift) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := env.ledger.Debit(ctx, DebitInput{Amount: 5}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Debit(no client) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := env.ledger.GetBalance(ctx, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("GetBalance(\"\") error = %v, want ErrInvalidRequest", err)
	}
}

func TestLedgerUnknownClientHasZeroBalance(t *testing.T) {
	env := newTestEnv(t)
	bal, err := env.ledger.GetBalance(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if bal.Total() != 0 {
		t.Fatalf("balance = %s, want 0", bal.Total())
	}
}

func TestLedgerPurchaseAppliesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := PurchaseInput{PurchaseID: "p-1", ClientID: "a", Amount: 1000, BonusAmount: 200}
	first, err := env.ledger.Purchase(ctx, in)
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if !first.Applied || first.Balance.Normal != 1000 || first.Balance.Bonus != 200 {
		t.Fatalf("first = %+v", first)
	}

	again, err := env.ledger.Purchase(ctx, in)
	if err != nil {
		t.Fatalf("Purchase() again error = %v", err)
	}
	if again.Applied || again.Balance.Total() != 1200 {
		t.Fatalf("again = %+v", again)
	}

	entries, _ := env.ledger.ListTransactions(ctx, "a", 0)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Reference != "p-1:bonus" || entries[0].BalanceAfter != 1200 || entries[1].BalanceAfter != 1000 {
		t.Fatalf("entries = %+v %+v", entries[0], entries[1])
	}

	for _, bad := range []PurchaseInput{
		{ClientID: "a", Amount: 10},
		{PurchaseID: "p-2", ClientID: "a"},
		{PurchaseID: "p-3", ClientID: "a", Amount: -5, BonusAmount: 10},
	} {
		if _, err := env.ledger.Purchase(ctx, bad); err == nil {
			t.Fatalf("Purchase(%+v) should fail", bad)
		}
	}
}

func TestLedgerTransfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "a", 1000)
	if _, err := env.ledger.Credit(ctx, CreditInput{ClientID: "a", Amount: 500, Kind: models.CreditKindBonus}); err != nil {
		t.Fatalf("Credit(bonus) error = %v", err)
	}

	out, err := env.ledger.Transfer(ctx, TransferInput{FromClientID: "a", ToClientID: "b", Amount: 600})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if out.From.Normal != 400 || out.From.Bonus != 500 || out.To.Normal != 600 {
		t.Fatalf("out = %+v", out)
	}

	_, err = env.ledger.Transfer(ctx, TransferInput{FromClientID: "a", ToClientID: "b", Amount: 401})
	var ife *InsufficientFundsError
	if !errors.As(err, &ife) || ife.Available != 400 {
		t.Fatalf("Transfer() over normal balance error = %v, want insufficient with 4.00 available", err)
	}

	if _, err := env.ledger.Transfer(ctx, TransferInput{FromClientID: "a", ToClientID: "a", Amount: 1}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("self transfer error = %v", err)
	}
	if _, err := env.ledger.Transfer(ctx, TransferInput{FromClientID: "a", ToClientID: "b"}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero transfer error = %v", err)
	}

	sent, _ := env.ledger.ListTransactions(ctx, "a", 1)
	received, _ := env.ledger.ListTransactions(ctx, "b", 0)
	if len(sent) != 1 || sent[0].Reference != "transfer_to_b" || sent[0].FromNormal != 600 {
		t.Fatalf("sender entries = %+v", sent)
	}
	if len(received) != 1 || received[0].Reference != "transfer_from_a" || received[0].BalanceAfter != 600 {
		t.Fatalf("recipient entries = %+v", received)
	}
}
