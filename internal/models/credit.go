package models

import "time"

type CreditKind string

const (
	CreditKindNormal CreditKind = "normal"
	CreditKindBonus  CreditKind = "bonus"
)

func (k CreditKind) IsValid() bool {
	return k == CreditKindNormal || k == CreditKindBonus
}

type CreditBalance struct {
	ClientID string `json:"client_id"`
	Normal   Money  `json:"normal"`
	Bonus    Money  `json:"bonus"`
}

func (b CreditBalance) Total() Money {
	return b.Normal + b.Bonus
}

type LedgerEntryType string

const (
	LedgerEntryDebit  LedgerEntryType = "debit"
	LedgerEntryCredit LedgerEntryType = "credit"
)

type LedgerEntry struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	Type         LedgerEntryType `json:"type"`
	Amount       Money           `json:"amount"`
	FromBonus    Money           `json:"from_bonus,omitempty"`
	FromNormal   Money           `json:"from_normal,omitempty"`
	Kind         CreditKind      `json:"kind,omitempty"`
	BalanceAfter Money           `json:"balance_after"`
	Reference    string          `json:"reference,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
