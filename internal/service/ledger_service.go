package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

type ledgerService struct {
	repo         repository.BalanceRepository
	pub          *AsyncPublisher
	historyLimit int
	l            logger.Logger
}

func NewLedgerService(
	repo repository.BalanceRepository,
	pub *AsyncPublisher,
	historyLimit int,
	l logger.Logger,
) LedgerService {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ledgerService{
		repo:         repo,
		pub:          pub,
		historyLimit: historyLimit,
		l:            l,
	}
}

func (s *ledgerService) GetBalance(ctx context.Context, clientID string) (models.CreditBalance, error) {
	if clientID == "" {
		return models.CreditBalance{}, ErrInvalidRequest
	}

	bal, err := s.repo.Get(ctx, clientID)
	if err != nil {
		s.l.Errorf(ctx, "service.ledgerService.GetBalance: %v", err)
		return models.CreditBalance{}, err
	}
	return bal, nil
}

func (s *ledgerService) Debit(ctx context.Context, in DebitInput) (DebitOutput, error) {
	if err := validateInput(in); err != nil {
		return DebitOutput{}, err
	}
	if in.Amount <= 0 {
		return DebitOutput{}, ErrInvalidAmount
	}

	res, err := s.repo.Debit(ctx, in.ClientID, in.Amount)
	if err != nil {
		s.l.Errorf(ctx, "service.ledgerService.Debit: %v", err)
		return DebitOutput{}, err
	}

	if !res.Applied {
		return DebitOutput{Balance: res.Balance}, &InsufficientFundsError{
			ClientID:  in.ClientID,
			Requested: in.Amount,
			Available: res.Balance.Total(),
		}
	}

	s.record(ctx, &models.LedgerEntry{
		ID:           uuid.New().String(),
		ClientID:     in.ClientID,
		Type:         models.LedgerEntryDebit,
		Amount:       in.Amount,
		FromBonus:    res.FromBonus,
		FromNormal:   res.FromNormal,
		BalanceAfter: res.Balance.Total(),
		Reference:    in.Reference,
		CreatedAt:    time.Now(),
	})

	return DebitOutput{
		Charged:    in.Amount,
		FromBonus:  res.FromBonus,
		FromNormal: res.FromNormal,
		Balance:    res.Balance,
	}, nil
}

func (s *ledgerService) Credit(ctx context.Context, in CreditInput) (models.CreditBalance, error) {
	if err := validateInput(in); err != nil {
		return models.CreditBalance{}, err
	}
	if in.Amount <= 0 {
		return models.CreditBalance{}, ErrInvalidAmount
	}
	if in.Kind == "" {
		in.Kind = models.CreditKindNormal
	}

	bal, err := s.repo.Credit(ctx, in.ClientID, in.Amount, in.Kind)
	if err != nil {
		s.l.Errorf(ctx, "service.ledgerService.Credit: %v", err)
		return models.CreditBalance{}, err
	}

	s.record(ctx, &models.LedgerEntry{
		ID:           uuid.New().String(),
		ClientID:     in.ClientID,
		Type:         models.LedgerEntryCredit,
		Amount:       in.Amount,
		Kind:         in.Kind,
		BalanceAfter: bal.Total(),
		Reference:    in.Reference,
		CreatedAt:    time.Now(),
	})

	s.l.Infof(ctx, "Credited %s (%s) to client %s, balance %s", in.Amount, in.Kind, in.ClientID, bal.Total())

	return bal, nil
}

func (s *ledgerService) Purchase(ctx context.Context, in PurchaseInput) (PurchaseOutput, error) {
	if err := validateInput(in); err != nil {
		return PurchaseOutput{}, err
	}
	if in.Amount+in.BonusAmount <= 0 {
		return PurchaseOutput{}, ErrInvalidAmount
	}

	res, err := s.repo.ApplyPurchase(ctx, in.ClientID, in.PurchaseID, in.Amount, in.BonusAmount)
	if err != nil {
		s.l.Errorf(ctx, "service.ledgerService.Purchase: %v", err)
		return PurchaseOutput{}, err
	}

	if !res.Applied {
		s.l.Warnf(ctx, "Purchase %s for client %s was already applied", in.PurchaseID, in.ClientID)
		return PurchaseOutput{Balance: res.Balance}, nil
	}

	now := time.Now()
	if in.Amount > 0 {
		s.record(ctx, &models.LedgerEntry{
			ID:           uuid.New().String(),
			ClientID:     in.ClientID,
			Type:         models.LedgerEntryCredit,
			Amount:       in.Amount,
			Kind:         models.CreditKindNormal,
			BalanceAfter: res.Balance.Total() - in.BonusAmount,
			Reference:    in.PurchaseID,
			CreatedAt:    now,
		})
	}
	if in.BonusAmount > 0 {
		s.record(ctx, &models.LedgerEntry{
			ID:           uuid.New().String(),
			ClientID:     in.ClientID,
			Type:         models.LedgerEntryCredit,
			Amount:       in.BonusAmount,
			Kind:         models.CreditKindBonus,
			BalanceAfter: res.Balance.Total(),
			Reference:    in.PurchaseID + ":bonus",
			CreatedAt:    now,
		})
	}

	s.l.Infof(ctx, "Applied purchase %s to client %s, balance %s", in.PurchaseID, in.ClientID, res.Balance.Total())

	return PurchaseOutput{Applied: true, Balance: res.Balance}, nil
}

func (s *ledgerService) Transfer(ctx context.Context, in TransferInput) (TransferOutput, error) {
	if err := validateInput(in); err != nil {
		return TransferOutput{}, err
	}
	if in.Amount <= 0 {
		return TransferOutput{}, ErrInvalidAmount
	}

	res, err := s.repo.Transfer(ctx, in.FromClientID, in.ToClientID, in.Amount)
	if err != nil {
		if errors.Is(err, repository.ErrSelfTransfer) {
			return TransferOutput{}, ErrInvalidRequest
		}
		s.l.Errorf(ctx, "service.ledgerService.Transfer: %v", err)
		return TransferOutput{}, err
	}

	if !res.Applied {
		return TransferOutput{}, &InsufficientFundsError{
			ClientID:  in.FromClientID,
			Requested: in.Amount,
			Available: res.From.Normal,
		}
	}

	transferID := "transfer_" + uuid.New().String()
	now := time.Now()
	s.record(ctx, &models.LedgerEntry{
		ID:           "txn_send_" + transferID,
		ClientID:     in.FromClientID,
		Type:         models.LedgerEntryDebit,
		Amount:       in.Amount,
		FromNormal:   in.Amount,
		BalanceAfter: res.From.Total(),
		Reference:    "transfer_to_" + in.ToClientID,
		CreatedAt:    now,
	})
	s.record(ctx, &models.LedgerEntry{
		ID:           "txn_receive_" + transferID,
		ClientID:     in.ToClientID,
		Type:         models.LedgerEntryCredit,
		Amount:       in.Amount,
		Kind:         models.CreditKindNormal,
		BalanceAfter: res.To.Total(),
		Reference:    "transfer_from_" + in.FromClientID,
		CreatedAt:    now,
	})

	s.l.Infof(ctx, "Transferred %s from client %s to client %s", in.Amount, in.FromClientID, in.ToClientID)

	return TransferOutput{
		TransferID: transferID,
		Amount:     in.Amount,
		From:       res.From,
		To:         res.To,
	}, nil
}

// record never fails the money movement it describes; a lost audit line is logged.
func (s *ledgerService) record(ctx context.Context, e *models.LedgerEntry) {
	if err := s.repo.AppendEntry(ctx, e); err != nil {
		s.l.Errorf(ctx, "service.ledgerService.record: client=%s ref=%s: %v", e.ClientID, e.Reference, err)
	}

	event := kafka.CreditsLedgerEvent{
		EntryID:      e.ID,
		ClientID:     e.ClientID,
		Type:         string(e.Type),
		Kind:         string(e.Kind),
		Amount:       int64(e.Amount),
		BalanceAfter: int64(e.BalanceAfter),
		Reference:    e.Reference,
	}
	s.pub.Publish("PublishCreditsLedger", func(ctx context.Context, prod producer.Producer) error {
		return prod.PublishCreditsLedger(ctx, event)
	})
}

func (s *ledgerService) ListTransactions(ctx context.Context, clientID string, limit int) ([]*models.LedgerEntry, error) {
	if clientID == "" {
		return nil, ErrInvalidRequest
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	entries, err := s.repo.ListEntries(ctx, clientID, limit)
	if err != nil {
		s.l.Errorf(ctx, "service.ledgerService.ListTransactions: %v", err)
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return entries, nil
}
