package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/consultroom/internal/models"
	repo "github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

const (
	maxLedgerEntries = 1000
	purchaseTTL      = 30 * 24 * time.Hour
)

// debitScript takes bonus credits first. A short balance leaves the hash untouched.
var debitScript = redis.NewScript(`
	local amount = tonumber(ARGV[1])
	local normal = tonumber(redis.call('HGET', KEYS[1], 'normal') or '0')
	local bonus = tonumber(redis.call('HGET', KEYS[1], 'bonus') or '0')
	if normal + bonus < amount then
		return {0, 0, 0, normal, bonus}
	end
	local fromBonus = math.min(bonus, amount)
	local fromNormal = amount - fromBonus
	if fromBonus > 0 then
		bonus = redis.call('HINCRBY', KEYS[1], 'bonus', -fromBonus)
	end
	if fromNormal > 0 then
		normal = redis.call('HINCRBY', KEYS[1], 'normal', -fromNormal)
	end
	return {1, fromBonus, fromNormal, normal, bonus}
`)

// purchaseScript marks the purchase id and credits both kinds, or does nothing if already marked.
var purchaseScript = redis.NewScript(`
	if not redis.call('SET', KEYS[2], ARGV[1], 'NX', 'PX', ARGV[4]) then
		local normal = tonumber(redis.call('HGET', KEYS[1], 'normal') or '0')
		local bonus = tonumber(redis.call('HGET', KEYS[1], 'bonus') or '0')
		return {0, normal, bonus}
	end
	local normal = redis.call('HINCRBY', KEYS[1], 'normal', ARGV[2])
	local bonus = redis.call('HINCRBY', KEYS[1], 'bonus', ARGV[3])
	return {1, normal, bonus}
`)

// transferScript moves normal credits from KEYS[1] to KEYS[2].
var transferScript = redis.NewScript(`
	local amount = tonumber(ARGV[1])
	local fromNormal = tonumber(redis.call('HGET', KEYS[1], 'normal') or '0')
	local fromBonus = tonumber(redis.call('HGET', KEYS[1], 'bonus') or '0')
	local toBonus = tonumber(redis.call('HGET', KEYS[2], 'bonus') or '0')
	if fromNormal < amount then
		local toNormal = tonumber(redis.call('HGET', KEYS[2], 'normal') or '0')
		return {0, fromNormal, fromBonus, toNormal, toBonus}
	end
	fromNormal = redis.call('HINCRBY', KEYS[1], 'normal', -amount)
	local toNormal = redis.call('HINCRBY', KEYS[2], 'normal', amount)
	return {1, fromNormal, fromBonus, toNormal, toBonus}
`)

type redisBalanceRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisBalanceRepository(cli *redis.Client, l logger.Logger) repo.BalanceRepository {
	return &redisBalanceRepository{
		cli: cli,
		l:   l,
	}
}

func parseMoney(v any) models.Money {
	switch t := v.(type) {
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return models.Money(n)
	case int64:
		return models.Money(t)
	default:
		return 0
	}
}

func (r *redisBalanceRepository) Get(ctx context.Context, clientID string) (models.CreditBalance, error) {
	vals, err := r.cli.HMGet(ctx, balanceKey(clientID), "normal", "bonus").Result()
	if err != nil {
		r.l.Errorf(ctx, "redisBalanceRepository.Get: %v", err)
		return models.CreditBalance{}, err
	}

	return models.CreditBalance{
		ClientID: clientID,
		Normal:   parseMoney(vals[0]),
		Bonus:    parseMoney(vals[1]),
	}, nil
}

func (r *redisBalanceRepository) Debit(ctx context.Context, clientID string, amount models.Money) (repo.DebitResult, error) {
	res, err := debitScript.Run(ctx, r.cli, []string{balanceKey(clientID)}, int64(amount)).Int64Slice()
	if err != nil {
		r.l.Errorf(ctx, "redisBalanceRepository.Debit: %v", err)
		return repo.DebitResult{}, err
	}
	if len(res) != 5 {
		return repo.DebitResult{}, fmt.Errorf("redisBalanceRepository.Debit: unexpected reply %v", res)
	}

	return repo.DebitResult{
		Applied:    res[0] == 1,
		FromBonus:  models.Money(res[1]),
		FromNormal: models.Money(res[2]),
		Balance: models.CreditBalance{
			ClientID: clientID,
			Normal:   models.Money(res[3]),
			Bonus:    models.Money(res[4]),
		},
	}, nil
}

func (r *redisBalanceRepository) Credit(ctx context.Context, clientID string, amount models.Money, kind models.CreditKind) (models.CreditBalance, error) {
	key := balanceKey(clientID)

	field := "normal"
	if kind == models.CreditKindBonus {
		field = "bonus"
	}

	var vals *redis.SliceCmd
	if _, err := r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, field, int64(amount))
		vals = pipe.HMGet(ctx, key, "normal", "bonus")
		return nil
	}); err != nil {
		r.l.Errorf(ctx, "redisBalanceRepository.Credit: %v", err)
		return models.CreditBalance{}, err
	}

	v := vals.Val()
	return models.CreditBalance{
		ClientID: clientID,
		Normal:   parseMoney(v[0]),
		Bonus:    parseMoney(v[1]),
	}, nil
}

func (r *redisBalanceRepository) ApplyPurchase(ctx context.Context, clientID, purchaseID string, normal, bonus models.Money) (repo.PurchaseResult, error) {
	res, err := purchaseScript.Run(ctx, r.cli,
		[]string{balanceKey(clientID), purchaseKey(purchaseID)},
		clientID, int64(normal), int64(bonus), purchaseTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		r.l.Errorf(ctx, "redisBalanceRepository.ApplyPurchase: %v", err)
		return repo.PurchaseResult{}, err
	}
	if len(res) != 3 {
		return repo.PurchaseResult{}, fmt.Errorf("redisBalanceRepository.ApplyPurchase: unexpected reply %v", res)
	}

	return repo.PurchaseResult{
		Applied: res[0] == 1,
		Balance: models.CreditBalance{
			ClientID: clientID,
			Normal:   models.Money(res[1]),
			Bonus:    models.Money(res[2]),
		},
	}, nil
}

func (r *redisBalanceRepository) Transfer(ctx context.Context, fromClientID, toClientID string, amount models.Money) (repo.TransferResult, error) {
	if fromClientID == toClientID {
		return repo.TransferResult{}, repo.ErrSelfTransfer
	}

	res, err := transferScript.Run(ctx, r.cli,
		[]string{balanceKey(fromClientID), balanceKey(toClientID)},
		int64(amount),
	).Int64Slice()
	if err != nil {
		r.l.Errorf(ctx, "redisBalanceRepository.Transfer: %v", err)
		return repo.TransferResult{}, err
	}
	if len(res) != 5 {
		return repo.TransferResult{}, fmt.Errorf("redisBalanceRepository.Transfer: unexpected reply %v", res)
	}

	return repo.TransferResult{
		Applied: res[0] == 1,
		From:    models.CreditBalance{ClientID: fromClientID, Normal: models.Money(res[1]), Bonus: models.Money(res[2])},
		To:      models.CreditBalance{ClientID: toClientID, Normal: models.Money(res[3]), Bonus: models.Money(res[4])},
	}, nil
}

func (r *redisBalanceRepository) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	key := ledgerKey(e.ClientID)
	pipe := r.cli.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxLedgerEntries-1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisBalanceRepository.AppendEntry: %v", err)
		return err
	}

	return nil
}

func (r *redisBalanceRepository) ListEntries(ctx context.Context, clientID string, limit int) ([]*models.LedgerEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	raw, err := r.cli.LRange(ctx, ledgerKey(clientID), 0, stop).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisBalanceRepository.ListEntries: %v", err)
		return nil, err
	}

	out := make([]*models.LedgerEntry, 0, len(raw))
	for _, item := range raw {
		var e models.LedgerEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			r.l.Warnf(ctx, "redisBalanceRepository.ListEntries: %v", err)
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}
