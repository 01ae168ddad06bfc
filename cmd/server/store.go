package main

import (
	"context"

	"github.com/vogiaan1904/consultroom/config"
	"github.com/vogiaan1904/consultroom/internal/infra/redis"
	"github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/internal/repository/memory"
	redisRepo "github.com/vogiaan1904/consultroom/internal/repository/redis"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

type stores struct {
	consultants repository.ConsultantRepository
	balances    repository.BalanceRepository
	queues      repository.QueueRepository
	sessions    repository.SessionRepository
	close       func()
}

func openStores(ctx context.Context, cfg *config.Config, l logger.Logger) (*stores, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		l.Warn(ctx, "Using in-memory store; state is lost on restart")
		return &stores{
			consultants: memory.NewConsultantRepository(),
			balances:    memory.NewBalanceRepository(),
			queues:      memory.NewQueueRepository(),
			sessions:    memory.NewSessionRepository(),
			close:       func() {},
		}, nil
	}

	cli, err := redis.Connect(ctx, cfg.Redis, l)
	if err != nil {
		return nil, err
	}

	return &stores{
		consultants: redisRepo.NewRedisConsultantRepository(cli, l),
		balances:    redisRepo.NewRedisBalanceRepository(cli, l),
		queues:      redisRepo.NewRedisQueueRepository(cli, l),
		sessions:    redisRepo.NewRedisSessionRepository(cli, cfg.Redis.SessionTTL, l),
		close:       func() { redis.Disconnect(context.Background(), cli, l) },
	}, nil
}
