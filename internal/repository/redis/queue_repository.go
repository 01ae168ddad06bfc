package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/consultroom/internal/models"
	repo "github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

// enqueueScript keeps at most one entry per client and target.
var enqueueScript = redis.NewScript(`
	local existing = redis.call('HGET', KEYS[2], ARGV[1])
	if existing then
		return {0, existing}
	end
	local seq = redis.call('INCR', KEYS[5])
	redis.call('SET', KEYS[3], ARGV[3])
	redis.call('ZADD', KEYS[1], seq, ARGV[2])
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
	redis.call('SADD', KEYS[4], ARGV[4])
	return {1, ARGV[2]}
`)

// removeScript only reports success to the caller whose ZREM removed the member.
var removeScript = redis.NewScript(`
	if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
		return 0
	end
	redis.call('DEL', KEYS[3])
	if redis.call('HGET', KEYS[2], ARGV[2]) == ARGV[1] then
		redis.call('HDEL', KEYS[2], ARGV[2])
	end
	if redis.call('ZCARD', KEYS[1]) == 0 then
		redis.call('SREM', KEYS[4], ARGV[3])
	end
	return 1
`)

type redisQueueRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisQueueRepository(cli *redis.Client, l logger.Logger) repo.QueueRepository {
	return &redisQueueRepository{
		cli: cli,
		l:   l,
	}
}

func (r *redisQueueRepository) Enqueue(ctx context.Context, e *models.QueueEntry) (repo.EnqueueResult, error) {
	target := e.Target()

	entry := *e
	entry.Seq = 0
	entry.Position = 0
	data, err := json.Marshal(entry)
	if err != nil {
		return repo.EnqueueResult{}, fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	res, err := enqueueScript.Run(ctx, r.cli,
		[]string{queueKey(target), queueClientsKey(target), queueEntryKey(e.RequestID), queueTargetsKey(), queueSeqKey()},
		e.ClientID, e.RequestID, string(data), target.Key(),
	).Slice()
	if err != nil {
		r.l.Errorf(ctx, "redisQueueRepository.Enqueue: %v", err)
		return repo.EnqueueResult{}, err
	}
	if len(res) != 2 {
		return repo.EnqueueResult{}, fmt.Errorf("redisQueueRepository.Enqueue: unexpected reply %v", res)
	}

	created, _ := res[0].(int64)
	requestID, _ := res[1].(string)

	stored, err := r.Get(ctx, requestID)
	if err != nil {
		return repo.EnqueueResult{}, err
	}

	r.l.Debugf(ctx, "Enqueued: target=%s request_id=%s position=%d created=%v", target.Key(), requestID, stored.Position, created == 1)

	return repo.EnqueueResult{Entry: stored, Created: created == 1}, nil
}

func (r *redisQueueRepository) load(ctx context.Context, requestID string) (*models.QueueEntry, error) {
	data, err := r.cli.Get(ctx, queueEntryKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repo.ErrNotFound
		}
		r.l.Errorf(ctx, "redisQueueRepository.load: %v", err)
		return nil, err
	}

	var e models.QueueEntry
	if err := json.Unmarshal(data, &e); err != nil {
		r.l.Errorf(ctx, "redisQueueRepository.load: %v", err)
		return nil, err
	}
	return &e, nil
}

func (r *redisQueueRepository) Get(ctx context.Context, requestID string) (*models.QueueEntry, error) {
	e, err := r.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	qKey := queueKey(e.Target())
	pipe := r.cli.Pipeline()
	scoreCmd := pipe.ZScore(ctx, qKey, requestID)
	rankCmd := pipe.ZRank(ctx, qKey, requestID)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repo.ErrNotFound
		}
		r.l.Errorf(ctx, "redisQueueRepository.Get: %v", err)
		return nil, err
	}

	e.Seq = int64(scoreCmd.Val())
	e.Position = rankCmd.Val() + 1 // 1-indexed
	return e, nil
}

func (r *redisQueueRepository) Remove(ctx context.Context, requestID string) (bool, error) {
	e, err := r.load(ctx, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	target := e.Target()
	removed, err := removeScript.Run(ctx, r.cli,
		[]string{queueKey(target), queueClientsKey(target), queueEntryKey(requestID), queueTargetsKey()},
		requestID, e.ClientID, target.Key(),
	).Int()
	if err != nil {
		r.l.Errorf(ctx, "redisQueueRepository.Remove: %v", err)
		return false, err
	}

	if removed == 1 {
		r.l.Debugf(ctx, "Removed from queue: target=%s request_id=%s", target.Key(), requestID)
	}

	return removed == 1, nil
}

func (r *redisQueueRepository) List(ctx context.Context, target models.QueueTarget, limit int) ([]*models.QueueEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	members, err := r.cli.ZRangeWithScores(ctx, queueKey(target), 0, stop).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisQueueRepository.List: %v", err)
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = queueEntryKey(m.Member.(string))
	}

	raw, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisQueueRepository.List: %v", err)
		return nil, err
	}

	out := make([]*models.QueueEntry, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e models.QueueEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			r.l.Warnf(ctx, "redisQueueRepository.List: %v", err)
			continue
		}
		e.Seq = int64(members[i].Score)
		e.Position = int64(i + 1)
		out = append(out, &e)
	}
	return out, nil
}

func (r *redisQueueRepository) Length(ctx context.Context, target models.QueueTarget) (int64, error) {
	count, err := r.cli.ZCard(ctx, queueKey(target)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisQueueRepository.Length: %v", err)
		return 0, err
	}
	return count, nil
}

func (r *redisQueueRepository) Targets(ctx context.Context) ([]models.QueueTarget, error) {
	keys, err := r.cli.SMembers(ctx, queueTargetsKey()).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisQueueRepository.Targets: %v", err)
		return nil, err
	}

	sort.Strings(keys)
	out := make([]models.QueueTarget, 0, len(keys))
	for _, k := range keys {
		if t, ok := models.ParseQueueTarget(k); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *redisQueueRepository) SaveResolution(ctx context.Context, res *models.QueueResolution, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution: %w", err)
	}

	if err := r.cli.Set(ctx, resolutionKey(res.RequestID), data, ttl).Err(); err != nil {
		r.l.Errorf(ctx, "redisQueueRepository.SaveResolution: %v", err)
		return err
	}
	return nil
}

func (r *redisQueueRepository) GetResolution(ctx context.Context, requestID string) (*models.QueueResolution, error) {
	data, err := r.cli.Get(ctx, resolutionKey(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repo.ErrNotFound
		}
		r.l.Errorf(ctx, "redisQueueRepository.GetResolution: %v", err)
		return nil, err
	}

	var res models.QueueResolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
