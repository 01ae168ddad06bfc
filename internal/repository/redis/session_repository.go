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

const (
	maxClientHistory     = 200
	maxConsultantHistory = 1000
)

// saveSessionScript writes the record and keeps the pair, active and history indexes consistent with it.
var saveSessionScript = redis.NewScript(`
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	redis.call('ZADD', KEYS[3], ARGV[4], ARGV[3])
	redis.call('ZREMRANGEBYRANK', KEYS[3], 0, -(tonumber(ARGV[6]) + 1))
	redis.call('ZADD', KEYS[5], ARGV[4], ARGV[3])
	redis.call('ZREMRANGEBYRANK', KEYS[5], 0, -(tonumber(ARGV[7]) + 1))
	if ARGV[5] == '1' then
		redis.call('SREM', KEYS[4], ARGV[3])
		if redis.call('GET', KEYS[2]) == ARGV[3] then
			redis.call('DEL', KEYS[2])
		end
	else
		redis.call('SADD', KEYS[4], ARGV[3])
	end
	return 1
`)

// releasePairScript deletes the pair key only while ARGV[1] holds it.
var releasePairScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

type redisSessionRepository struct {
	cli *redis.Client
	ttl time.Duration
	l   logger.Logger
}

func NewRedisSessionRepository(cli *redis.Client, ttl time.Duration, l logger.Logger) repo.SessionRepository {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &redisSessionRepository{
		cli: cli,
		ttl: ttl,
		l:   l,
	}
}

func (r *redisSessionRepository) ClaimActivePair(ctx context.Context, consultantID, clientID, sessionID string) (bool, error) {
	key := activePairKey(consultantID, clientID)

	ok, err := r.cli.SetNX(ctx, key, sessionID, r.ttl).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.ClaimActivePair: %v", err)
		return false, err
	}
	if ok {
		return true, nil
	}

	holder, err := r.cli.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.l.Errorf(ctx, "redisSessionRepository.ClaimActivePair: %v", err)
		return false, err
	}
	return holder == sessionID, nil
}

func (r *redisSessionRepository) ReleaseActivePair(ctx context.Context, consultantID, clientID, sessionID string) error {
	if err := releasePairScript.Run(ctx, r.cli, []string{activePairKey(consultantID, clientID)}, sessionID).Err(); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.ReleaseActivePair: %v", err)
		return err
	}
	return nil
}

func (r *redisSessionRepository) Save(ctx context.Context, s *models.ConsultationSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	terminal := "0"
	if s.State.IsTerminal() {
		terminal = "1"
	}

	if err := saveSessionScript.Run(ctx, r.cli,
		[]string{
			sessionKey(s.ID),
			activePairKey(s.ConsultantID, s.ClientID),
			clientSessionsKey(s.ClientID),
			activeSessionsKey(),
			consultantSessionsKey(s.ConsultantID),
		},
		string(data), r.ttl.Milliseconds(), s.ID, s.StartedAt.UnixMilli(), terminal, maxClientHistory, maxConsultantHistory,
	).Err(); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Save: %v", err)
		return err
	}

	return nil
}

func (r *redisSessionRepository) Get(ctx context.Context, sessionID string) (*models.ConsultationSession, error) {
	data, err := r.cli.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repo.ErrNotFound
		}
		r.l.Errorf(ctx, "redisSessionRepository.Get: %v", err)
		return nil, err
	}

	var s models.ConsultationSession
	if err := json.Unmarshal(data, &s); err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.Get: %v", err)
		return nil, err
	}
	return &s, nil
}

func (r *redisSessionRepository) FindActive(ctx context.Context, consultantID, clientID string) (*models.ConsultationSession, error) {
	id, err := r.cli.Get(ctx, activePairKey(consultantID, clientID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repo.ErrNotFound
		}
		r.l.Errorf(ctx, "redisSessionRepository.FindActive: %v", err)
		return nil, err
	}

	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State.IsTerminal() {
		return nil, repo.ErrNotFound
	}
	return s, nil
}

func (r *redisSessionRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]*models.ConsultationSession, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := r.cli.ZRevRange(ctx, clientSessionsKey(clientID), 0, stop).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.ListByClient: %v", err)
		return nil, err
	}
	return r.getMany(ctx, ids)
}

func (r *redisSessionRepository) ListByConsultant(ctx context.Context, consultantID string, limit int) ([]*models.ConsultationSession, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := r.cli.ZRevRange(ctx, consultantSessionsKey(consultantID), 0, stop).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.ListByConsultant: %v", err)
		return nil, err
	}
	return r.getMany(ctx, ids)
}

func (r *redisSessionRepository) ListActive(ctx context.Context) ([]*models.ConsultationSession, error) {
	ids, err := r.cli.SMembers(ctx, activeSessionsKey()).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.ListActive: %v", err)
		return nil, err
	}

	out, err := r.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (r *redisSessionRepository) getMany(ctx context.Context, ids []string) ([]*models.ConsultationSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}

	raw, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisSessionRepository.getMany: %v", err)
		return nil, err
	}

	out := make([]*models.ConsultationSession, 0, len(raw))
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var s models.ConsultationSession
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			r.l.Warnf(ctx, "redisSessionRepository.getMany: %v", err)
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}
