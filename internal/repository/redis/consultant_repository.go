package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/consultroom/internal/models"
	repo "github.com/vogiaan1904/consultroom/internal/repository"
	"github.com/vogiaan1904/consultroom/pkg/logger"
)

// upsertScript refuses a capacity below the live occupancy.
var upsertScript = redis.NewScript(`
	local occ = tonumber(redis.call('HGET', KEYS[1], 'occupancy') or '0')
	if tonumber(ARGV[1]) < occ then
		return 0
	end
	redis.call('HSET', KEYS[1], 'capacity', ARGV[1], 'price', ARGV[2], 'specialties', ARGV[3], 'methods', ARGV[4], 'updated_at', ARGV[5])
	redis.call('HSETNX', KEYS[1], 'occupancy', 0)
	redis.call('HSETNX', KEYS[1], 'present', 0)
	return 1
`)

var tryReserveScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -1
	end
	local present = redis.call('HGET', KEYS[1], 'present')
	local occ = tonumber(redis.call('HGET', KEYS[1], 'occupancy') or '0')
	local cap = tonumber(redis.call('HGET', KEYS[1], 'capacity') or '0')
	if present ~= '1' or occ >= cap then
		return 0
	end
	redis.call('HINCRBY', KEYS[1], 'occupancy', 1)
	redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
	return 1
`)

var releaseScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -1
	end
	local occ = tonumber(redis.call('HGET', KEYS[1], 'occupancy') or '0')
	if occ > 0 then
		occ = redis.call('HINCRBY', KEYS[1], 'occupancy', -1)
		redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
	end
	return occ
`)

var setPresenceScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -1
	end
	redis.call('HSET', KEYS[1], 'present', ARGV[1], 'updated_at', ARGV[2])
	return 1
`)

type redisConsultantRepository struct {
	cli *redis.Client
	l   logger.Logger
}

func NewRedisConsultantRepository(cli *redis.Client, l logger.Logger) repo.ConsultantRepository {
	return &redisConsultantRepository{
		cli: cli,
		l:   l,
	}
}

func nowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func (r *redisConsultantRepository) Upsert(ctx context.Context, c *models.Consultant) (*models.Consultant, error) {
	key := consultantKey(c.ID)

	specialties, err := json.Marshal(c.Specialties)
	if err != nil {
		return nil, err
	}
	methods, err := json.Marshal(c.CommunicationMethods)
	if err != nil {
		return nil, err
	}

	old, err := r.cli.HGet(ctx, key, "specialties").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.l.Errorf(ctx, "redisConsultantRepository.Upsert: %v", err)
		return nil, err
	}

	ok, err := upsertScript.Run(ctx, r.cli, []string{key},
		c.Capacity, int64(c.PricePerMinute), string(specialties), string(methods), nowMillis(),
	).Int()
	if err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.Upsert: %v", err)
		return nil, err
	}
	if ok == 0 {
		return nil, repo.ErrCapacityBelowOccupancy
	}

	var oldSpecialties []string
	if old != "" {
		_ = json.Unmarshal([]byte(old), &oldSpecialties)
	}

	pipe := r.cli.TxPipeline()
	pipe.SAdd(ctx, consultantSetKey(), c.ID)
	for _, s := range oldSpecialties {
		if !c.HasSpecialty(s) {
			pipe.SRem(ctx, specialtyKey(s), c.ID)
		}
	}
	for _, s := range c.Specialties {
		pipe.SAdd(ctx, specialtyKey(s), c.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.Upsert: %v", err)
		return nil, err
	}

	r.l.Debugf(ctx, "Consultant upserted: id=%s capacity=%d price=%s", c.ID, c.Capacity, c.PricePerMinute)

	return r.Get(ctx, c.ID)
}

func (r *redisConsultantRepository) Get(ctx context.Context, consultantID string) (*models.Consultant, error) {
	fields, err := r.cli.HGetAll(ctx, consultantKey(consultantID)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.Get: %v", err)
		return nil, err
	}
	if len(fields) == 0 {
		return nil, repo.ErrNotFound
	}

	return decodeConsultant(consultantID, fields)
}

func decodeConsultant(id string, fields map[string]string) (*models.Consultant, error) {
	c := &models.Consultant{ID: id, Present: fields["present"] == "1"}

	var err error
	if c.Capacity, err = strconv.Atoi(fields["capacity"]); err != nil {
		return nil, err
	}
	if c.Occupancy, err = strconv.Atoi(fields["occupancy"]); err != nil {
		return nil, err
	}
	price, err := strconv.ParseInt(fields["price"], 10, 64)
	if err != nil {
		return nil, err
	}
	c.PricePerMinute = models.Money(price)

	if err := json.Unmarshal([]byte(fields["specialties"]), &c.Specialties); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields["methods"]), &c.CommunicationMethods); err != nil {
		return nil, err
	}
	if ms, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		c.UpdatedAt = time.UnixMilli(ms)
	}

	return c, nil
}

func (r *redisConsultantRepository) List(ctx context.Context) ([]*models.Consultant, error) {
	ids, err := r.cli.SMembers(ctx, consultantSetKey()).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.List: %v", err)
		return nil, err
	}
	return r.getMany(ctx, ids)
}

func (r *redisConsultantRepository) ListBySpecialty(ctx context.Context, specialty string) ([]*models.Consultant, error) {
	ids, err := r.cli.SMembers(ctx, specialtyKey(specialty)).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.ListBySpecialty: %v", err)
		return nil, err
	}
	return r.getMany(ctx, ids)
}

func (r *redisConsultantRepository) getMany(ctx context.Context, ids []string) ([]*models.Consultant, error) {
	sort.Strings(ids)

	pipe := r.cli.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, consultantKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.getMany: %v", err)
		return nil, err
	}

	out := make([]*models.Consultant, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		c, err := decodeConsultant(ids[i], fields)
		if err != nil {
			r.l.Warnf(ctx, "redisConsultantRepository.getMany: skipping %s: %v", ids[i], err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *redisConsultantRepository) TryReserve(ctx context.Context, consultantID string) (bool, error) {
	res, err := tryReserveScript.Run(ctx, r.cli, []string{consultantKey(consultantID)}, nowMillis()).Int()
	if err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.TryReserve: %v", err)
		return false, err
	}

	switch res {
	case -1:
		return false, repo.ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (r *redisConsultantRepository) Release(ctx context.Context, consultantID string) (int, error) {
	occ, err := releaseScript.Run(ctx, r.cli, []string{consultantKey(consultantID)}, nowMillis()).Int()
	if err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.Release: %v", err)
		return 0, err
	}
	if occ < 0 {
		return 0, repo.ErrNotFound
	}
	return occ, nil
}

func (r *redisConsultantRepository) SetPresence(ctx context.Context, consultantID string, present bool) (*models.Consultant, error) {
	flag := "0"
	if present {
		flag = "1"
	}

	res, err := setPresenceScript.Run(ctx, r.cli, []string{consultantKey(consultantID)}, flag, nowMillis()).Int()
	if err != nil {
		r.l.Errorf(ctx, "redisConsultantRepository.SetPresence: %v", err)
		return nil, err
	}
	if res < 0 {
		return nil, repo.ErrNotFound
	}

	return r.Get(ctx, consultantID)
}
