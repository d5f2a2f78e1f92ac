// Package jobxredis implements jobx.Store on Redis. Each job is a hash; the
// pending queue is a sorted set scored by an enqueue sequence so that claims
// are FIFO and a retried job keeps its original place. Every state change is
// one Lua script and therefore atomic.
package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ryan12324/openassistant/pkg/jobx"
	"github.com/ryan12324/openassistant/pkg/kernel"
)

// RedisStore implements jobx.Store and jobx.Inspector backed by Redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var (
	_ jobx.Store     = (*RedisStore)(nil)
	_ jobx.Inspector = (*RedisStore)(nil)
)

// NewRedisStore creates a store whose keys all start with prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "jobx"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) jobKey(id string) string { return fmt.Sprintf("%s:job:%s", s.prefix, id) }
func (s *RedisStore) jobKeyPrefix() string    { return s.prefix + ":job:" }
func (s *RedisStore) pendingKey() string      { return s.prefix + ":pending" }
func (s *RedisStore) allKey() string          { return s.prefix + ":all" }
func (s *RedisStore) seqKey() string          { return s.prefix + ":seq" }

var enqueueScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[4])
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'type', ARGV[2], 'payload', ARGV[3], 'status', 'pending',
	'attempts', 0, 'max_retries', ARGV[4], 'user_id', ARGV[5],
	'created_at', ARGV[6], 'updated_at', ARGV[6], 'seq', seq)
redis.call('ZADD', KEYS[2], seq, ARGV[1])
redis.call('ZADD', KEYS[3], seq, ARGV[1])
return seq
`)

func (s *RedisStore) Enqueue(ctx context.Context, nj jobx.NewJob) (string, error) {
	job := nj.ToJob(time.Now().UTC())

	err := enqueueScript.Run(ctx, s.rdb,
		[]string{s.jobKey(job.ID), s.pendingKey(), s.allKey(), s.seqKey()},
		job.ID, job.Type, string(job.Payload), job.MaxRetries, job.UserID.String(),
		job.CreatedAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).WithDetail("type", job.Type)
	}
	return job.ID, nil
}

var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, 0)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local key = ARGV[1] .. id
redis.call('HINCRBY', key, 'attempts', 1)
redis.call('HSET', key, 'status', 'processing', 'updated_at', ARGV[2])
return redis.call('HGETALL', key)
`)

// Dequeue pops the lowest-sequence pending id and marks the job processing.
func (s *RedisStore) Dequeue(ctx context.Context) (*jobx.Job, error) {
	res, err := claimScript.Run(ctx, s.rdb,
		[]string{s.pendingKey()},
		s.jobKeyPrefix(), time.Now().UTC().Format(time.RFC3339Nano),
	).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, redisErrors.NewWithCause(ErrDequeue, err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[fmt.Sprint(res[i])] = fmt.Sprint(res[i+1])
	}
	return fromHash(fields)
}

var completeScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'processing' and status ~= 'completed' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'completed', 'result', ARGV[1], 'updated_at', ARGV[2])
return 1
`)

func (s *RedisStore) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	n, err := completeScript.Run(ctx, s.rdb,
		[]string{s.jobKey(jobID)},
		string(result), time.Now().UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return redisErrors.NewWithCause(ErrComplete, err).WithDetail("job_id", jobID)
	}
	if n == 0 {
		return redisErrors.New(ErrNotClaimed).WithDetail("job_id", jobID)
	}
	return nil
}

var failScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('HGET', key, 'status') ~= 'processing' then
	return -1
end
local attempts = tonumber(redis.call('HGET', key, 'attempts'))
local max = tonumber(redis.call('HGET', key, 'max_retries'))
redis.call('HSET', key, 'error', ARGV[1], 'updated_at', ARGV[2])
if attempts < max then
	redis.call('HSET', key, 'status', 'pending')
	redis.call('ZADD', KEYS[2], redis.call('HGET', key, 'seq'), ARGV[3])
	return 1
end
redis.call('HSET', key, 'status', 'failed')
return 0
`)

func (s *RedisStore) Fail(ctx context.Context, jobID string, errMsg string) (bool, error) {
	n, err := failScript.Run(ctx, s.rdb,
		[]string{s.jobKey(jobID), s.pendingKey()},
		errMsg, time.Now().UTC().Format(time.RFC3339Nano), jobID,
	).Int()
	if err != nil {
		return false, redisErrors.NewWithCause(ErrFail, err).WithDetail("job_id", jobID)
	}
	if n < 0 {
		return false, redisErrors.New(ErrNotClaimed).WithDetail("job_id", jobID)
	}
	return n == 1, nil
}

func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*jobx.Job, error) {
	fields, err := s.rdb.HGetAll(ctx, s.jobKey(jobID)).Result()
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrGetJob, err).WithDetail("job_id", jobID)
	}
	if len(fields) == 0 {
		return nil, redisErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	return fromHash(fields)
}

// List scans every job newest first and filters client-side.
func (s *RedisStore) List(ctx context.Context, filter jobx.ListFilter) ([]*jobx.Job, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.allKey(), 0, -1).Result()
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrList, err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = jobx.DefaultListLimit
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.jobKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, redisErrors.NewWithCause(ErrList, err)
		}
	}

	jobs := make([]*jobx.Job, 0)
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		job, err := fromHash(fields)
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if !filter.UserID.IsEmpty() && job.UserID != filter.UserID {
			continue
		}
		jobs = append(jobs, job)
		if len(jobs) == limit {
			break
		}
	}
	return jobs, nil
}

func fromHash(f map[string]string) (*jobx.Job, error) {
	attempts, err := strconv.Atoi(f["attempts"])
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrCorrupt, err).WithDetail("field", "attempts")
	}
	maxRetries, err := strconv.Atoi(f["max_retries"])
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrCorrupt, err).WithDetail("field", "max_retries")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, f["created_at"])
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrCorrupt, err).WithDetail("field", "created_at")
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, f["updated_at"])
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrCorrupt, err).WithDetail("field", "updated_at")
	}

	job := &jobx.Job{
		ID:         f["id"],
		Type:       f["type"],
		Payload:    json.RawMessage(f["payload"]),
		Status:     jobx.JobStatus(f["status"]),
		Attempts:   attempts,
		MaxRetries: maxRetries,
		Error:      f["error"],
		UserID:     kernel.UserID(f["user_id"]),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	if r := f["result"]; r != "" {
		job.Result = json.RawMessage(r)
	}
	return job, nil
}
