package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/tenantry/pkg/jobx"
)

// finishedTTL bounds how long completed and dead jobs stay inspectable.
const finishedTTL = 7 * 24 * time.Hour

// RedisQueue implements jobx.Queue backed by Redis.
type RedisQueue struct {
	rdb redis.UniversalClient
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(rdb redis.UniversalClient) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func queueKey(name string) string     { return fmt.Sprintf("jobx:queue:%s", name) }
func scheduledKey(name string) string { return fmt.Sprintf("jobx:scheduled:%s", name) }
func jobKey(id string) string         { return fmt.Sprintf("jobx:job:%s", id) }
func uniqueKey(key string) string     { return fmt.Sprintf("jobx:unique:%s", key) }

// Enqueue adds a job to the ready queue immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, job jobx.Job) (string, error) {
	return q.enqueue(ctx, job, 0)
}

// EnqueueDelayed adds a job to the scheduled set with a future execution time.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job jobx.Job, delay time.Duration) (string, error) {
	return q.enqueue(ctx, job, delay)
}

func (q *RedisQueue) enqueue(ctx context.Context, job jobx.Job, delay time.Duration) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	if job.UniqueKey != "" {
		ok, err := q.rdb.SetNX(ctx, uniqueKey(job.UniqueKey), id, finishedTTL).Result()
		if err != nil {
			return "", redisErrors.NewWithCause(ErrEnqueue, err).WithDetail("unique_key", job.UniqueKey)
		}
		if !ok {
			existing, _ := q.rdb.Get(ctx, uniqueKey(job.UniqueKey)).Result()
			return existing, jobx.DuplicateJob(job.UniqueKey, existing)
		}
	}

	info := jobx.JobInfo{
		ID:         id,
		Type:       job.Type,
		Queue:      job.Queue,
		Payload:    job.Payload,
		Status:     jobx.JobStatusPending,
		MaxRetries: job.MaxRetries,
		UniqueKey:  job.UniqueKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	data, err := json.Marshal(info)
	if err != nil {
		return "", redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(id), data, 0)
	if delay != 0 {
		pipe.ZAdd(ctx, scheduledKey(job.Queue), redis.Z{
			Score:  float64(now.Add(delay).Unix()),
			Member: id,
		})
	} else {
		pipe.LPush(ctx, queueKey(job.Queue), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).
			WithDetail("queue", job.Queue).
			WithDetail("delay", delay.String())
	}

	return id, nil
}

// GetJob retrieves job info by ID.
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	data, err := q.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redisErrors.New(ErrNotFound).WithDetail("job_id", jobID)
		}
		return nil, redisErrors.NewWithCause(ErrGetJob, err).WithDetail("job_id", jobID)
	}

	var info jobx.JobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job_id", jobID)
	}

	return &info, nil
}

// Dequeue blocks until a job is available from one of the given queues or
// the timeout expires. A nil job with a nil error means nothing was ready.
func (q *RedisQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = queueKey(name)
	}

	result, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, redisErrors.NewWithCause(ErrDequeue, err)
	}

	// result[0] = key, result[1] = job ID
	info, err := q.GetJob(ctx, result[1])
	if err != nil {
		return nil, err
	}

	info.Status = jobx.JobStatusActive
	info.Attempts++
	if err := q.save(ctx, info, 0); err != nil {
		return nil, err
	}
	return info, nil
}

// Complete marks a job as successfully completed.
func (q *RedisQueue) Complete(ctx context.Context, jobID string, result []byte) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	info.Status = jobx.JobStatusCompleted
	info.Result = result
	if err := q.save(ctx, info, finishedTTL); err != nil {
		return err
	}
	return q.releaseUnique(ctx, info)
}

// Fail marks a job as failed. Returns true if the job should be retried.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, errMsg string, retryable bool) (bool, error) {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	shouldRetry := retryable && info.Attempts <= info.MaxRetries
	info.Error = errMsg

	if shouldRetry {
		info.Status = jobx.JobStatusRetrying
		return true, q.save(ctx, info, 0)
	}

	info.Status = jobx.JobStatusFailed
	if err := q.save(ctx, info, finishedTTL); err != nil {
		return false, err
	}
	return false, q.releaseUnique(ctx, info)
}

// Retry schedules a failed job to run again after delay.
func (q *RedisQueue) Retry(ctx context.Context, jobID string, delay time.Duration) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	score := float64(time.Now().UTC().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, scheduledKey(info.Queue), redis.Z{
		Score:  score,
		Member: jobID,
	}).Err(); err != nil {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("job_id", jobID)
	}

	return nil
}

// promoteScript moves due jobs from the scheduled set to the ready list atomically.
var promoteScript = redis.NewScript(`
local scheduled_key = KEYS[1]
local queue_key = KEYS[2]
local now = tonumber(ARGV[1])
local ids = redis.call('ZRANGEBYSCORE', scheduled_key, '-inf', now)
if #ids > 0 then
    for _, id in ipairs(ids) do
        redis.call('LPUSH', queue_key, id)
    end
    redis.call('ZREMRANGEBYSCORE', scheduled_key, '-inf', now)
end
return #ids
`)

func (q *RedisQueue) PromoteScheduled(ctx context.Context, queues []string) error {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)

	for _, name := range queues {
		err := promoteScript.Run(ctx, q.rdb,
			[]string{scheduledKey(name), queueKey(name)},
			now,
		).Err()

		if err != nil && !errors.Is(err, redis.Nil) {
			return redisErrors.NewWithCause(ErrPromote, err).WithDetail("queue", name)
		}
	}

	return nil
}

func (q *RedisQueue) save(ctx context.Context, info *jobx.JobInfo, ttl time.Duration) error {
	info.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(info)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job_id", info.ID)
	}
	if err := q.rdb.Set(ctx, jobKey(info.ID), data, ttl).Err(); err != nil {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("job_id", info.ID)
	}
	return nil
}

// releaseUnique frees the unique key held by a finished job, so the same
// work can be enqueued again.
func (q *RedisQueue) releaseUnique(ctx context.Context, info *jobx.JobInfo) error {
	if info.UniqueKey == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, q.rdb, []string{uniqueKey(info.UniqueKey)}, info.ID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("unique_key", info.UniqueKey)
	}
	return nil
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)
