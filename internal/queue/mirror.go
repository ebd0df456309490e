package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const mirrorKey = "resv:mirror"

type MirrorQueue interface {
	// Push schedules the job to wake at readyAt.
	Push(ctx context.Context, job ReservationJob, readyAt time.Time) error
	// PopDue atomically removes and returns jobs whose wake time has passed.
	PopDue(ctx context.Context, now time.Time, limit int) ([]ReservationJob, error)
}

type redisMirrorQueue struct {
	cli *redis.Client
}

func NewRedisMirrorQueue(cli *redis.Client) MirrorQueue {
	return &redisMirrorQueue{cli: cli}
}

func (q *redisMirrorQueue) Push(ctx context.Context, job ReservationJob, readyAt time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal mirror job: %w", err)
	}

	if err := q.cli.ZAdd(ctx, mirrorKey, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("push mirror job: %w", err)
	}

	return nil
}

// Pop due members and remove them in one round trip so two runners never
// take the same job.
var popDueScript = redis.NewScript(`
	local key = KEYS[1]
	local now = ARGV[1]
	local limit = tonumber(ARGV[2])

	local members = redis.call('ZRANGEBYSCORE', key, '-inf', now, 'LIMIT', 0, limit)
	if #members > 0 then
		redis.call('ZREM', key, unpack(members))
	end

	return members
`)

func (q *redisMirrorQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]ReservationJob, error) {
	res, err := popDueScript.Run(ctx, q.cli, []string{mirrorKey}, now.Unix(), limit).Result()
	if err != nil {
		return nil, fmt.Errorf("pop mirror jobs: %w", err)
	}

	raw, ok := res.([]interface{})
	if !ok {
		return nil, nil
	}

	jobs := make([]ReservationJob, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var job ReservationJob
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			return nil, fmt.Errorf("unmarshal mirror job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}
