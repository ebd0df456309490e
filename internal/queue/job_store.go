package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job status keys outlive both delivery paths by a day so late mirror
// wakeups still observe completion.
const jobStatusTTL = 24 * time.Hour

const (
	jobStatusPending   = "pending"
	jobStatusCompleted = "completed"
)

type JobStore interface {
	// Begin registers a token, returning false if it was seen before.
	Begin(ctx context.Context, token string) (bool, error)
	MarkCompleted(ctx context.Context, token string) error
	IsCompleted(ctx context.Context, token string) (bool, error)
}

type redisJobStore struct {
	cli *redis.Client
}

func NewRedisJobStore(cli *redis.Client) JobStore {
	return &redisJobStore{cli: cli}
}

func (s *redisJobStore) Begin(ctx context.Context, token string) (bool, error) {
	ok, err := s.cli.SetNX(ctx, s.jobKey(token), jobStatusPending, jobStatusTTL).Result()
	if err != nil {
		return false, fmt.Errorf("register job token: %w", err)
	}
	return ok, nil
}

func (s *redisJobStore) MarkCompleted(ctx context.Context, token string) error {
	if err := s.cli.Set(ctx, s.jobKey(token), jobStatusCompleted, jobStatusTTL).Err(); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

func (s *redisJobStore) IsCompleted(ctx context.Context, token string) (bool, error) {
	status, err := s.cli.Get(ctx, s.jobKey(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("get job status: %w", err)
	}
	return status == jobStatusCompleted, nil
}

func (s *redisJobStore) jobKey(token string) string {
	return fmt.Sprintf("resv:job:%s", token)
}
