// Package redis provides the production keyed store backed by Redis.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// Config controls the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store implements scheduler.KeyedStore on a go-redis client.
type Store struct {
	cli *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{cli: cli}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(cli *redis.Client) *Store {
	return &Store{cli: cli}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.cli.Close()
}

// HashGet returns one field of a hash; ok is false when key or field is absent.
func (s *Store) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.cli.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s %s: %w", key, field, err)
	}
	return v, true, nil
}

// HashGetAll returns the whole hash, or nil when the key is absent.
func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	h, err := s.cli.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(h) == 0 {
		return nil, nil
	}
	return h, nil
}

// HashSet merges fields into the hash.
func (s *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.cli.HSet(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// HashSetField sets a single field.
func (s *Store) HashSetField(ctx context.Context, key, field, value string) error {
	if err := s.cli.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", key, field, err)
	}
	return nil
}

// Delete removes a key of any type.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.cli.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// SortedSetAdd upserts members with their scores.
func (s *Store) SortedSetAdd(ctx context.Context, key string, members ...scheduler.ScoredMember) error {
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Member}
	}
	if err := s.cli.ZAdd(ctx, key, zs...).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

// SortedSetRemove drops members from the set.
func (s *Store) SortedSetRemove(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.cli.ZRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", key, err)
	}
	return nil
}

// SortedSetRangeByScore returns members within the score range with scores.
func (s *Store) SortedSetRangeByScore(ctx context.Context, key string, opts scheduler.RangeOptions) ([]scheduler.ScoredMember, error) {
	rangeBy := &redis.ZRangeBy{
		Min: formatBound(opts.Min, "-inf"),
		Max: formatBound(opts.Max, "+inf"),
	}
	if opts.Limit > 0 {
		rangeBy.Count = int64(opts.Limit)
	}
	zs, err := s.cli.ZRangeByScoreWithScores(ctx, key, rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}
	out := make([]scheduler.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		out = append(out, scheduler.ScoredMember{Score: z.Score, Member: member})
	}
	return out, nil
}

// SortedSetCount counts members within the score range.
func (s *Store) SortedSetCount(ctx context.Context, key string, opts scheduler.RangeOptions) (int64, error) {
	n, err := s.cli.ZCount(ctx, key, formatBound(opts.Min, "-inf"), formatBound(opts.Max, "+inf")).Result()
	if err != nil {
		return 0, fmt.Errorf("zcount %s: %w", key, err)
	}
	return n, nil
}

// SortedSetScore returns the member's score; ok is false when absent.
func (s *Store) SortedSetScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.cli.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zscore %s %s: %w", key, member, err)
	}
	return score, true, nil
}

func formatBound(b *float64, inf string) string {
	if b == nil {
		return inf
	}
	return strconv.FormatFloat(*b, 'f', -1, 64)
}
