package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
)

const redisKeyPrefix = "trustengine"

// RedisStore implements Store using Redis. Commit runs in MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new store backed by Redis.
func NewRedisStore(addr string, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func redisKey(kind, account string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, kind, account)
}

func (s *RedisStore) Reputation(ctx context.Context, account string) (reputation.Record, error) {
	data, err := s.client.Get(ctx, redisKey("rep", account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return reputation.Record{}, nil
	}
	if err != nil {
		return reputation.Record{}, unavailable("get reputation", err)
	}
	return decodeReputation(data)
}

func (s *RedisStore) Stake(ctx context.Context, account string) (staking.Record, error) {
	data, err := s.client.Get(ctx, redisKey("stake", account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return staking.Record{}, nil
	}
	if err != nil {
		return staking.Record{}, unavailable("get stake", err)
	}
	return decodeStake(data)
}

func (s *RedisStore) Commit(ctx context.Context, m Mutation) error {
	var repData, stakeData, changeData []byte
	var err error
	if m.Reputation != nil {
		if repData, err = m.Reputation.MarshalBinary(); err != nil {
			return err
		}
	}
	if m.Stake != nil {
		if stakeData, err = m.Stake.MarshalBinary(); err != nil {
			return err
		}
	}
	if m.TierChange != nil {
		if changeData, err = json.Marshal(m.TierChange); err != nil {
			return fmt.Errorf("failed to marshal tier change: %w", err)
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if repData != nil {
			pipe.Set(ctx, redisKey("rep", m.Account), repData, 0)
		}
		if stakeData != nil {
			pipe.Set(ctx, redisKey("stake", m.Account), stakeData, 0)
		}
		if changeData != nil {
			pipe.RPush(ctx, redisKey("tier", m.Account), changeData)
		}
		return nil
	})
	if err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *RedisStore) TierChanges(ctx context.Context, account string) ([]staking.TierChange, error) {
	raw, err := s.client.LRange(ctx, redisKey("tier", account), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list tier changes", err)
	}
	changes := make([]staking.TierChange, 0, len(raw))
	for _, r := range raw {
		var c staking.TierChange
		if err := json.Unmarshal([]byte(r), &c); err != nil {
			return nil, fmt.Errorf("%w: tier change: %v", staking.ErrCorruptRecord, err)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
