package masterdata

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisSetClient is the minimal client surface used by RedisStore.
type RedisSetClient interface {
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
	SMIsMember(ctx context.Context, key string, members ...any) *redis.BoolSliceCmd
	TxPipeline() redis.Pipeliner
}

// RedisStore reads the projection from Redis sets of lower-cased codes,
// one set per table.
type RedisStore struct {
	client RedisSetClient
}

// NewRedisStore constructs a Redis-backed master-data store.
func NewRedisStore(client RedisSetClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Exists(ctx context.Context, table Table, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.client.SIsMember(ctx, table.RedisKey(), Normalize(code)).Result()
}

func (r *RedisStore) Missing(ctx context.Context, table Table, codes []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	members := make([]any, len(codes))
	for i, code := range codes {
		members[i] = Normalize(code)
	}
	found, err := r.client.SMIsMember(ctx, table.RedisKey(), members...).Result()
	if err != nil {
		return nil, err
	}

	var missing []string
	for i, ok := range found {
		if !ok {
			missing = append(missing, codes[i])
		}
	}
	return missing, nil
}

// Replace swaps the contents of a table atomically.
func (r *RedisStore) Replace(ctx context.Context, table Table, codes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := table.RedisKey()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(codes) > 0 {
		members := make([]any, len(codes))
		for i, code := range codes {
			members[i] = Normalize(code)
		}
		pipe.SAdd(ctx, key, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
