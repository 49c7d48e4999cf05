package params

import (
	"context"
	"errors"
	"sort"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis keeps parameters in two hashes: values and last-update timestamps.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedis stores parameters under "<prefix>:params". An empty prefix uses "influencegen".
func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "influencegen"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) valuesKey() string  { return r.prefix + ":params" }
func (r *Redis) updatedKey() string { return r.prefix + ":params:updated" }

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, r.valuesKey(), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.valuesKey(), key, value)
		p.HSet(ctx, r.updatedKey(), key, now)
		return nil
	})
	return err
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, r.valuesKey(), key)
		p.HDel(ctx, r.updatedKey(), key)
		return nil
	})
	return err
}

func (r *Redis) List(ctx context.Context) ([]Param, error) {
	values, err := r.rdb.HGetAll(ctx, r.valuesKey()).Result()
	if err != nil {
		return nil, err
	}
	updated, err := r.rdb.HGetAll(ctx, r.updatedKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Param, 0, len(values))
	for k, v := range values {
		p := Param{Key: k, Value: v}
		if ts, ok := updated[k]; ok {
			p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
