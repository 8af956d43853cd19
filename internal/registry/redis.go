package registry

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a shared registry backed by go-redis. One row per connection
// with a TTL, plus a per-user set for reverse lookup. Set members whose row
// has expired are pruned on read.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the given Redis URL and verifies the connection.
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("registry: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("registry: redis ping: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

var _ Registry = (*Redis)(nil)

func connKey(connectionID string) string { return "conn:" + connectionID }
func userKey(userID string) string       { return "user:" + userID + ":conns" }

func (r *Redis) Register(ctx context.Context, userID, connectionID string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, connKey(connectionID), userID, r.ttl)
	pipe.SAdd(ctx, userKey(userID), connectionID)
	pipe.Expire(ctx, userKey(userID), r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Unregister(ctx context.Context, connectionID string) error {
	userID, err := r.client.Get(ctx, connKey(connectionID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, connKey(connectionID))
	pipe.SRem(ctx, userKey(userID), connectionID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) ConnectionsFor(ctx context.Context, userID string) ([]string, error) {
	members, err := r.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	var live []string
	var stale []any
	for _, connectionID := range members {
		exists, err := r.client.Exists(ctx, connKey(connectionID)).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			stale = append(stale, connectionID)
			continue
		}
		live = append(live, connectionID)
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, userKey(userID), stale...).Err()
	}
	return live, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
