package routecache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries hostnames whose routing changed.
const InvalidationChannel = "route:invalidation"

const keyPrefix = "route:"

// RedisStore is the shared second-level cache. Every process keeps its own
// L1 and listens on InvalidationChannel to drop stale entries.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Get returns ("", false, nil) on a miss.
func (r *RedisStore) Get(ctx context.Context, host string) (string, bool, error) {
	slug, err := r.client.Get(ctx, keyPrefix+host).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return slug, true, nil
}

func (r *RedisStore) Set(ctx context.Context, host, slug string, ttl time.Duration) error {
	return r.client.Set(ctx, keyPrefix+host, slug, ttl).Err()
}

// Invalidate deletes the hosts and tells every other process to drop them.
func (r *RedisStore) Invalidate(ctx context.Context, hosts ...string) error {
	if len(hosts) == 0 {
		return nil
	}
	keys := make([]string, len(hosts))
	for i, h := range hosts {
		keys[i] = keyPrefix + h
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	for _, h := range hosts {
		if err := r.client.Publish(ctx, InvalidationChannel, h).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe returns invalidated hostnames until ctx is done. The subscription
// is confirmed before Subscribe returns.
func (r *RedisStore) Subscribe(ctx context.Context) (<-chan string, error) {
	pubsub := r.client.Subscribe(ctx, InvalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
