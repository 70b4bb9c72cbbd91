package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotPrefix = "climax:snapshot:"
	channelPrefix  = "climax:updates:"
)

// RedisBroker keeps snapshots under plain keys and fans them out over
// Redis pub/sub, so several server processes can share games.
type RedisBroker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisBroker connects using a redis:// URL. Snapshots expire after ttl
// without an update; zero keeps them forever.
func NewRedisBroker(ctx context.Context, url string, ttl time.Duration) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBroker{rdb: rdb, ttl: ttl}, nil
}

func (b *RedisBroker) Save(ctx context.Context, id string, snapshot []byte) error {
	return b.rdb.Set(ctx, snapshotPrefix+id, snapshot, b.ttl).Err()
}

func (b *RedisBroker) Load(ctx context.Context, id string) ([]byte, error) {
	s, err := b.rdb.Get(ctx, snapshotPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return s, err
}

func (b *RedisBroker) Delete(ctx context.Context, id string) error {
	return b.rdb.Del(ctx, snapshotPrefix+id).Err()
}

func (b *RedisBroker) Publish(ctx context.Context, id string, snapshot []byte) error {
	return b.rdb.Publish(ctx, channelPrefix+id, snapshot).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, id string) (<-chan []byte, error) {
	ps := b.rdb.Subscribe(ctx, channelPrefix+id)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	out := make(chan []byte, subscriberBuffer)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
