package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GetStream/chat-feed-sync/feed"
	"github.com/redis/go-redis/v9"
)

// Redis delivers pushed messages over Redis pub/sub.
type Redis struct {
	cli    *redis.Client
	feedID string
	logger *slog.Logger
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr, feedID string, logger *slog.Logger) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli:    cli,
		feedID: feedID,
		logger: logger,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

const feedPrefix = "feed"

func channelName(feedID string, topic feed.Topic) string {
	return fmt.Sprintf("%s:%s:%s", feedPrefix, feedID, topic)
}

// Publish pushes msg to the subscribers of topic.
func (r *Redis) Publish(ctx context.Context, topic feed.Topic, msg feed.Message) error {
	b, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.cli.Publish(ctx, channelName(r.feedID, topic), b).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe returns the messages pushed to topic. It waits for Redis to
// confirm the subscription before returning. The channel is closed when ctx
// is done or the connection is closed.
func (r *Redis) Subscribe(ctx context.Context, topic feed.Topic) (<-chan feed.Message, error) {
	name := channelName(r.feedID, topic)
	ps := r.cli.Subscribe(ctx, name)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	out := make(chan feed.Message)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				msg, err := decodeMessage([]byte(m.Payload))
				if err != nil {
					r.logger.Warn("Could not decode pushed message", "channel", m.Channel, "error", err.Error())
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
