// Package connectorredis fans user invalidations out to every process over Redis pub/sub.
package connectorredis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/kernel"
	"github.com/ryan12324/openassistant/pkg/logx"
)

var redisErrors = errx.NewRegistry("CONNECTORX_REDIS")

var (
	ErrPublish   = redisErrors.Register("PUBLISH", errx.TypeExternal, 500, "Failed to publish invalidation")
	ErrSubscribe = redisErrors.Register("SUBSCRIBE", errx.TypeExternal, 500, "Failed to subscribe to invalidations")
)

// Invalidator is the part of connectorx.Registry the listener drives.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID kernel.UserID)
}

// Broadcaster publishes and consumes user ids on one channel.
type Broadcaster struct {
	rdb     redis.UniversalClient
	channel string
}

func NewBroadcaster(rdb redis.UniversalClient, channel string) *Broadcaster {
	return &Broadcaster{rdb: rdb, channel: channel}
}

// Publish asks every listening process, this one included, to invalidate userID.
func (b *Broadcaster) Publish(ctx context.Context, userID kernel.UserID) error {
	if err := b.rdb.Publish(ctx, b.channel, userID.String()).Err(); err != nil {
		return redisErrors.NewWithCause(ErrPublish, err).WithDetail("user_id", userID)
	}
	return nil
}

// Listen invalidates users as their ids arrive until ctx is cancelled.
// ready, when non-nil, is closed once the subscription is confirmed.
func (b *Broadcaster) Listen(ctx context.Context, target Invalidator, ready chan<- struct{}) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return redisErrors.NewWithCause(ErrSubscribe, err).WithDetail("channel", b.channel)
	}
	if ready != nil {
		close(ready)
	}

	log := logx.WithFields(logx.Fields{"component": "connectorredis", "channel": b.channel})
	log.Info("listening for connector invalidations")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload == "" {
				continue
			}
			target.InvalidateUser(ctx, kernel.UserID(msg.Payload))
			log.WithField("user_id", msg.Payload).Debug("invalidation applied")
		}
	}
}
