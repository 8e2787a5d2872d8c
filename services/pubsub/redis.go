package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/auth"
)

const pingTimeout = 2 * time.Second

// RedisBus is an auth.EventBus shared by every process subscribed to the same Redis channel.
// Published events come back through the subscription, so local subscribers see them exactly once.
type RedisBus struct {
	client  *redis.Client
	channel string
	sub     *redis.PubSub
	hub     *auth.Hub
	logger  core.Logger
	done    chan struct{}
}

var _ auth.EventBus = (*RedisBus)(nil) // interface compliance check

// NewRedisBus connects to conf.Redis and starts relaying the channel to local subscribers.
func NewRedisBus(conf *core.Config, logger core.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	sub := client.Subscribe(ctx, conf.Redis.Channel)
	// wait for the subscription to be confirmed so no event published afterwards is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}

	bus := &RedisBus{
		client:  client,
		channel: conf.Redis.Channel,
		sub:     sub,
		hub:     auth.NewHub(),
		logger:  logger,
		done:    make(chan struct{}),
	}
	go bus.relay()
	return bus, nil
}

func (bus *RedisBus) Publish(ctx context.Context, ev auth.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding auth event")
	}
	if err := bus.client.Publish(ctx, bus.channel, payload).Err(); err != nil {
		return core.Unavailable(err)
	}
	return nil
}

func (bus *RedisBus) Subscribe(fn auth.Subscriber) func() {
	return bus.hub.Subscribe(fn)
}

// Close stops the relay and releases the connection.
func (bus *RedisBus) Close() error {
	err := bus.sub.Close()
	<-bus.done
	if cerr := bus.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (bus *RedisBus) relay() {
	defer close(bus.done)

	for msg := range bus.sub.Channel() {
		var ev auth.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			bus.logger.Warn(fmt.Sprintf("dropping malformed auth event: %v", err), err)
			continue
		}
		bus.hub.Dispatch(ev)
	}
}
