package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

type RedisOptions struct {
	Channel   string
	QueueSize int

	// MaxPublishElapsed bounds the retries of one PUBLISH. When it runs
	// out the event is handed to the local publisher only.
	MaxPublishElapsed time.Duration
}

const (
	defaultRedisChannel      = "tasks:changes"
	defaultRedisQueueSize    = 1024
	defaultMaxPublishElapsed = 5 * time.Second
)

// RedisBroadcaster fans events out across instances. Publish hands the
// event to a single sender goroutine that PUBLISHes it on a redis
// channel. A relay goroutine feeds everything received on that channel,
// this instance's own events included, into the local publisher.
type RedisBroadcaster struct {
	logger zerolog.Logger
	client *redis.Client
	local  services.Publisher
	opts   RedisOptions

	queue     chan models.ChangeEvent
	ready     chan struct{}
	readyOnce sync.Once

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ services.Publisher = (*RedisBroadcaster)(nil)

func NewRedisBroadcaster(
	logger zerolog.Logger,
	client *redis.Client,
	local services.Publisher,
	opts RedisOptions,
) *RedisBroadcaster {
	if opts.Channel == "" {
		opts.Channel = defaultRedisChannel
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultRedisQueueSize
	}
	if opts.MaxPublishElapsed <= 0 {
		opts.MaxPublishElapsed = defaultMaxPublishElapsed
	}
	return &RedisBroadcaster{
		logger: logger,
		client: client,
		local:  local,
		opts:   opts,
		queue:  make(chan models.ChangeEvent, opts.QueueSize),
		ready:  make(chan struct{}),
	}
}

// Start launches the sender and the relay. They run until Close or until
// ctx is done.
func (b *RedisBroadcaster) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(2)
	go b.send(ctx)
	go b.relay(ctx)
}

// Ready is closed once the relay has subscribed for the first time.
func (b *RedisBroadcaster) Ready() <-chan struct{} {
	return b.ready
}

func (b *RedisBroadcaster) Publish(event models.ChangeEvent) {
	select {
	case b.queue <- event:
	default:
		b.logger.Error().
			Str("task_id", event.TaskID).
			Str("event", string(event.Kind)).
			Msg("redis publish queue is full, dropping event")
	}
}

func (b *RedisBroadcaster) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.logger.Info().Msg("closed redis broadcaster")
}

func (b *RedisBroadcaster) send(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.queue:
			b.publishRemote(ctx, event)
		}
	}
}

func (b *RedisBroadcaster) publishRemote(ctx context.Context, event models.ChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("task_id", event.TaskID).
			Msg("failed to marshal event")
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = b.opts.MaxPublishElapsed

	err = backoff.RetryNotify(
		func() error {
			return b.client.Publish(ctx, b.opts.Channel, data).Err()
		},
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			b.logger.Warn().
				Err(err).
				Dur("retry_in", next).
				Msg("failed to publish event to redis")
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		b.logger.Error().
			Err(err).
			Str("task_id", event.TaskID).
			Str("event", string(event.Kind)).
			Msg("giving up on redis, delivering locally")
		b.local.Publish(event)
	}
}

func (b *RedisBroadcaster) relay(ctx context.Context) {
	defer b.wg.Done()

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	for ctx.Err() == nil {
		err := b.listen(ctx, policy)
		if ctx.Err() != nil {
			return
		}

		wait := policy.NextBackOff()
		b.logger.Warn().
			Err(err).
			Dur("retry_in", wait).
			Msg("redis subscription lost")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// listen blocks until the subscription breaks or ctx is done. It resets
// policy once the subscription is confirmed.
func (b *RedisBroadcaster) listen(ctx context.Context, policy backoff.BackOff) error {
	sub := b.client.Subscribe(ctx, b.opts.Channel)
	defer func() { _ = sub.Close() }()

	_, err := sub.Receive(ctx)
	if err != nil {
		return err
	}
	policy.Reset()
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info().
		Str("channel", b.opts.Channel).
		Msg("subscribed to redis channel")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}

			var event models.ChangeEvent
			err = json.Unmarshal([]byte(msg.Payload), &event)
			if err != nil {
				b.logger.Error().
					Err(err).
					Msg("failed to unmarshal redis event")
				continue
			}
			b.local.Publish(event)
		}
	}
}
