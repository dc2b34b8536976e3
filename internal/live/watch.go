package live

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Loader reads the current state of a watched collection.
type Loader[T any] func(ctx context.Context) (T, error)

// Watch delivers load's result to fn once on subscribe and again after every change signal on
// topic. Each delivery is a full replacement. Load failures are logged and skipped. The returned
// cancel func stops the watch and waits for an in-flight delivery; it must not be called from fn.
func Watch[T any](ctx context.Context, b Broker, topic Topic, load Loader[T], fn func(T)) (func(), error) {
	ctx, stop := context.WithCancel(ctx)

	signals, unsubscribe, err := b.Subscribe(ctx, topic)
	if err != nil {
		stop()
		return nil, err
	}

	done := make(chan struct{})
	deliver := func() {
		v, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("topic", string(topic)).Msg("Failed to load watched collection")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		fn(v)
	}

	go func() {
		defer close(done)
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			unsubscribe()
			<-done
		})
	}, nil
}

// PublishAll signals every topic. Failures are logged, not returned.
func PublishAll(ctx context.Context, b Broker, topics ...Topic) {
	if b == nil {
		return
	}
	for _, topic := range topics {
		if err := b.Publish(ctx, topic); err != nil {
			log.Warn().Err(err).Str("topic", string(topic)).Msg("Failed to publish change")
		}
	}
}
