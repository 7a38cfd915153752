package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// A Stream delivers pushed messages of one topic. The channel is closed when
// ctx is done or the subscription ends.
type Stream interface {
	Subscribe(ctx context.Context, topic Topic) (<-chan Message, error)
}

// A Listener merges the added and updated push streams into a store. Both
// streams go through the same merge rule, so the order in which the two
// channels fire does not matter.
type Listener struct {
	store  *Store
	stream Stream
	logger *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// NewListener creates a Listener for stream.
func NewListener(store *Store, stream Stream, logger *slog.Logger) *Listener {
	return &Listener{
		store:  store,
		stream: stream,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once Run has subscribed to both topics.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Run subscribes to both topics and merges their messages until ctx is done.
// It returns an error if a subscription cannot be set up. Stream failures
// reported by an earlier Run are cleared once both subscriptions are up.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	added, err := l.stream.Subscribe(ctx, TopicAdded)
	if err != nil {
		return l.fail(ctx, SourceAdded, fmt.Errorf("subscribe %s: %w", TopicAdded, err))
	}
	updated, err := l.stream.Subscribe(ctx, TopicUpdated)
	if err != nil {
		return l.fail(ctx, SourceUpdated, fmt.Errorf("subscribe %s: %w", TopicUpdated, err))
	}
	for _, source := range []string{SourceAdded, SourceUpdated} {
		if err := l.store.ReportError(ctx, source, nil); err != nil && !errors.Is(err, ErrClosed) {
			l.logger.Error("Could not clear stream error", "source", source, "error", err.Error())
		}
	}
	l.readyOnce.Do(func() { close(l.ready) })
	l.logger.Info("Listening for pushed messages")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.consume(ctx, SourceAdded, added, Tail)
	}()
	go func() {
		defer wg.Done()
		l.consume(ctx, SourceUpdated, updated, InPlace)
	}()
	wg.Wait()
	return nil
}

func (l *Listener) consume(ctx context.Context, source string, msgs <-chan Message, placement Placement) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() == nil {
					l.fail(ctx, source, fmt.Errorf("%s: %w", source, ErrStreamClosed))
				}
				return
			}
			l.handle(ctx, source, msg, placement)
		}
	}
}

func (l *Listener) handle(ctx context.Context, source string, msg Message, placement Placement) {
	if err := Validate(msg); err != nil {
		l.logger.Warn("Dropping malformed pushed message", "source", source, "error", err.Error())
		return
	}
	if err := l.store.ApplyUpsert(ctx, source, msg, placement); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Debug("Could not merge pushed message", "source", source, "id", msg.ID, "error", err.Error())
	}
}

func (l *Listener) fail(ctx context.Context, source string, err error) error {
	if rerr := l.store.ReportError(context.WithoutCancel(ctx), source, err); rerr != nil && !errors.Is(rerr, ErrClosed) {
		l.logger.Error("Could not report stream error", "error", rerr.Error())
	}
	return err
}
