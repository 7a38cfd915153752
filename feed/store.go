package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sources label the producer of a store operation in logs and metrics.
const (
	SourcePage     = "page"
	SourceSend     = "send"
	SourceAdded    = "added"
	SourceUpdated  = "updated"
	SourceRollback = "rollback"
)

type op struct {
	source string
	apply  func(Feed) (Feed, Outcome)
	err    error
	done   chan struct{}
}

// A Store owns the feed of one conversation. Every mutation is sent to a
// single goroutine that applies them one at a time, so each operation sees the
// result of all operations before it. Snapshots can be read at any time.
type Store struct {
	logger  *slog.Logger
	metrics *Metrics

	ops     chan *op
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	current atomic.Pointer[Feed]

	mu   sync.Mutex
	subs map[chan Feed]struct{}
}

// NewStore creates an empty store and starts its merge loop. metrics may be
// nil. Call Close to stop it.
func NewStore(logger *slog.Logger, metrics *Metrics) *Store {
	s := &Store{
		logger:  logger,
		metrics: metrics,
		ops:     make(chan *op),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		subs:    make(map[chan Feed]struct{}),
	}
	s.current.Store(&Feed{})
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.quit:
			return
		case o := <-s.ops:
			s.exec(o)
		}
	}
}

func (s *Store) exec(o *op) {
	defer close(o.done)
	select {
	case <-s.quit:
		o.err = ErrClosed
		return
	default:
	}

	next, outcome := o.apply(*s.current.Load())
	s.metrics.observe(o.source, outcome, next.Len())
	s.logger.Debug("Merged", "source", o.source, "outcome", outcome, "entries", next.Len())
	if outcome == Stale || outcome == Unchanged {
		return
	}
	s.current.Store(&next)
	s.publish(next)
}

func (s *Store) do(ctx context.Context, source string, apply func(Feed) (Feed, Outcome)) error {
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}

	o := &op{source: source, apply: apply, done: make(chan struct{})}
	select {
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.ops <- o:
	}
	<-o.done
	return o.err
}

// Snapshot returns the current feed.
func (s *Store) Snapshot() Feed {
	return *s.current.Load()
}

// ApplyPage merges a page at the tail and records its page info. A successful
// page clears the error reported by the page source.
func (s *Store) ApplyPage(ctx context.Context, entries []Entry, info PageInfo) error {
	return s.do(ctx, SourcePage, func(cur Feed) (Feed, Outcome) {
		next, added := mergePage(cur, entries, info)
		next = next.withError(SourcePage, nil)
		if added == 0 {
			return next, Updated
		}
		return next, Inserted
	})
}

// ApplyUpsert merges a single message.
func (s *Store) ApplyUpsert(ctx context.Context, source string, msg Message, placement Placement) error {
	return s.do(ctx, source, func(cur Feed) (Feed, Outcome) {
		return merge(cur, msg, placement)
	})
}

// ApplyProvisional appends msg as a provisional entry.
func (s *Store) ApplyProvisional(ctx context.Context, msg Message) error {
	return s.do(ctx, SourceSend, func(cur Feed) (Feed, Outcome) {
		next := Provision(cur, msg)
		if next.Len() == cur.Len() {
			return cur, Unchanged
		}
		return next, Inserted
	})
}

// Rollback removes the provisional entry with the given id.
func (s *Store) Rollback(ctx context.Context, id string) error {
	return s.do(ctx, SourceRollback, func(cur Feed) (Feed, Outcome) {
		next := Rollback(cur, id)
		if next.Len() == cur.Len() {
			return cur, Unchanged
		}
		return next, Updated
	})
}

// ReportError records err as the failure of source. A nil err clears the
// failure of source only.
func (s *Store) ReportError(ctx context.Context, source string, err error) error {
	if err != nil {
		s.metrics.failure(source)
		s.logger.Error("Feed producer failed", "source", source, "error", err.Error())
	}
	return s.do(ctx, source, func(cur Feed) (Feed, Outcome) {
		if cur.SourceErr(source) == nil && err == nil {
			return cur, Unchanged
		}
		return cur.withError(source, err), Updated
	})
}

// Subscribe returns a channel that receives the current feed and then every
// new snapshot. A subscriber that falls behind only sees the newest snapshot.
// The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Feed, func()) {
	ch := make(chan Feed, 1)

	s.mu.Lock()
	ch <- *s.current.Load()
	if s.subs == nil {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, sync.OnceFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	})
}

func (s *Store) publish(f Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- f:
			continue
		default:
		}
		// Replace the snapshot the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}

// Close stops the merge loop and closes all subscriptions. Operations after
// Close return ErrClosed and leave the feed untouched.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.quit)
		<-s.stopped

		s.mu.Lock()
		for ch := range s.subs {
			close(ch)
		}
		s.subs = nil
		s.mu.Unlock()
	})
}
