package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

type teststream struct {
	topics map[Topic]chan Message
	err    map[Topic]error
}

func newTestStream() *teststream {
	return &teststream{
		topics: map[Topic]chan Message{
			TopicAdded:   make(chan Message),
			TopicUpdated: make(chan Message),
		},
		err: make(map[Topic]error),
	}
}

func (s *teststream) Subscribe(_ context.Context, topic Topic) (<-chan Message, error) {
	if err := s.err[topic]; err != nil {
		return nil, err
	}
	return s.topics[topic], nil
}

func runListener(t *testing.T, s *Store, stream Stream) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	l := NewListener(s, stream, slogt.New(t))
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func has(ids ...string) func(Feed) bool {
	return func(f Feed) bool {
		for _, id := range ids {
			if _, ok := f.Lookup(id); !ok {
				return false
			}
		}
		return true
	}
}

func TestListener_addedThenStaleUpdated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.ApplyPage(ctx, entries(msg("1", 1, "a"), msg("2", 2, "b")), PageInfo{}); err != nil {
		t.Fatal(err)
	}
	stream := newTestStream()
	runListener(t, s, stream)

	stream.topics[TopicAdded] <- msg("3", 20, "fresh")
	stream.topics[TopicUpdated] <- msg("3", 19, "stale")
	// Each stream is consumed in order, so once the markers show up both
	// messages above have been merged.
	stream.topics[TopicAdded] <- msg("a-marker", 1, "")
	stream.topics[TopicUpdated] <- msg("u-marker", 1, "")

	f := waitFor(t, s, has("a-marker", "u-marker"))
	if got := ids(f)[:3]; got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Errorf("Got ids %v, want [1 2 3 ...]", ids(f))
	}
	if e, _ := f.Lookup("3"); e.Message.Text != "fresh" || !e.Message.UpdatedAt.Equal(ts(20)) {
		t.Errorf("Got %+v, want fresh version @20", e.Message)
	}
}

func TestListener_updateBeforeAdd(t *testing.T) {
	s := newTestStore(t)
	stream := newTestStream()
	runListener(t, s, stream)

	stream.topics[TopicUpdated] <- msg("3", 19, "read")
	waitFor(t, s, has("3"))
	stream.topics[TopicAdded] <- msg("3", 10, "added")
	stream.topics[TopicAdded] <- msg("marker", 1, "")

	f := waitFor(t, s, has("marker"))
	if f.Len() != 2 {
		t.Fatalf("Got ids %v, want 2 entries", ids(f))
	}
	if e, _ := f.Lookup("3"); e.Message.Text != "read" {
		t.Errorf("Got %+v, want version @19", e.Message)
	}
}

func TestListener_dropsMalformed(t *testing.T) {
	s := newTestStore(t)
	stream := newTestStream()
	runListener(t, s, stream)

	stream.topics[TopicAdded] <- Message{Text: "no id", UpdatedAt: ts(1)}
	stream.topics[TopicAdded] <- Message{ID: "x", Text: "no timestamp"}
	stream.topics[TopicAdded] <- msg("ok", 1, "fine")

	f := waitFor(t, s, has("ok"))
	if f.Len() != 1 {
		t.Errorf("Got ids %v, want [ok]", ids(f))
	}
}

func TestListener_subscribeError(t *testing.T) {
	s := newTestStore(t)
	stream := newTestStream()
	boom := errors.New("dial tcp: connection refused")
	stream.err[TopicUpdated] = boom

	err := NewListener(s, stream, slogt.New(t)).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Got error %v, want %v", err, boom)
	}
	if !errors.Is(s.Snapshot().Err, boom) {
		t.Errorf("Got feed error %v, want %v", s.Snapshot().Err, boom)
	}
}

func TestListener_streamClosed(t *testing.T) {
	s := newTestStore(t)
	stream := newTestStream()
	_, done := runListener(t, s, stream)

	stream.topics[TopicAdded] <- msg("1", 1, "a")
	close(stream.topics[TopicAdded])
	close(stream.topics[TopicUpdated])

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after streams closed")
	}
	f := s.Snapshot()
	if !errors.Is(f.Err, ErrStreamClosed) {
		t.Errorf("Got feed error %v, want ErrStreamClosed", f.Err)
	}
	if _, ok := f.Lookup("1"); !ok {
		t.Errorf("Got ids %v, want 1 kept", ids(f))
	}
}

func TestListener_cancel(t *testing.T) {
	s := newTestStore(t)
	stream := newTestStream()
	cancel, done := runListener(t, s, stream)

	stream.topics[TopicAdded] <- msg("1", 1, "a")
	waitFor(t, s, has("1"))
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	select {
	case stream.topics[TopicAdded] <- msg("2", 1, "b"):
		t.Error("Listener still consuming after cancel")
	case <-time.After(50 * time.Millisecond):
	}
	if f := s.Snapshot(); f.Len() != 1 || f.Err != nil {
		t.Errorf("Got ids %v err %v, want [1] and no error", ids(f), f.Err)
	}
}

func TestListener_streamErrorOutlivesPage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	stream := newTestStream()
	_, done := runListener(t, s, stream)

	close(stream.topics[TopicAdded])
	close(stream.topics[TopicUpdated])
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after streams closed")
	}

	pager := &testpager{
		T: t,
		fetchPage: func(t *testing.T, req PageRequest) (PageResult, error) {
			return PageResult{Edges: []Edge{{Node: msg("1", 1, "a"), Cursor: "c1"}}}, nil
		},
	}
	if err := NewLoader(s, pager, slogt.New(t)).LoadFirst(ctx, 10); err != nil {
		t.Fatal(err)
	}

	f := s.Snapshot()
	if f.Len() != 1 {
		t.Errorf("Got ids %v, want [1]", ids(f))
	}
	if !errors.Is(f.Err, ErrStreamClosed) {
		t.Errorf("Got feed error %v after page, want ErrStreamClosed", f.Err)
	}
	if err := f.SourceErr(SourcePage); err != nil {
		t.Errorf("Got page error %v, want nil", err)
	}
}

func TestListener_ready(t *testing.T) {
	s := newTestStore(t)
	broken := newTestStream()
	broken.err[TopicUpdated] = errors.New("connection refused")

	l := NewListener(s, broken, slogt.New(t))
	if err := l.Run(context.Background()); err == nil {
		t.Fatal("Got nil error, want subscribe error")
	}
	select {
	case <-l.Ready():
		t.Error("Listener ready after failed subscribe")
	default:
	}
	if s.Snapshot().SourceErr(SourceUpdated) == nil {
		t.Error("Got no updated stream error, want one")
	}

	// A later Run on a working stream recovers.
	l = NewListener(s, newTestStream(), slogt.New(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-l.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Listener not ready after subscribing")
	}
	if err := s.Snapshot().Err; err != nil {
		t.Errorf("Got feed error %v after resubscribing, want nil", err)
	}
	cancel()
	<-done
}
