package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// A Pager fetches pages of messages from the server.
type Pager interface {
	FetchPage(ctx context.Context, req PageRequest) (PageResult, error)
}

// DefaultPageSize is the page size used by LoadMore before LoadFirst ran.
const DefaultPageSize = 20

// A Loader pages forward through the messages of a feed. Only one page
// request is in flight at a time; calls made meanwhile are ignored.
type Loader struct {
	store  *Store
	pager  Pager
	logger *slog.Logger

	busy     atomic.Bool
	mu       sync.Mutex
	pageSize int
}

// NewLoader creates a Loader that appends the pages it fetches to store.
func NewLoader(store *Store, pager Pager, logger *slog.Logger) *Loader {
	return &Loader{
		store:    store,
		pager:    pager,
		logger:   logger,
		pageSize: DefaultPageSize,
	}
}

// LoadFirst fetches the first pageSize messages. The page size is remembered
// for LoadMore.
func (l *Loader) LoadFirst(ctx context.Context, pageSize int) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	l.mu.Lock()
	l.pageSize = pageSize
	l.mu.Unlock()

	if !l.busy.CompareAndSwap(false, true) {
		l.logger.Debug("Page request already in flight")
		return nil
	}
	defer l.busy.Store(false)
	return l.load(ctx, PageRequest{First: pageSize})
}

// LoadMore fetches the page after the last loaded one. It does nothing when
// there is no next page or a page request is already in flight.
func (l *Loader) LoadMore(ctx context.Context) error {
	if !l.busy.CompareAndSwap(false, true) {
		l.logger.Debug("Page request already in flight")
		return nil
	}
	defer l.busy.Store(false)

	info := l.store.Snapshot().PageInfo
	if !info.HasNextPage || info.EndCursor == "" {
		return nil
	}
	l.mu.Lock()
	first := l.pageSize
	l.mu.Unlock()
	return l.load(ctx, PageRequest{First: first, After: info.EndCursor})
}

func (l *Loader) load(ctx context.Context, req PageRequest) error {
	res, err := l.pager.FetchPage(ctx, req)
	if err != nil {
		err = fmt.Errorf("fetch page: %w", err)
		if rerr := l.store.ReportError(context.WithoutCancel(ctx), SourcePage, err); rerr != nil && !errors.Is(rerr, ErrClosed) {
			l.logger.Error("Could not report page error", "error", rerr.Error())
		}
		return err
	}

	entries := make([]Entry, 0, len(res.Edges))
	for _, edge := range res.Edges {
		if err := Validate(edge.Node); err != nil {
			l.logger.Warn("Dropping malformed page entry", "cursor", edge.Cursor, "error", err.Error())
			continue
		}
		entries = append(entries, Entry{Message: edge.Node, Cursor: edge.Cursor})
	}

	if err := l.store.ApplyPage(ctx, entries, res.PageInfo); err != nil {
		if errors.Is(err, ErrClosed) {
			l.logger.Debug("Feed closed, discarding page", "entries", len(entries))
		}
		return fmt.Errorf("apply page: %w", err)
	}
	l.logger.Info("Loaded page", "after", req.After, "entries", len(entries), "has_next_page", res.PageInfo.HasNextPage)
	return nil
}
