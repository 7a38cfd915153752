package postgres

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/GetStream/chat-feed-sync/feed"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// ErrInvalidCursor is returned for a cursor this package did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// Postgres serves the pages of one feed and stores the messages sent to it.
type Postgres struct {
	bun    *bun.DB
	feedID string
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr, feedID string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun:    db,
		feedID: feedID,
	}, nil
}

// Close closes the database connection.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// CreateSchema creates the messages table if it does not exist.
func (pg *Postgres) CreateSchema(ctx context.Context) error {
	if _, err := pg.bun.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	if _, err := pg.bun.NewCreateTable().Model((*message)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// EncodeCursor returns the opaque cursor for a sequence number.
func EncodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

// DecodeCursor returns the sequence number of a cursor. The empty cursor is
// the start of the feed.
func DecodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	seq, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return seq, nil
}

// FetchPage returns up to req.First messages after the req.After cursor in
// insertion order.
func (pg *Postgres) FetchPage(ctx context.Context, req feed.PageRequest) (feed.PageResult, error) {
	after, err := DecodeCursor(req.After)
	if err != nil {
		return feed.PageResult{}, err
	}
	if req.First <= 0 {
		req.First = feed.DefaultPageSize
	}

	var msgs []message
	// One extra row tells whether there is a next page.
	err = pg.bun.NewSelect().
		Model(&msgs).
		Where("feed_id = ?", pg.feedID).
		Where("seq > ?", after).
		Order("seq ASC").
		Limit(req.First + 1).
		Scan(ctx)
	if err != nil {
		return feed.PageResult{}, fmt.Errorf("scan: %w", err)
	}

	return pageResult(msgs, req), nil
}

func pageResult(msgs []message, req feed.PageRequest) feed.PageResult {
	hasNext := len(msgs) > req.First
	if hasNext {
		msgs = msgs[:req.First]
	}

	res := feed.PageResult{
		Edges: make([]feed.Edge, len(msgs)),
		PageInfo: feed.PageInfo{
			HasNextPage:     hasNext,
			HasPreviousPage: req.After != "",
		},
	}
	for i, m := range msgs {
		res.Edges[i] = feed.Edge{Node: m.FeedMessage(), Cursor: EncodeCursor(m.Seq)}
	}
	if len(res.Edges) > 0 {
		res.PageInfo.StartCursor = res.Edges[0].Cursor
		res.PageInfo.EndCursor = res.Edges[len(res.Edges)-1].Cursor
	} else {
		res.PageInfo.EndCursor = req.After
	}
	return res
}

// Submit inserts a message sent by the local user. The returned message holds
// auto generated fields, such as the message id.
func (pg *Postgres) Submit(ctx context.Context, req feed.SendRequest) (feed.Message, error) {
	m := &message{
		FeedID:      pg.feedID,
		Nonce:       req.Nonce,
		MessageText: req.Text,
		Sender:      string(feed.User),
		Status:      string(feed.Sent),
	}
	if _, err := pg.bun.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
		return feed.Message{}, fmt.Errorf("insert: %w", err)
	}
	return m.FeedMessage(), nil
}

// UpdateStatus sets the status of a message and bumps its update time.
func (pg *Postgres) UpdateStatus(ctx context.Context, id string, status feed.Status) (feed.Message, error) {
	m := &message{}
	_, err := pg.bun.NewUpdate().
		Model(m).
		Set("status = ?", string(status)).
		Set("updated_at = now()").
		Where("feed_id = ?", pg.feedID).
		Where("id = ?", id).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return feed.Message{}, fmt.Errorf("update: %w", err)
	}
	if m.ID == "" {
		return feed.Message{}, fmt.Errorf("update %s: %w", id, sql.ErrNoRows)
	}
	return m.FeedMessage(), nil
}
