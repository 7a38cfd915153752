package postgres

import (
	"time"

	"github.com/GetStream/chat-feed-sync/feed"
	"github.com/uptrace/bun"
)

// A message represents a message in the database. Seq orders the feed and
// backs the page cursors.
type message struct {
	bun.BaseModel `bun:"table:messages"`

	Seq         int64     `bun:",pk,autoincrement"`
	ID          string    `bun:",unique,nullzero,type:uuid,default:uuid_generate_v4()"`
	FeedID      string    `bun:",notnull"`
	Nonce       string    `bun:",nullzero"`
	MessageText string    `bun:"message_text,notnull"`
	Sender      string    `bun:",notnull"`
	Status      string    `bun:",notnull"`
	UpdatedAt   time.Time `bun:",nullzero,notnull,default:now()"`
}

func (m message) FeedMessage() feed.Message {
	return feed.Message{
		ID:        m.ID,
		Nonce:     m.Nonce,
		Text:      m.MessageText,
		Sender:    feed.Sender(m.Sender),
		Status:    feed.Status(m.Status),
		UpdatedAt: m.UpdatedAt,
	}
}
