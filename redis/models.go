package redis

import (
	"time"

	"github.com/GetStream/chat-feed-sync/feed"
	"github.com/vmihailenco/msgpack/v5"
)

// A message represents a pushed message on the wire.
type message struct {
	ID        string    `msgpack:"id"`
	Nonce     string    `msgpack:"nonce,omitempty"`
	Text      string    `msgpack:"text"`
	Sender    string    `msgpack:"sender"`
	Status    string    `msgpack:"status"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

func (m message) FeedMessage() feed.Message {
	return feed.Message{
		ID:        m.ID,
		Nonce:     m.Nonce,
		Text:      m.Text,
		Sender:    feed.Sender(m.Sender),
		Status:    feed.Status(m.Status),
		UpdatedAt: m.UpdatedAt,
	}
}

func encodeMessage(msg feed.Message) ([]byte, error) {
	return msgpack.Marshal(&message{
		ID:        msg.ID,
		Nonce:     msg.Nonce,
		Text:      msg.Text,
		Sender:    string(msg.Sender),
		Status:    string(msg.Status),
		UpdatedAt: msg.UpdatedAt,
	})
}

func decodeMessage(b []byte) (feed.Message, error) {
	var m message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return feed.Message{}, err
	}
	return m.FeedMessage(), nil
}
