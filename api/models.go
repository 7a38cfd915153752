package api

import (
	"time"

	"github.com/GetStream/chat-feed-sync/feed"
)

// A Message represents a message as shown to the rendering layer.
type Message struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Sender      string    `json:"sender"`
	Status      string    `json:"status"`
	StatusIcon  string    `json:"status_icon,omitempty"` // only set for the local user's own messages
	UpdatedAt   time.Time `json:"updated_at"`
	Cursor      string    `json:"cursor,omitempty"`
	Provisional bool      `json:"provisional,omitempty"`
}

// A Feed is a snapshot of the feed in display order.
type Feed struct {
	Messages []Message    `json:"messages"`
	PageInfo feed.PageInfo `json:"page_info"`
	Error    string        `json:"error,omitempty"`
}

func apiMessage(e feed.Entry) Message {
	m := Message{
		ID:          e.Message.ID,
		Text:        e.Message.Text,
		Sender:      string(e.Message.Sender),
		Status:      string(e.Message.Status),
		UpdatedAt:   e.Message.UpdatedAt,
		Cursor:      e.Cursor,
		Provisional: e.Provisional,
	}
	if e.Message.Sender == feed.User {
		m.StatusIcon = e.Message.Status.Icon()
	}
	return m
}

func apiFeed(f feed.Feed) Feed {
	out := Feed{
		Messages: make([]Message, len(f.Entries)),
		PageInfo: f.PageInfo,
	}
	for i, e := range f.Entries {
		out.Messages[i] = apiMessage(e)
	}
	if f.Err != nil {
		out.Error = f.Err.Error()
	}
	return out
}
