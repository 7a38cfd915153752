package feed

import (
	"errors"
	"slices"
	"time"
)

// A Sender identifies who wrote a message.
type Sender string

const (
	User  Sender = "USER"
	Admin Sender = "ADMIN"
)

// A Status is the delivery state of a message.
type Status string

const (
	Sending Status = "SENDING"
	Sent    Status = "SENT"
	Read    Status = "READ"
)

// Icon returns the glyph displayed next to the local sender's own messages.
func (s Status) Icon() string {
	switch s {
	case Sending:
		return "⏳"
	case Sent:
		return "✓"
	case Read:
		return "✓✓"
	}
	return ""
}

// A Message represents a single chat message. UpdatedAt is the version clock
// used to resolve conflicting copies of the same message.
type Message struct {
	ID        string    `json:"id" validate:"required"`
	Nonce     string    `json:"nonce,omitempty"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender" validate:"omitempty,oneof=USER ADMIN"`
	Status    Status    `json:"status" validate:"omitempty,oneof=SENDING SENT READ"`
	UpdatedAt time.Time `json:"updated_at" validate:"required"`
}

// An Entry is a message in the feed together with its pagination cursor.
type Entry struct {
	Message     Message
	Cursor      string
	Provisional bool
}

// PageInfo describes where the loaded pages end.
type PageInfo struct {
	HasNextPage     bool   `json:"has_next_page"`
	HasPreviousPage bool   `json:"has_previous_page"`
	StartCursor     string `json:"start_cursor,omitempty"`
	EndCursor       string `json:"end_cursor,omitempty"`
}

// A Feed is the ordered, deduplicated list of messages of one conversation.
// Feeds returned by a Store must not be modified.
type Feed struct {
	Entries  []Entry
	PageInfo PageInfo
	// Err joins the failures of every producer that has not recovered, nil
	// when the feed is healthy.
	Err error

	errs map[string]error
}

// Len returns the number of entries.
func (f Feed) Len() int { return len(f.Entries) }

// Lookup returns the entry holding the message with the given id.
func (f Feed) Lookup(id string) (Entry, bool) {
	if i := f.indexOf(id); i >= 0 {
		return f.Entries[i], true
	}
	return Entry{}, false
}

// Messages returns the messages of the feed in display order.
func (f Feed) Messages() []Message {
	out := make([]Message, len(f.Entries))
	for i, e := range f.Entries {
		out[i] = e.Message
	}
	return out
}

// SourceErr returns the failure reported by source, nil if it has none.
func (f Feed) SourceErr(source string) error { return f.errs[source] }

// withError returns f with the failure of source set to err. A nil err clears
// it and leaves the failures of other sources in place.
func (f Feed) withError(source string, err error) Feed {
	errs := make(map[string]error, len(f.errs)+1)
	for src, e := range f.errs {
		if src != source {
			errs[src] = e
		}
	}
	if err != nil {
		errs[source] = err
	}

	sources := make([]string, 0, len(errs))
	for src := range errs {
		sources = append(sources, src)
	}
	slices.Sort(sources)
	all := make([]error, len(sources))
	for i, src := range sources {
		all[i] = errs[src]
	}

	f.errs = errs
	switch len(all) {
	case 0:
		f.Err = nil
	case 1:
		f.Err = all[0]
	default:
		f.Err = errors.Join(all...)
	}
	return f
}

func (f Feed) indexOf(id string) int {
	for i, e := range f.Entries {
		if e.Message.ID == id {
			return i
		}
	}
	return -1
}

func (f Feed) indexOfProvisional(nonce string) int {
	if nonce == "" {
		return -1
	}
	for i, e := range f.Entries {
		if e.Provisional && e.Message.Nonce == nonce {
			return i
		}
	}
	return -1
}

// A Placement tells Merge where to put a message it has not seen before.
type Placement int

const (
	Tail Placement = iota
	Head
	// InPlace keeps a known message where it is. Unknown messages go to the
	// tail.
	InPlace
)

func (p Placement) String() string {
	switch p {
	case Head:
		return "head"
	case InPlace:
		return "in_place"
	}
	return "tail"
}

// PageRequest asks for the First messages after the After cursor.
type PageRequest struct {
	First int
	After string
}

// An Edge is a message of a page with its cursor.
type Edge struct {
	Node   Message `json:"node"`
	Cursor string  `json:"cursor"`
}

// A PageResult is one page of messages returned by a Pager.
type PageResult struct {
	Edges    []Edge   `json:"edges"`
	PageInfo PageInfo `json:"page_info"`
}

// SendRequest submits a new message. Nonce is echoed by the server so the
// response can be matched with the provisional message.
type SendRequest struct {
	Text  string `json:"text" validate:"required"`
	Nonce string `json:"nonce"`
}

// A Topic names one of the push channels.
type Topic string

const (
	TopicAdded   Topic = "added"
	TopicUpdated Topic = "updated"
)
