package redis

import (
	"testing"
	"time"

	"github.com/GetStream/chat-feed-sync/feed"
	"github.com/google/go-cmp/cmp"
)

func TestChannelName(t *testing.T) {
	if got, want := channelName("general", feed.TopicAdded), "feed:general:added"; got != want {
		t.Errorf("Got %q, want %q", got, want)
	}
	if got, want := channelName("general", feed.TopicUpdated), "feed:general:updated"; got != want {
		t.Errorf("Got %q, want %q", got, want)
	}
}

func TestDecodeMessage(t *testing.T) {
	want := feed.Message{
		ID:        "1",
		Nonce:     "n1",
		Text:      "Hello",
		Sender:    feed.User,
		Status:    feed.Read,
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	b, err := encodeMessage(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Message mismatch (-want +got):\n%s", diff)
	}

	if _, err := decodeMessage([]byte("not msgpack")); err == nil {
		t.Error("decodeMessage() expected error for garbage but got none")
	}
}
