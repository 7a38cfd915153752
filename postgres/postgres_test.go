package postgres

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/GetStream/chat-feed-sync/feed"
	"github.com/google/go-cmp/cmp"
)

func TestCursor(t *testing.T) {
	for _, seq := range []int64{0, 1, 42, 1 << 40} {
		got, err := DecodeCursor(EncodeCursor(seq))
		if err != nil {
			t.Fatalf("DecodeCursor(EncodeCursor(%d)): %v", seq, err)
		}
		if got != seq {
			t.Errorf("Got %d, want %d", got, seq)
		}
	}

	if seq, err := DecodeCursor(""); err != nil || seq != 0 {
		t.Errorf("DecodeCursor(\"\") = %d, %v, want 0, nil", seq, err)
	}

	for _, bad := range []string{"%%%", rawCursor("abc"), rawCursor("-1")} {
		if _, err := DecodeCursor(bad); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("DecodeCursor(%q) error %v, want ErrInvalidCursor", bad, err)
		}
	}
}

func TestPageResult(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := func(seqs ...int64) []message {
		out := make([]message, len(seqs))
		for i, s := range seqs {
			out[i] = message{Seq: s, ID: "m" + EncodeCursor(s), MessageText: "hi", Sender: "ADMIN", Status: "SENT", UpdatedAt: at}
		}
		return out
	}

	tests := []struct {
		name     string
		rows     []message
		req      feed.PageRequest
		wantLen  int
		wantInfo feed.PageInfo
	}{
		{
			name:    "FirstPageWithMore",
			rows:    rows(1, 2, 3),
			req:     feed.PageRequest{First: 2},
			wantLen: 2,
			wantInfo: feed.PageInfo{
				HasNextPage: true,
				StartCursor: EncodeCursor(1),
				EndCursor:   EncodeCursor(2),
			},
		},
		{
			name:    "LastPage",
			rows:    rows(3),
			req:     feed.PageRequest{First: 2, After: EncodeCursor(2)},
			wantLen: 1,
			wantInfo: feed.PageInfo{
				HasPreviousPage: true,
				StartCursor:     EncodeCursor(3),
				EndCursor:       EncodeCursor(3),
			},
		},
		{
			name:    "EmptyPageKeepsCursor",
			req:     feed.PageRequest{First: 2, After: EncodeCursor(3)},
			wantLen: 0,
			wantInfo: feed.PageInfo{
				HasPreviousPage: true,
				EndCursor:       EncodeCursor(3),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pageResult(tt.rows, tt.req)
			if len(got.Edges) != tt.wantLen {
				t.Errorf("Got %d edges, want %d", len(got.Edges), tt.wantLen)
			}
			if diff := cmp.Diff(tt.wantInfo, got.PageInfo); diff != "" {
				t.Errorf("PageInfo mismatch (-want +got):\n%s", diff)
			}
			for _, e := range got.Edges {
				if e.Node.Sender != feed.Admin || e.Node.Status != feed.Sent || !e.Node.UpdatedAt.Equal(at) {
					t.Errorf("Unexpected node %+v", e.Node)
				}
			}
		})
	}
}

func rawCursor(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
