package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/GetStream/chat-feed-sync/feed"
)

type messageStore interface {
	Submit(ctx context.Context, req feed.SendRequest) (feed.Message, error)
	UpdateStatus(ctx context.Context, id string, status feed.Status) (feed.Message, error)
}

type publisher interface {
	Publish(ctx context.Context, topic feed.Topic, msg feed.Message) error
}

// relay stores messages and pushes the change to every feed subscriber, which
// is what the chat server does in production.
type relay struct {
	db     messageStore
	pub    publisher
	logger *slog.Logger
}

func (r *relay) Submit(ctx context.Context, req feed.SendRequest) (feed.Message, error) {
	msg, err := r.db.Submit(ctx, req)
	if err != nil {
		return feed.Message{}, err
	}
	if err := r.pub.Publish(ctx, feed.TopicAdded, msg); err != nil {
		r.logger.Error("Could not publish added message", "id", msg.ID, "error", err.Error())
	}
	return msg, nil
}

func (r *relay) markRead(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("messageID")
	msg, err := r.db.UpdateStatus(req.Context(), id, feed.Read)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		http.Error(w, "message not found", http.StatusNotFound)
		return
	case err != nil:
		r.logger.Error("Could not update message status", "id", id, "error", err.Error())
		http.Error(w, "could not update message", http.StatusInternalServerError)
		return
	}
	if err := r.pub.Publish(req.Context(), feed.TopicUpdated, msg); err != nil {
		r.logger.Error("Could not publish updated message", "id", id, "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		r.logger.Error("Could not encode JSON body", "error", err.Error())
	}
}
