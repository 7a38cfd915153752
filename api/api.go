package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GetStream/chat-feed-sync/feed"
	"github.com/GetStream/chat-feed-sync/validator"
)

// A FeedReader provides the current feed and its updates.
type FeedReader interface {
	Snapshot() feed.Feed
	Subscribe() (<-chan feed.Feed, func())
}

// A Sender sends messages on behalf of the local user.
type Sender interface {
	Send(ctx context.Context, text string) (feed.Message, error)
}

// A Loader loads older pages of the feed.
type Loader interface {
	LoadMore(ctx context.Context) error
}

// API provides the REST endpoints the rendering layer reads the feed from.
type API struct {
	Logger *slog.Logger
	Feed   FeedReader
	Sender Sender
	Loader Loader
	Val    *validator.Validator

	once sync.Once
	mux  *http.ServeMux
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /messages", a.listMessages)
	mux.HandleFunc("POST /messages", a.createMessage)
	mux.HandleFunc("POST /messages/more", a.loadMore)
	mux.HandleFunc("GET /messages/events", a.streamMessages)

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

func (a *API) validateBody(w http.ResponseWriter, s any) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	f := a.Feed.Snapshot()
	a.Logger.Info("Got messages from feed", "count", f.Len())
	a.respond(w, http.StatusOK, apiFeed(f))
}

func (a *API) createMessage(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text string `json:"text" validate:"required"`
	}

	var body request
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}

	if valid := a.validateBody(w, &body); !valid {
		return
	}

	err = r.Body.Close()
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not close request body")
		return
	}

	msg, err := a.Sender.Send(r.Context(), body.Text)
	switch {
	case errors.Is(err, feed.ErrSendInFlight):
		a.respondError(w, http.StatusConflict, err, "A message is already being sent")
		return
	case errors.Is(err, feed.ErrEmptyText):
		a.respondError(w, http.StatusBadRequest, err, "Message text is empty")
		return
	case errors.Is(err, feed.ErrClosed):
		a.respondError(w, http.StatusServiceUnavailable, err, "Feed is closed")
		return
	case err != nil:
		a.respondError(w, http.StatusBadGateway, err, "Could not send message")
		return
	}

	a.respond(w, http.StatusCreated, apiMessage(feed.Entry{Message: msg}))
}

func (a *API) loadMore(w http.ResponseWriter, r *http.Request) {
	if err := a.Loader.LoadMore(r.Context()); err != nil {
		a.respondError(w, http.StatusBadGateway, err, "Could not load messages")
		return
	}
	a.respond(w, http.StatusOK, apiFeed(a.Feed.Snapshot()))
}

// streamMessages sends every feed snapshot as a server-sent event.
func (a *API) streamMessages(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.respondError(w, http.StatusInternalServerError, errors.New("response writer does not flush"), "Streaming unsupported")
		return
	}

	updates, cancel := a.Feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case f, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(apiFeed(f))
			if err != nil {
				a.Logger.Error("Could not encode feed", "error", err.Error())
				return
			}
			if _, err := fmt.Fprintf(w, "event: feed\ndata: %s\n\n", data); err != nil {
				a.Logger.Info("Stream client gone", "error", err.Error())
				return
			}
			flusher.Flush()
		}
	}
}
