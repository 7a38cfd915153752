package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// A Submitter sends a new message to the server and returns the stored
// message.
type Submitter interface {
	Submit(ctx context.Context, req SendRequest) (Message, error)
}

// An Outbox shows messages in the feed before the server confirms them. The
// provisional entry carries a nonce that the confirmed message is matched on.
type Outbox struct {
	store     *Store
	submitter Submitter
	logger    *slog.Logger

	// Now returns the timestamp of provisional messages. Defaults to time.Now.
	Now func() time.Time

	pending atomic.Bool
}

// NewOutbox creates an Outbox that submits through submitter.
func NewOutbox(store *Store, submitter Submitter, logger *slog.Logger) *Outbox {
	return &Outbox{
		store:     store,
		submitter: submitter,
		logger:    logger,
		Now:       time.Now,
	}
}

// Send adds text to the feed as a provisional message, submits it and merges
// the confirmed message. On failure the provisional message is removed again.
// Send returns ErrSendInFlight while another send is pending.
func (o *Outbox) Send(ctx context.Context, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyText
	}
	if !o.pending.CompareAndSwap(false, true) {
		return Message{}, ErrSendInFlight
	}
	defer o.pending.Store(false)

	nonce := uuid.NewString()
	prov := Message{
		ID:        "local-" + nonce,
		Nonce:     nonce,
		Text:      text,
		Sender:    User,
		Status:    Sending,
		UpdatedAt: o.Now(),
	}
	if err := o.store.ApplyProvisional(ctx, prov); err != nil {
		return Message{}, fmt.Errorf("apply provisional: %w", err)
	}

	msg, err := o.submitter.Submit(ctx, SendRequest{Text: text, Nonce: nonce})
	if err == nil {
		err = Validate(msg)
	}
	if err != nil {
		err = fmt.Errorf("submit: %w", err)
		o.fail(prov.ID, err)
		return Message{}, err
	}

	// The response belongs to this request whatever nonce the server echoed.
	msg.Nonce = nonce

	// The message is stored on the server now, so it must replace the
	// provisional entry even if the caller gave up waiting.
	ctx = context.WithoutCancel(ctx)
	if err := o.store.ApplyUpsert(ctx, SourceSend, msg, Tail); err != nil {
		if errors.Is(err, ErrClosed) {
			o.logger.Debug("Feed closed, discarding confirmed message", "id", msg.ID)
		}
		return msg, fmt.Errorf("apply confirmed: %w", err)
	}
	if err := o.store.ReportError(ctx, SourceSend, nil); err != nil && !errors.Is(err, ErrClosed) {
		o.logger.Error("Could not clear feed error", "error", err.Error())
	}
	o.logger.Info("Message sent", "id", msg.ID, "nonce", nonce)
	return msg, nil
}

func (o *Outbox) fail(provID string, err error) {
	// The request context may be the reason the send failed.
	ctx := context.Background()
	if rerr := o.store.Rollback(ctx, provID); rerr != nil && !errors.Is(rerr, ErrClosed) {
		o.logger.Error("Could not roll back provisional message", "id", provID, "error", rerr.Error())
	}
	if rerr := o.store.ReportError(ctx, SourceSend, err); rerr != nil && !errors.Is(rerr, ErrClosed) {
		o.logger.Error("Could not report send error", "error", rerr.Error())
	}
}
