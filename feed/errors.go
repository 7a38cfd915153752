package feed

import "errors"

var (
	// ErrClosed is returned by a Store after Close.
	ErrClosed = errors.New("feed closed")
	// ErrSendInFlight is returned when Send is called while a send is pending.
	ErrSendInFlight = errors.New("send already in flight")
	// ErrEmptyText is returned when Send is called without text.
	ErrEmptyText = errors.New("empty message text")
	// ErrMalformed marks a message rejected at the boundary.
	ErrMalformed = errors.New("malformed message")
	// ErrStreamClosed is reported when a push stream ends on its own.
	ErrStreamClosed = errors.New("push stream closed")
)
