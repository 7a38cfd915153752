package feed

import (
	"fmt"

	"github.com/GetStream/chat-feed-sync/validator"
)

var val = validator.New()

// Validate reports whether msg can be merged. Messages without an id or an
// update timestamp are rejected with ErrMalformed.
func Validate(msg Message) error {
	if err := val.Check(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
