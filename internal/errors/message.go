package errors

import (
	stderrors "errors"
	"strings"
)

// UserMessager is implemented by errors that carry a message meant for end users,
// such as the error text returned by the lead backend.
type UserMessager interface {
	UserMessage() string
}

// MessageOf returns the user-facing message carried by err, or fallback when
// err carries none. All errors crossing into the transcript or the HTTP
// surface go through here so backend messages are propagated verbatim.
func MessageOf(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var um UserMessager
	if stderrors.As(err, &um) {
		if msg := strings.TrimSpace(um.UserMessage()); msg != "" {
			return msg
		}
	}

	return fallback
}
