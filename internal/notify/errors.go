package notify

import "errors"

// Admission errors. These are the only hard failures surfaced to
// callers; soft blocks resolve to a Decision instead.
var (
	ErrRecipientNotFound = errors.New("recipient not found")
)
