package models

import "errors"

// Error classes shared by every layer. Concrete errors wrap one of these so
// callers can classify with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrAmbiguousMatch    = errors.New("ambiguous match")
	ErrRemoteUnavailable = errors.New("store unavailable")
)
