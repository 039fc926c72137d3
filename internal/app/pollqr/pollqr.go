// Package pollqr turns poll identifiers into shareable links and QR codes.
//
// Public polls get a plain link on an allow-listed host; private polls get a
// signed, expiring link. Rendered codes are cached per (poll, host).
package pollqr

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidInput is the root of every client-side validation failure.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrMissingPollID = fmt.Errorf("%w: poll id is required", ErrInvalidInput)
	ErrInvalidPollID = fmt.Errorf("%w: invalid poll id format", ErrInvalidInput)
	ErrInvalidHost   = fmt.Errorf("%w: invalid host", ErrInvalidInput)
	ErrInvalidTTL    = fmt.Errorf("%w: invalid link lifetime", ErrInvalidInput)

	ErrEmptyInput      = fmt.Errorf("%w: empty url", ErrInvalidInput)
	ErrTooLong         = fmt.Errorf("%w: url too long", ErrInvalidInput)
	ErrExceedsCapacity = fmt.Errorf("%w: url exceeds qr capacity", ErrInvalidInput)
	ErrMalformedURL    = fmt.Errorf("%w: malformed url", ErrInvalidInput)
)

var ErrPollNotFound = errors.New("poll not found")

// Visibility is what the poll store knows about an identifier.
type Visibility struct {
	Exists  bool
	Private bool
}

// VisibilityLookup reports whether a poll exists and whether it is private.
// A missing poll is Visibility{Exists: false} with a nil error.
type VisibilityLookup interface {
	Lookup(ctx context.Context, pollID string) (Visibility, error)
}

type VisibilityLookupFunc func(ctx context.Context, pollID string) (Visibility, error)

func (f VisibilityLookupFunc) Lookup(ctx context.Context, pollID string) (Visibility, error) {
	return f(ctx, pollID)
}
