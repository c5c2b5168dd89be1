package enrich

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMalformedModelResponse means the oracle replied, but not in the required shape.
	ErrMalformedModelResponse = errors.New("malformed model response")

	// ErrOracleUnavailable means the oracle call failed outright.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)

// Malformed wraps a parse/shape failure of an oracle reply.
func Malformed(step string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrMalformedModelResponse, step)
	}
	return fmt.Errorf("%w: %s: %w", ErrMalformedModelResponse, step, err)
}

// Unavailable wraps an oracle call failure. Errors that already carry ErrOracleUnavailable are
// returned unchanged, as are context errors once ctx itself is done. A deadline that expired
// while ctx is still live (a per-call timeout) is an unavailable oracle.
func Unavailable(ctx context.Context, step string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOracleUnavailable) || (ctx.Err() != nil && IsCanceled(err)) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrOracleUnavailable, step, err)
}

// FetchError is a failure surfaced by a source fetch collaborator. It is recorded before the
// source is treated as absent.
type FetchError struct {
	Company string
	Source  string
	Err     error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "fetch error"
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s for %q failed", e.Source, e.Company)
	}
	return fmt.Sprintf("fetch %s for %q: %v", e.Source, e.Company, e.Err)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsCanceled reports whether err comes from a canceled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
