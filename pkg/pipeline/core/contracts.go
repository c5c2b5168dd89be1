package core

import "context"

// InputAdapter loads the items a run works through (companies, queries).
type InputAdapter[In any] interface {
	Load(ctx context.Context) ([]In, error)
}

// LoadFunc adapts a function to the InputAdapter interface.
type LoadFunc[In any] func(ctx context.Context) ([]In, error)

func (f LoadFunc[In]) Load(ctx context.Context) ([]In, error) {
	return f(ctx)
}

// OutputAdapter persists the rows a run produced.
type OutputAdapter[Out any] interface {
	Store(ctx context.Context, rows []Out) error
}

// StoreFunc adapts a function to the OutputAdapter interface.
type StoreFunc[Out any] func(ctx context.Context, rows []Out) error

func (f StoreFunc[Out]) Store(ctx context.Context, rows []Out) error {
	return f(ctx, rows)
}

// Processor turns one unit of work into one result.
type Processor[In any, Out any] interface {
	Process(ctx context.Context, in In) (Out, error)
}

// ProcessFunc adapts a function to the Processor interface.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

func (f ProcessFunc[In, Out]) Process(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// TransientError marks an error as retryable by callers that retry (the oracle access layer).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LimitedTransientError is retryable, but only ExtraRetries more times regardless of the
// caller's configured budget.
type LimitedTransientError struct {
	Err          error
	ExtraRetries int
}

func (e *LimitedTransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *LimitedTransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MaxExtraRetries caps the retry budget for this error.
func (e *LimitedTransientError) MaxExtraRetries() int {
	if e == nil {
		return 0
	}
	return e.ExtraRetries
}
