// Package source turns column parameters into normalized submissions.
//
// Each SourceKind has one Adapter. Adapters perform exactly one fetch per
// call, never retry on their own and never panic on bad input: failures are
// reported as *Error values classified by ErrInvalidParams or
// ErrSourceUnavailable. The poller decides when to call again.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketdash/internal/domain"
)

var (
	// ErrInvalidParams means the column parameters can never produce a
	// successful fetch until they are edited.
	ErrInvalidParams = errors.New("invalid column parameters")

	// ErrSourceUnavailable covers transport, HTTP and parse failures. The
	// next cycle may succeed.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// Error is returned by adapters. Kind is one of the sentinel errors above.
type Error struct {
	Kind   error
	Source domain.SourceKind
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
}

// Unwrap exposes both the classification and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsInvalidParams reports whether err is classified as ErrInvalidParams.
func IsInvalidParams(err error) bool { return errors.Is(err, ErrInvalidParams) }

// IsSourceUnavailable reports whether err is classified as ErrSourceUnavailable.
func IsSourceUnavailable(err error) bool { return errors.Is(err, ErrSourceUnavailable) }

func invalidParams(kind domain.SourceKind, format string, args ...any) error {
	return &Error{Kind: ErrInvalidParams, Source: kind, Err: fmt.Errorf(format, args...)}
}

func unavailable(kind domain.SourceKind, err error) error {
	return &Error{Kind: ErrSourceUnavailable, Source: kind, Err: err}
}

// Result is the outcome of one successful fetch. Interval is the adapter's
// recommended delay before the next fetch; the poller adds a uniform random
// delay in [0, Jitter].
type Result struct {
	Submissions []domain.Submission
	Interval    time.Duration
	Jitter      time.Duration
}

// Adapter fetches one snapshot for a column.
type Adapter interface {
	Kind() domain.SourceKind
	FetchOnce(ctx context.Context, params map[string]string) (Result, error)
}

// Registry resolves adapters by source kind.
type Registry struct {
	adapters map[domain.SourceKind]Adapter
}

// NewRegistry creates a registry holding the given adapters. A later adapter
// of the same kind replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.SourceKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// Lookup returns the adapter for kind, or an ErrInvalidParams error when no
// adapter is registered.
func (r *Registry) Lookup(kind domain.SourceKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, invalidParams(kind, "no adapter for source kind %q", kind)
	}
	return a, nil
}

// Validate checks col's parameters with its adapter without fetching.
func (r *Registry) Validate(col domain.ColumnConfig) error {
	a, err := r.Lookup(col.SourceKind)
	if err != nil {
		return err
	}
	if v, ok := a.(interface {
		Validate(map[string]string) error
	}); ok {
		return v.Validate(col.Params)
	}
	return nil
}
