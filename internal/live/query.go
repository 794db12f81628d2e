package live

import (
	"context"
	"time"
)

// Query is a live view that can be re-evaluated on demand.
type Query interface {
	// Signature identifies the query and its arguments, e.g. "messages(c1)".
	Signature() string
	Run(ctx context.Context) (Result, error)
}

// Result is one evaluation of a Query.
type Result struct {
	Value any
	// Topics is the dependency set: a commit touching any of them invalidates Value.
	Topics []string
	// ValidUntil, when set, is the instant after which Value may change without a
	// commit (freshness windows, expiry deadlines).
	ValidUntil time.Time
}

// Func adapts a function to the Query interface.
type Func struct {
	Sig string
	Fn  func(ctx context.Context) (Result, error)
}

func (f Func) Signature() string { return f.Sig }

func (f Func) Run(ctx context.Context) (Result, error) { return f.Fn(ctx) }

// Snapshot is one pushed result of a subscription.
type Snapshot struct {
	Signature string
	Version   uint64
	Value     any
	Err       error
	At        time.Time
}
