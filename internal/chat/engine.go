// Package chat implements the messaging domain engine: identity, presence,
// connection requests, conversations, messages, reactions, read receipts and
// typing signals. Every command runs as one store transaction and, once
// committed, publishes the topics it touched so live queries can refresh.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/relay/internal/bus"
	"github.com/matheus3301/relay/internal/live"
	"github.com/matheus3301/relay/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultRequestTTL   = 24 * time.Hour
	DefaultTypingWindow = 2000 * time.Millisecond
)

// Notifier accepts best-effort notifications. Implementations must not block
// for long; delivery itself happens elsewhere.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, toEmail, toName, fromName, preview, conversationID string) error
	NotifyConnectionRequest(ctx context.Context, toEmail, toName, fromName string) error
}

// Observer is told about every command outcome, typically for metrics.
type Observer interface {
	Command(op string, took time.Duration, err error)
}

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	RequestTTL   time.Duration
	TypingWindow time.Duration
	Clock        func() time.Time
	Observer     Observer
}

// Engine executes commands against the store.
type Engine struct {
	db       *store.DB
	bus      *bus.Bus
	notifier Notifier
	logger   *zap.Logger
	observer Observer

	requestTTL   time.Duration
	typingWindow time.Duration
	clock        func() time.Time
}

// NewEngine creates an engine. notifier and logger may be nil.
func NewEngine(db *store.DB, b *bus.Bus, notifier Notifier, logger *zap.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		db:           db,
		bus:          b,
		notifier:     notifier,
		logger:       logger,
		observer:     cfg.Observer,
		requestTTL:   cfg.RequestTTL,
		typingWindow: cfg.TypingWindow,
		clock:        cfg.Clock,
	}
	if e.requestTTL <= 0 {
		e.requestTTL = DefaultRequestTTL
	}
	if e.typingWindow <= 0 {
		e.typingWindow = DefaultTypingWindow
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

func (e *Engine) now() time.Time { return e.clock() }

// change collects the side effects of one mutation.
type change struct {
	topics []string
	after  []func(ctx context.Context)
	// kept is set when the transaction commits even though the command fails.
	kept bool
}

func (c *change) touch(topics ...string) {
	c.topics = append(c.topics, topics...)
}

// afterCommit schedules fn to run once the transaction has committed.
func (c *change) afterCommit(fn func(ctx context.Context)) {
	c.after = append(c.after, fn)
}

// keep commits the transaction and still reports err to the caller.
func (c *change) keep(err error) error {
	c.kept = true
	return &store.Commit{Err: err}
}

// mutate runs fn in one write transaction. Only once the transaction has
// committed does it publish the touched topics and run the after-commit hooks.
func (e *Engine) mutate(ctx context.Context, op string, fn func(tx *store.Tx, c *change) error) error {
	start := time.Now()
	c := &change{}
	err := e.db.Update(ctx, func(tx *store.Tx) error {
		return fn(tx, c)
	})
	if e.observer != nil {
		e.observer.Command(op, time.Since(start), err)
	}
	if err != nil && (!c.kept || errors.Is(err, store.ErrCommitFailed)) {
		return err
	}

	if len(c.topics) > 0 && e.bus != nil {
		e.bus.Publish(bus.NewEvent(live.CommitNamespace+op, c.topics, nil))
	}
	for _, fn := range c.after {
		fn(context.WithoutCancel(ctx))
	}
	if err != nil {
		e.logger.Debug("command failed after commit", zap.String("op", op), zap.Error(err))
	}
	return err
}

// reader tracks what a read touched so it can back a live query.
type reader struct {
	tx         *store.Tx
	now        time.Time
	topics     []string
	validUntil time.Time
}

func (r *reader) depend(topics ...string) {
	r.topics = append(r.topics, topics...)
}

// until records that the result may change at t without any commit.
func (r *reader) until(t time.Time) {
	if r.validUntil.IsZero() || t.Before(r.validUntil) {
		r.validUntil = t
	}
}

func (e *Engine) read(ctx context.Context, fn func(r *reader) error) (*reader, error) {
	r := &reader{now: e.now()}
	err := e.db.View(ctx, func(tx *store.Tx) error {
		r.tx = tx
		return fn(r)
	})
	return r, err
}

// view runs a read and returns its value.
func view[T any](ctx context.Context, e *Engine, fn func(ctx context.Context, r *reader) (T, error)) (T, error) {
	var out T
	_, err := e.read(ctx, func(r *reader) error {
		var err error
		out, err = fn(ctx, r)
		return err
	})
	return out, err
}

// query wraps a read as a live query.
func query[T any](e *Engine, signature string, fn func(ctx context.Context, r *reader) (T, error)) live.Query {
	return live.Func{
		Sig: signature,
		Fn: func(ctx context.Context) (live.Result, error) {
			var out T
			r, err := e.read(ctx, func(r *reader) error {
				var err error
				out, err = fn(ctx, r)
				return err
			})
			if err != nil {
				return live.Result{Topics: r.topics}, err
			}
			return live.Result{Value: out, Topics: r.topics, ValidUntil: r.validUntil}, nil
		},
	}
}
