package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrCommitFailed wraps the error of a transaction that failed to commit.
// None of its writes are visible.
var ErrCommitFailed = errors.New("commit failed")

// DB wraps the SQLite connections backing a workspace. The embedded pool
// takes write transactions; reads run on a separate query-only pool.
type DB struct {
	*sql.DB
	read *sql.DB
}

// Tx is one atomic unit of work. Every multi-step mutation runs inside a single Tx.
type Tx struct {
	tx *sql.Tx
}

// Open creates a SQLite connection with WAL mode and immediate write transactions,
// so concurrent read-modify-write sequences serialise on the store. Reads use
// deferred transactions on their own pool and never take the write lock.
func Open(path string) (*DB, error) {
	db, err := open(path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	read, err := open(path + "?_busy_timeout=5000&_txlock=deferred&_query_only=on")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db, read: read}, nil
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Close closes both pools.
func (db *DB) Close() error {
	return errors.Join(db.read.Close(), db.DB.Close())
}

// Update runs fn in a write transaction, committing only if fn returns nil.
// A fn that wants its writes kept while still reporting a failure returns a
// *Commit wrapping that failure. A failed commit is reported as ErrCommitFailed
// in place of fn's error.
func (db *DB) Update(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ferr := fn(&Tx{tx: tx})
	if ferr != nil {
		keep, ok := ferr.(*Commit)
		if !ok {
			return ferr
		}
		ferr = keep.Err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	return ferr
}

// View runs fn in a read-only transaction for a consistent snapshot. Open
// views do not block Update.
func (db *DB) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.read.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&Tx{tx: tx})
}

// Commit asks Update to commit the transaction and then return Err.
type Commit struct {
	Err error
}

func (c *Commit) Error() string { return c.Err.Error() }

func (c *Commit) Unwrap() error { return c.Err }
