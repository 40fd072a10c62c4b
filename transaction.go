package sq3

import (
	"github.com/ha1tch/sq3/engine"
)

// Transaction is a scope guard over a connection-level transaction:
// Begin issues the begin directive, and exactly one resolution happens
// across the guard's lifetime, either explicitly through Commit or
// Rollback or implicitly when Close runs.
//
// The default disposition on Close is rollback; WithCommitOnClose flips
// it. Nesting guards on one connection is unsupported.
type Transaction struct {
	db            *Database
	commitOnClose bool
}

// TxOption configures a Transaction at Begin.
type TxOption func(*txOptions)

type txOptions struct {
	mode          engine.TxnMode
	commitOnClose bool
}

// WithImmediate requests an immediate write lock at begin time, so lock
// acquisition failures surface at Begin rather than on the first write.
func WithImmediate() TxOption {
	return func(o *txOptions) { o.mode = engine.Immediate }
}

// WithExclusive requests an exclusive lock at begin time.
func WithExclusive() TxOption {
	return func(o *txOptions) { o.mode = engine.Exclusive }
}

// WithCommitOnClose makes the implicit resolution at Close a commit
// instead of the default rollback.
func WithCommitOnClose() TxOption {
	return func(o *txOptions) { o.commitOnClose = true }
}

// Begin starts a transaction on db and returns the guard. The begin
// directive is deferred unless an option requests otherwise.
func Begin(db *Database, opts ...TxOption) (*Transaction, error) {
	o := txOptions{mode: engine.Deferred}
	for _, opt := range opts {
		opt(&o)
	}
	if db.conn == nil {
		return nil, &Error{Status: engine.Misuse, Message: "transaction on a closed database"}
	}
	if rc := db.conn.Begin(o.mode); rc != engine.OK {
		return nil, db.errStatus(rc)
	}
	db.logger.Execution().Debug("transaction begun", "mode", o.mode.String())
	return &Transaction{db: db, commitOnClose: o.commitOnClose}, nil
}

// Active reports whether the guard is still unresolved.
func (tx *Transaction) Active() bool { return tx.db != nil }

// CommitStatus commits and marks the guard resolved regardless of the
// outcome, returning the raw engine status. Resolving an already
// resolved guard is a no-op returning OK.
func (tx *Transaction) CommitStatus() engine.Status {
	db := tx.db
	if db == nil {
		return engine.OK
	}
	tx.db = nil
	return db.conn.Commit()
}

// Commit commits the transaction.
func (tx *Transaction) Commit() error {
	db := tx.db
	if rc := tx.CommitStatus(); rc != engine.OK {
		return db.errStatus(rc)
	}
	return nil
}

// RollbackStatus rolls back and marks the guard resolved regardless of
// the outcome, returning the raw engine status. Resolving an already
// resolved guard is a no-op returning OK.
func (tx *Transaction) RollbackStatus() engine.Status {
	db := tx.db
	if db == nil {
		return engine.OK
	}
	tx.db = nil
	return db.conn.Rollback()
}

// Rollback rolls back the transaction.
func (tx *Transaction) Rollback() error {
	db := tx.db
	if rc := tx.RollbackStatus(); rc != engine.OK {
		return db.errStatus(rc)
	}
	return nil
}

// Close resolves the guard if it is still unresolved, committing or
// rolling back per its disposition. A resolution failure here has no
// caller to unwind to, so it is reported to the diagnostic logger at
// critical severity as well as returned: a failed implicit rollback
// means an uncommitted transaction may be left open on the connection.
func (tx *Transaction) Close() error {
	db := tx.db
	if db == nil {
		return nil
	}
	var (
		rc   engine.Status
		verb string
	)
	if tx.commitOnClose {
		rc = tx.CommitStatus()
		verb = "commit"
	} else {
		rc = tx.RollbackStatus()
		verb = "rollback"
	}
	if rc != engine.OK {
		err := db.errStatus(rc)
		db.logger.Cleanup().Critical("implicit transaction "+verb+" failed", err,
			"database", db.name,
		)
		return err
	}
	return nil
}
