// Package sq3 turns the raw handles of an embedded SQL engine into
// objects with deterministic lifetimes: database connections, prepared
// statements, row cursors and transactions.
//
// The engine itself is a black box behind the engine package's contract;
// the cgo-backed SQLite implementation registers under "sqlite3":
//
//	import (
//		"github.com/ha1tch/sq3"
//		_ "github.com/ha1tch/sq3/engine/sqlite"
//	)
//
//	db, err := sq3.Open("sqlite3", "app.db")
//	if err != nil { ... }
//	defer db.Close()
//
//	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?)")
//	if err != nil { ... }
//	defer cmd.Close()
//	if err := cmd.Bind(1, 7); err != nil { ... }
//	if err := cmd.Execute(); err != nil { ... }
//
// Error-returning entry points translate non-OK engine statuses into
// *Error at the call boundary. Every such entry point has a raw
// counterpart suffixed Status that returns the engine status untranslated
// and never allocates, for callers who branch on specific codes.
package sq3

import (
	"fmt"
	"strings"

	"github.com/ha1tch/sq3/engine"
	"github.com/ha1tch/sq3/pkg/log"
)

// Database owns a single open database session. At most one native
// handle is open per instance; Connect first closes any existing one.
//
// A Database must not be used from multiple goroutines without external
// synchronisation, and must outlive every statement derived from it.
type Database struct {
	eng    engine.Engine
	conn   engine.Conn
	name   string
	logger *log.Logger
}

// Open opens a database through the engine registered under engineName.
func Open(engineName, path string) (*Database, error) {
	e, ok := engine.Lookup(engineName)
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (forgotten import?)", engineName)
	}
	conn, err := e.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Database{eng: e, conn: conn, name: path, logger: log.Default()}, nil
}

// Wrap builds a Database over an already-open connection. Connect is
// unavailable on a wrapped Database, since no engine is attached.
func Wrap(conn engine.Conn) *Database {
	return &Database{conn: conn, logger: log.Default()}
}

// SetLogger replaces the diagnostic logger. A nil logger is ignored.
func (db *Database) SetLogger(l *log.Logger) {
	if l != nil {
		db.logger = l
	}
}

// Name returns the path this database was opened with.
func (db *Database) Name() string { return db.name }

// Conn exposes the underlying engine connection for engine-specific
// operations.
func (db *Database) Conn() engine.Conn { return db.conn }

// Connect opens path on the same engine, first disconnecting any
// existing session.
func (db *Database) Connect(path string) error {
	if db.eng == nil {
		usageFault("sq3: Connect on a wrapped Database")
	}
	if rc := db.Disconnect(); rc != engine.OK {
		return &Error{Status: rc, Message: "failed to close previous session: " + rc.String()}
	}
	conn, err := db.eng.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.conn = conn
	db.name = path
	return nil
}

// Disconnect closes the session and returns the engine status. The
// handle is dropped regardless of the outcome, so the instance can be
// reused either way. Statements derived from this database must be
// finished first.
func (db *Database) Disconnect() engine.Status {
	if db.conn == nil {
		return engine.OK
	}
	rc := db.conn.Close()
	db.conn = nil
	return rc
}

// Close closes the session. It is safe on cleanup paths: a close failure
// is reported to the diagnostic logger as well as returned, and never
// panics.
func (db *Database) Close() error {
	if db.conn == nil {
		return nil
	}
	conn := db.conn
	db.conn = nil
	if rc := conn.Close(); rc != engine.OK {
		err := &Error{Status: rc, Message: conn.ErrMsg()}
		db.logger.Cleanup().Error("database close failed", err, "database", db.name)
		return err
	}
	return nil
}

// ExecStatus runs the statements in sql without result access and
// returns the raw engine status.
func (db *Database) ExecStatus(sql string) engine.Status {
	if db.conn == nil {
		return engine.Misuse
	}
	return db.conn.Exec(sql)
}

// Exec runs the statements in sql without result access.
func (db *Database) Exec(sql string) error {
	if rc := db.ExecStatus(sql); rc != engine.OK {
		return db.errStatus(rc)
	}
	return nil
}

// Attach attaches the database file at path under the schema name.
func (db *Database) Attach(path, name string) error {
	return db.Exec(fmt.Sprintf("ATTACH '%s' AS '%s'", quoteSQL(path), quoteSQL(name)))
}

// Detach detaches the schema name.
func (db *Database) Detach(name string) error {
	return db.Exec(fmt.Sprintf("DETACH '%s'", quoteSQL(name)))
}

// LastInsertRowID returns the rowid of the most recent successful insert
// on this session.
func (db *Database) LastInsertRowID() int64 {
	if db.conn == nil {
		return 0
	}
	return db.conn.LastInsertRowID()
}

// Changes returns the number of rows modified by the most recent
// statement.
func (db *Database) Changes() int {
	if db.conn == nil {
		return 0
	}
	return db.conn.Changes()
}

// ErrCode returns the session's most recent failure status.
func (db *Database) ErrCode() engine.Status {
	if db.conn == nil {
		return engine.Misuse
	}
	return db.conn.ErrCode()
}

// ErrMsg returns the session's most recent diagnostic text.
func (db *Database) ErrMsg() string {
	if db.conn == nil {
		return ""
	}
	return db.conn.ErrMsg()
}

// SetBusyTimeout installs an engine-level busy handler that retries for
// up to ms milliseconds when a lock is contended.
func (db *Database) SetBusyTimeout(ms int) engine.Status {
	if db.conn == nil {
		return engine.Misuse
	}
	return db.conn.SetBusyTimeout(ms)
}

// Hook registration. Each connection carries one handler per event;
// installing nil uninstalls. Handlers run synchronously on the calling
// goroutine.

func (db *Database) SetBusyHandler(h engine.BusyHandler) engine.Status {
	if db.conn == nil {
		return engine.Misuse
	}
	return db.conn.SetBusyHandler(h)
}

func (db *Database) SetCommitHandler(h engine.CommitHandler) engine.Status {
	if db.conn == nil {
		return engine.Misuse
	}
	return db.conn.SetCommitHandler(h)
}

func (db *Database) SetRollbackHandler(h engine.RollbackHandler) engine.Status {
	if db.conn == nil {
		return engine.Misuse
	}
	return db.conn.SetRollbackHandler(h)
}

func (db *Database) SetUpdateHandler(h engine.UpdateHandler) engine.Status {
	if db.conn == nil {
		return engine.Misuse
	}
	return db.conn.SetUpdateHandler(h)
}

func (db *Database) SetAuthorizeHandler(h engine.AuthorizeHandler) engine.Status {
	if db.conn == nil {
		return engine.Misuse
	}
	return db.conn.SetAuthorizeHandler(h)
}

func quoteSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
