// Package engine defines the capability contract between the sq3 wrapper
// and an embedded SQL engine.
//
// The contract mirrors the C-level surface of SQLite: open/close, prepare
// (returning the compiled plan and any unconsumed trailing text), bind,
// step, reset, finalize, binding transfer, column access, and transaction
// control directives. Every operation reports an integer Status; turning a
// status into an error is the wrapper's job, one layer up.
//
// Implementations register themselves by name, in the manner of
// database/sql drivers:
//
//	import _ "github.com/ha1tch/sq3/engine/sqlite"
//
//	db, err := sq3.Open("sqlite3", "app.db")
package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Status is an engine result code. The values mirror the SQLite primary
// result codes so that a cgo implementation can pass them through
// untranslated.
type Status int

const (
	OK         Status = 0
	Err        Status = 1 // generic error
	Internal   Status = 2
	Perm       Status = 3
	Abort      Status = 4
	Busy       Status = 5
	Locked     Status = 6
	NoMem      Status = 7
	ReadOnly   Status = 8
	Interrupt  Status = 9
	IOErr      Status = 10
	Corrupt    Status = 11
	NotFound   Status = 12
	Full       Status = 13
	CantOpen   Status = 14
	Protocol   Status = 15
	Empty      Status = 16
	Schema     Status = 17
	TooBig     Status = 18
	Constraint Status = 19
	Mismatch   Status = 20
	Misuse     Status = 21
	NoLFS      Status = 22
	Auth       Status = 23
	Range      Status = 25
	NotADB     Status = 26

	// Step outcomes.
	Row  Status = 100
	Done Status = 101
)

var statusNames = map[Status]string{
	OK:         "ok",
	Err:        "error",
	Internal:   "internal",
	Perm:       "permission denied",
	Abort:      "aborted",
	Busy:       "database busy",
	Locked:     "database locked",
	NoMem:      "out of memory",
	ReadOnly:   "read-only database",
	Interrupt:  "interrupted",
	IOErr:      "I/O error",
	Corrupt:    "database corrupt",
	NotFound:   "not found",
	Full:       "database full",
	CantOpen:   "cannot open database",
	Protocol:   "locking protocol error",
	Empty:      "empty",
	Schema:     "schema changed",
	TooBig:     "value too big",
	Constraint: "constraint violation",
	Mismatch:   "datatype mismatch",
	Misuse:     "API misuse",
	NoLFS:      "no large file support",
	Auth:       "not authorised",
	Range:      "bind index out of range",
	NotADB:     "not a database file",
	Row:        "row",
	Done:       "done",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ColumnType is the dynamic type of a value in the current result row.
// The values mirror SQLite's fundamental datatypes.
type ColumnType int

const (
	TypeInteger ColumnType = 1
	TypeFloat   ColumnType = 2
	TypeText    ColumnType = 3
	TypeBlob    ColumnType = 4
	TypeNull    ColumnType = 5
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	case TypeNull:
		return "null"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Ownership is the caller's declaration of who owns a bound text or blob
// buffer. Transient buffers are copied before the bind returns; Static
// buffers are referenced under the caller's guarantee that the memory
// outlives the bound use.
type Ownership int

const (
	Transient Ownership = iota
	Static
)

// TxnMode selects the locking behaviour of a begin directive.
type TxnMode int

const (
	Deferred  TxnMode = iota // acquire locks lazily, on first use
	Immediate                // reserve the write lock at begin time
	Exclusive
)

func (m TxnMode) String() string {
	switch m {
	case Immediate:
		return "immediate"
	case Exclusive:
		return "exclusive"
	default:
		return "deferred"
	}
}

// Hook callbacks. Each connection carries at most one handler per event;
// installing nil uninstalls. All hooks are invoked synchronously by the
// engine on the calling goroutine.

// BusyHandler is invoked when a required lock is held by another session.
// attempts is the number of times it has been invoked for the same lock.
// Returning true asks the engine to retry, false to give up with Busy.
type BusyHandler func(attempts int) bool

// CommitHandler is invoked before a commit completes. Returning true
// converts the commit into a rollback.
type CommitHandler func() (abort bool)

// RollbackHandler is invoked whenever a transaction is rolled back.
type RollbackHandler func()

// UpdateHandler is invoked after a row is inserted, updated or deleted.
type UpdateHandler func(op Op, db, table string, rowid int64)

// AuthorizeHandler is consulted while SQL is being compiled. action is the
// engine's authorizer action code; the string arguments depend on the
// action.
type AuthorizeHandler func(action int, arg1, arg2, db, trigger string) AuthResult

// Op identifies the row operation reported to an UpdateHandler. The values
// mirror the SQLite authorizer codes.
type Op int

const (
	OpInsert Op = 18
	OpUpdate Op = 23
	OpDelete Op = 9
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// AuthResult is an AuthorizeHandler verdict.
type AuthResult int

const (
	AuthOK     AuthResult = 0 // allow the operation
	AuthDeny   AuthResult = 1 // fail the compilation with Auth
	AuthIgnore AuthResult = 2 // compile, but treat the value as NULL
)

// Engine opens connections to databases.
type Engine interface {
	// Open opens a database session. name is engine-specific (a file
	// path or ":memory:" for SQLite).
	Open(name string) (Conn, error)
}

// Conn is one open database session. A Conn must not be used from
// multiple goroutines without external synchronisation, and must not be
// closed while any Plan derived from it remains unfinalized.
type Conn interface {
	// Close releases the session. Closing with unfinalized plans
	// outstanding reports Busy.
	Close() Status

	// Prepare compiles the first statement in sql and returns the plan
	// together with any unconsumed trailing text. On failure the plan is
	// nil and the status is the engine's error code. A nil plan with OK
	// means sql held nothing to compile (whitespace or comments only).
	Prepare(sql string) (Plan, string, Status)

	// Exec runs zero or more statements in sql without result access.
	Exec(sql string) Status

	Begin(mode TxnMode) Status
	Commit() Status
	Rollback() Status

	LastInsertRowID() int64
	Changes() int

	// ErrCode and ErrMsg report the session's most recent failure.
	ErrCode() Status
	ErrMsg() string

	// SetBusyTimeout installs an engine-level busy handler that retries
	// for up to ms milliseconds. Zero or negative clears it.
	SetBusyTimeout(ms int) Status

	SetBusyHandler(h BusyHandler) Status
	SetCommitHandler(h CommitHandler) Status
	SetRollbackHandler(h RollbackHandler) Status
	SetUpdateHandler(h UpdateHandler) Status
	SetAuthorizeHandler(h AuthorizeHandler) Status
}

// Plan is one compiled statement. Parameter indexes are 1-based, column
// indexes 0-based, as in the native API.
type Plan interface {
	BindInt64(idx int, v int64) Status
	BindFloat64(idx int, v float64) Status
	BindText(idx int, v string, own Ownership) Status
	BindBlob(idx int, v []byte, own Ownership) Status
	BindNull(idx int) Status

	// ParamIndex resolves a named placeholder to its positional index,
	// or 0 when no such placeholder exists.
	ParamIndex(name string) int

	// Step advances execution by one unit: Row, Done, or an error code.
	Step() Status

	// Reset returns the plan to its pre-execution state. Bound parameter
	// values are preserved.
	Reset() Status

	// Finalize releases the plan. The Plan must not be used afterwards.
	Finalize() Status

	// TransferBindings copies this plan's bound parameter values onto
	// dst by positional correspondence. dst must belong to the same
	// engine implementation.
	TransferBindings(dst Plan) Status

	ColumnCount() int
	// DataCount is the number of columns in the current row; zero when
	// the plan is not positioned on a row.
	DataCount() int
	ColumnName(idx int) string
	// DeclType reports the declared schema type of a result column, or
	// "" for computed columns.
	DeclType(idx int) string
	// ColumnType reports the dynamic type of the value in the current
	// row.
	ColumnType(idx int) ColumnType
	ColumnBytes(idx int) int
	ColumnInt64(idx int) int64
	ColumnFloat64(idx int) float64
	ColumnText(idx int) string
	ColumnBlob(idx int) []byte
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Engine)
)

// Register makes an engine implementation available under name. It is
// intended to be called from an implementation package's init.
func Register(name string, e Engine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if e == nil {
		panic("engine: Register engine is nil")
	}
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for engine " + name)
	}
	registry[name] = e
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Engine, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	return e, ok
}

// Engines lists the registered engine names, sorted.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
