// Package sqlite implements the engine contract over the SQLite C API.
//
// The package links against the system libsqlite3 and registers itself
// under the name "sqlite3":
//
//	import _ "github.com/ha1tch/sq3/engine/sqlite"
//
// Status codes pass through untranslated; diagnostic text is captured via
// sqlite3_errmsg at the connection level.
package sqlite

/*
#cgo LDFLAGS: -lsqlite3
#include <sqlite3.h>
#include <stdlib.h>
#include <string.h>

extern int sq3GoBusyHandler(void *arg, int count);
extern int sq3GoCommitHook(void *arg);
extern void sq3GoRollbackHook(void *arg);
extern void sq3GoUpdateHook(void *arg, int op, char *dbname, char *table, sqlite3_int64 rowid);
extern int sq3GoAuthorizer(void *arg, int action, char *arg1, char *arg2, char *dbname, char *trigger);

// Bind helpers: SQLITE_TRANSIENT is a macro-cast constant that cgo cannot
// express, and cgo pointer rules forbid the engine retaining Go memory, so
// every buffer crosses the boundary as a transient copy.
static int sq3_bind_text(sqlite3_stmt *stmt, int idx, const char *p, int n) {
	return sqlite3_bind_text(stmt, idx, p, n, SQLITE_TRANSIENT);
}
static int sq3_bind_blob(sqlite3_stmt *stmt, int idx, const void *p, int n) {
	return sqlite3_bind_blob(stmt, idx, p, n, SQLITE_TRANSIENT);
}

// Hook registration helpers. The const-correct trampolines keep the
// function pointer types exactly as sqlite3.h declares them.
static int sq3_set_busy(sqlite3 *db, void *arg) {
	return sqlite3_busy_handler(db, sq3GoBusyHandler, arg);
}
static int sq3_clear_busy(sqlite3 *db) {
	return sqlite3_busy_handler(db, 0, 0);
}
static void sq3_set_commit(sqlite3 *db, void *arg) {
	sqlite3_commit_hook(db, sq3GoCommitHook, arg);
}
static void sq3_clear_commit(sqlite3 *db) {
	sqlite3_commit_hook(db, 0, 0);
}
static void sq3_set_rollback(sqlite3 *db, void *arg) {
	sqlite3_rollback_hook(db, sq3GoRollbackHook, arg);
}
static void sq3_clear_rollback(sqlite3 *db) {
	sqlite3_rollback_hook(db, 0, 0);
}
static void sq3_update_tramp(void *arg, int op, const char *dbname, const char *table, sqlite3_int64 rowid) {
	sq3GoUpdateHook(arg, op, (char *)dbname, (char *)table, rowid);
}
static void sq3_set_update(sqlite3 *db, void *arg) {
	sqlite3_update_hook(db, sq3_update_tramp, arg);
}
static void sq3_clear_update(sqlite3 *db) {
	sqlite3_update_hook(db, 0, 0);
}
static int sq3_auth_tramp(void *arg, int action, const char *a1, const char *a2, const char *dbname, const char *trigger) {
	return sq3GoAuthorizer(arg, action, (char *)a1, (char *)a2, (char *)dbname, (char *)trigger);
}
static int sq3_set_authorizer(sqlite3 *db, void *arg) {
	return sqlite3_set_authorizer(db, sq3_auth_tramp, arg);
}
static int sq3_clear_authorizer(sqlite3 *db) {
	return sqlite3_set_authorizer(db, 0, 0);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/ha1tch/sq3/engine"
)

func init() {
	engine.Register("sqlite3", Driver{})
}

// Driver opens SQLite database files. The empty string and ":memory:"
// both open a private in-memory database.
type Driver struct{}

// Open opens (creating if necessary) the database file at name.
func (Driver) Open(name string) (engine.Conn, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var db *C.sqlite3
	rc := C.sqlite3_open(cname, &db)
	if rc != C.SQLITE_OK {
		msg := engine.Status(rc).String()
		if db != nil {
			msg = C.GoString(C.sqlite3_errmsg(db))
			C.sqlite3_close(db)
		}
		return nil, fmt.Errorf("sqlite: open %q: %s", name, msg)
	}

	c := &Conn{db: db}
	registerConn(c)
	return c, nil
}

// EnableSharedCache toggles shared-cache mode for subsequently opened
// connections in this process.
func EnableSharedCache(enable bool) engine.Status {
	flag := C.int(0)
	if enable {
		flag = 1
	}
	return engine.Status(C.sqlite3_enable_shared_cache(flag))
}

// Conn is one open SQLite session.
type Conn struct {
	db *C.sqlite3

	// arg is a C-allocated cell holding the connection's registry id. It
	// is handed to the native hook registrations as their context
	// pointer; the exported trampolines map it back to this Conn.
	arg unsafe.Pointer

	busy      engine.BusyHandler
	commit    engine.CommitHandler
	rollback  engine.RollbackHandler
	update    engine.UpdateHandler
	authorize engine.AuthorizeHandler
}

// Close releases the session. Closing while prepared plans remain
// unfinalized reports Busy and leaves the session open.
func (c *Conn) Close() engine.Status {
	if c.db == nil {
		return engine.OK
	}
	rc := engine.Status(C.sqlite3_close(c.db))
	if rc == engine.OK {
		unregisterConn(c)
		c.db = nil
	}
	return rc
}

func (c *Conn) Prepare(sql string) (engine.Plan, string, engine.Status) {
	csql := C.CString(sql)
	defer C.free(unsafe.Pointer(csql))

	var stmt *C.sqlite3_stmt
	var tail *C.char
	rc := C.sqlite3_prepare_v2(c.db, csql, C.int(-1), &stmt, &tail)
	if rc != C.SQLITE_OK {
		return nil, "", engine.Status(rc)
	}

	rest := ""
	if tail != nil {
		rest = C.GoString(tail)
	}
	if stmt == nil {
		// Nothing to compile: whitespace or comments only.
		return nil, rest, engine.OK
	}
	return &Plan{stmt: stmt}, rest, engine.OK
}

func (c *Conn) Exec(sql string) engine.Status {
	csql := C.CString(sql)
	defer C.free(unsafe.Pointer(csql))
	return engine.Status(C.sqlite3_exec(c.db, csql, nil, nil, nil))
}

func (c *Conn) Begin(mode engine.TxnMode) engine.Status {
	switch mode {
	case engine.Immediate:
		return c.Exec("BEGIN IMMEDIATE")
	case engine.Exclusive:
		return c.Exec("BEGIN EXCLUSIVE")
	default:
		return c.Exec("BEGIN")
	}
}

func (c *Conn) Commit() engine.Status   { return c.Exec("COMMIT") }
func (c *Conn) Rollback() engine.Status { return c.Exec("ROLLBACK") }

func (c *Conn) LastInsertRowID() int64 {
	return int64(C.sqlite3_last_insert_rowid(c.db))
}

func (c *Conn) Changes() int {
	return int(C.sqlite3_changes(c.db))
}

func (c *Conn) ErrCode() engine.Status {
	return engine.Status(C.sqlite3_errcode(c.db))
}

func (c *Conn) ErrMsg() string {
	return C.GoString(C.sqlite3_errmsg(c.db))
}

func (c *Conn) SetBusyTimeout(ms int) engine.Status {
	return engine.Status(C.sqlite3_busy_timeout(c.db, C.int(ms)))
}

func (c *Conn) SetBusyHandler(h engine.BusyHandler) engine.Status {
	setHandler(c, &c.busy, h)
	if h == nil {
		return engine.Status(C.sq3_clear_busy(c.db))
	}
	return engine.Status(C.sq3_set_busy(c.db, c.arg))
}

func (c *Conn) SetCommitHandler(h engine.CommitHandler) engine.Status {
	setHandler(c, &c.commit, h)
	if h == nil {
		C.sq3_clear_commit(c.db)
	} else {
		C.sq3_set_commit(c.db, c.arg)
	}
	return engine.OK
}

func (c *Conn) SetRollbackHandler(h engine.RollbackHandler) engine.Status {
	setHandler(c, &c.rollback, h)
	if h == nil {
		C.sq3_clear_rollback(c.db)
	} else {
		C.sq3_set_rollback(c.db, c.arg)
	}
	return engine.OK
}

func (c *Conn) SetUpdateHandler(h engine.UpdateHandler) engine.Status {
	setHandler(c, &c.update, h)
	if h == nil {
		C.sq3_clear_update(c.db)
	} else {
		C.sq3_set_update(c.db, c.arg)
	}
	return engine.OK
}

func (c *Conn) SetAuthorizeHandler(h engine.AuthorizeHandler) engine.Status {
	setHandler(c, &c.authorize, h)
	if h == nil {
		return engine.Status(C.sq3_clear_authorizer(c.db))
	}
	return engine.Status(C.sq3_set_authorizer(c.db, c.arg))
}

// Plan is one compiled SQLite statement.
type Plan struct {
	stmt *C.sqlite3_stmt
}

func (p *Plan) BindInt64(idx int, v int64) engine.Status {
	return engine.Status(C.sqlite3_bind_int64(p.stmt, C.int(idx), C.sqlite3_int64(v)))
}

func (p *Plan) BindFloat64(idx int, v float64) engine.Status {
	return engine.Status(C.sqlite3_bind_double(p.stmt, C.int(idx), C.double(v)))
}

// BindText binds a UTF-8 string. The ownership hint is advisory at this
// boundary: cgo pointer rules forbid the engine retaining Go memory, so
// the value always crosses as a transient copy.
func (p *Plan) BindText(idx int, v string, _ engine.Ownership) engine.Status {
	cs := C.CString(v)
	defer C.free(unsafe.Pointer(cs))
	return engine.Status(C.sq3_bind_text(p.stmt, C.int(idx), cs, C.int(len(v))))
}

func (p *Plan) BindBlob(idx int, v []byte, _ engine.Ownership) engine.Status {
	if len(v) == 0 {
		return engine.Status(C.sqlite3_bind_zeroblob(p.stmt, C.int(idx), 0))
	}
	return engine.Status(C.sq3_bind_blob(p.stmt, C.int(idx), unsafe.Pointer(&v[0]), C.int(len(v))))
}

func (p *Plan) BindNull(idx int) engine.Status {
	return engine.Status(C.sqlite3_bind_null(p.stmt, C.int(idx)))
}

func (p *Plan) ParamIndex(name string) int {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))
	return int(C.sqlite3_bind_parameter_index(p.stmt, cs))
}

func (p *Plan) Step() engine.Status {
	return engine.Status(C.sqlite3_step(p.stmt))
}

func (p *Plan) Reset() engine.Status {
	return engine.Status(C.sqlite3_reset(p.stmt))
}

func (p *Plan) Finalize() engine.Status {
	if p.stmt == nil {
		return engine.OK
	}
	rc := engine.Status(C.sqlite3_finalize(p.stmt))
	p.stmt = nil
	return rc
}

func (p *Plan) TransferBindings(dst engine.Plan) engine.Status {
	d, ok := dst.(*Plan)
	if !ok {
		return engine.Misuse
	}
	return engine.Status(C.sqlite3_transfer_bindings(p.stmt, d.stmt))
}

func (p *Plan) ColumnCount() int {
	return int(C.sqlite3_column_count(p.stmt))
}

func (p *Plan) DataCount() int {
	return int(C.sqlite3_data_count(p.stmt))
}

func (p *Plan) ColumnName(idx int) string {
	return C.GoString(C.sqlite3_column_name(p.stmt, C.int(idx)))
}

func (p *Plan) DeclType(idx int) string {
	decl := C.sqlite3_column_decltype(p.stmt, C.int(idx))
	if decl == nil {
		return ""
	}
	return C.GoString(decl)
}

func (p *Plan) ColumnType(idx int) engine.ColumnType {
	return engine.ColumnType(C.sqlite3_column_type(p.stmt, C.int(idx)))
}

func (p *Plan) ColumnBytes(idx int) int {
	return int(C.sqlite3_column_bytes(p.stmt, C.int(idx)))
}

func (p *Plan) ColumnInt64(idx int) int64 {
	return int64(C.sqlite3_column_int64(p.stmt, C.int(idx)))
}

func (p *Plan) ColumnFloat64(idx int) float64 {
	return float64(C.sqlite3_column_double(p.stmt, C.int(idx)))
}

func (p *Plan) ColumnText(idx int) string {
	n := C.sqlite3_column_bytes(p.stmt, C.int(idx))
	ptr := C.sqlite3_column_text(p.stmt, C.int(idx))
	if ptr == nil {
		return ""
	}
	return C.GoStringN((*C.char)(unsafe.Pointer(ptr)), n)
}

func (p *Plan) ColumnBlob(idx int) []byte {
	n := C.sqlite3_column_bytes(p.stmt, C.int(idx))
	if n == 0 {
		return nil
	}
	ptr := C.sqlite3_column_blob(p.stmt, C.int(idx))
	if ptr == nil {
		return nil
	}
	return C.GoBytes(ptr, n)
}

var (
	_ engine.Engine = Driver{}
	_ engine.Conn   = (*Conn)(nil)
	_ engine.Plan   = (*Plan)(nil)
)
