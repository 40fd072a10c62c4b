// Package enginetest provides a scripted, in-memory implementation of the
// engine contract for hermetic tests.
//
// The implementation does not parse SQL. Statement text is split on
// semicolons so that multi-statement tails behave like the native engine,
// and per-statement behaviour (result rows, failure statuses, insert
// rowids) is configured up front with Script. Anything without a script
// prepares successfully, produces no rows, and completes on the first
// step, so the layers above can be exercised in pure Go.
package enginetest

import (
	"fmt"
	"strings"

	"github.com/ha1tch/sq3/engine"
)

// Engine hands out scripted connections.
type Engine struct {
	// FailOpen, when set, makes Open fail with this message.
	FailOpen string

	// OnOpen, when set, configures each connection before it is handed
	// out. Tests use it to script statements and inject failures on
	// connections they do not open themselves.
	OnOpen func(*Conn)

	// Conns records every connection opened, in order.
	Conns []*Conn
}

// New returns an empty scripted engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Open(name string) (engine.Conn, error) {
	if e.FailOpen != "" {
		return nil, fmt.Errorf("enginetest: open %q: %s", name, e.FailOpen)
	}
	c := NewConn()
	c.Name = name
	if e.OnOpen != nil {
		e.OnOpen(c)
	}
	e.Conns = append(e.Conns, c)
	return c, nil
}

// PlanScript configures the behaviour of one statement, matched by its
// trimmed text.
type PlanScript struct {
	// PrepareStatus, when non-OK, fails Prepare with this status.
	PrepareStatus engine.Status

	// StepStatus, when non-OK, fails the first Step with this status.
	StepStatus engine.Status

	// ResetStatus, when non-OK, fails Reset.
	ResetStatus engine.Status

	// FinalizeStatus, when non-OK, is reported by Finalize (the plan is
	// released regardless, as with sqlite3_finalize).
	FinalizeStatus engine.Status

	// Rows are produced one per Step before Done. Values may be int64,
	// float64, string, []byte or nil.
	Rows [][]any

	// StepAfterRows, when non-OK, fails the step after the last row
	// instead of completing.
	StepAfterRows engine.Status

	// Cols and Decls name the result columns and their declared types.
	Cols  []string
	Decls []string

	// InsertRowID, when non-zero, becomes the connection's last insert
	// rowid once the statement completes.
	InsertRowID int64

	// Msg is the diagnostic text the connection reports while this
	// script's failure status stands.
	Msg string
}

// PlanScriptError is shorthand for a script whose Prepare fails with a
// generic error status and the given diagnostic text.
func PlanScriptError(msg string) PlanScript {
	return PlanScript{PrepareStatus: engine.Err, Msg: msg}
}

// Exec records one completed statement execution and the parameter values
// bound at that moment.
type Exec struct {
	SQL   string
	Binds []any
}

// Conn is a scripted connection.
type Conn struct {
	Name string

	scripts map[string]PlanScript

	// Execs records statement executions (first successful step), with
	// bind snapshots, in order.
	Execs []Exec

	// Plans records every plan prepared, in order, for inspection.
	Plans []*Plan

	// Directives records transaction control calls ("BEGIN",
	// "BEGIN IMMEDIATE", "COMMIT", "ROLLBACK") and raw Exec texts.
	Directives []string

	// Failure injection for connection-level calls.
	FailBegin    engine.Status
	FailCommit   engine.Status
	FailRollback engine.Status
	FailExec     map[string]engine.Status
	FailClose    engine.Status

	InTxn  bool
	closed bool

	lastRowID int64
	changes   int
	errCode   engine.Status
	errMsg    string

	busyTimeout int
	busy        engine.BusyHandler
	commit      engine.CommitHandler
	rollback    engine.RollbackHandler
	update      engine.UpdateHandler
	authorize   engine.AuthorizeHandler

	open int // unfinalized plans
}

// NewConn returns a connection with no scripts.
func NewConn() *Conn {
	return &Conn{
		scripts:  make(map[string]PlanScript),
		FailExec: make(map[string]engine.Status),
	}
}

// Script registers behaviour for the statement whose trimmed text equals
// stmt.
func (c *Conn) Script(stmt string, s PlanScript) {
	c.scripts[strings.TrimSpace(stmt)] = s
}

// Closed reports whether Close succeeded.
func (c *Conn) Closed() bool { return c.closed }

// OpenPlans reports the number of unfinalized plans.
func (c *Conn) OpenPlans() int { return c.open }

func (c *Conn) fail(rc engine.Status, msg string) engine.Status {
	c.errCode = rc
	if msg == "" {
		msg = rc.String()
	}
	c.errMsg = msg
	return rc
}

func (c *Conn) Close() engine.Status {
	if c.open > 0 {
		return c.fail(engine.Busy, "unable to close due to unfinalized statements")
	}
	if c.FailClose != engine.OK {
		return c.fail(c.FailClose, "")
	}
	c.closed = true
	return engine.OK
}

// Prepare splits sql at the first semicolon; the remainder is the
// unconsumed tail, exactly as the native prepare reports it.
func (c *Conn) Prepare(sql string) (engine.Plan, string, engine.Status) {
	stmt, tail := splitFirst(sql)
	if strings.TrimSpace(stmt) == "" {
		return nil, tail, engine.OK
	}
	script := c.scripts[strings.TrimSpace(stmt)]
	if script.PrepareStatus != engine.OK {
		return nil, "", c.fail(script.PrepareStatus, script.Msg)
	}
	p := &Plan{
		conn:   c,
		sql:    strings.TrimSpace(stmt),
		script: script,
		binds:  make([]bind, countParams(stmt)),
		names:  namedParams(stmt),
	}
	c.open++
	c.Plans = append(c.Plans, p)
	return p, tail, engine.OK
}

// LastPlan returns the most recently prepared plan, or nil.
func (c *Conn) LastPlan() *Plan {
	if len(c.Plans) == 0 {
		return nil
	}
	return c.Plans[len(c.Plans)-1]
}

func (c *Conn) Exec(sql string) engine.Status {
	c.Directives = append(c.Directives, strings.TrimSpace(sql))
	if rc, ok := c.FailExec[strings.TrimSpace(sql)]; ok && rc != engine.OK {
		return c.fail(rc, "")
	}
	return engine.OK
}

func (c *Conn) Begin(mode engine.TxnMode) engine.Status {
	text := "BEGIN"
	if mode != engine.Deferred {
		text = "BEGIN " + strings.ToUpper(mode.String())
	}
	c.Directives = append(c.Directives, text)
	if c.FailBegin != engine.OK {
		return c.fail(c.FailBegin, "")
	}
	c.InTxn = true
	return engine.OK
}

func (c *Conn) Commit() engine.Status {
	c.Directives = append(c.Directives, "COMMIT")
	if c.FailCommit != engine.OK {
		return c.fail(c.FailCommit, "cannot commit")
	}
	if c.commit != nil && c.commit() {
		c.InTxn = false
		if c.rollback != nil {
			c.rollback()
		}
		return c.fail(engine.Abort, "commit aborted by hook")
	}
	c.InTxn = false
	return engine.OK
}

func (c *Conn) Rollback() engine.Status {
	c.Directives = append(c.Directives, "ROLLBACK")
	if c.FailRollback != engine.OK {
		return c.fail(c.FailRollback, "cannot rollback")
	}
	c.InTxn = false
	if c.rollback != nil {
		c.rollback()
	}
	return engine.OK
}

func (c *Conn) LastInsertRowID() int64 { return c.lastRowID }
func (c *Conn) Changes() int           { return c.changes }
func (c *Conn) ErrCode() engine.Status { return c.errCode }
func (c *Conn) ErrMsg() string         { return c.errMsg }

func (c *Conn) SetBusyTimeout(ms int) engine.Status {
	c.busyTimeout = ms
	return engine.OK
}

// BusyTimeout reports the last timeout installed with SetBusyTimeout.
func (c *Conn) BusyTimeout() int { return c.busyTimeout }

func (c *Conn) SetBusyHandler(h engine.BusyHandler) engine.Status {
	c.busy = h
	return engine.OK
}

func (c *Conn) SetCommitHandler(h engine.CommitHandler) engine.Status {
	c.commit = h
	return engine.OK
}

func (c *Conn) SetRollbackHandler(h engine.RollbackHandler) engine.Status {
	c.rollback = h
	return engine.OK
}

func (c *Conn) SetUpdateHandler(h engine.UpdateHandler) engine.Status {
	c.update = h
	return engine.OK
}

func (c *Conn) SetAuthorizeHandler(h engine.AuthorizeHandler) engine.Status {
	c.authorize = h
	return engine.OK
}

type bind struct {
	set bool
	val any
	own engine.Ownership
}

// Plan is one scripted statement.
type Plan struct {
	conn   *Conn
	sql    string
	script PlanScript
	binds  []bind
	names  map[string]int

	stepped   bool
	row       int // 1-based index of the current row; 0 = not on a row
	done      bool
	finalized bool
}

// SQL returns the statement text this plan was prepared from.
func (p *Plan) SQL() string { return p.sql }

// Binds returns the currently bound values, index 0 holding parameter 1.
func (p *Plan) Binds() []any {
	out := make([]any, len(p.binds))
	for i, b := range p.binds {
		out[i] = b.val
	}
	return out
}

// Ownership returns the ownership hint recorded for parameter idx.
func (p *Plan) Ownership(idx int) engine.Ownership {
	return p.binds[idx-1].own
}

func (p *Plan) bindValue(idx int, v any, own engine.Ownership) engine.Status {
	if p.finalized {
		return p.conn.fail(engine.Misuse, "bind on finalized statement")
	}
	if idx < 1 || idx > len(p.binds) {
		return p.conn.fail(engine.Range, "bind index out of range")
	}
	p.binds[idx-1] = bind{set: true, val: v, own: own}
	return engine.OK
}

func (p *Plan) BindInt64(idx int, v int64) engine.Status {
	return p.bindValue(idx, v, engine.Transient)
}

func (p *Plan) BindFloat64(idx int, v float64) engine.Status {
	return p.bindValue(idx, v, engine.Transient)
}

func (p *Plan) BindText(idx int, v string, own engine.Ownership) engine.Status {
	return p.bindValue(idx, v, own)
}

func (p *Plan) BindBlob(idx int, v []byte, own engine.Ownership) engine.Status {
	return p.bindValue(idx, v, own)
}

func (p *Plan) BindNull(idx int) engine.Status {
	return p.bindValue(idx, nil, engine.Transient)
}

func (p *Plan) ParamIndex(name string) int {
	return p.names[name]
}

func (p *Plan) Step() engine.Status {
	if p.finalized {
		return p.conn.fail(engine.Misuse, "step on finalized statement")
	}
	if !p.stepped {
		if p.script.StepStatus != engine.OK {
			return p.conn.fail(p.script.StepStatus, p.script.Msg)
		}
		p.stepped = true
		p.conn.Execs = append(p.conn.Execs, Exec{SQL: p.sql, Binds: p.Binds()})
	}
	if p.row < len(p.script.Rows) {
		p.row++
		return engine.Row
	}
	p.row = 0
	if p.script.StepAfterRows != engine.OK {
		return p.conn.fail(p.script.StepAfterRows, p.script.Msg)
	}
	if !p.done {
		p.done = true
		if p.script.InsertRowID != 0 {
			p.conn.lastRowID = p.script.InsertRowID
			p.conn.changes++
			if p.conn.update != nil {
				p.conn.update(engine.OpInsert, "main", "", p.script.InsertRowID)
			}
		}
	}
	return engine.Done
}

func (p *Plan) Reset() engine.Status {
	if p.script.ResetStatus != engine.OK {
		return p.conn.fail(p.script.ResetStatus, p.script.Msg)
	}
	p.stepped = false
	p.row = 0
	p.done = false
	return engine.OK
}

func (p *Plan) Finalize() engine.Status {
	if p.finalized {
		return engine.OK
	}
	p.finalized = true
	p.conn.open--
	if p.script.FinalizeStatus != engine.OK {
		return p.conn.fail(p.script.FinalizeStatus, p.script.Msg)
	}
	return engine.OK
}

func (p *Plan) TransferBindings(dst engine.Plan) engine.Status {
	d, ok := dst.(*Plan)
	if !ok {
		return engine.Misuse
	}
	for i := 0; i < len(d.binds) && i < len(p.binds); i++ {
		d.binds[i] = p.binds[i]
	}
	return engine.OK
}

func (p *Plan) current() []any {
	if p.row == 0 {
		return nil
	}
	return p.script.Rows[p.row-1]
}

func (p *Plan) ColumnCount() int {
	if len(p.script.Cols) > 0 {
		return len(p.script.Cols)
	}
	if len(p.script.Rows) > 0 {
		return len(p.script.Rows[0])
	}
	return 0
}

func (p *Plan) DataCount() int {
	return len(p.current())
}

func (p *Plan) ColumnName(idx int) string {
	if idx < len(p.script.Cols) {
		return p.script.Cols[idx]
	}
	return fmt.Sprintf("column%d", idx)
}

func (p *Plan) DeclType(idx int) string {
	if idx < len(p.script.Decls) {
		return p.script.Decls[idx]
	}
	return ""
}

func (p *Plan) ColumnType(idx int) engine.ColumnType {
	row := p.current()
	if idx >= len(row) {
		return engine.TypeNull
	}
	switch row[idx].(type) {
	case int64:
		return engine.TypeInteger
	case float64:
		return engine.TypeFloat
	case string:
		return engine.TypeText
	case []byte:
		return engine.TypeBlob
	default:
		return engine.TypeNull
	}
}

func (p *Plan) ColumnBytes(idx int) int {
	row := p.current()
	if idx >= len(row) {
		return 0
	}
	switch v := row[idx].(type) {
	case string:
		return len(v)
	case []byte:
		return len(v)
	default:
		return 0
	}
}

func (p *Plan) ColumnInt64(idx int) int64 {
	row := p.current()
	if idx >= len(row) {
		return 0
	}
	switch v := row[idx].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (p *Plan) ColumnFloat64(idx int) float64 {
	row := p.current()
	if idx >= len(row) {
		return 0
	}
	switch v := row[idx].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func (p *Plan) ColumnText(idx int) string {
	row := p.current()
	if idx >= len(row) {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

func (p *Plan) ColumnBlob(idx int) []byte {
	row := p.current()
	if idx >= len(row) {
		return nil
	}
	switch v := row[idx].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// splitFirst splits sql into the first statement (up to and including its
// terminating semicolon, as far as the caller is concerned the consumed
// part) and the unconsumed tail after that semicolon.
func splitFirst(sql string) (stmt, tail string) {
	if i := strings.IndexByte(sql, ';'); i >= 0 {
		return sql[:i], sql[i+1:]
	}
	return sql, ""
}

// countParams counts positional and named placeholders in a statement.
// Token scanning only; this is a test double, not a SQL parser.
func countParams(stmt string) int {
	n := 0
	for i := 0; i < len(stmt); i++ {
		switch stmt[i] {
		case '?':
			n++
		case ':', '@', '$':
			if j := nameEnd(stmt, i+1); j > i+1 {
				n++
			}
		}
	}
	return n
}

// namedParams maps named placeholders (with their sigil) to 1-based
// positions, counted left to right across all placeholders.
func namedParams(stmt string) map[string]int {
	names := make(map[string]int)
	pos := 0
	for i := 0; i < len(stmt); i++ {
		switch stmt[i] {
		case '?':
			pos++
		case ':', '@', '$':
			if j := nameEnd(stmt, i+1); j > i+1 {
				pos++
				names[stmt[i:j]] = pos
				i = j - 1
			}
		}
	}
	return names
}

func nameEnd(s string, start int) int {
	j := start
	for j < len(s) {
		ch := s[j]
		if ch == '_' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' {
			j++
			continue
		}
		break
	}
	return j
}

var (
	_ engine.Engine = (*Engine)(nil)
	_ engine.Conn   = (*Conn)(nil)
	_ engine.Plan   = (*Plan)(nil)
)
