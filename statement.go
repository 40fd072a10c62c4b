package sq3

import (
	"github.com/ha1tch/sq3/engine"
)

// Statement is a compiled statement bound to a Database. It is the
// shared base of Command and Query: preparation, parameter binding and
// lifecycle live here, execution and row access in the derived types.
//
// A Statement holds at most one compiled plan. Preparing again first
// finishes the current plan, so an instance can be reused for a sequence
// of different statements.
type Statement struct {
	db   *Database
	plan engine.Plan
	sql  string
	tail string
}

func newStatement(db *Database) Statement {
	return Statement{db: db}
}

// SQL returns the text of the currently prepared statement.
func (s *Statement) SQL() string { return s.sql }

// Tail returns the unconsumed remainder of the source text after the
// first complete statement. ExecuteAll on a Command walks it.
func (s *Statement) Tail() string { return s.tail }

// PrepareStatus compiles the first complete statement in sql, replacing
// any plan the instance currently holds, and returns the raw engine
// status. If sql contains only whitespace or comments the instance ends
// up with no plan and the status is OK.
func (s *Statement) PrepareStatus(sql string) engine.Status {
	if s.db == nil || s.db.conn == nil {
		return engine.Misuse
	}
	if rc := s.FinishStatus(); rc != engine.OK {
		return rc
	}
	plan, tail, rc := s.db.conn.Prepare(sql)
	if rc != engine.OK {
		return rc
	}
	s.plan = plan
	s.sql = sql
	s.tail = tail
	return engine.OK
}

// Prepare compiles the first complete statement in sql.
func (s *Statement) Prepare(sql string) error {
	if rc := s.PrepareStatus(sql); rc != engine.OK {
		return s.db.errStatus(rc)
	}
	return nil
}

// FinishStatus releases the compiled plan and returns the raw engine
// status. The plan is dropped regardless of the outcome, so Finish is
// idempotent: with no plan held it returns OK.
func (s *Statement) FinishStatus() engine.Status {
	if s.plan == nil {
		return engine.OK
	}
	plan := s.plan
	s.plan = nil
	s.sql = ""
	s.tail = ""
	return plan.Finalize()
}

// Finish releases the compiled plan.
func (s *Statement) Finish() error {
	if rc := s.FinishStatus(); rc != engine.OK {
		return s.db.errStatus(rc)
	}
	return nil
}

// Close releases the compiled plan without an error return. A finalize
// failure is reported to the diagnostic logger, making Close safe in
// defers and other cleanup paths.
func (s *Statement) Close() {
	sql := s.sql
	if rc := s.FinishStatus(); rc != engine.OK {
		s.db.logger.Cleanup().Error("statement finalize failed",
			s.db.errStatus(rc),
			"sql", sql,
		)
	}
}

// StepStatus advances the compiled plan one step and returns the raw
// engine status: Row when a result row is available, Done when the
// statement has run to completion.
func (s *Statement) StepStatus() engine.Status {
	if s.plan == nil {
		return engine.Misuse
	}
	return s.plan.Step()
}

// ResetStatus returns the plan to its initial state so it can be stepped
// again. Bindings keep their values; only execution state is reset.
func (s *Statement) ResetStatus() engine.Status {
	if s.plan == nil {
		return engine.Misuse
	}
	return s.plan.Reset()
}

// Reset returns the plan to its initial state, keeping bindings.
func (s *Statement) Reset() error {
	if rc := s.ResetStatus(); rc != engine.OK {
		return s.db.errStatus(rc)
	}
	return nil
}

// BindStatus binds arg at the 1-based placeholder idx and returns the
// raw engine status. See Bind for accepted argument types.
func (s *Statement) BindStatus(idx int, arg any) engine.Status {
	if s.plan == nil {
		return engine.Misuse
	}
	return toValue(arg).bind(s.plan, idx)
}

// Bind binds arg at the 1-based placeholder idx. Accepted types are the
// integer and float kinds, bool, string, []byte, decimal.Decimal, nil,
// and Value for NULL or ownership-hinted binds. Any other type is a
// usage fault and panics.
func (s *Statement) Bind(idx int, arg any) error {
	if rc := s.BindStatus(idx, arg); rc != engine.OK {
		return s.db.errStatus(rc)
	}
	return nil
}

// BindName binds arg at the named placeholder, including its prefix
// character (":name", "@name" or "$name"). A name the statement does not
// contain is a usage fault and panics.
func (s *Statement) BindName(name string, arg any) error {
	if rc := s.BindNameStatus(name, arg); rc != engine.OK {
		return s.db.errStatus(rc)
	}
	return nil
}

// BindNameStatus is the raw-status form of BindName.
func (s *Statement) BindNameStatus(name string, arg any) engine.Status {
	if s.plan == nil {
		return engine.Misuse
	}
	idx := s.plan.ParamIndex(name)
	if idx == 0 {
		usageFault("sq3: statement has no parameter named %q", name)
	}
	return s.BindStatus(idx, arg)
}

// BindAll binds args at consecutive placeholders starting from 1.
func (s *Statement) BindAll(args ...any) error {
	for i, arg := range args {
		if err := s.Bind(i+1, arg); err != nil {
			return err
		}
	}
	return nil
}

// Binder streams bind values onto consecutive placeholders, starting
// from 1. Each Put advances the position; the first failing status
// sticks and later Puts become no-ops, so a chain of Puts needs a single
// check at the end.
type Binder struct {
	s   *Statement
	idx int
	rc  engine.Status
}

// Binder returns a stream positioned at the first placeholder.
func (s *Statement) Binder() *Binder {
	return &Binder{s: s, rc: engine.OK}
}

// Put binds arg at the next placeholder.
func (b *Binder) Put(arg any) *Binder {
	if b.rc != engine.OK {
		return b
	}
	b.idx++
	b.rc = b.s.BindStatus(b.idx, arg)
	return b
}

// Status returns the first non-OK status produced by the stream.
func (b *Binder) Status() engine.Status { return b.rc }

// Err returns the first failure produced by the stream as an error.
func (b *Binder) Err() error {
	if b.rc != engine.OK {
		return b.s.db.errStatus(b.rc)
	}
	return nil
}
