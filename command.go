package sq3

import (
	"github.com/ha1tch/sq3/engine"
)

// Command is a prepared statement for data-modifying SQL: anything run
// for its effect rather than its result rows.
type Command struct {
	Statement
}

// NewCommand prepares the first complete statement in sql as a Command.
// Text after the first statement is retained and run by ExecuteAll.
func NewCommand(db *Database, sql string) (*Command, error) {
	c := &Command{Statement: newStatement(db)}
	if err := c.Prepare(sql); err != nil {
		return nil, err
	}
	return c, nil
}

// ExecuteStatus steps the prepared statement once and returns the raw
// engine status, OK when the statement ran to completion. A Command is
// not meant to produce rows; a Row status is returned as-is and counts
// as a failure for the error-returning form.
func (c *Command) ExecuteStatus() engine.Status {
	rc := c.StepStatus()
	if rc == engine.Done {
		return engine.OK
	}
	return rc
}

// Execute runs the prepared statement to completion.
func (c *Command) Execute() error {
	if rc := c.ExecuteStatus(); rc != engine.OK {
		return c.db.errStatus(rc)
	}
	return nil
}

// ExecuteAllStatus executes the prepared statement, then each remaining
// statement in the source text in order, returning the raw engine
// status of the first failure or OK. Positional bindings established on
// the first statement are carried onto each subsequent one, so the same
// parameters apply across the batch. Execution stops at the first
// failure; earlier statements stay executed.
func (c *Command) ExecuteAllStatus() engine.Status {
	if rc := c.ExecuteStatus(); rc != engine.OK {
		return rc
	}
	for len(c.tail) > 0 {
		old := c.plan
		sql := c.tail
		plan, tail, rc := c.db.conn.Prepare(sql)
		if rc != engine.OK {
			return rc
		}
		if plan == nil {
			// An empty statement, whitespace or a comment. The current
			// plan and its bindings stay in place for the rest of the
			// tail.
			c.tail = tail
			continue
		}
		c.plan = plan
		c.sql = sql
		c.tail = tail
		if old != nil {
			if rc := old.TransferBindings(plan); rc != engine.OK {
				old.Finalize()
				return rc
			}
			old.Finalize()
		}
		if rc := c.ExecuteStatus(); rc != engine.OK {
			return rc
		}
	}
	return engine.OK
}

// ExecuteAll executes every statement in the source text in order.
func (c *Command) ExecuteAll() error {
	if rc := c.ExecuteAllStatus(); rc != engine.OK {
		return c.db.errStatus(rc)
	}
	return nil
}
