package sq3

import (
	"github.com/shopspring/decimal"

	"github.com/ha1tch/sq3/engine"
)

// Query is a prepared statement for row-producing SQL. Rows come back
// as a lazy, single-pass forward sequence: each step overwrites the
// engine's row buffer, so a Row is valid only until the statement is
// stepped, reset or finished again.
type Query struct {
	Statement
}

// NewQuery prepares the first complete statement in sql as a Query.
func NewQuery(db *Database, sql string) (*Query, error) {
	q := &Query{Statement: newStatement(db)}
	if err := q.Prepare(sql); err != nil {
		return nil, err
	}
	return q, nil
}

// ColumnCount returns the number of result columns the statement
// produces. Valid once prepared, before any step.
func (q *Query) ColumnCount() int {
	if q.plan == nil {
		return 0
	}
	return q.plan.ColumnCount()
}

// ColumnName returns the name of the 0-based result column idx.
func (q *Query) ColumnName(idx int) string {
	if q.plan == nil {
		return ""
	}
	return q.plan.ColumnName(idx)
}

// DeclType returns the declared schema type of the 0-based result
// column idx, or "" when the column is an expression with no
// declaration.
func (q *Query) DeclType(idx int) string {
	if q.plan == nil {
		return ""
	}
	return q.plan.DeclType(idx)
}

// FetchOne steps once and returns the produced row. It fails when the
// step does not produce a row, including an empty result: this is the
// single-row convenience accessor, not a generic fetch.
func (q *Query) FetchOne() (Row, error) {
	rc := q.StepStatus()
	switch rc {
	case engine.Row:
		return Row{plan: q.plan}, nil
	case engine.Done:
		return Row{}, NewError("query produced no row")
	default:
		return Row{}, q.db.errStatus(rc)
	}
}

// Iter steps the statement once to prime the first row and returns an
// iterator positioned there. An empty result yields an iterator already
// equal to End. A step failure surfaces as an error immediately.
func (q *Query) Iter() (*Iterator, error) {
	it := &Iterator{q: q}
	if err := it.advance(); err != nil {
		return nil, err
	}
	return it, nil
}

// End returns the canonical terminal sentinel. Any iterator that has
// run to completion compares Equal to it.
func (q *Query) End() *Iterator {
	return &Iterator{q: q, rc: engine.Done}
}

// Iterator is a forward-only cursor over a Query's result sequence.
// Position is defined entirely by the statement's step status: equality
// compares only "at the terminal status", not per-row identity.
type Iterator struct {
	q  *Query
	rc engine.Status
}

func (it *Iterator) advance() error {
	rc := it.q.StepStatus()
	if rc != engine.Row && rc != engine.Done {
		it.rc = rc
		return it.q.db.errStatus(rc)
	}
	it.rc = rc
	return nil
}

// Next advances to the next row. An iterator not positioned on a row,
// whether exhausted or stopped by a step failure, is not advanced
// again: the engine would otherwise reset the statement and restart
// the sequence.
func (it *Iterator) Next() error {
	if it.rc != engine.Row {
		return nil
	}
	return it.advance()
}

// Done reports whether the sequence is exhausted.
func (it *Iterator) Done() bool { return it.rc == engine.Done }

// Equal reports whether both iterators are at the same terminal state.
func (it *Iterator) Equal(other *Iterator) bool {
	return (it.rc == engine.Done) == (other.rc == engine.Done)
}

// Status returns the engine status of the most recent step.
func (it *Iterator) Status() engine.Status { return it.rc }

// Row returns a cursor over the current row. Calling Row with the
// iterator at the end is a usage fault.
func (it *Iterator) Row() Row {
	if it.rc != engine.Row {
		usageFault("sq3: no current row")
	}
	return Row{plan: it.q.plan}
}

// Row is a read-only view over a statement's current result row. It
// borrows the engine's row buffer and is invalidated by the next step,
// reset or finish of the owning statement.
//
// Accessors take 0-based column indexes and return the engine's
// best-effort conversion to the requested type, per the engine's
// dynamic per-value typing.
type Row struct {
	plan engine.Plan
}

// DataCount returns the number of values in the current row.
func (r Row) DataCount() int { return r.plan.DataCount() }

// Type returns the dynamic type of the value at idx.
func (r Row) Type(idx int) engine.ColumnType { return r.plan.ColumnType(idx) }

// IsNull reports whether the value at idx is SQL NULL.
func (r Row) IsNull(idx int) bool { return r.plan.ColumnType(idx) == engine.TypeNull }

// Bytes returns the size in bytes of the value at idx as text or blob.
func (r Row) Bytes(idx int) int { return r.plan.ColumnBytes(idx) }

// Int returns the value at idx as an int.
func (r Row) Int(idx int) int { return int(r.plan.ColumnInt64(idx)) }

// Int64 returns the value at idx as an int64.
func (r Row) Int64(idx int) int64 { return r.plan.ColumnInt64(idx) }

// Uint64 returns the value at idx as a uint64.
func (r Row) Uint64(idx int) uint64 { return uint64(r.plan.ColumnInt64(idx)) }

// Float64 returns the value at idx as a float64.
func (r Row) Float64(idx int) float64 { return r.plan.ColumnFloat64(idx) }

// Bool returns the value at idx as a bool, false for zero.
func (r Row) Bool(idx int) bool { return r.plan.ColumnInt64(idx) != 0 }

// Text returns the value at idx as a string.
func (r Row) Text(idx int) string { return r.plan.ColumnText(idx) }

// Blob returns the value at idx as a byte slice. The slice is a copy
// and remains valid after the row is invalidated.
func (r Row) Blob(idx int) []byte { return r.plan.ColumnBlob(idx) }

// Decimal returns the value at idx parsed as an exact decimal. A value
// that does not parse yields zero.
func (r Row) Decimal(idx int) decimal.Decimal {
	d, err := decimal.NewFromString(r.plan.ColumnText(idx))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Nullable access: each accessor returns the caller-supplied value when
// the column is SQL NULL.

func (r Row) Int64Or(idx int, null int64) int64 {
	if r.IsNull(idx) {
		return null
	}
	return r.Int64(idx)
}

func (r Row) Float64Or(idx int, null float64) float64 {
	if r.IsNull(idx) {
		return null
	}
	return r.Float64(idx)
}

func (r Row) TextOr(idx int, null string) string {
	if r.IsNull(idx) {
		return null
	}
	return r.Text(idx)
}

func (r Row) BlobOr(idx int, null []byte) []byte {
	if r.IsNull(idx) {
		return null
	}
	return r.Blob(idx)
}

// Getter streams column values out of a row in order, mirroring Binder
// on the input side. Each Get fills the target from the next column.
type Getter struct {
	row Row
	idx int
}

// Getter returns a stream positioned at the first column.
func (r Row) Getter() *Getter {
	return &Getter{row: r}
}

// Get extracts the next column into target, which must be a pointer to
// int, int64, uint64, float64, bool, string, []byte or decimal.Decimal.
// Any other target type is a usage fault.
func (g *Getter) Get(target any) *Getter {
	idx := g.idx
	g.idx++
	switch t := target.(type) {
	case *int:
		*t = g.row.Int(idx)
	case *int64:
		*t = g.row.Int64(idx)
	case *uint64:
		*t = g.row.Uint64(idx)
	case *float64:
		*t = g.row.Float64(idx)
	case *bool:
		*t = g.row.Bool(idx)
	case *string:
		*t = g.row.Text(idx)
	case *[]byte:
		*t = g.row.Blob(idx)
	case *decimal.Decimal:
		*t = g.row.Decimal(idx)
	default:
		usageFault("sq3: cannot extract column into %T", target)
	}
	return g
}
