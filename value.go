package sq3

import (
	"github.com/shopspring/decimal"

	"github.com/ha1tch/sq3/engine"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBlob
)

// Value is a tagged bind value. Most callers bind ordinary Go values
// through Statement.Bind directly; Value exists for the cases the plain
// types cannot express: the SQL NULL marker and ownership-hinted buffers.
type Value struct {
	kind Kind
	n    int64
	f    float64
	s    string
	b    []byte
	own  engine.Ownership
}

// Null binds SQL NULL. It is a distinguished variant of the value type,
// so generic binding code can tell "bind NULL" apart from "no value".
var Null = Value{kind: KindNull}

// Int wraps a 64-bit integer.
func Int(v int64) Value { return Value{kind: KindInt, n: v} }

// Float wraps a double-precision float.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text wraps a string. Strings are immutable, so no ownership hint is
// needed.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Blob wraps a byte slice with transient ownership: the bytes are copied
// immediately, and the caller's buffer may be reused after the bind.
func Blob(b []byte) Value {
	return Value{kind: KindBlob, b: append([]byte(nil), b...), own: engine.Transient}
}

// StaticBlob wraps a byte slice with static ownership: the buffer is
// referenced without copying, under the caller's guarantee that it is not
// modified before the bound statement's next step, reset or finalize.
func StaticBlob(b []byte) Value {
	return Value{kind: KindBlob, b: b, own: engine.Static}
}

// Dec wraps an exact decimal, bound as text so no precision is lost.
func Dec(d decimal.Decimal) Value { return Value{kind: KindText, s: d.String()} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// bind applies the value to plan at idx.
func (v Value) bind(plan engine.Plan, idx int) engine.Status {
	switch v.kind {
	case KindInt:
		return plan.BindInt64(idx, v.n)
	case KindFloat:
		return plan.BindFloat64(idx, v.f)
	case KindText:
		return plan.BindText(idx, v.s, v.own)
	case KindBlob:
		return plan.BindBlob(idx, v.b, v.own)
	default:
		return plan.BindNull(idx)
	}
}

// toValue normalises a bind argument. 32-bit integers widen to 64 bits;
// nil and Null both bind SQL NULL. Unsupported types are a usage fault.
func toValue(arg any) Value {
	switch v := arg.(type) {
	case nil:
		return Null
	case Value:
		return v
	case int:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		return Int(int64(v))
	case bool:
		if v {
			return Int(1)
		}
		return Int(0)
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case string:
		return Text(v)
	case []byte:
		return Blob(v)
	case decimal.Decimal:
		return Dec(v)
	default:
		usageFault("sq3: cannot bind value of type %T", arg)
		return Null
	}
}
