package sqlite

// This file carries the exported hook trampolines. The native hook
// registrations receive a C-allocated cell holding a registry id; the
// trampolines map the cell back to the owning Conn. An id cell is used
// instead of a direct pointer because cgo forbids handing Go pointers to C
// for retention.

/*
#include <sqlite3.h>
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/ha1tch/sq3/engine"
)

var (
	connsMu sync.RWMutex
	conns   = make(map[uintptr]*Conn)
	nextID  uintptr = 1
)

func registerConn(c *Conn) {
	cell := (*C.uintptr_t)(C.malloc(C.size_t(unsafe.Sizeof(C.uintptr_t(0)))))

	connsMu.Lock()
	id := nextID
	nextID++
	conns[id] = c
	connsMu.Unlock()

	*cell = C.uintptr_t(id)
	c.arg = unsafe.Pointer(cell)
}

func unregisterConn(c *Conn) {
	connsMu.Lock()
	id := uintptr(*(*C.uintptr_t)(c.arg))
	delete(conns, id)
	connsMu.Unlock()

	C.free(c.arg)
	c.arg = nil
}

func lookupConn(arg unsafe.Pointer) *Conn {
	if arg == nil {
		return nil
	}
	id := uintptr(*(*C.uintptr_t)(arg))
	connsMu.RLock()
	c := conns[id]
	connsMu.RUnlock()
	return c
}

// setHandler stores a handler slot under the registry lock so the
// trampolines observe a consistent value.
func setHandler[T any](c *Conn, slot *T, h T) {
	connsMu.Lock()
	*slot = h
	connsMu.Unlock()
}

func cstr(p *C.char) string {
	if p == nil {
		return ""
	}
	return C.GoString(p)
}

//export sq3GoBusyHandler
func sq3GoBusyHandler(arg unsafe.Pointer, count C.int) C.int {
	c := lookupConn(arg)
	if c == nil || c.busy == nil {
		return 0
	}
	if c.busy(int(count)) {
		return 1
	}
	return 0
}

//export sq3GoCommitHook
func sq3GoCommitHook(arg unsafe.Pointer) C.int {
	c := lookupConn(arg)
	if c == nil || c.commit == nil {
		return 0
	}
	if c.commit() {
		return 1
	}
	return 0
}

//export sq3GoRollbackHook
func sq3GoRollbackHook(arg unsafe.Pointer) {
	c := lookupConn(arg)
	if c == nil || c.rollback == nil {
		return
	}
	c.rollback()
}

//export sq3GoUpdateHook
func sq3GoUpdateHook(arg unsafe.Pointer, op C.int, dbname, table *C.char, rowid C.sqlite3_int64) {
	c := lookupConn(arg)
	if c == nil || c.update == nil {
		return
	}
	c.update(engine.Op(op), cstr(dbname), cstr(table), int64(rowid))
}

//export sq3GoAuthorizer
func sq3GoAuthorizer(arg unsafe.Pointer, action C.int, arg1, arg2, dbname, trigger *C.char) C.int {
	c := lookupConn(arg)
	if c == nil || c.authorize == nil {
		return 0
	}
	return C.int(c.authorize(int(action), cstr(arg1), cstr(arg2), cstr(dbname), cstr(trigger)))
}
