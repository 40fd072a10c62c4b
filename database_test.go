package sq3_test

import (
	"strings"
	"testing"

	"github.com/ha1tch/sq3"
	"github.com/ha1tch/sq3/engine"
	"github.com/ha1tch/sq3/engine/enginetest"
)

func TestOpenUnknownEngine(t *testing.T) {
	_, err := sq3.Open("no-such-engine", ":memory:")
	if err == nil {
		t.Fatal("expected Open with an unregistered engine to fail")
	}
	if !strings.Contains(err.Error(), "no-such-engine") {
		t.Fatalf("error %q does not name the engine", err)
	}
}

func TestOpenThroughRegistry(t *testing.T) {
	eng := enginetest.New()
	engine.Register("enginetest-open", eng)

	db, err := sq3.Open("enginetest-open", "somewhere.db")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Name() != "somewhere.db" {
		t.Fatalf("Name = %q", db.Name())
	}
	if len(eng.Conns) != 1 || eng.Conns[0].Name != "somewhere.db" {
		t.Fatal("engine did not receive the open")
	}
}

func TestExecRecordsDirective(t *testing.T) {
	db, conn := newTestDB()

	if err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if conn.Directives[0] != "PRAGMA foreign_keys=ON" {
		t.Fatalf("directive = %q", conn.Directives[0])
	}
}

func TestExecFailureCarriesDiagnostic(t *testing.T) {
	db, conn := newTestDB()
	conn.FailExec["VACUUM"] = engine.Busy

	err := db.Exec("VACUUM")
	if err == nil {
		t.Fatal("expected Exec to fail")
	}
	if !strings.Contains(err.Error(), "busy") {
		t.Fatalf("error %q does not carry the diagnostic", err)
	}
}

func TestAttachQuotesArguments(t *testing.T) {
	db, conn := newTestDB()

	if err := db.Attach("it's.db", "aux"); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if got := conn.Directives[0]; got != "ATTACH 'it''s.db' AS 'aux'" {
		t.Fatalf("directive = %q", got)
	}

	if err := db.Detach("aux"); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if got := conn.Directives[1]; got != "DETACH 'aux'" {
		t.Fatalf("directive = %q", got)
	}
}

func TestDisconnectDropsHandleRegardless(t *testing.T) {
	db, conn := newTestDB()
	conn.FailClose = engine.Busy

	if rc := db.Disconnect(); rc != engine.Busy {
		t.Fatalf("Disconnect = %v, want Busy", rc)
	}
	// The handle is gone either way; further calls report misuse.
	if rc := db.ExecStatus("SELECT 1"); rc != engine.Misuse {
		t.Fatalf("ExecStatus after disconnect = %v, want Misuse", rc)
	}
}

func TestCloseBlockedByOpenStatement(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "SELECT 1")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}

	if err := db.Close(); err == nil {
		t.Fatal("expected Close with an unfinalized statement to fail")
	}
	if conn.Closed() {
		t.Fatal("connection must not report closed")
	}
	cmd.Close()
}

func TestSetBusyTimeout(t *testing.T) {
	db, conn := newTestDB()

	if rc := db.SetBusyTimeout(2500); rc != engine.OK {
		t.Fatalf("SetBusyTimeout = %v", rc)
	}
	if got := conn.BusyTimeout(); got != 2500 {
		t.Fatalf("busy timeout = %d, want 2500", got)
	}
}

func TestUpdateHookObservesInsert(t *testing.T) {
	db, conn := newTestDB()
	conn.Script("INSERT INTO t VALUES (1)", enginetest.PlanScript{InsertRowID: 9})

	var (
		gotOp    engine.Op
		gotRowID int64
	)
	db.SetUpdateHandler(func(op engine.Op, dbName, table string, rowid int64) {
		gotOp = op
		gotRowID = rowid
	})

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (1)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gotOp != engine.OpInsert || gotRowID != 9 {
		t.Fatalf("hook saw op=%v rowid=%d", gotOp, gotRowID)
	}
}
