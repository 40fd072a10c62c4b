package sq3_test

import (
	"testing"

	"github.com/ha1tch/sq3"
	"github.com/ha1tch/sq3/engine"
	"github.com/ha1tch/sq3/engine/enginetest"
)

func TestExecuteInsertReportsRowID(t *testing.T) {
	db, conn := newTestDB()
	conn.Script("INSERT INTO t VALUES (?)", enginetest.PlanScript{InsertRowID: 42})

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if err := cmd.Bind(1, 7); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got := db.LastInsertRowID(); got != 42 {
		t.Fatalf("LastInsertRowID = %d, want 42", got)
	}
	if got := conn.Execs[0].Binds[0]; got != int64(7) {
		t.Fatalf("bound value = %v, want 7", got)
	}
}

func TestExecuteRowProducingStatementFails(t *testing.T) {
	db, conn := newTestDB()
	conn.Script("SELECT a FROM t", enginetest.PlanScript{Rows: [][]any{{int64(1)}}})

	cmd, err := sq3.NewCommand(db, "SELECT a FROM t")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if rc := cmd.ExecuteStatus(); rc != engine.Row {
		t.Fatalf("ExecuteStatus = %v, want Row surfaced as-is", rc)
	}
	if err := cmd.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected the error form to report the row-producing step")
	}
}

func TestRebindAfterResetObservesLatestValue(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if err := cmd.Bind(1, 1); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if err := cmd.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := cmd.Bind(1, 2); err != nil {
		t.Fatalf("rebind failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}

	if len(conn.Execs) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(conn.Execs))
	}
	if got := conn.Execs[1].Binds[0]; got != int64(2) {
		t.Fatalf("second execution bound %v, want latest value 2", got)
	}
}

func TestExecuteAllRunsEveryStatement(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES(?); INSERT INTO u VALUES(?);")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if err := cmd.Bind(1, 7); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := cmd.ExecuteAll(); err != nil {
		t.Fatalf("ExecuteAll failed: %v", err)
	}

	if len(conn.Execs) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(conn.Execs))
	}
	// Bindings carry across statements by positional transfer.
	for i, e := range conn.Execs {
		if len(e.Binds) != 1 || e.Binds[0] != int64(7) {
			t.Errorf("execution %d binds = %v, want [7]", i, e.Binds)
		}
	}
	if got := conn.OpenPlans(); got != 1 {
		t.Fatalf("expected only the final plan open, got %d", got)
	}
}

func TestExecuteAllIgnoresTrailingWhitespace(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES(1); \n\t ")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if err := cmd.ExecuteAll(); err != nil {
		t.Fatalf("ExecuteAll failed: %v", err)
	}
	if len(conn.Execs) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(conn.Execs))
	}
	if cmd.Tail() != "" {
		t.Fatalf("expected tail consumed, got %q", cmd.Tail())
	}
}

func TestExecuteAllContinuesPastEmptyStatement(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES(?);; INSERT INTO u VALUES(?);")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if err := cmd.Bind(1, 7); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := cmd.ExecuteAll(); err != nil {
		t.Fatalf("ExecuteAll failed: %v", err)
	}

	if len(conn.Execs) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(conn.Execs))
	}
	if got := conn.Execs[1].SQL; got != "INSERT INTO u VALUES(?)" {
		t.Fatalf("second execution = %q", got)
	}
	// Bindings survive the empty statement between the two.
	if got := conn.Execs[1].Binds[0]; got != int64(7) {
		t.Fatalf("second execution bound %v, want 7", got)
	}
	if got := conn.OpenPlans(); got != 1 {
		t.Fatalf("expected only the final plan open, got %d", got)
	}
}

func TestExecuteAllStopsAtFirstFailure(t *testing.T) {
	db, conn := newTestDB()
	conn.Script("INSERT INTO u VALUES(2)", enginetest.PlanScript{
		StepStatus: engine.Constraint,
		Msg:        "UNIQUE constraint failed: u.id",
	})

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES(1); INSERT INTO u VALUES(2); INSERT INTO v VALUES(3);")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	err = cmd.ExecuteAll()
	if err == nil {
		t.Fatal("expected ExecuteAll to fail on the second statement")
	}
	// The first statement stays executed; the third is never reached.
	if len(conn.Execs) != 1 {
		t.Fatalf("expected 1 completed execution, got %d", len(conn.Execs))
	}
}
