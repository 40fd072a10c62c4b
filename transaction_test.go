package sq3_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ha1tch/sq3"
	"github.com/ha1tch/sq3/engine"
	"github.com/ha1tch/sq3/pkg/log"
)

func TestTransactionCommit(t *testing.T) {
	db, conn := newTestDB()

	tx, err := sq3.Begin(db)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if tx.Active() {
		t.Fatal("guard still active after commit")
	}
	// A resolved guard's Close is a no-op.
	if err := tx.Close(); err != nil {
		t.Fatalf("Close after commit failed: %v", err)
	}

	if got := strings.Join(conn.Directives, ","); got != "BEGIN,COMMIT" {
		t.Fatalf("directives = %q, want BEGIN,COMMIT", got)
	}
}

func TestTransactionDefaultsToRollbackOnClose(t *testing.T) {
	db, conn := newTestDB()

	tx, err := sq3.Begin(db)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := strings.Join(conn.Directives, ","); got != "BEGIN,ROLLBACK" {
		t.Fatalf("directives = %q, want BEGIN,ROLLBACK", got)
	}
	if conn.InTxn {
		t.Fatal("connection still inside a transaction")
	}
}

func TestTransactionCommitOnClose(t *testing.T) {
	db, conn := newTestDB()

	tx, err := sq3.Begin(db, sq3.WithCommitOnClose())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := strings.Join(conn.Directives, ","); got != "BEGIN,COMMIT" {
		t.Fatalf("directives = %q, want BEGIN,COMMIT", got)
	}
}

func TestTransactionImmediateMode(t *testing.T) {
	db, conn := newTestDB()

	tx, err := sq3.Begin(db, sq3.WithImmediate())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Close()

	if conn.Directives[0] != "BEGIN IMMEDIATE" {
		t.Fatalf("directive = %q, want BEGIN IMMEDIATE", conn.Directives[0])
	}
}

func TestTransactionBeginFailure(t *testing.T) {
	db, conn := newTestDB()
	conn.FailBegin = engine.Busy

	if _, err := sq3.Begin(db, sq3.WithImmediate()); err == nil {
		t.Fatal("expected Begin to surface the lock failure")
	}
}

func TestTransactionRollbackRestoresState(t *testing.T) {
	db, conn := newTestDB()

	tx, err := sq3.Begin(db)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (1)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	cmd.Close()

	// A failing statement leaves the guard unresolved; Close rolls back.
	if err := tx.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := conn.Directives[len(conn.Directives)-1]; got != "ROLLBACK" {
		t.Fatalf("final directive = %q, want ROLLBACK", got)
	}
}

func TestTransactionDoubleResolveIsNoop(t *testing.T) {
	db, conn := newTestDB()

	tx, err := sq3.Begin(db)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if rc := tx.RollbackStatus(); rc != engine.OK {
		t.Fatalf("rollback after commit returned %v, want OK no-op", rc)
	}
	if rc := tx.CommitStatus(); rc != engine.OK {
		t.Fatalf("second commit returned %v, want OK no-op", rc)
	}

	if got := strings.Join(conn.Directives, ","); got != "BEGIN,COMMIT" {
		t.Fatalf("directives = %q, want exactly one resolution", got)
	}
}

func TestTransactionFailedImplicitRollbackIsLogged(t *testing.T) {
	db, conn := newTestDB()
	conn.FailRollback = engine.IOErr

	var buf bytes.Buffer
	cfg := log.DefaultConfig()
	cfg.DefaultLevel = log.LevelError
	cfg.Output = &buf
	db.SetLogger(log.New(cfg))

	tx, err := sq3.Begin(db)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	err = tx.Close()
	if err == nil {
		t.Fatal("expected Close to report the failed rollback")
	}
	out := buf.String()
	if !strings.Contains(out, "implicit transaction rollback failed") {
		t.Fatalf("cleanup log missing, got %q", out)
	}
	if !strings.Contains(out, "CRIT") {
		t.Fatalf("expected critical severity, got %q", out)
	}
}

func TestTransactionCommitHookAbort(t *testing.T) {
	db, conn := newTestDB()

	db.SetCommitHandler(func() bool { return true })

	tx, err := sq3.Begin(db)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if rc := tx.CommitStatus(); rc != engine.Abort {
		t.Fatalf("CommitStatus = %v, want Abort from hook", rc)
	}
	if conn.InTxn {
		t.Fatal("aborted commit left the transaction open")
	}
}
