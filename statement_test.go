package sq3_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/sq3"
	"github.com/ha1tch/sq3/engine"
	"github.com/ha1tch/sq3/engine/enginetest"
	"github.com/ha1tch/sq3/pkg/log"
)

func TestPrepareThenFinishIsIdempotent(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "SELECT 1")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	if got := conn.OpenPlans(); got != 1 {
		t.Fatalf("expected 1 open plan, got %d", got)
	}

	if err := cmd.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if got := conn.OpenPlans(); got != 0 {
		t.Fatalf("expected 0 open plans after finish, got %d", got)
	}

	// Finishing again is a no-op.
	if rc := cmd.FinishStatus(); rc != engine.OK {
		t.Fatalf("second finish returned %v, want OK", rc)
	}
	if got := conn.OpenPlans(); got != 0 {
		t.Fatalf("expected 0 open plans, got %d", got)
	}
}

func TestPrepareReplacesExistingPlan(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "SELECT 1")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if err := cmd.Prepare("SELECT 2"); err != nil {
		t.Fatalf("re-prepare failed: %v", err)
	}
	if got := conn.OpenPlans(); got != 1 {
		t.Fatalf("expected old plan finalized, got %d open plans", got)
	}
	if got := cmd.SQL(); got != "SELECT 2" {
		t.Fatalf("SQL() = %q, want %q", got, "SELECT 2")
	}
}

func TestPrepareFailureSurfacesEngineError(t *testing.T) {
	db, conn := newTestDB()
	conn.Script("SELEKT 1", enginetest.PlanScriptError("near \"SELEKT\": syntax error"))

	_, err := sq3.NewCommand(db, "SELEKT 1")
	if err == nil {
		t.Fatal("expected prepare to fail")
	}
	var e *sq3.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *sq3.Error, got %T", err)
	}
	if e.Status != engine.Err {
		t.Fatalf("Status = %v, want Err", e.Status)
	}
	if e.Message != "near \"SELEKT\": syntax error" {
		t.Fatalf("Message = %q", e.Message)
	}
}

func TestBindKinds(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if err := cmd.BindAll(7, 1.5, "hello", []byte{0xde, 0xad}, true, decimal.RequireFromString("10.25")); err != nil {
		t.Fatalf("BindAll failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	binds := conn.Execs[0].Binds
	want := []any{int64(7), 1.5, "hello", []byte{0xde, 0xad}, int64(1), "10.25"}
	if len(binds) != len(want) {
		t.Fatalf("got %d binds, want %d", len(binds), len(want))
	}
	for i := range want {
		if b, ok := binds[i].([]byte); ok {
			if string(b) != string(want[i].([]byte)) {
				t.Errorf("bind %d = %v, want %v", i+1, binds[i], want[i])
			}
			continue
		}
		if binds[i] != want[i] {
			t.Errorf("bind %d = %v (%T), want %v", i+1, binds[i], binds[i], want[i])
		}
	}
}

func TestBindNullMarker(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?, ?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	// Both the explicit marker and a nil interface bind SQL NULL.
	if err := cmd.Bind(1, sq3.Null); err != nil {
		t.Fatalf("Bind(Null) failed: %v", err)
	}
	if err := cmd.Bind(2, nil); err != nil {
		t.Fatalf("Bind(nil) failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	binds := conn.Execs[0].Binds
	if binds[0] != nil || binds[1] != nil {
		t.Fatalf("expected NULL binds, got %v", binds)
	}
}

func TestBindOwnershipHints(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?, ?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	buf := []byte("payload")
	if err := cmd.Bind(1, sq3.StaticBlob(buf)); err != nil {
		t.Fatalf("Bind static failed: %v", err)
	}
	if err := cmd.Bind(2, sq3.Blob(buf)); err != nil {
		t.Fatalf("Bind transient failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	plan := lastPlan(t, conn)
	if got := plan.Ownership(1); got != engine.Static {
		t.Errorf("parameter 1 ownership = %v, want Static", got)
	}
	if got := plan.Ownership(2); got != engine.Transient {
		t.Errorf("parameter 2 ownership = %v, want Transient", got)
	}
}

func TestBindNamedPlaceholder(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (:name, @age)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	if err := cmd.BindName(":name", "ada"); err != nil {
		t.Fatalf("BindName failed: %v", err)
	}
	if err := cmd.BindName("@age", 36); err != nil {
		t.Fatalf("BindName failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	binds := conn.Execs[0].Binds
	if binds[0] != "ada" || binds[1] != int64(36) {
		t.Fatalf("binds = %v", binds)
	}
}

func TestBindUnknownNamedPlaceholderPanics(t *testing.T) {
	db, _ := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (:name)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic for an unresolvable placeholder")
		}
		if _, ok := r.(sq3.UsageFault); !ok {
			t.Fatalf("panic value is %T, want sq3.UsageFault", r)
		}
	}()
	cmd.BindName(":missing", 1)
}

func TestBindUnsupportedTypePanics(t *testing.T) {
	db, _ := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	defer func() {
		if _, ok := recover().(sq3.UsageFault); !ok {
			t.Fatal("expected sq3.UsageFault panic")
		}
	}()
	cmd.Bind(1, struct{}{})
}

func TestBindOutOfRange(t *testing.T) {
	db, _ := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	err = cmd.Bind(2, 1)
	if err == nil {
		t.Fatal("expected out-of-range bind to fail")
	}
	var e *sq3.Error
	if !errors.As(err, &e) || e.Status != engine.Range {
		t.Fatalf("got %v, want Range error", err)
	}
}

func TestBinderStream(t *testing.T) {
	db, conn := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?, ?, ?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	b := cmd.Binder().Put(1).Put("two").Put(3.0)
	if err := b.Err(); err != nil {
		t.Fatalf("Binder failed: %v", err)
	}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	binds := conn.Execs[0].Binds
	if binds[0] != int64(1) || binds[1] != "two" || binds[2] != 3.0 {
		t.Fatalf("binds = %v", binds)
	}
}

func TestBinderFirstFailureSticks(t *testing.T) {
	db, _ := newTestDB()

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES (?)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	defer cmd.Close()

	b := cmd.Binder().Put(1).Put(2).Put(3)
	if b.Status() != engine.Range {
		t.Fatalf("Status = %v, want Range", b.Status())
	}
	if b.Err() == nil {
		t.Fatal("expected Err to report the stuck failure")
	}
}

func TestCloseLogsFinalizeDiagnostic(t *testing.T) {
	db, conn := newTestDB()
	conn.Script("INSERT INTO t VALUES(1)", enginetest.PlanScript{
		FinalizeStatus: engine.IOErr,
		Msg:            "disk I/O error",
	})

	var buf bytes.Buffer
	cfg := log.DefaultConfig()
	cfg.DefaultLevel = log.LevelError
	cfg.Output = &buf
	db.SetLogger(log.New(cfg))

	cmd, err := sq3.NewCommand(db, "INSERT INTO t VALUES(1)")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}
	cmd.Close()

	out := buf.String()
	if !strings.Contains(out, "statement finalize failed") {
		t.Fatalf("cleanup log missing, got %q", out)
	}
	// The report carries the engine's diagnostic text, not just the
	// status name.
	if !strings.Contains(out, "disk I/O error") {
		t.Fatalf("expected the engine diagnostic in the log, got %q", out)
	}
}

// lastPlan digs the most recently prepared plan out of the scripted
// connection for ownership inspection.
func lastPlan(t *testing.T, conn *enginetest.Conn) *enginetest.Plan {
	t.Helper()
	p := conn.LastPlan()
	if p == nil {
		t.Fatal("no plan prepared")
	}
	return p
}
