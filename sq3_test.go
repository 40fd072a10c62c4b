package sq3_test

import (
	"io"

	"github.com/ha1tch/sq3"
	"github.com/ha1tch/sq3/engine/enginetest"
	"github.com/ha1tch/sq3/pkg/log"
)

// newTestDB wires a Database over a scripted connection with logging
// silenced.
func newTestDB() (*sq3.Database, *enginetest.Conn) {
	conn := enginetest.NewConn()
	db := sq3.Wrap(conn)

	cfg := log.DefaultConfig()
	cfg.DefaultLevel = log.LevelOff
	cfg.Output = io.Discard
	db.SetLogger(log.New(cfg))

	return db, conn
}
