package service

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

// recordingDriver backs a *sql.DB whose transactions are no-ops. The repos in
// these tests are in-memory fakes that ignore the tx, so all the services need
// from the database handle is Begin/Commit/Rollback bookkeeping. Commits are
// counted so tests can assert what ran before or after the transaction closed.
type recordingDriver struct {
	commits *int32
}

func (d recordingDriver) Open(string) (driver.Conn, error) {
	return &recordingConn{commits: d.commits}, nil
}

type recordingConn struct {
	commits *int32
}

func (c *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("recordingConn: statements are not supported")
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) Begin() (driver.Tx, error) {
	return recordingTx{commits: c.commits}, nil
}

type recordingTx struct {
	commits *int32
}

func (t recordingTx) Commit() error {
	atomic.AddInt32(t.commits, 1)
	return nil
}

func (t recordingTx) Rollback() error { return nil }

var testDriverSeq int32

// newTestDB registers a fresh recording driver and opens a *sql.DB on it. The
// returned counter holds the number of committed transactions.
func newTestDB(t *testing.T) (*sql.DB, *int32) {
	t.Helper()
	commits := new(int32)
	name := fmt.Sprintf("recording-%d", atomic.AddInt32(&testDriverSeq, 1))
	sql.Register(name, recordingDriver{commits: commits})
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, commits
}
