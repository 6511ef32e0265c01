package sqlbind

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rowbind/rowbind/dbbind"
)

// Session scopes an optional transaction over a Conn. The query operations
// never manage transactions themselves; a session owns Begin, Commit and
// Rollback and hands the token out via Tx:
//
//	sess := sqlbind.NewSession(conn)
//	if err := sess.Begin(ctx); err != nil { ... }
//	defer sess.Rollback() //nolint: errcheck
//
//	err := dbbind.Query(ctx, conn, &users, query, params, dbbind.WithTx(sess.Tx()))
type Session struct {
	conn *Conn
	tx   *sql.Tx
}

// NewSession creates a session without an active transaction.
func NewSession(conn *Conn) *Session {
	return &Session{conn: conn}
}

// Conn returns the session's connection.
func (s *Session) Conn() *Conn {
	return s.conn
}

// Begin starts a transaction. Beginning while one is active is an error.
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("sqlbind: transaction already active")
	}
	tx, err := s.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlbind: begin: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the active transaction.
func (s *Session) Commit() error {
	if s.tx == nil {
		return dbbind.ErrNoTransaction
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("sqlbind: commit: %w", err)
	}
	return nil
}

// Rollback aborts the active transaction.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return dbbind.ErrNoTransaction
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("sqlbind: rollback: %w", err)
	}
	return nil
}

// Tx returns the token to pass to dbbind.WithTx, or nil when no transaction
// is active.
func (s *Session) Tx() dbbind.Tx {
	if s.tx == nil {
		return nil
	}
	return s.tx
}
