package sqlbind_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowbind/rowbind/dbbind"
	"github.com/rowbind/rowbind/sqlbind"
)

var ctx = context.Background()

func newMockConn(t *testing.T, opts ...sqlbind.ConnOption) (*sqlbind.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint: errcheck
	return sqlbind.NewConn(db, opts...), mock
}

type mockUser struct {
	Id        int
	Name      string
	CreatedAt time.Time
}

func TestQueryThroughSQLMock(t *testing.T) {
	t.Parallel()
	conn, mock := newMockConn(t)
	t0 := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, name, created_at FROM users WHERE id = ?`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow(int64(7), "ann", t0))

	var users []mockUser
	err := dbbind.Query(ctx, conn, &users,
		`SELECT id, name, created_at FROM users WHERE id = @Id`,
		struct{ Id int }{Id: 7})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, mockUser{Id: 7, Name: "ann", CreatedAt: t0}, users[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteThroughSQLMock(t *testing.T) {
	t.Parallel()
	conn, mock := newMockConn(t)
	mock.ExpectExec(`DELETE FROM users WHERE name = ?`).
		WithArgs("ann").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := dbbind.Execute(ctx, conn, `DELETE FROM users WHERE name = @Name`,
		struct{ Name string }{Name: "ann"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteScalarThroughSQLMock(t *testing.T) {
	t.Parallel()
	conn, mock := newMockConn(t)
	mock.ExpectQuery(`SELECT count(*) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))

	var count int
	err := dbbind.ExecuteScalar(ctx, conn, &count, `SELECT count(*) FROM users`, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryMultipleThroughSQLMock(t *testing.T) {
	t.Parallel()
	conn, mock := newMockConn(t)
	first := sqlmock.NewRows([]string{"name"}).AddRow("a").AddRow("b")
	second := sqlmock.NewRows([]string{"total"}).AddRow(int64(2))
	mock.ExpectQuery(`SELECT name FROM users; SELECT count(*) FROM users`).
		WillReturnRows(first, second)

	grid, err := dbbind.QueryMultiple(ctx, conn,
		`SELECT name FROM users; SELECT count(*) FROM users`, nil)
	require.NoError(t, err)
	defer grid.Close() //nolint: errcheck

	var names []string
	require.NoError(t, grid.Read(ctx, &names))
	assert.Equal(t, []string{"a", "b"}, names)

	var total int
	require.NoError(t, grid.ReadSingle(ctx, &total))
	assert.Equal(t, 2, total)

	require.NoError(t, grid.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNullColumnsThroughSQLMock(t *testing.T) {
	t.Parallel()
	conn, mock := newMockConn(t)
	mock.ExpectQuery(`SELECT id, name FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), nil))

	type row struct {
		Id   int
		Name *string
	}
	var rows []row
	require.NoError(t, dbbind.Query(ctx, conn, &rows, `SELECT id, name FROM users`, nil))
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Id)
	assert.Nil(t, rows[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionThroughSQLMock(t *testing.T) {
	t.Parallel()
	conn, mock := newMockConn(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET name = ?`).
		WithArgs("bob").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sess := sqlbind.NewSession(conn)
	require.NoError(t, sess.Begin(ctx))
	_, err := dbbind.Execute(ctx, conn, `UPDATE users SET name = @Name`,
		struct{ Name string }{Name: "bob"}, dbbind.WithTx(sess.Tx()))
	require.NoError(t, err)
	require.NoError(t, sess.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionTransactionLifecycle(t *testing.T) {
	t.Parallel()
	conn, mock := newMockConn(t)
	sess := sqlbind.NewSession(conn)

	assert.ErrorIs(t, sess.Commit(), dbbind.ErrNoTransaction)
	assert.ErrorIs(t, sess.Rollback(), dbbind.ErrNoTransaction)
	assert.Nil(t, sess.Tx())

	mock.ExpectBegin()
	require.NoError(t, sess.Begin(ctx))
	assert.NotNil(t, sess.Tx())
	assert.Error(t, sess.Begin(ctx), "nested begin is rejected")

	mock.ExpectRollback()
	require.NoError(t, sess.Rollback())
	assert.ErrorIs(t, sess.Rollback(), dbbind.ErrNoTransaction)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnboundParameterFails(t *testing.T) {
	t.Parallel()
	conn, _ := newMockConn(t)
	var users []mockUser
	err := dbbind.Query(ctx, conn, &users, `SELECT id FROM users WHERE id = @Id`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parameter "Id"`)
}
