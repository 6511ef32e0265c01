package sqlbind_test

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rowbind/rowbind/dbbind"
	"github.com/rowbind/rowbind/sqlbind"
)

// The integration test runs against an in-memory SQLite database through the
// real database/sql machinery, with no mocks in the path.

type account struct {
	Id       uuid.UUID
	Name     string
	IsActive bool
	Note     *string
}

func newSQLiteConn(t *testing.T) *sqlbind.Conn {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// In-memory SQLite disappears when its last connection closes.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() }) //nolint: errcheck

	conn := sqlbind.NewConn(db)
	_, err = dbbind.Execute(ctx, conn, `
		CREATE TABLE accounts (
			id        TEXT PRIMARY KEY,
			name      TEXT NOT NULL,
			is_active INTEGER NOT NULL,
			note      TEXT
		)
	`, nil)
	require.NoError(t, err)
	return conn
}

func insertAccount(t *testing.T, conn *sqlbind.Conn, a account) {
	t.Helper()
	affected, err := dbbind.Execute(ctx, conn, `
		INSERT INTO accounts (id, name, is_active, note)
		VALUES (@Id, @Name, @IsActive, @Note)
	`, struct {
		Id       string
		Name     string
		IsActive bool
		Note     *string
	}{Id: a.Id.String(), Name: a.Name, IsActive: a.IsActive, Note: a.Note})
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
}

func TestSQLiteEndToEnd(t *testing.T) {
	t.Parallel()
	conn := newSQLiteConn(t)

	note := "first"
	first := account{Id: uuid.New(), Name: "ann", IsActive: true, Note: &note}
	second := account{Id: uuid.New(), Name: "bob", IsActive: false}
	insertAccount(t, conn, first)
	insertAccount(t, conn, second)

	var accounts []account
	err := dbbind.Query(ctx, conn, &accounts,
		`SELECT id, name, is_active, note FROM accounts ORDER BY name`, nil)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, first, accounts[0])
	assert.Equal(t, second, accounts[1])
	assert.Nil(t, accounts[1].Note)

	var ann account
	err = dbbind.QuerySingle(ctx, conn, &ann,
		`SELECT id, name, is_active, note FROM accounts WHERE name = @Name`,
		struct{ Name string }{Name: "ann"})
	require.NoError(t, err)
	assert.Equal(t, first, ann)

	err = dbbind.QuerySingle(ctx, conn, &ann,
		`SELECT id, name, is_active, note FROM accounts WHERE name = @Name`,
		struct{ Name string }{Name: "nobody"})
	assert.True(t, dbbind.NotFound(err))

	var count int
	require.NoError(t, dbbind.ExecuteScalar(ctx, conn, &count,
		`SELECT count(*) FROM accounts`, nil))
	assert.Equal(t, 2, count)

	var missing account
	require.NoError(t, dbbind.QueryFirstOrDefault(ctx, conn, &missing,
		`SELECT id, name, is_active, note FROM accounts WHERE name = @Name`,
		struct{ Name string }{Name: "nobody"}))
	assert.Equal(t, account{}, missing)

	var names []string
	require.NoError(t, dbbind.Query(ctx, conn, &names,
		`SELECT name FROM accounts WHERE is_active = @Active`,
		struct{ Active bool }{Active: true}))
	assert.Equal(t, []string{"ann"}, names)
}

func TestSQLiteRepeatedParameter(t *testing.T) {
	t.Parallel()
	conn := newSQLiteConn(t)
	insertAccount(t, conn, account{Id: uuid.New(), Name: "same", IsActive: true})

	// The question dialect binds the value once per reference.
	var n int
	require.NoError(t, dbbind.ExecuteScalar(ctx, conn, &n, `
		SELECT count(*) FROM accounts WHERE name = @N OR note = @N
	`, dbbind.NewArgs().Add("N", "same")))
	assert.Equal(t, 1, n)
}

func TestSQLiteTransactionRollback(t *testing.T) {
	t.Parallel()
	conn := newSQLiteConn(t)
	sess := sqlbind.NewSession(conn)

	require.NoError(t, sess.Begin(ctx))
	_, err := dbbind.Execute(ctx, conn, `
		INSERT INTO accounts (id, name, is_active) VALUES (@Id, @Name, @Active)
	`, dbbind.NewArgs().
		Add("Id", uuid.NewString()).
		Add("Name", "ghost").
		Add("Active", true),
		dbbind.WithTx(sess.Tx()))
	require.NoError(t, err)
	require.NoError(t, sess.Rollback())

	var count int
	require.NoError(t, dbbind.ExecuteScalar(ctx, conn, &count,
		`SELECT count(*) FROM accounts`, nil))
	assert.Equal(t, 0, count, "the rolled back insert is gone")
}
