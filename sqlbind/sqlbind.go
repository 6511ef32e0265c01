// Package sqlbind adapts the standard database/sql package to the dbbind
// driver surface. Any database/sql driver works; the dialect decides how
// @named parameters compile into the driver's positional placeholders.
package sqlbind

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rowbind/rowbind/dbbind"
)

// Conn makes an *sql.DB usable as a dbbind.Connection.
type Conn struct {
	db      *sql.DB
	dialect Dialect
	opened  bool
}

// ConnOption is a function type that changes Conn configuration.
type ConnOption func(c *Conn)

// WithDialect selects the placeholder dialect. The default is Question.
func WithDialect(dialect Dialect) ConnOption {
	return func(c *Conn) {
		c.dialect = dialect
	}
}

// NewConn wraps db. The pool itself stays owned by the caller; Open only
// verifies connectivity.
func NewConn(db *sql.DB, opts ...ConnOption) *Conn {
	c := &Conn{db: db, dialect: Question}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DB returns the wrapped pool.
func (c *Conn) DB() *sql.DB {
	return c.db
}

// IsOpen reports whether Open has verified the connection.
func (c *Conn) IsOpen() bool {
	return c.opened
}

// Open pings the database once.
func (c *Conn) Open(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlbind: ping: %w", err)
	}
	c.opened = true
	return nil
}

// CreateCommand returns a new command bound to this connection.
func (c *Conn) CreateCommand() dbbind.Command {
	return &command{conn: c}
}

type command struct {
	conn    *Conn
	sqlText string
	tx      *sql.Tx
	params  []*parameter
}

func (c *command) SetSQL(sql string) {
	c.sqlText = sql
}

func (c *command) SetTx(tx dbbind.Tx) {
	if tx == nil {
		c.tx = nil
		return
	}
	// The concrete token for this adapter is *sql.Tx; anything else is a
	// programming error and panics here.
	c.tx, _ = tx.(*sql.Tx)
	if c.tx == nil {
		panic(fmt.Sprintf("sqlbind: transaction token must be *sql.Tx, got %T", tx))
	}
}

func (c *command) CreateParameter() dbbind.Parameter {
	return &parameter{}
}

func (c *command) AddParameter(p dbbind.Parameter) {
	c.params = append(c.params, p.(*parameter))
}

// compile rewrites @named placeholders into the dialect's positional form
// and lays the bound parameter values out in argument-slot order.
func (c *command) compile() (string, []interface{}, error) {
	query, order, err := compileNamed(c.sqlText, c.conn.dialect)
	if err != nil {
		return "", nil, err
	}
	byName := make(map[string]*parameter, len(c.params))
	for _, p := range c.params {
		byName[p.name] = p
	}
	args := make([]interface{}, len(order))
	for i, name := range order {
		p, ok := byName[name]
		if !ok {
			return "", nil, fmt.Errorf("sqlbind: query references parameter %q but it was not bound", name)
		}
		args[i] = p.value
	}
	return query, args, nil
}

func (c *command) ExecuteNonQuery(ctx context.Context) (int64, error) {
	query, args, err := c.compile()
	if err != nil {
		return 0, err
	}
	var res sql.Result
	if c.tx != nil {
		res, err = c.tx.ExecContext(ctx, query, args...)
	} else {
		res, err = c.conn.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlbind: rows affected: %w", err)
	}
	return affected, nil
}

func (c *command) ExecuteScalar(ctx context.Context) (interface{}, error) {
	query, args, err := c.compile()
	if err != nil {
		return nil, err
	}
	var rows *sql.Rows
	if c.tx != nil {
		rows, err = c.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = c.conn.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint: errcheck
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	var value interface{}
	if err := rows.Scan(&value); err != nil {
		return nil, err
	}
	return value, rows.Close()
}

func (c *command) ExecuteReader(ctx context.Context) (dbbind.Reader, error) {
	query, args, err := c.compile()
	if err != nil {
		return nil, err
	}
	var rows *sql.Rows
	if c.tx != nil {
		rows, err = c.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = c.conn.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	return newReader(rows)
}

// Close releases nothing: database/sql has no standalone command resource,
// the reader owns the rows.
func (c *command) Close() error {
	return nil
}

type parameter struct {
	name  string
	value interface{}
	hint  string
}

func (p *parameter) Name() string { return p.name }

func (p *parameter) SetName(name string) { p.name = name }

func (p *parameter) Value() interface{} { return p.value }

func (p *parameter) SetValue(v interface{}) { p.value = v }

// SetTypeHint records the hint on the parameter; it is not passed to
// database/sql, which infers types from the Go value.
func (p *parameter) SetTypeHint(hint string) { p.hint = hint }

// reader adapts *sql.Rows. Each Read scans the full row into a raw value
// buffer so that columns can be inspected individually; HasRows peeks one
// row ahead, which database/sql cannot answer without consuming.
type reader struct {
	rows   *sql.Rows
	cols   []string
	values []interface{}
	scan   []interface{}

	peeked   bool
	peekedOK bool
	sawRow   bool
	closed   bool
}

func newReader(rows *sql.Rows) (*reader, error) {
	r := &reader{rows: rows}
	if err := r.reloadColumns(); err != nil {
		rows.Close() //nolint: errcheck
		return nil, err
	}
	return r, nil
}

func (r *reader) reloadColumns() error {
	cols, err := r.rows.Columns()
	if err != nil {
		return fmt.Errorf("sqlbind: get columns: %w", err)
	}
	r.cols = cols
	r.values = make([]interface{}, len(cols))
	r.scan = make([]interface{}, len(cols))
	for i := range r.values {
		r.scan[i] = &r.values[i]
	}
	return nil
}

func (r *reader) HasRows() bool {
	if r.sawRow {
		return true
	}
	if !r.peeked {
		ok, err := r.fetch()
		if err != nil {
			return false
		}
		r.peeked = true
		r.peekedOK = ok
	}
	return r.peekedOK
}

func (r *reader) Read(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r.peeked {
		r.peeked = false
		return r.peekedOK, nil
	}
	return r.fetch()
}

func (r *reader) fetch() (bool, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := r.rows.Scan(r.scan...); err != nil {
		return false, err
	}
	r.sawRow = true
	return true, nil
}

func (r *reader) NextResult(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.peeked = false
	r.sawRow = false
	if !r.rows.NextResultSet() {
		if err := r.rows.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := r.reloadColumns(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *reader) FieldCount() int {
	return len(r.cols)
}

func (r *reader) Name(i int) string {
	return r.cols[i]
}

func (r *reader) IsNull(i int) bool {
	return r.values[i] == nil
}

func (r *reader) Value(i int) interface{} {
	return r.values[i]
}

func (r *reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rows.Close()
}
