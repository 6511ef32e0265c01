// Package pgxbind adapts pgx to the dbbind driver surface. It works with
// *pgx.Conn, *pgxpool.Pool and pgx.Tx alike, and relies on pgx's native
// named-argument rewriting for the @name placeholders, so array parameters
// and Postgres type inference come for free.
package pgxbind

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowbind/rowbind/dbbind"
)

// Querier is something pgxbind can execute commands on.
// For example, it can be: *pgxpool.Pool, *pgx.Conn or pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

var (
	_ Querier = &pgxpool.Pool{}
	_ Querier = &pgx.Conn{}
	_ Querier = pgx.Tx(nil)
)

// Conn makes a Querier usable as a dbbind.Connection.
type Conn struct {
	q      Querier
	opened bool
}

// NewConn wraps q. The querier stays owned by the caller.
func NewConn(q Querier) *Conn {
	return &Conn{q: q}
}

// Querier returns the wrapped querier.
func (c *Conn) Querier() Querier {
	return c.q
}

// IsOpen reports whether Open has verified the connection.
func (c *Conn) IsOpen() bool {
	if conn, ok := c.q.(*pgx.Conn); ok && conn.IsClosed() {
		return false
	}
	return c.opened
}

// Open pings the database when the querier supports it. pgx connects
// eagerly, so this is a health check, not connection establishment.
func (c *Conn) Open(ctx context.Context) error {
	if pinger, ok := c.q.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("pgxbind: ping: %w", err)
		}
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
	tx      pgx.Tx
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
	pgxTx, ok := tx.(pgx.Tx)
	if !ok {
		panic(fmt.Sprintf("pgxbind: transaction token must be pgx.Tx, got %T", tx))
	}
	c.tx = pgxTx
}

func (c *command) CreateParameter() dbbind.Parameter {
	return &parameter{}
}

func (c *command) AddParameter(p dbbind.Parameter) {
	c.params = append(c.params, p.(*parameter))
}

func (c *command) querier() Querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn.q
}

// namedArgs lays the bound parameters out for pgx's @name rewriter.
func (c *command) namedArgs() []interface{} {
	if len(c.params) == 0 {
		return nil
	}
	named := make(pgx.NamedArgs, len(c.params))
	for _, p := range c.params {
		named[p.name] = p.value
	}
	return []interface{}{named}
}

func (c *command) ExecuteNonQuery(ctx context.Context) (int64, error) {
	tag, err := c.querier().Exec(ctx, c.sqlText, c.namedArgs()...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *command) ExecuteScalar(ctx context.Context) (interface{}, error) {
	rows, err := c.querier().Query(ctx, c.sqlText, c.namedArgs()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return normalizeValue(values[0]), nil
}

func (c *command) ExecuteReader(ctx context.Context) (dbbind.Reader, error) {
	rows, err := c.querier().Query(ctx, c.sqlText, c.namedArgs()...)
	if err != nil {
		return nil, err
	}
	return &reader{rows: rows}, nil
}

// Close releases nothing: pgx has no standalone command resource, the
// reader owns the rows.
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

// SetTypeHint records the hint on the parameter; it is not passed to pgx,
// which infers parameter OIDs itself.
func (p *parameter) SetTypeHint(hint string) { p.hint = hint }

// reader adapts pgx.Rows. Each Read materializes the row's raw values;
// HasRows peeks one row ahead because pgx cannot answer it without
// consuming.
type reader struct {
	rows   pgx.Rows
	values []interface{}

	peeked   bool
	peekedOK bool
	sawRow   bool
	closed   bool
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
	values, err := r.rows.Values()
	if err != nil {
		return false, err
	}
	for i, v := range values {
		values[i] = normalizeValue(v)
	}
	r.values = values
	r.sawRow = true
	return true, nil
}

// normalizeValue unwraps the pgtype values that pgx does not decode to
// plain Go, so the consumer sees ordinary durations and numeric strings.
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		return time.Duration(val.Microseconds) * time.Microsecond
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if dv, err := val.Value(); err == nil {
			return dv
		}
	}
	return v
}

// NextResult always reports no further result set: the pgx extended query
// protocol executes one statement per command.
func (r *reader) NextResult(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, nil
}

func (r *reader) FieldCount() int {
	return len(r.rows.FieldDescriptions())
}

func (r *reader) Name(i int) string {
	return r.rows.FieldDescriptions()[i].Name
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
	r.rows.Close()
	return r.rows.Err()
}
