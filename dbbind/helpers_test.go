package dbbind_test

import (
	"context"
	"errors"

	"github.com/rowbind/rowbind/dbbind"
)

// The fake driver below implements the dbbind driver surface over in-memory
// result sets. Tests script a connection with the result sets a command
// should produce and inspect the commands and parameters afterwards.

type fakeResultSet struct {
	cols []string
	rows [][]interface{}
}

type fakeConn struct {
	isOpen    bool
	openErr   error
	openCalls int

	sets     []fakeResultSet
	affected int64
	scalar   interface{}
	execErr  error

	cmds []*fakeCmd
}

func (c *fakeConn) IsOpen() bool { return c.isOpen }

func (c *fakeConn) Open(ctx context.Context) error {
	c.openCalls++
	if c.openErr != nil {
		return c.openErr
	}
	c.isOpen = true
	return nil
}

func (c *fakeConn) CreateCommand() dbbind.Command {
	cmd := &fakeCmd{conn: c}
	c.cmds = append(c.cmds, cmd)
	return cmd
}

type fakeCmd struct {
	conn   *fakeConn
	sql    string
	tx     dbbind.Tx
	params []*fakeParam
	closed bool
	reader *fakeReader
}

func (c *fakeCmd) SetSQL(sql string)  { c.sql = sql }
func (c *fakeCmd) SetTx(tx dbbind.Tx) { c.tx = tx }
func (c *fakeCmd) CreateParameter() dbbind.Parameter { return &fakeParam{} }

func (c *fakeCmd) AddParameter(p dbbind.Parameter) {
	c.params = append(c.params, p.(*fakeParam))
}

func (c *fakeCmd) ExecuteNonQuery(ctx context.Context) (int64, error) {
	if c.conn.execErr != nil {
		return 0, c.conn.execErr
	}
	return c.conn.affected, nil
}

func (c *fakeCmd) ExecuteScalar(ctx context.Context) (interface{}, error) {
	if c.conn.execErr != nil {
		return nil, c.conn.execErr
	}
	return c.conn.scalar, nil
}

func (c *fakeCmd) ExecuteReader(ctx context.Context) (dbbind.Reader, error) {
	if c.conn.execErr != nil {
		return nil, c.conn.execErr
	}
	c.reader = &fakeReader{sets: c.conn.sets, rowIdx: -1}
	return c.reader, nil
}

func (c *fakeCmd) Close() error {
	c.closed = true
	return nil
}

func (c *fakeCmd) paramNames() []string {
	names := make([]string, len(c.params))
	for i, p := range c.params {
		names[i] = p.name
	}
	return names
}

type fakeParam struct {
	name  string
	value interface{}
	hint  string
}

func (p *fakeParam) Name() string            { return p.name }
func (p *fakeParam) SetName(name string)     { p.name = name }
func (p *fakeParam) Value() interface{}      { return p.value }
func (p *fakeParam) SetValue(v interface{})  { p.value = v }
func (p *fakeParam) SetTypeHint(hint string) { p.hint = hint }

type fakeReader struct {
	sets   []fakeResultSet
	setIdx int
	rowIdx int
	closed bool
}

var errReaderClosed = errors.New("fake reader is closed")

func (r *fakeReader) currentSet() fakeResultSet {
	if r.setIdx >= len(r.sets) {
		return fakeResultSet{}
	}
	return r.sets[r.setIdx]
}

func (r *fakeReader) HasRows() bool {
	return len(r.currentSet().rows) > 0
}

func (r *fakeReader) Read(ctx context.Context) (bool, error) {
	if r.closed {
		return false, errReaderClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.rowIdx++
	return r.rowIdx < len(r.currentSet().rows), nil
}

func (r *fakeReader) NextResult(ctx context.Context) (bool, error) {
	if r.closed {
		return false, errReaderClosed
	}
	r.setIdx++
	r.rowIdx = -1
	return r.setIdx < len(r.sets), nil
}

func (r *fakeReader) FieldCount() int {
	return len(r.currentSet().cols)
}

func (r *fakeReader) Name(i int) string {
	return r.currentSet().cols[i]
}

func (r *fakeReader) IsNull(i int) bool {
	return r.currentSet().rows[r.rowIdx][i] == nil
}

func (r *fakeReader) Value(i int) interface{} {
	return r.currentSet().rows[r.rowIdx][i]
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func singleSet(cols []string, rows ...[]interface{}) []fakeResultSet {
	return []fakeResultSet{{cols: cols, rows: rows}}
}

func newTestAPI(t interface{ Fatalf(string, ...interface{}) }) (*dbbind.API, *dbbind.HandlerRegistry) {
	handlers := dbbind.NewHandlerRegistry()
	api, err := dbbind.NewAPI(dbbind.WithHandlers(handlers))
	if err != nil {
		t.Fatalf("new api: %s", err)
	}
	return api, handlers
}
