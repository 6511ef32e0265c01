package dbbind

import (
	"context"
	"fmt"
)

// GridReader exposes sequential access to the multiple result sets produced
// by a single execution. It holds the open reader and command and releases
// both on Close; ownership transfers to the caller of QueryMultiple:
//
//	grid, err := dbbind.QueryMultiple(ctx, conn, sql, params)
//	if err != nil { ... }
//	defer grid.Close() //nolint: errcheck
//
// Result sets are consumed strictly in the order they appear in the SQL.
type GridReader struct {
	api           *API
	cmd           Command
	reader        Reader
	consumedFirst bool
	closed        bool
}

// Read decodes the next result set into dst, which must be a pointer to a
// slice. The first call decodes the reader as-is; subsequent calls advance
// to the next result set first and return ErrNoMoreResults when there is
// none.
func (g *GridReader) Read(ctx context.Context, dst interface{}) error {
	if err := g.advance(ctx); err != nil {
		return err
	}
	return g.api.decodeAll(ctx, g.reader, dst)
}

// ReadSingle decodes exactly one row of the next result set into dst.
// Zero rows yield ErrNoRows, a second row ErrMultipleRows.
func (g *GridReader) ReadSingle(ctx context.Context, dst interface{}) error {
	if err := g.advance(ctx); err != nil {
		return err
	}
	return g.api.decodeRows(ctx, g.reader, dst, readSingle)
}

// ReadSingleOrDefault decodes at most one row of the next result set into
// dst, leaving dst at its default when the set is empty.
func (g *GridReader) ReadSingleOrDefault(ctx context.Context, dst interface{}) error {
	if err := g.advance(ctx); err != nil {
		return err
	}
	return g.api.decodeRows(ctx, g.reader, dst, readSingleOrDefault)
}

func (g *GridReader) advance(ctx context.Context) error {
	if g.closed {
		return fmt.Errorf("rowbind: grid reader is closed")
	}
	if !g.consumedFirst {
		g.consumedFirst = true
		return nil
	}
	more, err := g.reader.NextResult(ctx)
	if err != nil {
		return err
	}
	if !more {
		return ErrNoMoreResults
	}
	return nil
}

// Close releases the underlying reader and command. It is idempotent and
// safe to defer next to further Read calls.
func (g *GridReader) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	return releaseReader(g.reader, g.cmd)
}
