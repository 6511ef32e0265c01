package dbbind

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// API is the core type in rowbind. It implements all the logic and exposes
// the query operations available in the package. With the API type users can
// create a custom instance and override default settings, e.g. give it a
// private handler registry for tests.
type API struct {
	handlers        *HandlerRegistry
	columnSeparator string
	strictNulls     bool
	planCache       sync.Map // planKey -> *decodePlan
}

// APIOption is a function type that changes API configuration.
type APIOption func(api *API)

// NewAPI creates a new API object with the provided list of options.
func NewAPI(opts ...APIOption) (*API, error) {
	api := &API{
		handlers: DefaultHandlers,
		// The plan-cache key joins column names with a byte that cannot
		// occur inside an identifier.
		columnSeparator: "\x00",
	}
	for _, o := range opts {
		o(api)
	}
	if api.handlers == nil {
		return nil, fmt.Errorf("rowbind: handler registry must not be nil")
	}
	return api, nil
}

// WithHandlers gives the API its own handler registry instead of the
// process-wide DefaultHandlers.
func WithHandlers(handlers *HandlerRegistry) APIOption {
	return func(api *API) {
		api.handlers = handlers
	}
}

// WithColumnSeparator allows a custom separator for the plan-cache key.
func WithColumnSeparator(separator string) APIOption {
	return func(api *API) {
		api.columnSeparator = separator
	}
}

// WithStrictNulls makes a database NULL going into a non-pointer constructor
// parameter an error instead of silently supplying the zero value.
func WithStrictNulls(strict bool) APIOption {
	return func(api *API) {
		api.strictNulls = strict
	}
}

// Handlers returns the registry this API resolves handlers from.
func (api *API) Handlers() *HandlerRegistry {
	return api.handlers
}

func mustNewAPI(opts ...APIOption) *API {
	api, err := NewAPI(opts...)
	if err != nil {
		panic(err)
	}
	return api
}

// DefaultAPI is the default instance of API with all configuration settings
// set to default.
var DefaultAPI = mustNewAPI()

// ExecOption adjusts a single query operation.
type ExecOption func(*execSettings)

type execSettings struct {
	tx Tx
}

// WithTx enlists the operation in a caller-owned transaction. The facade
// forwards the token to the command and never commits or rolls back itself.
func WithTx(tx Tx) ExecOption {
	return func(s *execSettings) {
		s.tx = tx
	}
}

// Query is a package-level helper function that uses the DefaultAPI object.
// See API.Query for details.
func Query(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	return DefaultAPI.Query(ctx, conn, dst, sql, params, opts...)
}

// QuerySingle is a package-level helper function that uses the DefaultAPI
// object. See API.QuerySingle for details.
func QuerySingle(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	return DefaultAPI.QuerySingle(ctx, conn, dst, sql, params, opts...)
}

// QuerySingleOrDefault is a package-level helper function that uses the
// DefaultAPI object. See API.QuerySingleOrDefault for details.
func QuerySingleOrDefault(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	return DefaultAPI.QuerySingleOrDefault(ctx, conn, dst, sql, params, opts...)
}

// QueryFirstOrDefault is a package-level helper function that uses the
// DefaultAPI object. See API.QueryFirstOrDefault for details.
func QueryFirstOrDefault(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	return DefaultAPI.QueryFirstOrDefault(ctx, conn, dst, sql, params, opts...)
}

// Execute is a package-level helper function that uses the DefaultAPI
// object. See API.Execute for details.
func Execute(ctx context.Context, conn Connection, sql string, params interface{}, opts ...ExecOption) (int64, error) {
	return DefaultAPI.Execute(ctx, conn, sql, params, opts...)
}

// ExecuteScalar is a package-level helper function that uses the DefaultAPI
// object. See API.ExecuteScalar for details.
func ExecuteScalar(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	return DefaultAPI.ExecuteScalar(ctx, conn, dst, sql, params, opts...)
}

// QueryMultiple is a package-level helper function that uses the DefaultAPI
// object. See API.QueryMultiple for details.
func QueryMultiple(ctx context.Context, conn Connection, sql string, params interface{}, opts ...ExecOption) (*GridReader, error) {
	return DefaultAPI.QueryMultiple(ctx, conn, sql, params, opts...)
}

// Query executes sql with the given parameter carrier and decodes all
// result rows into dst, which must be a pointer to a slice of entities
// (by value or by pointer) or of simple types. The slice is reset first, so
// existing elements are overwritten.
func (api *API) Query(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	cmd, reader, names, err := api.executeReader(ctx, conn, sql, params, opts)
	if err != nil {
		return err
	}
	defer releaseReader(reader, cmd) //nolint: errcheck
	if err := api.decodeRows(ctx, reader, dst, readAll); err != nil {
		return fmt.Errorf("rowbind: query %q: %w", sql, err)
	}
	if err := releaseReader(reader, cmd); err != nil {
		return wrapDriverErr(err, sql, names)
	}
	return nil
}

// QuerySingle decodes exactly one row into dst (a pointer to the entity or
// simple value). Zero rows yield ErrNoRows, more than one ErrMultipleRows.
func (api *API) QuerySingle(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	return api.querySingleRow(ctx, conn, dst, sql, params, opts, readSingle)
}

// QuerySingleOrDefault decodes at most one row into dst. Zero rows leave dst
// at its type's default; more than one row yields ErrMultipleRows.
func (api *API) QuerySingleOrDefault(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	return api.querySingleRow(ctx, conn, dst, sql, params, opts, readSingleOrDefault)
}

// QueryFirstOrDefault decodes the first row into dst, or leaves dst at its
// type's default when there are no rows. Additional rows are not an error.
func (api *API) QueryFirstOrDefault(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	return api.querySingleRow(ctx, conn, dst, sql, params, opts, readFirstOrDefault)
}

func (api *API) querySingleRow(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts []ExecOption, mode readMode) error {
	cmd, reader, names, err := api.executeReader(ctx, conn, sql, params, opts)
	if err != nil {
		return err
	}
	defer releaseReader(reader, cmd) //nolint: errcheck
	if err := api.decodeRows(ctx, reader, dst, mode); err != nil {
		return fmt.Errorf("rowbind: query %q: %w", sql, err)
	}
	if err := releaseReader(reader, cmd); err != nil {
		return wrapDriverErr(err, sql, names)
	}
	return nil
}

// Execute runs a non-query statement and returns the driver-reported
// affected-row count.
func (api *API) Execute(ctx context.Context, conn Connection, sql string, params interface{}, opts ...ExecOption) (int64, error) {
	cmd, names, err := api.buildCommand(ctx, conn, sql, params, opts)
	if err != nil {
		return 0, err
	}
	defer cmd.Close() //nolint: errcheck
	affected, err := cmd.ExecuteNonQuery(ctx)
	if err != nil {
		return 0, wrapDriverErr(err, sql, names)
	}
	return affected, nil
}

// ExecuteScalar reads the first column of the first row into dst (a pointer
// to a simple type). A NULL or an empty result leaves dst at its type's
// default. Conversion consults the handler registry first.
func (api *API) ExecuteScalar(ctx context.Context, conn Connection, dst interface{}, sql string, params interface{}, opts ...ExecOption) error {
	dstVal, err := parseDestination(dst)
	if err != nil {
		return err
	}
	cmd, names, err := api.buildCommand(ctx, conn, sql, params, opts)
	if err != nil {
		return err
	}
	defer cmd.Close() //nolint: errcheck
	raw, err := cmd.ExecuteScalar(ctx)
	if err != nil {
		return wrapDriverErr(err, sql, names)
	}
	v, err := api.convertScalar(raw, dstVal.Type())
	if err != nil {
		return fmt.Errorf("rowbind: query %q: %w", sql, err)
	}
	dstVal.Set(v)
	return nil
}

// QueryMultiple executes a batch of statements and returns a GridReader
// over its sequential result sets. Ownership of the grid transfers to the
// caller, who must Close it.
func (api *API) QueryMultiple(ctx context.Context, conn Connection, sql string, params interface{}, opts ...ExecOption) (*GridReader, error) {
	cmd, reader, _, err := api.executeReader(ctx, conn, sql, params, opts)
	if err != nil {
		return nil, err
	}
	return &GridReader{api: api, cmd: cmd, reader: reader}, nil
}

// buildCommand opens the connection if needed, creates the command and binds
// the parameter carrier. On failure the command is already closed.
func (api *API) buildCommand(ctx context.Context, conn Connection, sql string, params interface{}, opts []ExecOption) (Command, []string, error) {
	var settings execSettings
	for _, o := range opts {
		o(&settings)
	}
	if !conn.IsOpen() {
		if err := conn.Open(ctx); err != nil {
			return nil, nil, fmt.Errorf("rowbind: open connection: %w", err)
		}
	}
	cmd := conn.CreateCommand()
	cmd.SetSQL(sql)
	if settings.tx != nil {
		cmd.SetTx(settings.tx)
	}
	names, err := api.bindParameters(cmd, params)
	if err != nil {
		cmd.Close() //nolint: errcheck
		return nil, nil, err
	}
	// Cancellation during binding aborts the command before execute.
	if err := ctx.Err(); err != nil {
		cmd.Close() //nolint: errcheck
		return nil, nil, err
	}
	return cmd, names, nil
}

func (api *API) executeReader(ctx context.Context, conn Connection, sql string, params interface{}, opts []ExecOption) (Command, Reader, []string, error) {
	cmd, names, err := api.buildCommand(ctx, conn, sql, params, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	reader, err := cmd.ExecuteReader(ctx)
	if err != nil {
		cmd.Close() //nolint: errcheck
		return nil, nil, nil, wrapDriverErr(err, sql, names)
	}
	return cmd, reader, names, nil
}

// releaseReader closes the reader and then the command. It is safe to call
// twice; the adapters make Close idempotent.
func releaseReader(reader Reader, cmd Command) error {
	readerErr := reader.Close()
	cmdErr := cmd.Close()
	if readerErr != nil {
		return readerErr
	}
	return cmdErr
}

type readMode int

const (
	readAll readMode = iota
	readSingle
	readSingleOrDefault
	readFirstOrDefault
)

// decodeRows drains the current result set into dst according to mode:
// every row into a slice, or a single row under one of the cardinality
// contracts.
func (api *API) decodeRows(ctx context.Context, reader Reader, dst interface{}, mode readMode) error {
	if mode == readAll {
		return api.decodeAll(ctx, reader, dst)
	}
	decoder := api.NewRowDecoder(reader)
	found, err := reader.Read(ctx)
	if err != nil {
		return err
	}
	if !found {
		if mode == readSingle {
			return ErrNoRows
		}
		return setDefault(dst)
	}
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if mode == readFirstOrDefault {
		return nil
	}
	// A single-row contract must verify the absence of a second row by
	// attempting to advance.
	more, err := reader.Read(ctx)
	if err != nil {
		return err
	}
	if more {
		return ErrMultipleRows
	}
	return nil
}

func (api *API) decodeAll(ctx context.Context, reader Reader, dst interface{}) error {
	dstVal, err := parseDestination(dst)
	if err != nil {
		return err
	}
	if dstVal.Kind() != reflect.Slice {
		return fmt.Errorf("rowbind: destination must be a pointer to a slice, got: %v", dstVal.Type())
	}
	elementBaseType := dstVal.Type().Elem()
	var elementByPtr bool
	// If it's a slice of pointers to structs, handle it as a slice of
	// structs by value and take the address of every decoded element.
	// A slice of primitive pointers e.g. []*string stays as is.
	if elementBaseType.Kind() == reflect.Ptr {
		if elementBaseType.Elem().Kind() == reflect.Struct && !isSimpleType(elementBaseType.Elem()) {
			elementBaseType = elementBaseType.Elem()
			elementByPtr = true
		}
	}
	// Make sure the slice is empty.
	dstVal.Set(dstVal.Slice(0, 0))

	decoder := api.NewRowDecoder(reader)
	for {
		found, err := reader.Read(ctx)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		elemPtr := reflect.New(elementBaseType)
		if err := decoder.decodeValue(elemPtr.Elem()); err != nil {
			return err
		}
		elemVal := elemPtr.Elem()
		if elementByPtr {
			elemVal = elemPtr
		}
		dstVal.Set(reflect.Append(dstVal, elemVal))
	}
}

// setDefault resets dst (a non-nil pointer) to its type's zero value.
func setDefault(dst interface{}) error {
	dstVal, err := parseDestination(dst)
	if err != nil {
		return err
	}
	dstVal.Set(reflect.Zero(dstVal.Type()))
	return nil
}
