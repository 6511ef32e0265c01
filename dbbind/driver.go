package dbbind

import "context"

// Connection is an abstract database connection that the query API executes
// commands on. This interface is used to decouple from any particular
// database library; the sqlbind and pgxbind packages provide implementations
// for database/sql and pgx.
//
// The query API opens the connection if it is not already open, but never
// closes it. Connection lifecycle belongs to the caller.
type Connection interface {
	IsOpen() bool
	Open(ctx context.Context) error
	CreateCommand() Command
}

// Command is a single executable statement bound to a connection.
// Parameters are appended in the order they were bound and referenced from
// the SQL text by name.
type Command interface {
	SetSQL(sql string)
	// SetTx enlists the command in a caller-owned transaction.
	// The command never begins, commits or rolls back the transaction itself.
	SetTx(tx Tx)
	CreateParameter() Parameter
	AddParameter(p Parameter)
	ExecuteNonQuery(ctx context.Context) (int64, error)
	ExecuteScalar(ctx context.Context) (interface{}, error)
	ExecuteReader(ctx context.Context) (Reader, error)
	Close() error
}

// Parameter is a named value attached to a command.
// A nil value stands for the database NULL.
type Parameter interface {
	Name() string
	SetName(name string)
	Value() interface{}
	SetValue(v interface{})
	// SetTypeHint gives the driver a database type name for drivers that
	// cannot infer it from the Go value, e.g. user-defined enum types.
	// Drivers that don't need hints ignore it.
	SetTypeHint(hint string)
}

// Reader is an abstract forward-only row reader produced by
// Command.ExecuteReader. Rows are delivered in driver order; result sets in
// the order they appear in the SQL.
//
// IsNull and Value address columns of the current row and must only be
// called after a successful Read. Value returns the raw driver value;
// converting it into the destination type is the decoder's job.
type Reader interface {
	HasRows() bool
	Read(ctx context.Context) (bool, error)
	NextResult(ctx context.Context) (bool, error)
	FieldCount() int
	Name(i int) string
	IsNull(i int) bool
	Value(i int) interface{}
	Close() error
}

// Tx is an opaque transaction token. It is created and finished by the
// caller's session and merely forwarded to commands via SetTx; the concrete
// type is whatever the driver adapter expects (e.g. *sql.Tx for sqlbind).
type Tx interface{}
