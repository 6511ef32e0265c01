// Package dbbind maps SQL query results to Go structs and binds parameter
// records to driver parameters, with user-registered type handlers running
// before every built-in conversion.
/*
dbbind works with an abstract ADO-style driver surface (Connection, Command,
Parameter, Reader) and doesn't depend on any specific database library. The
sqlbind package adapts database/sql and the pgxbind package adapts pgx; any
driver that can implement the four interfaces works.

Querying

The query operations take a SQL string with @named placeholders and a
parameter carrier, execute the command and decode the result rows:

	type User struct {
		Name      string
		IsActive  bool
		CreatedAt time.Time
	}

	var users []*User
	err := dbbind.Query(ctx, conn, &users,
		`SELECT name, is_active, created_at FROM users WHERE is_active = @Active`,
		struct{ Active bool }{Active: true},
	)

A result column matches a struct field either directly (case-insensitively)
or after snake_case-to-PascalCase conversion, so "created_at" finds
CreatedAt without tags. Columns without a matching field are skipped; fields
without a matching column keep their zero values. NULL columns leave the
field at its default, which makes pointer fields the natural optional
representation.

Cardinality contracts

QuerySingle requires exactly one row (ErrNoRows / ErrMultipleRows
otherwise), QuerySingleOrDefault allows zero, QueryFirstOrDefault takes the
first row of many. Execute returns the affected-row count and ExecuteScalar
reads the first column of the first row. QueryMultiple returns a GridReader
over sequential result sets; the caller owns and must Close it.

Type handlers

A TypeHandler registered for a type intercepts both directions: writing a
parameter value of that type and parsing a column into it. Handlers always
win over built-in conversions, so enum types with a custom database
representation are never silently coerced. Decode plans are cached per
result-column layout and entity type, stamped with the registry version;
registering or clearing handlers invalidates dependent plans on their next
use.

Constructors

Types that should not be built from the zero value can register a
constructor; columns are matched to the constructor's declared parameter
names and the remaining fields are set afterwards:

	func NewAccount(id uuid.UUID, name string) Account { ... }

	dbbind.RegisterConstructor(NewAccount, "id", "name")

A constructor parameter whose column is missing receives its type's zero
value. One whose column is NULL receives it too, unless the API was built
WithStrictNulls and the parameter is not a pointer, which is an error.

Parameters

The carrier is nil, a struct whose exported fields bind under their verbatim
names in declaration order, or the ordered Args bag:

	dbbind.NewArgs().Add("Name", "ok").Add("Names", []string{"a", "c"})

A nil value binds NULL. Slice values (except []byte) pass through unchanged
for set-membership predicates on drivers with array support.
*/
package dbbind
