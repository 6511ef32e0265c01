package sqlbind

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Placeholder appends the dialect's positional placeholder for the index-th
// distinct parameter (1-based) to the builder.
type Placeholder func(b *strings.Builder, index int)

// DollarPlaceholder is the numbered $n form used natively by Postgres
// drivers. A parameter referenced twice compiles to the same number.
func DollarPlaceholder(b *strings.Builder, index int) {
	fmt.Fprintf(b, "$%d", index)
}

// QuestionPlaceholder is the anonymous ? form used by most MySQL and SQLite
// drivers. Every reference consumes its own argument slot, so a parameter
// referenced twice is bound twice.
func QuestionPlaceholder(b *strings.Builder, _ int) {
	b.WriteByte('?')
}

// Dialect describes how named parameters compile for a driver.
type Dialect struct {
	placeholder Placeholder
	// reuseIndexes is true when the placeholder form is numbered and a
	// repeated name maps back to its first argument slot.
	reuseIndexes bool
}

// Question is the Dialect for ? placeholders (MySQL, SQLite).
var Question = Dialect{placeholder: QuestionPlaceholder}

// Dollar is the Dialect for $n placeholders (Postgres).
var Dollar = Dialect{placeholder: DollarPlaceholder, reuseIndexes: true}

// paramDelim starts a named parameter in the SQL text.
const paramDelim = '@'

type compileBuilder struct {
	byteBuf     *strings.Builder
	onParameter bool
	dialect     Dialect
	indices     map[string]int
	argNames    []string
}

func newCompileBuilder(dialect Dialect) compileBuilder {
	return compileBuilder{
		byteBuf:  &strings.Builder{},
		dialect:  dialect,
		indices:  map[string]int{},
		argNames: []string{},
	}
}

// appendPart writes either a literal SQL fragment or, when the builder is on
// a parameter, the compiled placeholder for the captured name.
func (b *compileBuilder) appendPart(str string) error {
	if !b.onParameter {
		b.byteBuf.WriteString(str)
		return nil
	}
	if str == "" {
		return fmt.Errorf("sqlbind: dangling %q without a parameter name", string(paramDelim))
	}
	if b.dialect.reuseIndexes {
		index, found := b.indices[str]
		if !found {
			b.argNames = append(b.argNames, str)
			index = len(b.argNames)
			b.indices[str] = index
		}
		b.dialect.placeholder(b.byteBuf, index)
		return nil
	}
	b.argNames = append(b.argNames, str)
	b.dialect.placeholder(b.byteBuf, len(b.argNames))
	return nil
}

func isNameRune(r rune) bool {
	return r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z')
}

// compileNamed parses the SQL text, replaces every @name reference with the
// dialect's positional placeholder and returns the compiled text plus the
// parameter names in argument-slot order. Text inside single-quoted strings
// is left untouched.
func compileNamed(sql string, dialect Dialect) (string, []string, error) {
	builder := newCompileBuilder(dialect)
	start := 0
	pos := 0
	inString := false

	for pos < len(sql) {
		r, width := utf8.DecodeRuneInString(sql[pos:])
		switch {
		case r == utf8.RuneError && width <= 1:
			return "", nil, fmt.Errorf("sqlbind: invalid UTF-8 at byte %d of %q", pos, sql)
		case inString:
			if r == '\'' {
				inString = false
			}
		case r == '\'':
			inString = true
		case r == paramDelim && !builder.onParameter:
			if err := builder.appendPart(sql[start:pos]); err != nil {
				return "", nil, err
			}
			builder.onParameter = true
			start = pos + width
		case builder.onParameter && !isNameRune(r):
			if err := builder.appendPart(sql[start:pos]); err != nil {
				return "", nil, err
			}
			builder.onParameter = false
			start = pos
			continue
		}
		pos += width
	}
	if err := builder.appendPart(sql[start:]); err != nil {
		return "", nil, err
	}
	return builder.byteBuf.String(), builder.argNames, nil
}
