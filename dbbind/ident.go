package dbbind

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SnakeToPascal converts a snake_case column identifier to the PascalCase
// form used for Go struct fields: "is_active" becomes "IsActive",
// "id" becomes "Id". Input that is already PascalCase is returned unchanged,
// which makes the conversion idempotent.
func SnakeToPascal(name string) string {
	if name == "" {
		return ""
	}
	if !strings.ContainsRune(name, '_') {
		r, size := utf8.DecodeRuneInString(name)
		if unicode.IsUpper(r) {
			return name
		}
		return string(unicode.ToUpper(r)) + name[size:]
	}
	var b strings.Builder
	b.Grow(len(name))
	upperNext := true
	for _, r := range name {
		if r == '_' {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
