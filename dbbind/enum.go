package dbbind

import (
	"fmt"
	"reflect"
	"strings"
)

// EnumHandler is a TypeHandler for enumerated types whose database
// representation is a per-value name. The name table is declarative
// metadata supplied at construction; the handler builds the bidirectional
// lookup once and fails fast on inconsistent metadata, so a value without a
// name can never be written and a name without a value can never be read.
//
//	type Status string
//	const (
//	    StatusActive   Status = "Active"
//	    StatusInactive Status = "Inactive"
//	)
//
//	h, err := dbbind.NewEnumHandler(map[Status]string{
//	    StatusActive:   "active",
//	    StatusInactive: "inactive",
//	})
//	dbbind.RegisterHandler(Status(""), h)
//
// Reading matches names case-insensitively; writing uses the exact name
// from the table.
type EnumHandler struct {
	target   reflect.Type
	toName   map[interface{}]string
	fromName map[string]interface{}
	typeHint string
}

// EnumOption is a function type that changes EnumHandler configuration.
type EnumOption func(h *EnumHandler)

// WithEnumTypeHint names the database type of the enum for drivers that
// require a type hint on parameters.
func WithEnumTypeHint(hint string) EnumOption {
	return func(h *EnumHandler) {
		h.typeHint = hint
	}
}

// NewEnumHandler builds an EnumHandler from a map of enum values to their
// database names, e.g. map[Status]string. The map's key type is the handler
// target.
func NewEnumHandler(values interface{}, opts ...EnumOption) (*EnumHandler, error) {
	mapVal := reflect.ValueOf(values)
	if !mapVal.IsValid() || mapVal.Kind() != reflect.Map || mapVal.Type().Elem().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: enum metadata must be a map of enum values to string names, got %T",
			ErrInvalidEntity, values)
	}
	target := mapVal.Type().Key()
	if !isEnumType(target) {
		return nil, fmt.Errorf("%w: %s is not an enumerated type", ErrInvalidEntity, target)
	}
	if mapVal.Len() == 0 {
		return nil, fmt.Errorf("%w: enum metadata for %s is empty", ErrInvalidEntity, target)
	}
	h := &EnumHandler{
		target:   target,
		toName:   make(map[interface{}]string, mapVal.Len()),
		fromName: make(map[string]interface{}, mapVal.Len()),
	}
	iter := mapVal.MapRange()
	for iter.Next() {
		value := iter.Key().Interface()
		name := iter.Value().String()
		if name == "" {
			return nil, fmt.Errorf("%w: enum value %v of %s has an empty database name",
				ErrInvalidEntity, value, target)
		}
		key := strings.ToLower(name)
		if _, dup := h.fromName[key]; dup {
			return nil, fmt.Errorf("%w: duplicate database name %q for %s",
				ErrInvalidEntity, name, target)
		}
		h.toName[value] = name
		h.fromName[key] = value
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// MustNewEnumHandler is NewEnumHandler that panics on invalid metadata.
// Intended for package-level handler registration.
func MustNewEnumHandler(values interface{}, opts ...EnumOption) *EnumHandler {
	h, err := NewEnumHandler(values, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// SetValue writes the database name of v into the parameter.
func (h *EnumHandler) SetValue(p Parameter, v interface{}) error {
	name, ok := h.toName[v]
	if !ok {
		return fmt.Errorf("%w: value %v has no database name for %s", ErrHandlerContract, v, h.target)
	}
	p.SetValue(name)
	if h.typeHint != "" {
		p.SetTypeHint(h.typeHint)
	}
	return nil
}

// Parse turns a raw driver value back into the enum value registered for
// that database name.
func (h *EnumHandler) Parse(target reflect.Type, raw interface{}) (interface{}, error) {
	var name string
	switch val := raw.(type) {
	case string:
		name = val
	case []byte:
		name = string(val)
	default:
		return nil, fmt.Errorf("%w: %s expects a textual database value, got %T",
			ErrHandlerContract, h.target, raw)
	}
	value, ok := h.fromName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown database name %q for %s", ErrHandlerContract, name, h.target)
	}
	if target != h.target && h.target.ConvertibleTo(target) {
		return reflect.ValueOf(value).Convert(target).Interface(), nil
	}
	return value, nil
}
