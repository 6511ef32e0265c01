package dbbind

import (
	"fmt"
	"reflect"
)

// Args is the ordered dynamic parameter bag: an append-only list of
// (name, value) entries for late-bound parameter sets such as variable-size
// batch inserts. The binder treats it exactly like a struct carrier with
// that field schema. A nil value binds the database NULL.
type Args struct {
	entries []argEntry
}

type argEntry struct {
	name  string
	value interface{}
}

// NewArgs creates an empty bag.
func NewArgs() *Args {
	return &Args{}
}

// Add appends a named value and returns the bag for chaining.
func (a *Args) Add(name string, value interface{}) *Args {
	a.entries = append(a.entries, argEntry{name: name, value: value})
	return a
}

// Get returns the last value added under name.
func (a *Args) Get(name string) (interface{}, bool) {
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].name == name {
			return a.entries[i].value, true
		}
	}
	return nil, false
}

// Len returns the number of entries.
func (a *Args) Len() int {
	return len(a.entries)
}

// bindParameters translates the carrier into driver parameters on cmd:
// nil binds nothing, an *Args bag binds its entries in insertion order, and
// a struct (or pointer to struct) binds its exported fields in declaration
// order under their verbatim names. It returns the bound names for error
// context.
func (api *API) bindParameters(cmd Command, params interface{}) ([]string, error) {
	if params == nil {
		return nil, nil
	}
	if bag, ok := params.(*Args); ok {
		names := make([]string, 0, len(bag.entries))
		for _, entry := range bag.entries {
			if err := api.bindParameter(cmd, entry.name, entry.value); err != nil {
				return names, err
			}
			names = append(names, entry.name)
		}
		return names, nil
	}

	carrier := reflect.ValueOf(params)
	if carrier.Kind() == reflect.Ptr {
		if carrier.IsNil() {
			return nil, nil
		}
		carrier = carrier.Elem()
	}
	if carrier.Kind() != reflect.Struct {
		return nil, fmt.Errorf("rowbind: parameters must be nil, a struct or *Args, got: %T", params)
	}
	carrierType := carrier.Type()
	var names []string
	for i := 0; i < carrierType.NumField(); i++ {
		field := carrierType.Field(i)
		if field.PkgPath != "" {
			// Field is unexported, skip it.
			continue
		}
		value := carrier.Field(i).Interface()
		if err := api.bindParameter(cmd, field.Name, value); err != nil {
			return names, err
		}
		names = append(names, field.Name)
	}
	return names, nil
}

// bindParameter creates one driver parameter for (name, value). Handlers
// registered for the value's type run first; a slice that isn't []byte
// passes through as-is for set-membership predicates on drivers with array
// parameter support; everything else is assigned directly and converted by
// the driver.
func (api *API) bindParameter(cmd Command, name string, value interface{}) error {
	p := cmd.CreateParameter()
	p.SetName(name)

	value = derefValue(value)
	if value == nil {
		p.SetValue(nil)
		cmd.AddParameter(p)
		return nil
	}
	if h, ok := api.handlers.Lookup(reflect.TypeOf(value)); ok {
		if err := h.SetValue(p, value); err != nil {
			return fmt.Errorf("rowbind: parameter %q: %w", name, err)
		}
		cmd.AddParameter(p)
		return nil
	}
	p.SetValue(value)
	cmd.AddParameter(p)
	return nil
}

// derefValue unwraps non-nil pointers and nil-ish values so that handler
// lookup sees the underlying type and NULL detection sees plain nil.
func derefValue(value interface{}) interface{} {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}
