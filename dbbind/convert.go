package dbbind

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	bytesType   = reflect.TypeOf([]byte(nil))
)

// isSimpleType reports whether t (optional pointer wrapper allowed) is
// decoded through the scalar short-circuit instead of a decode plan:
// primitives, string, decimal, timestamp, date-only, time-of-day, UUID,
// byte slices and enumerated types.
func isSimpleType(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case timeType, dateType, timeOfDayType, uuidType, decimalType, bytesType:
		return true
	}
	if isEnumType(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertScalar turns a raw driver value into target, consulting the
// handler registry before any built-in conversion. It mirrors the decode
// plan's readValue path so that scalar queries and plan-driven queries of
// the same type cannot disagree.
func (api *API) convertScalar(raw interface{}, target reflect.Type) (reflect.Value, error) {
	underlying := target
	byPointer := false
	if target.Kind() == reflect.Ptr {
		underlying = target.Elem()
		byPointer = true
	}
	if raw == nil {
		return reflect.Zero(target), nil
	}
	var (
		v   reflect.Value
		err error
	)
	if h, ok := api.handlers.Lookup(underlying); ok {
		v, err = parseWithHandler(h, underlying, raw)
	} else {
		v, err = convertValue(raw, underlying)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	if byPointer {
		p := reflect.New(underlying)
		p.Elem().Set(v)
		return p, nil
	}
	return v, nil
}

// parseWithHandler runs a registered handler and checks its contract: the
// returned value must be assignable to the underlying target type.
func parseWithHandler(h TypeHandler, underlying reflect.Type, raw interface{}) (reflect.Value, error) {
	parsed, err := h.Parse(underlying, raw)
	if err != nil {
		return reflect.Value{}, err
	}
	if parsed == nil {
		return reflect.Value{}, fmt.Errorf("%w: handler for %s returned nil for a non-null value",
			ErrHandlerContract, underlying)
	}
	v := reflect.ValueOf(parsed)
	if !v.Type().AssignableTo(underlying) {
		return reflect.Value{}, fmt.Errorf("%w: handler for %s returned %s",
			ErrHandlerContract, underlying, v.Type())
	}
	return v, nil
}

// convertValue is the built-in conversion of a raw driver value into t.
// Identity first, then the well-known scalar targets, then a kind-directed
// coercion of the underlying representation.
func convertValue(raw interface{}, t reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(raw)
	if rv.Type() == t {
		return rv, nil
	}
	switch t {
	case timeType:
		out, err := cast.ToTimeE(raw)
		if err != nil {
			return reflect.Value{}, convertErr(raw, t, err)
		}
		return reflect.ValueOf(out), nil
	case dateType:
		return toDate(raw)
	case timeOfDayType:
		return toTimeOfDay(raw)
	case uuidType:
		return toUUID(raw)
	case decimalType:
		return toDecimal(raw)
	case bytesType:
		switch val := raw.(type) {
		case []byte:
			return reflect.ValueOf(val), nil
		case string:
			return reflect.ValueOf([]byte(val)), nil
		}
		return reflect.Value{}, convertErr(raw, t, nil)
	}

	switch t.Kind() {
	case reflect.String:
		out, err := cast.ToStringE(rawForCast(raw))
		if err != nil {
			return reflect.Value{}, convertErr(raw, t, err)
		}
		return reflect.ValueOf(out).Convert(t), nil
	case reflect.Bool:
		out, err := cast.ToBoolE(rawForCast(raw))
		if err != nil {
			return reflect.Value{}, convertErr(raw, t, err)
		}
		return reflect.ValueOf(out).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out, err := cast.ToInt64E(rawForCast(raw))
		if err != nil {
			return reflect.Value{}, convertErr(raw, t, err)
		}
		return reflect.ValueOf(out).Convert(t), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out, err := cast.ToUint64E(rawForCast(raw))
		if err != nil {
			return reflect.Value{}, convertErr(raw, t, err)
		}
		return reflect.ValueOf(out).Convert(t), nil
	case reflect.Float32, reflect.Float64:
		out, err := cast.ToFloat64E(rawForCast(raw))
		if err != nil {
			return reflect.Value{}, convertErr(raw, t, err)
		}
		return reflect.ValueOf(out).Convert(t), nil
	}

	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, convertErr(raw, t, nil)
}

// rawForCast widens driver byte slices to strings, which cast does not
// accept directly.
func rawForCast(raw interface{}) interface{} {
	if b, ok := raw.([]byte); ok {
		return string(b)
	}
	return raw
}

// convertEnum coerces a raw driver value into an enumerated type through its
// underlying representation. Values whose database representation differs
// from the Go representation by more than this must be covered by a
// registered handler.
func convertEnum(raw interface{}, t reflect.Type) (reflect.Value, error) {
	if t.Kind() == reflect.String {
		s, err := cast.ToStringE(rawForCast(raw))
		if err != nil {
			return reflect.Value{}, convertErr(raw, t, err)
		}
		return reflect.ValueOf(s).Convert(t), nil
	}
	n, err := cast.ToInt64E(rawForCast(raw))
	if err != nil {
		return reflect.Value{}, convertErr(raw, t, err)
	}
	return reflect.ValueOf(n).Convert(t), nil
}

func toDate(raw interface{}) (reflect.Value, error) {
	switch val := raw.(type) {
	case time.Time:
		return reflect.ValueOf(DateOf(val)), nil
	case string:
		d, err := ParseDate(val)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	case []byte:
		d, err := ParseDate(string(val))
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	}
	return reflect.Value{}, convertErr(raw, dateType, nil)
}

func toTimeOfDay(raw interface{}) (reflect.Value, error) {
	switch val := raw.(type) {
	case time.Time:
		return reflect.ValueOf(TimeOfDayOf(val)), nil
	case time.Duration:
		t, err := TimeOfDayFromDuration(val)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(t), nil
	case int64:
		// Microseconds since midnight, the common wire form for TIME.
		t, err := TimeOfDayFromDuration(time.Duration(val) * time.Microsecond)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(t), nil
	case string:
		t, err := ParseTimeOfDay(val)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(t), nil
	case []byte:
		t, err := ParseTimeOfDay(string(val))
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(t), nil
	}
	return reflect.Value{}, convertErr(raw, timeOfDayType, nil)
}

func toUUID(raw interface{}) (reflect.Value, error) {
	switch val := raw.(type) {
	case string:
		id, err := uuid.Parse(val)
		if err != nil {
			return reflect.Value{}, convertErr(raw, uuidType, err)
		}
		return reflect.ValueOf(id), nil
	case []byte:
		if len(val) == 16 {
			id, err := uuid.FromBytes(val)
			if err != nil {
				return reflect.Value{}, convertErr(raw, uuidType, err)
			}
			return reflect.ValueOf(id), nil
		}
		id, err := uuid.ParseBytes(val)
		if err != nil {
			return reflect.Value{}, convertErr(raw, uuidType, err)
		}
		return reflect.ValueOf(id), nil
	case [16]byte:
		return reflect.ValueOf(uuid.UUID(val)), nil
	}
	return reflect.Value{}, convertErr(raw, uuidType, nil)
}

func toDecimal(raw interface{}) (reflect.Value, error) {
	switch val := raw.(type) {
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return reflect.Value{}, convertErr(raw, decimalType, err)
		}
		return reflect.ValueOf(d), nil
	case []byte:
		d, err := decimal.NewFromString(string(val))
		if err != nil {
			return reflect.Value{}, convertErr(raw, decimalType, err)
		}
		return reflect.ValueOf(d), nil
	case int64:
		return reflect.ValueOf(decimal.NewFromInt(val)), nil
	case float64:
		return reflect.ValueOf(decimal.NewFromFloat(val)), nil
	}
	return reflect.Value{}, convertErr(raw, decimalType, nil)
}

func convertErr(raw interface{}, t reflect.Type, cause error) error {
	if cause != nil {
		return fmt.Errorf("rowbind: cannot convert %T into %s: %w", raw, t, cause)
	}
	return fmt.Errorf("rowbind: cannot convert %T into %s", raw, t)
}
