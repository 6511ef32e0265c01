package dbbind

import (
	"fmt"
	"reflect"
)

// RowDecoder turns the reader's current row into a value of the destination
// type. The first Decode call builds (or reuses) the decode plan for the
// reader's column layout and the destination type; subsequent calls reuse
// it. A RowDecoder is bound to one reader and one destination type and is
// not safe for concurrent use.
type RowDecoder struct {
	api     *API
	reader  Reader
	started bool
	// scalar is true when the destination is a simple type and decoding
	// short-circuits the plan machinery.
	scalar     bool
	targetType reflect.Type
	plan       *decodePlan
}

// NewRowDecoder is a package-level helper that uses DefaultAPI.
// See API.NewRowDecoder for details.
func NewRowDecoder(reader Reader) *RowDecoder {
	return DefaultAPI.NewRowDecoder(reader)
}

// NewRowDecoder returns a decoder for the reader's rows.
func (api *API) NewRowDecoder(reader Reader) *RowDecoder {
	return &RowDecoder{api: api, reader: reader}
}

// Decode decodes the current row into dst, which must be a non-nil pointer.
func (d *RowDecoder) Decode(dst interface{}) error {
	dstVal, err := parseDestination(dst)
	if err != nil {
		return err
	}
	return d.decodeValue(dstVal)
}

func (d *RowDecoder) decodeValue(dstVal reflect.Value) error {
	if !d.started {
		if err := d.start(dstVal.Type()); err != nil {
			return err
		}
		d.started = true
	}
	if d.scalar {
		return d.decodeScalar(dstVal)
	}
	instance, err := d.materializeRow()
	if err != nil {
		return err
	}
	dstVal.Set(instance)
	return nil
}

func (d *RowDecoder) start(targetType reflect.Type) error {
	d.targetType = targetType
	if isSimpleType(targetType) {
		d.scalar = true
		if d.reader.FieldCount() != 1 {
			return fmt.Errorf(
				"rowbind: to decode into %s, the result must have exactly 1 column, got: %d",
				targetType, d.reader.FieldCount(),
			)
		}
		return nil
	}
	plan, err := d.api.planFor(d.reader, targetType)
	if err != nil {
		return err
	}
	d.plan = plan
	return nil
}

func (d *RowDecoder) decodeScalar(dstVal reflect.Value) error {
	if d.reader.IsNull(0) {
		dstVal.Set(reflect.Zero(d.targetType))
		return nil
	}
	v, err := d.api.convertScalar(d.reader.Value(0), d.targetType)
	if err != nil {
		return fmt.Errorf("rowbind: column %q: %w", d.reader.Name(0), err)
	}
	dstVal.Set(v)
	return nil
}

// materializeRow is the per-row decode: construct the instance (default
// construction or the registered constructor fed from the argument vector),
// then run the setter bindings. Null columns leave setter targets at their
// defaults and yield zero values for constructor arguments.
func (d *RowDecoder) materializeRow() (reflect.Value, error) {
	plan := d.plan
	var instance reflect.Value
	if plan.strategy.hasNullaryCtor {
		instance = reflect.New(plan.strategy.entityType).Elem()
	} else {
		args := make([]reflect.Value, len(plan.ctorArgs))
		for k, meta := range plan.ctorArgs {
			param := plan.strategy.ctorParams[k]
			if meta.ordinal < 0 {
				args[k] = reflect.Zero(param.typ)
				continue
			}
			if d.reader.IsNull(meta.ordinal) {
				if d.api.strictNulls && !meta.byPointer {
					return reflect.Value{}, fmt.Errorf(
						"rowbind: column %q is null but constructor parameter %q of %s is not optional",
						meta.column, param.name, plan.strategy.entityType,
					)
				}
				args[k] = reflect.Zero(param.typ)
				continue
			}
			v, err := d.readValue(meta)
			if err != nil {
				return reflect.Value{}, d.columnError(meta, err)
			}
			args[k] = v
		}
		var err error
		instance, err = plan.strategy.factory(args)
		if err != nil {
			return reflect.Value{}, err
		}
	}
	for _, binding := range plan.setters {
		if d.reader.IsNull(binding.meta.ordinal) {
			continue
		}
		v, err := d.readValue(binding.meta)
		if err != nil {
			return reflect.Value{}, d.columnError(binding.meta, err)
		}
		binding.field.setter(instance, v)
	}
	return instance, nil
}

// readValue reads the column behind meta and produces a value of the
// declared type. Handlers run first; enum, date-only and time-of-day kinds
// go through their dedicated conversions because the raw driver value for
// them routinely has the wrong runtime type.
func (d *RowDecoder) readValue(meta columnMeta) (reflect.Value, error) {
	raw := d.reader.Value(meta.ordinal)
	var (
		v   reflect.Value
		err error
	)
	switch meta.kind {
	case kindHandler:
		v, err = parseWithHandler(meta.handler, meta.underlyingType, raw)
	case kindEnum:
		v, err = convertEnum(raw, meta.underlyingType)
	case kindDateOnly:
		v, err = toDate(raw)
	case kindTimeOnly:
		v, err = toTimeOfDay(raw)
	default:
		v, err = convertValue(raw, meta.underlyingType)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	if meta.byPointer {
		p := reflect.New(meta.underlyingType)
		p.Elem().Set(v)
		return p, nil
	}
	return v, nil
}

func (d *RowDecoder) columnError(meta columnMeta, err error) error {
	return fmt.Errorf("rowbind: column %q of %s: %w", meta.column, d.targetType, err)
}

func parseDestination(dst interface{}) (reflect.Value, error) {
	dstVal := reflect.ValueOf(dst)

	if !dstVal.IsValid() || (dstVal.Kind() == reflect.Ptr && dstVal.IsNil()) {
		return reflect.Value{}, fmt.Errorf("rowbind: destination must be a non nil pointer")
	}
	if dstVal.Kind() != reflect.Ptr {
		return reflect.Value{}, fmt.Errorf("rowbind: destination must be a pointer, got: %v", dstVal.Type())
	}

	return dstVal.Elem(), nil
}
