package dbbind

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unsafe"
)

// fieldSetter assigns v (already converted to the field's type) to the field
// it was compiled for. Compiled once per field and cached for the process, so
// per-row decoding never repeats the field lookup work.
type fieldSetter func(structVal reflect.Value, v reflect.Value)

type fieldInfo struct {
	name   string
	typ    reflect.Type
	index  []int
	setter fieldSetter
}

type ctorParam struct {
	name string
	typ  reflect.Type
}

// constructionStrategy describes how to instantiate one entity type and
// which fields to set afterwards. Computed once per type.
type constructionStrategy struct {
	entityType reflect.Type
	// hasNullaryCtor is true unless a constructor was registered for the
	// type: Go structs are always default-constructible.
	hasNullaryCtor bool
	ctorParams     []ctorParam
	// factory invokes the registered constructor from an argument vector and
	// returns an addressable entity value.
	factory func(args []reflect.Value) (reflect.Value, error)
	// fields lists every exported field in declaration order, embedded
	// structs flattened. Column matching runs against this list.
	fields []*fieldInfo
	// settable is the subset of fields assigned after construction: all of
	// them on the default path, or those not covered by a constructor
	// parameter name on the constructor path.
	settable []*fieldInfo
}

type ctorSpec struct {
	fn     reflect.Value
	params []ctorParam
	// retErr is true when the constructor's second return value is an error.
	retErr bool
	ptrOut bool
}

var (
	ctorRegistry  sync.Map // reflect.Type -> *ctorSpec
	strategyCache sync.Map // reflect.Type -> *constructionStrategy
)

// RegisterConstructor registers fn as the constructor for the entity type it
// returns. Go reflection cannot discover parameter names, so they are
// supplied explicitly, one per constructor parameter, in order:
//
//	dbbind.RegisterConstructor(NewAccount, "id", "name", "value")
//
// fn must be a non-variadic function returning the entity (by value or
// pointer), optionally with a trailing error. Columns are matched to
// parameter names the same way they are matched to field names; a parameter
// whose column is missing or null receives its type's zero value.
//
// Constructors should be registered during program initialization, before
// the first query that decodes the type; registration drops the cached
// construction strategy for the type but does not invalidate decode plans
// that were already built from it.
func RegisterConstructor(fn interface{}, paramNames ...string) error {
	fnVal := reflect.ValueOf(fn)
	if !fnVal.IsValid() || fnVal.Kind() != reflect.Func {
		return fmt.Errorf("%w: constructor must be a function, got %T", ErrInvalidEntity, fn)
	}
	fnType := fnVal.Type()
	if fnType.IsVariadic() {
		return fmt.Errorf("%w: variadic constructor %s is not supported", ErrInvalidEntity, fnType)
	}
	retErr := false
	switch fnType.NumOut() {
	case 1:
	case 2:
		if fnType.Out(1) != errorType {
			return fmt.Errorf("%w: second return value of %s must be error", ErrInvalidEntity, fnType)
		}
		retErr = true
	default:
		return fmt.Errorf("%w: constructor %s must return the entity and an optional error", ErrInvalidEntity, fnType)
	}
	entityType := fnType.Out(0)
	ptrOut := false
	if entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
		ptrOut = true
	}
	if entityType.Kind() != reflect.Struct {
		return fmt.Errorf("%w: constructor %s must return a struct, got %s", ErrInvalidEntity, fnType, entityType)
	}
	if fnType.NumIn() != len(paramNames) {
		return fmt.Errorf("%w: constructor %s takes %d parameters, %d names given",
			ErrInvalidEntity, fnType, fnType.NumIn(), len(paramNames))
	}
	params := make([]ctorParam, len(paramNames))
	for i, name := range paramNames {
		if name == "" {
			return fmt.Errorf("%w: constructor parameter %d of %s has an empty name", ErrInvalidEntity, i, fnType)
		}
		params[i] = ctorParam{name: name, typ: fnType.In(i)}
	}
	ctorRegistry.Store(entityType, &ctorSpec{fn: fnVal, params: params, retErr: retErr, ptrOut: ptrOut})
	strategyCache.Delete(entityType)
	return nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func strategyFor(entityType reflect.Type) (*constructionStrategy, error) {
	if cached, ok := strategyCache.Load(entityType); ok {
		return cached.(*constructionStrategy), nil
	}
	if entityType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidEntity, entityType)
	}
	strategy := buildStrategy(entityType)
	// Losing a race simply discards one of two equivalent strategies.
	cached, _ := strategyCache.LoadOrStore(entityType, strategy)
	return cached.(*constructionStrategy), nil
}

func buildStrategy(entityType reflect.Type) *constructionStrategy {
	strategy := &constructionStrategy{
		entityType:     entityType,
		hasNullaryCtor: true,
		fields:         enumerateFields(entityType),
	}
	if specIface, ok := ctorRegistry.Load(entityType); ok {
		spec := specIface.(*ctorSpec)
		strategy.hasNullaryCtor = false
		strategy.ctorParams = spec.params
		strategy.factory = makeFactory(entityType, spec)
		covered := make(map[string]struct{}, len(spec.params))
		for _, p := range spec.params {
			covered[strings.ToLower(p.name)] = struct{}{}
		}
		for _, f := range strategy.fields {
			if _, ok := covered[strings.ToLower(f.name)]; !ok {
				strategy.settable = append(strategy.settable, f)
			}
		}
		return strategy
	}
	strategy.settable = strategy.fields
	return strategy
}

// enumerateFields lists exported fields in declaration order. Embedded
// anonymous structs are flattened the way Go promotes their fields; on a
// name collision the shallowest, earliest field wins.
func enumerateFields(structType reflect.Type) []*fieldInfo {
	var fields []*fieldInfo
	seen := make(map[string]struct{})
	type toTraverse struct {
		typ         reflect.Type
		indexPrefix []int
	}
	queue := []toTraverse{{typ: structType}}
	for len(queue) > 0 {
		traversal := queue[0]
		queue = queue[1:]
		for i := 0; i < traversal.typ.NumField(); i++ {
			field := traversal.typ.Field(i)
			if field.PkgPath != "" && !field.Anonymous {
				// Field is unexported, skip it.
				continue
			}
			index := make([]int, 0, len(traversal.indexPrefix)+len(field.Index))
			index = append(index, traversal.indexPrefix...)
			index = append(index, field.Index...)

			childType := field.Type
			if childType.Kind() == reflect.Ptr {
				childType = childType.Elem()
			}
			if field.Anonymous && childType.Kind() == reflect.Struct {
				queue = append(queue, toTraverse{typ: childType, indexPrefix: index})
				continue
			}
			if field.PkgPath != "" {
				continue
			}
			key := strings.ToLower(field.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			fields = append(fields, &fieldInfo{
				name:   field.Name,
				typ:    field.Type,
				index:  index,
				setter: makeSetter(index),
			})
		}
	}
	return fields
}

func makeSetter(index []int) fieldSetter {
	if len(index) == 1 {
		i := index[0]
		return func(structVal reflect.Value, v reflect.Value) {
			structVal.Field(i).Set(v)
		}
	}
	return func(structVal reflect.Value, v reflect.Value) {
		initializeNested(structVal, index)
		structVal.FieldByIndex(index).Set(v)
	}
}

// initializeNested allocates nil embedded struct pointers on the path to a
// promoted field so that FieldByIndex can descend into them.
func initializeNested(structValue reflect.Value, fieldIndex []int) {
	i := fieldIndex[0]
	field := structValue.Field(i)
	if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct && field.IsNil() {
		if !field.CanSet() {
			// An embedded pointer to an unexported struct type is read-only
			// through reflection; write it through its address instead.
			field = reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr())).Elem()
		}
		field.Set(reflect.New(field.Type().Elem()))
	}
	if len(fieldIndex) > 1 {
		initializeNested(reflect.Indirect(field), fieldIndex[1:])
	}
}

func makeFactory(entityType reflect.Type, spec *ctorSpec) func(args []reflect.Value) (reflect.Value, error) {
	return func(args []reflect.Value) (reflect.Value, error) {
		out := spec.fn.Call(args)
		if spec.retErr {
			if errIface := out[1].Interface(); errIface != nil {
				return reflect.Value{}, fmt.Errorf("rowbind: constructor for %s: %w", entityType, errIface.(error))
			}
		}
		result := out[0]
		if spec.ptrOut {
			if result.IsNil() {
				return reflect.Value{}, fmt.Errorf("%w: constructor for %s returned nil", ErrInvalidEntity, entityType)
			}
			result = result.Elem()
		}
		// Call results are not addressable; copy into a fresh value so that
		// setter bindings can assign the remaining fields.
		instance := reflect.New(entityType).Elem()
		instance.Set(result)
		return instance, nil
	}
}
