package dbbind

import (
	"reflect"
	"strings"
)

type bindKind int

const (
	kindDefault bindKind = iota
	kindHandler
	kindEnum
	kindDateOnly
	kindTimeOnly
)

// columnMeta describes one bound column of a decode plan.
// ordinal is -1 when no column matched; that is only legal for constructor
// arguments, never for setter bindings.
type columnMeta struct {
	ordinal        int
	column         string
	declaredType   reflect.Type
	underlyingType reflect.Type
	byPointer      bool
	kind           bindKind
	handler        TypeHandler
}

type setterBinding struct {
	field *fieldInfo
	meta  columnMeta
}

// decodePlan is the cached description of how to turn one result-column
// layout into instances of one entity type. Plans are read-only once built;
// a registry version bump triggers replacement, not mutation.
type decodePlan struct {
	strategy *constructionStrategy
	setters  []setterBinding
	ctorArgs []columnMeta
	// handlerVersion is the registry version the plan was built at.
	handlerVersion int64
}

type planKey struct {
	columns    string
	entityType reflect.Type
}

func (api *API) planFor(reader Reader, entityType reflect.Type) (*decodePlan, error) {
	columns := make([]string, reader.FieldCount())
	for i := range columns {
		columns[i] = reader.Name(i)
	}
	key := planKey{columns: strings.Join(columns, api.columnSeparator), entityType: entityType}
	version := api.handlers.Version()
	if cached, ok := api.planCache.Load(key); ok {
		plan := cached.(*decodePlan)
		if plan.handlerVersion == version {
			return plan, nil
		}
	}
	plan, err := api.buildPlan(columns, entityType, version)
	if err != nil {
		return nil, err
	}
	// Overwrite any stale entry. Losing a race against a concurrent builder
	// just replaces one equivalent plan with another.
	api.planCache.Store(key, plan)
	return plan, nil
}

func (api *API) buildPlan(columns []string, entityType reflect.Type, version int64) (*decodePlan, error) {
	strategy, err := strategyFor(entityType)
	if err != nil {
		return nil, err
	}
	plan := &decodePlan{strategy: strategy, handlerVersion: version}

	// Map entity field names (lower-cased) to claimed column ordinals.
	// Each ordinal is claimed by at most one field and each field by at most
	// one ordinal; the first match wins on both sides. Fields are tried in
	// declaration order, so collisions resolve deterministically.
	propertyOrdinals := make(map[string]propertyMatch, len(columns))
	claimed := make(map[string]struct{}, len(columns))
	for i, column := range columns {
		field := matchColumn(strategy.fields, column, claimed)
		if field == nil {
			continue
		}
		fieldKey := strings.ToLower(field.name)
		propertyOrdinals[fieldKey] = propertyMatch{ordinal: i, column: column}
		claimed[fieldKey] = struct{}{}
	}

	for _, field := range strategy.settable {
		match, ok := propertyOrdinals[strings.ToLower(field.name)]
		if !ok {
			continue
		}
		meta := api.resolveColumnMeta(match.ordinal, match.column, field.typ)
		plan.setters = append(plan.setters, setterBinding{field: field, meta: meta})
	}

	for _, param := range strategy.ctorParams {
		ordinal, column := -1, ""
		if match, ok := propertyOrdinals[strings.ToLower(param.name)]; ok {
			ordinal, column = match.ordinal, match.column
		}
		plan.ctorArgs = append(plan.ctorArgs, api.resolveColumnMeta(ordinal, column, param.typ))
	}
	return plan, nil
}

type propertyMatch struct {
	ordinal int
	column  string
}

// matchColumn finds the first unclaimed field for a column: a direct
// case-insensitive match, then a snake_case-to-PascalCase retry.
func matchColumn(fields []*fieldInfo, column string, claimed map[string]struct{}) *fieldInfo {
	if f := matchName(fields, column, claimed); f != nil {
		return f
	}
	return matchName(fields, SnakeToPascal(column), claimed)
}

func matchName(fields []*fieldInfo, name string, claimed map[string]struct{}) *fieldInfo {
	for _, f := range fields {
		if !strings.EqualFold(f.name, name) {
			continue
		}
		if _, taken := claimed[strings.ToLower(f.name)]; taken {
			continue
		}
		return f
	}
	return nil
}

func (api *API) resolveColumnMeta(ordinal int, column string, declaredType reflect.Type) columnMeta {
	meta := columnMeta{
		ordinal:        ordinal,
		column:         column,
		declaredType:   declaredType,
		underlyingType: declaredType,
	}
	if declaredType.Kind() == reflect.Ptr {
		meta.underlyingType = declaredType.Elem()
		meta.byPointer = true
	}
	if h, ok := api.handlers.Lookup(meta.underlyingType); ok {
		meta.kind = kindHandler
		meta.handler = h
		return meta
	}
	switch {
	case isEnumType(meta.underlyingType):
		meta.kind = kindEnum
	case meta.underlyingType == dateType:
		meta.kind = kindDateOnly
	case meta.underlyingType == timeOfDayType:
		meta.kind = kindTimeOnly
	default:
		meta.kind = kindDefault
	}
	return meta
}

var (
	dateType      = reflect.TypeOf(Date{})
	timeOfDayType = reflect.TypeOf(TimeOfDay{})
)

// isEnumType reports whether t is a user-defined enumerated type: a named
// type whose underlying kind is a string or an integer, declared outside the
// standard scalar set.
func isEnumType(t reflect.Type) bool {
	if t.PkgPath() == "" {
		return false
	}
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}
