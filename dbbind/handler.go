package dbbind

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// TypeHandler converts between a driver value and some target type.
// SetValue writes a value into a driver parameter (choosing a type hint if
// the driver needs one); Parse turns a raw driver value into an instance of
// the target type.
//
// Registered handlers take precedence over every built-in conversion, both
// when binding parameters and when decoding rows, so a handler for an enum
// type is never silently bypassed.
type TypeHandler interface {
	SetValue(p Parameter, v interface{}) error
	Parse(target reflect.Type, raw interface{}) (interface{}, error)
}

// HandlerRegistry is a concurrent mapping from target type to TypeHandler
// with a monotonically increasing version counter. The version is the
// staleness token for decode plans: a plan built at version N is discarded
// as soon as the registry moves past N.
//
// The zero HandlerRegistry is an empty registry ready for use;
// NewHandlerRegistry returns a pointer to one.
type HandlerRegistry struct {
	handlers sync.Map // reflect.Type -> TypeHandler
	version  atomic.Int64
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{}
}

// Register inserts or replaces the handler for the type of sample.
// Pass a zero value of the target type, e.g. Register(Status(""), h).
func (r *HandlerRegistry) Register(sample interface{}, h TypeHandler) {
	r.RegisterType(reflect.TypeOf(sample), h)
}

// RegisterType is Register for code paths that hold a reflect.Type.
func (r *HandlerRegistry) RegisterType(target reflect.Type, h TypeHandler) {
	// Bump the version before publishing the entry so that any reader that
	// observes the entry also observes a version at least as new.
	r.version.Add(1)
	r.handlers.Store(target, h)
}

// Lookup returns the handler registered for target, if any.
func (r *HandlerRegistry) Lookup(target reflect.Type) (TypeHandler, bool) {
	h, ok := r.handlers.Load(target)
	if !ok {
		return nil, false
	}
	return h.(TypeHandler), true
}

// Clear removes all handlers and invalidates every dependent decode plan.
func (r *HandlerRegistry) Clear() {
	r.version.Add(1)
	r.handlers.Range(func(key, _ interface{}) bool {
		r.handlers.Delete(key)
		return true
	})
}

// Version returns the current registry version.
func (r *HandlerRegistry) Version() int64 {
	return r.version.Load()
}

// DefaultHandlers is the process-wide registry used by DefaultAPI and by any
// API that was not given its own registry via WithHandlers.
var DefaultHandlers = NewHandlerRegistry()

// RegisterHandler is a package-level helper that uses DefaultHandlers.
// See HandlerRegistry.Register for details.
func RegisterHandler(sample interface{}, h TypeHandler) {
	DefaultHandlers.Register(sample, h)
}

// ClearHandlers is a package-level helper that uses DefaultHandlers.
// See HandlerRegistry.Clear for details.
func ClearHandlers() {
	DefaultHandlers.Clear()
}
