// Package typesys is an in-memory apis.TypeSystem. It describes modules,
// types, nested types, methods and capabilities without a runtime behind
// them, for tooling that plans patches offline and for tests.
package typesys

import (
	"slices"
	"strings"
	"sync"

	"github.com/pboyd/retext/apis"
)

// NestedSeparator joins a declaring type's qualified name and a nested
// type's name.
const NestedSeparator = "+"

// Method describes a method.
type Method struct {
	name  string
	shape apis.ReturnShape
}

func (m *Method) Name() string            { return m.name }
func (m *Method) Shape() apis.ReturnShape { return m.shape }

// Type describes a type.
type Type struct {
	model     *Model
	module    string
	name      string
	qualified string

	methods      map[string]*Method
	nested       []*Type
	capabilities map[apis.Capability]bool
}

func (t *Type) Name() string          { return t.name }
func (t *Type) QualifiedName() string { return t.qualified }

// Module returns the name of the module declaring t.
func (t *Type) Module() string { return t.module }

// Method declares a method on t and returns t.
func (t *Type) Method(name string, shape apis.ReturnShape) *Type {
	t.model.mu.Lock()
	defer t.model.mu.Unlock()
	t.methods[name] = &Method{name: name, shape: shape}
	return t
}

// Implements marks t as implementing capabilities and returns t.
func (t *Type) Implements(capabilities ...apis.Capability) *Type {
	t.model.mu.Lock()
	defer t.model.mu.Unlock()
	for _, c := range capabilities {
		t.capabilities[c] = true
	}
	return t
}

// Nested declares a type nested in t and returns it.
func (t *Type) Nested(name string) *Type {
	n := t.model.newType(t.module, name, t.qualified+NestedSeparator+name)

	t.model.mu.Lock()
	defer t.model.mu.Unlock()
	t.nested = append(t.nested, n)
	return n
}

// Model is a set of modules and their types. It is safe for concurrent use.
type Model struct {
	mu    sync.RWMutex
	types map[string]*Type
	order []*Type
}

// New creates an empty model.
func New() *Model {
	return &Model{types: map[string]*Type{}}
}

func (m *Model) newType(module, name, qualified string) *Type {
	t := &Type{
		model:        m,
		module:       module,
		name:         name,
		qualified:    qualified,
		methods:      map[string]*Method{},
		capabilities: map[apis.Capability]bool{},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[qualified] = t
	m.order = append(m.order, t)
	return t
}

// Type declares a top-level type in module. qualifiedName is the type's
// full dotted name.
func (m *Model) Type(module, qualifiedName string) *Type {
	return m.newType(module, qualifiedName, qualifiedName)
}

// Types returns every type in declaration order, nested types included.
func (m *Model) Types() []*Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// FindType looks up a type by qualified name. Nested types may be named
// with '/' or '+' as the separator. When moduleHint is not empty the type
// must belong to that module.
func (m *Model) FindType(name, moduleHint string) (apis.TypeDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.types[name]
	if !ok {
		t, ok = m.types[strings.ReplaceAll(name, "/", NestedSeparator)]
	}
	if !ok || (moduleHint != "" && t.module != moduleHint) {
		return nil, false
	}
	return t, true
}

func (m *Model) FindMethod(td apis.TypeDescriptor, name string) (apis.MethodDescriptor, bool) {
	t, ok := td.(*Type)
	if !ok {
		return nil, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	method, ok := t.methods[name]
	if !ok {
		return nil, false
	}
	return method, true
}

func (m *Model) NestedTypes(td apis.TypeDescriptor) []apis.TypeDescriptor {
	t, ok := td.(*Type)
	if !ok {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]apis.TypeDescriptor, len(t.nested))
	for i, n := range t.nested {
		out[i] = n
	}
	return out
}

func (m *Model) ImplementsCapability(td apis.TypeDescriptor, c apis.Capability) bool {
	t, ok := td.(*Type)
	if !ok {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return t.capabilities[c]
}

var _ apis.TypeSystem = (*Model)(nil)
