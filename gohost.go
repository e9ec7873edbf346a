package retext

import (
	"errors"
	"fmt"
	"path"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/resolver"
)

// ErrUnsupported is returned by the code patching methods of GoHost on
// platforms other than linux/amd64.
var ErrUnsupported = errors.New("code patching is only supported on linux/amd64")

// GoStepMethod is the step method name the Go binding gives function
// literals.
const GoStepMethod = "func"

// GoConventions are the name conventions of function literals compiled for
// a method: closures are "<Method>.funcN" and range-over-func loop bodies
// are "<Method>-rangeN".
var GoConventions = []string{"%s.func", "%s-range"}

// IsGoClosureName reports whether name is a function literal name relative
// to its type, as in "Items.func1" or "Walk-range2".
func IsGoClosureName(name string) bool {
	return strings.Contains(name, ".func") || strings.Contains(name, "-range") ||
		strings.Contains(name, ".gowrap") || strings.Contains(name, ".deferwrap")
}

// GoHost binds the engine to Go code compiled into the running binary.
// Types are made known with Register. GoHost implements apis.TypeSystem
// and, on linux/amd64, Installer.
type GoHost struct {
	mu    sync.RWMutex
	types map[string]*goType

	// pristine holds the original code of every function patched so far,
	// by entry address.
	pristine map[uintptr][]byte
	arena    stringArena
}

// NewGoHost creates a GoHost with no types registered.
func NewGoHost() *GoHost {
	return &GoHost{
		types:    map[string]*goType{},
		pristine: map[uintptr][]byte{},
	}
}

// Register makes the types of values known to the host. Values may be
// pointers. Generic types cannot be registered.
func (h *GoHost) Register(values ...any) error {
	for _, v := range values {
		rt := reflect.TypeOf(v)
		if rt == nil {
			return fmt.Errorf("cannot register nil")
		}
		if rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt.Name() == "" || rt.PkgPath() == "" {
			return fmt.Errorf("cannot register unnamed type %v", rt)
		}
		if strings.ContainsRune(rt.Name(), '[') {
			return fmt.Errorf("cannot register generic type %v", rt)
		}

		t := &goType{
			rt:        rt,
			qualified: rt.PkgPath() + "." + rt.Name(),
			short:     path.Base(rt.PkgPath()) + "." + rt.Name(),
			symbol:    symbolPrefix(rt.PkgPath()),
		}

		h.mu.Lock()
		h.types[t.qualified] = t
		h.types[t.short] = t
		h.mu.Unlock()
	}
	return nil
}

// ResolverOptions returns the resolver settings for Go naming.
func (h *GoHost) ResolverOptions() []resolver.Option {
	return []resolver.Option{
		resolver.WithConventions(GoConventions...),
		resolver.WithStepMethod(GoStepMethod),
		resolver.WithSynthesizedNames(IsGoClosureName),
	}
}

// FindType looks up a registered type by "pkgpath.Type" or "pkg.Type". A
// function literal can be named directly as "pkg.Type+Method.func1".
// moduleHint, when set, must equal the package path.
func (h *GoHost) FindType(name, moduleHint string) (apis.TypeDescriptor, bool) {
	owner, closure, nested := strings.Cut(name, "+")

	h.mu.RLock()
	t, ok := h.types[owner]
	h.mu.RUnlock()
	if !ok || (moduleHint != "" && moduleHint != t.rt.PkgPath()) {
		return nil, false
	}
	if !nested {
		return t, true
	}

	for _, c := range h.closures(t) {
		if c.name == closure {
			return c, true
		}
	}
	return nil, false
}

func (h *GoHost) FindMethod(td apis.TypeDescriptor, name string) (apis.MethodDescriptor, bool) {
	switch t := td.(type) {
	case *goType:
		sym, ok := t.methodSymbol(name)
		if !ok {
			return nil, false
		}
		return &goMethod{name: name, shape: t.shape(name), sym: sym}, true

	case *goClosure:
		if name != GoStepMethod {
			return nil, false
		}
		return &goMethod{name: name, sym: t.sym}, true
	}
	return nil, false
}

func (h *GoHost) NestedTypes(td apis.TypeDescriptor) []apis.TypeDescriptor {
	t, ok := td.(*goType)
	if !ok {
		return nil
	}
	closures := h.closures(t)
	out := make([]apis.TypeDescriptor, len(closures))
	for i, c := range closures {
		out[i] = c
	}
	return out
}

// ImplementsCapability reports the iterator capability for function
// literals of methods returning iter.Seq or iter.Seq2, and the async
// capability for literals of methods returning a channel.
func (h *GoHost) ImplementsCapability(td apis.TypeDescriptor, c apis.Capability) bool {
	cl, ok := td.(*goClosure)
	if !ok {
		return false
	}
	switch c {
	case apis.CapabilityIteratorStep:
		return cl.owner.shape(cl.method) == apis.ShapeLazySequence
	case apis.CapabilityAsyncStep:
		return cl.owner.shape(cl.method) == apis.ShapeDeferred
	}
	return false
}

// closures lists the function literals compiled for t's methods.
func (h *GoHost) closures(t *goType) []*goClosure {
	st := loadSymbols()

	var out []*goClosure
	for _, prefix := range t.receiverPrefixes() {
		for _, sym := range st.withPrefix(prefix) {
			rest := sym.name[len(prefix):]
			i := strings.IndexAny(rest, ".-")
			if i <= 0 {
				continue
			}
			out = append(out, &goClosure{
				owner:  t,
				name:   rest,
				method: rest[:i],
				sym:    sym,
			})
		}
	}
	slices.SortStableFunc(out, func(a, b *goClosure) int {
		return strings.Compare(a.name, b.name)
	})
	return out
}

// unitSymbol returns the function holding a resolved unit's code.
func unitSymbol(unit *apis.ResolvedUnit) (*symbol, error) {
	if unit == nil {
		return nil, fmt.Errorf("nil unit")
	}
	m, ok := unit.Method.(*goMethod)
	if !ok || m.sym == nil {
		return nil, apis.NewError(apis.KindNotFound, string(unit.ID()), fmt.Errorf("no Go function for unit"))
	}
	return m.sym, nil
}

type goType struct {
	rt        reflect.Type
	qualified string
	short     string
	symbol    string // escaped package path
}

func (t *goType) Name() string          { return t.rt.Name() }
func (t *goType) QualifiedName() string { return t.qualified }

// receiverPrefixes returns the symbol prefixes of methods with a value
// receiver and a pointer receiver.
func (t *goType) receiverPrefixes() []string {
	return []string{
		t.symbol + "." + t.rt.Name() + ".",
		t.symbol + ".(*" + t.rt.Name() + ").",
	}
}

func (t *goType) methodSymbol(name string) (*symbol, bool) {
	st := loadSymbols()
	for _, prefix := range t.receiverPrefixes() {
		if sym, ok := st.lookup(prefix + name); ok {
			return sym, true
		}
	}
	return nil, false
}

// shape classifies a method's first result. Unexported methods are not
// visible to reflect and are always ordinary.
func (t *goType) shape(name string) apis.ReturnShape {
	m, ok := reflect.PointerTo(t.rt).MethodByName(name)
	if !ok || m.Type.NumOut() == 0 {
		return apis.ShapeOrdinary
	}
	return shapeOf(m.Type.Out(0))
}

func shapeOf(rt reflect.Type) apis.ReturnShape {
	switch rt.Kind() {
	case reflect.Chan:
		return apis.ShapeDeferred
	case reflect.Func:
		// iter.Seq and iter.Seq2: func(yield func(...) bool)
		if rt.NumIn() != 1 || rt.NumOut() != 0 {
			break
		}
		yield := rt.In(0)
		if yield.Kind() == reflect.Func && yield.NumOut() == 1 && yield.Out(0).Kind() == reflect.Bool {
			return apis.ShapeLazySequence
		}
	}
	return apis.ShapeOrdinary
}

// goClosure is a function literal compiled as its own symbol. It stands in
// for a compiler-synthesized type.
type goClosure struct {
	owner  *goType
	name   string // relative to the owner, e.g. "Items.func1"
	method string
	sym    *symbol
}

func (c *goClosure) Name() string          { return c.name }
func (c *goClosure) QualifiedName() string { return c.owner.qualified + "+" + c.name }

type goMethod struct {
	name  string
	shape apis.ReturnShape
	sym   *symbol
}

func (m *goMethod) Name() string            { return m.name }
func (m *goMethod) Shape() apis.ReturnShape { return m.shape }

var _ apis.TypeSystem = (*GoHost)(nil)
