package apis

import "fmt"

// Capability names a behavior a type can implement, independent of what the
// type is called.
type Capability string

const (
	// CapabilityIteratorStep is the single-step iteration capability of a
	// compiler-generated iterator type.
	CapabilityIteratorStep Capability = "step.iterator"
	// CapabilityAsyncStep is the step capability of a compiler-generated
	// asynchronous continuation type.
	CapabilityAsyncStep Capability = "step.async"
)

// ReturnShape classifies a method's declared result.
type ReturnShape uint8

const (
	ShapeOrdinary     ReturnShape = iota
	ShapeLazySequence             // lazy sequence of T
	ShapeDeferred                 // deferred result of T
)

func (s ReturnShape) String() string {
	switch s {
	case ShapeLazySequence:
		return "lazy-sequence"
	case ShapeDeferred:
		return "deferred"
	default:
		return "ordinary"
	}
}

// ParseShape parses the names returned by ReturnShape.String. The empty
// string is ShapeOrdinary.
func ParseShape(s string) (ReturnShape, error) {
	switch s {
	case "", "ordinary":
		return ShapeOrdinary, nil
	case "lazy-sequence":
		return ShapeLazySequence, nil
	case "deferred":
		return ShapeDeferred, nil
	}
	return ShapeOrdinary, fmt.Errorf("unknown return shape %q", s)
}

// Synthesizing reports whether methods with this shape usually have their
// body moved into a compiler-generated unit.
func (s ReturnShape) Synthesizing() bool {
	return s == ShapeLazySequence || s == ShapeDeferred
}

// TypeDescriptor is a host's handle for a type.
type TypeDescriptor interface {
	// Name is the type's own name, relative to its declaring type for
	// nested types.
	Name() string
	// QualifiedName is the fully qualified name used in unit ids.
	QualifiedName() string
}

// MethodDescriptor is a host's handle for a method.
type MethodDescriptor interface {
	Name() string
	Shape() ReturnShape
}

// TypeSystem is the seam between the engine and a runtime's type
// information. The engine never uses a concrete reflection API.
type TypeSystem interface {
	// FindType looks up a type by name, optionally scoped to a module.
	FindType(name, moduleHint string) (TypeDescriptor, bool)
	// FindMethod looks up a method declared on t.
	FindMethod(t TypeDescriptor, name string) (MethodDescriptor, bool)
	// NestedTypes lists the types nested in t, in declaration order.
	NestedTypes(t TypeDescriptor) []TypeDescriptor
	// ImplementsCapability reports whether t implements c.
	ImplementsCapability(t TypeDescriptor, c Capability) bool
}
