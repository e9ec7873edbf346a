package apis

import "strings"

// UnitID identifies one compiled executable unit, canonically
// "<declaringTypeQualifiedName>.<methodName>".
type UnitID string

// NewUnitID joins a qualified type name and a method name.
func NewUnitID(qualifiedType, method string) UnitID {
	return UnitID(qualifiedType + "." + method)
}

// Split returns the type and method parts of id. The method is everything
// after the last dot.
func (id UnitID) Split() (typeName, method string) {
	s := string(id)
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", s
	}
	return s[:i], s[i+1:]
}

func (id UnitID) String() string {
	return string(id)
}

// ResolvedUnit is the concrete unit chosen for a declared (type, method)
// pair. It is never mutated after creation.
type ResolvedUnit struct {
	DeclaredType   string
	DeclaredMethod string

	// Type is the type that actually holds the code to rewrite. It differs
	// from the declared type when a synthesized type was substituted.
	Type TypeDescriptor
	// MethodName is the name of the method on Type to rewrite.
	MethodName string
	// Method is the host's handle for the method, if the host provided one.
	Method MethodDescriptor

	// Substituted is set when Type is a synthesized type standing in for
	// the declared method.
	Substituted bool
	// Degraded is set when the declared method looked like it delegates to a
	// synthesized unit but none was found, so the method itself is patched.
	Degraded bool
}

// ID returns the registry key for the unit.
func (u *ResolvedUnit) ID() UnitID {
	return NewUnitID(u.Type.QualifiedName(), u.MethodName)
}
