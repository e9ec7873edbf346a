package resolver

import (
	"fmt"
	"strings"

	"github.com/pboyd/retext/apis"
)

// Strategy is one step of synthesized-type discovery. The resolver tries
// its strategies in order and the first hit wins.
type Strategy interface {
	// TryFind looks for the type holding method's body among nested, the
	// types nested in the declaring type.
	TryFind(ts apis.TypeSystem, method string, nested []apis.TypeDescriptor) (apis.TypeDescriptor, bool)
	String() string
}

// Convention finds nested types by name. The convention is a format string
// with one %s for the method name; a nested type matches when its name
// starts with the formatted prefix.
type Convention string

func (c Convention) TryFind(_ apis.TypeSystem, method string, nested []apis.TypeDescriptor) (apis.TypeDescriptor, bool) {
	prefix := fmt.Sprintf(string(c), method)
	for _, t := range nested {
		if strings.HasPrefix(t.Name(), prefix) {
			return t, true
		}
	}
	return nil, false
}

func (c Convention) String() string {
	return "convention " + string(c)
}

// CapabilityMatch finds the first nested type implementing any of the
// capabilities, regardless of its name.
type CapabilityMatch []apis.Capability

func (c CapabilityMatch) TryFind(ts apis.TypeSystem, _ string, nested []apis.TypeDescriptor) (apis.TypeDescriptor, bool) {
	for _, t := range nested {
		for _, capability := range c {
			if ts.ImplementsCapability(t, capability) {
				return t, true
			}
		}
	}
	return nil, false
}

func (c CapabilityMatch) String() string {
	names := make([]string, len(c))
	for i, capability := range c {
		names[i] = string(capability)
	}
	return "capability " + strings.Join(names, "|")
}

// DefaultConventions are the synthesized-type name conventions tried before
// the capability match: the two compiler marker forms and two readable
// fallbacks.
var DefaultConventions = []string{
	"<%s>d__",
	"<%s>c__",
	"%sStateMachine",
	"%sEnumerator",
}

// DefaultCapabilities are the step capabilities of synthesized types.
var DefaultCapabilities = []apis.Capability{
	apis.CapabilityIteratorStep,
	apis.CapabilityAsyncStep,
}

// DefaultStepMethod is the step method of a synthesized type.
const DefaultStepMethod = "MoveNext"
