package resolver

import (
	"log/slog"

	"github.com/pboyd/retext/apis"
)

type options struct {
	conventions   []string
	capabilities  []apis.Capability
	strategies    []Strategy
	stepMethod    string
	isSynthesized func(string) bool
	log           *slog.Logger
}

// Option configures a Resolver.
type Option func(*options)

// WithConventions replaces the name conventions tried during discovery.
// Each is a format string with one %s for the method name.
func WithConventions(conventions ...string) Option {
	return func(o *options) {
		o.conventions = conventions
	}
}

// WithCapabilities replaces the capabilities matched after the name
// conventions fail. No capabilities disables the capability match.
func WithCapabilities(capabilities ...apis.Capability) Option {
	return func(o *options) {
		o.capabilities = capabilities
	}
}

// WithStrategies adds strategies tried after the name conventions and
// before the capability match.
func WithStrategies(strategies ...Strategy) Option {
	return func(o *options) {
		for _, s := range strategies {
			if s != nil {
				o.strategies = append(o.strategies, s)
			}
		}
	}
}

// WithStepMethod sets the name of a synthesized type's step method.
func WithStepMethod(name string) Option {
	return func(o *options) {
		o.stepMethod = name
	}
}

// WithSynthesizedNames replaces the test for type names that are already
// synthesized.
func WithSynthesizedNames(fn func(name string) bool) Option {
	return func(o *options) {
		o.isSynthesized = fn
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
