package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pboyd/retext/apis"
)

var (
	errTypeNotFound   = errors.New("type not found")
	errMethodNotFound = errors.New("method not found and no synthesized type matches")
	errNoSynthesized  = errors.New("no synthesized type matches")
)

type typeKey struct {
	moduleHint, typeName string
}

type unitKey struct {
	moduleHint, typeName, methodName string
}

func (k unitKey) String() string {
	return k.moduleHint + "\x00" + k.typeName + "\x00" + k.methodName
}

// Resolver resolves declared methods to units. It is safe for concurrent
// use.
type Resolver struct {
	ts            apis.TypeSystem
	strategies    []Strategy
	stepMethod    string
	isSynthesized func(string) bool
	log           *slog.Logger

	mu    sync.RWMutex
	types map[typeKey]apis.TypeDescriptor
	units map[unitKey]*apis.ResolvedUnit

	group singleflight.Group
}

// New creates a Resolver over ts.
func New(ts apis.TypeSystem, opts ...Option) *Resolver {
	o := options{
		conventions:   DefaultConventions,
		capabilities:  DefaultCapabilities,
		stepMethod:    DefaultStepMethod,
		isSynthesized: IsSynthesizedName,
		log:           slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Resolver{
		ts:            ts,
		stepMethod:    o.stepMethod,
		isSynthesized: o.isSynthesized,
		log:           o.log,
		types:         map[typeKey]apis.TypeDescriptor{},
		units:         map[unitKey]*apis.ResolvedUnit{},
	}
	for _, c := range o.conventions {
		r.strategies = append(r.strategies, Convention(c))
	}
	r.strategies = append(r.strategies, o.strategies...)
	if len(o.capabilities) > 0 {
		r.strategies = append(r.strategies, CapabilityMatch(o.capabilities))
	}
	return r
}

// Strategies returns the discovery strategies in the order they are tried.
func (r *Resolver) Strategies() []Strategy {
	out := make([]Strategy, len(r.strategies))
	copy(out, r.strategies)
	return out
}

// Resolve returns the unit to rewrite for typeName.methodName. moduleHint
// may be empty. Results are cached. Errors have kind NotFound.
func (r *Resolver) Resolve(typeName, methodName, moduleHint string) (*apis.ResolvedUnit, error) {
	key := unitKey{moduleHint, typeName, methodName}

	if u, ok := r.Cached(typeName, methodName, moduleHint); ok {
		return u, nil
	}

	v, err, _ := r.group.Do(key.String(), func() (any, error) {
		if u, ok := r.Cached(typeName, methodName, moduleHint); ok {
			return u, nil
		}
		return r.resolveAndStore(key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*apis.ResolvedUnit), nil
}

// Reresolve ignores the cached unit for the pair, resolves it again, and
// replaces the cached unit with the result. Type lookups stay cached.
func (r *Resolver) Reresolve(typeName, methodName, moduleHint string) (*apis.ResolvedUnit, error) {
	key := unitKey{moduleHint, typeName, methodName}

	r.mu.Lock()
	delete(r.units, key)
	r.mu.Unlock()

	return r.resolveAndStore(key)
}

// Cached returns the cached unit for the pair without resolving it.
func (r *Resolver) Cached(typeName, methodName, moduleHint string) (*apis.ResolvedUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[unitKey{moduleHint, typeName, methodName}]
	return u, ok
}

// Len returns the number of cached units.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// Clear empties the type and unit caches.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.types)
	clear(r.units)
}

func (r *Resolver) resolveAndStore(key unitKey) (*apis.ResolvedUnit, error) {
	u, err := r.resolve(key)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[key] = u
	return u, nil
}

func (r *Resolver) findType(moduleHint, typeName string) (apis.TypeDescriptor, bool) {
	key := typeKey{moduleHint, typeName}

	r.mu.RLock()
	t, ok := r.types[key]
	r.mu.RUnlock()
	if ok {
		return t, true
	}

	t, ok = r.ts.FindType(typeName, moduleHint)
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[key] = t
	return t, true
}

func (r *Resolver) resolve(key unitKey) (*apis.ResolvedUnit, error) {
	subject := key.typeName + "." + key.methodName

	t, ok := r.findType(key.moduleHint, key.typeName)
	if !ok {
		return nil, apis.NewError(apis.KindNotFound, key.typeName, errTypeNotFound)
	}

	unit := &apis.ResolvedUnit{
		DeclaredType:   key.typeName,
		DeclaredMethod: key.methodName,
	}

	// The declared type is already a synthesized one.
	if r.isSynthesized(t.Name()) {
		unit.Type = t
		unit.MethodName = r.stepMethod
		unit.Method = r.step(t)
		unit.Substituted = true
		if base, method, ok := SplitSynthesizedName(t.QualifiedName()); ok {
			r.log.Debug("Declared type is synthesized.", "type", t.QualifiedName(), "base", base, "method", method)
		}
		return unit, nil
	}

	m, ok := r.ts.FindMethod(t, key.methodName)
	if ok && !m.Shape().Synthesizing() {
		unit.Type = t
		unit.MethodName = m.Name()
		unit.Method = m
		return unit, nil
	}

	if synth, strategy, found := r.discover(t, key.methodName); found {
		unit.Type = synth
		unit.MethodName = r.stepMethod
		unit.Method = r.step(synth)
		unit.Substituted = true
		r.log.Debug("Resolved synthesized type.", "method", subject, "type", synth.QualifiedName(), "strategy", strategy)
		return unit, nil
	}

	if !ok {
		return nil, apis.NewError(apis.KindNotFound, subject, errMethodNotFound)
	}

	// The method returns a lazy sequence or deferred result but its
	// synthesized type could not be found. Patch the method itself, which
	// may not contain the strings.
	r.log.Warn("Patching declared method directly.", "method", subject, "shape", m.Shape(), "error", errNoSynthesized)
	unit.Type = t
	unit.MethodName = m.Name()
	unit.Method = m
	unit.Degraded = true
	return unit, nil
}

// step returns the step method of a synthesized type, or nil when it has
// none. Such a unit still resolves but cannot be installed.
func (r *Resolver) step(t apis.TypeDescriptor) apis.MethodDescriptor {
	m, ok := r.ts.FindMethod(t, r.stepMethod)
	if !ok {
		r.log.Warn("Synthesized type has no step method.", "type", t.QualifiedName(), "step", r.stepMethod)
		return nil
	}
	return m
}

func (r *Resolver) discover(t apis.TypeDescriptor, method string) (apis.TypeDescriptor, Strategy, bool) {
	nested := r.ts.NestedTypes(t)
	if len(nested) == 0 {
		return nil, nil, false
	}
	for _, s := range r.strategies {
		if found, ok := s.TryFind(r.ts, method, nested); ok {
			return found, s, true
		}
	}
	return nil, nil, false
}

// String describes the resolver's discovery chain.
func (r *Resolver) String() string {
	return fmt.Sprintf("resolver(step=%s, strategies=%v)", r.stepMethod, r.strategies)
}
