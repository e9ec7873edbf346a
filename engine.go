package retext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pboyd/retext/apis"
	"github.com/pboyd/retext/config"
	"github.com/pboyd/retext/descriptor"
	"github.com/pboyd/retext/discovery"
	"github.com/pboyd/retext/il"
	"github.com/pboyd/retext/pattern"
	"github.com/pboyd/retext/registry"
	"github.com/pboyd/retext/resolver"
	"github.com/pboyd/retext/rewrite"
)

// Installer patches a unit so its body runs through transform.
type Installer interface {
	Install(unit *apis.ResolvedUnit, transform func([]*il.Instruction) []*il.Instruction) error
}

// resolverOptioner is implemented by type systems with their own naming
// rules, such as GoHost.
type resolverOptioner interface {
	ResolverOptions() []resolver.Option
}

// Engine ties discovery, the registry, the resolver and the rewriter
// together.
type Engine struct {
	log  *slog.Logger
	ts   apis.TypeSystem
	inst Installer

	reg     *registry.Registry
	res     *resolver.Resolver
	rw      *rewrite.Rewriter
	matcher *pattern.Matcher

	cfg          *config.Config
	discovery    discovery.Options
	resolverOpts []resolver.Option
	rewriteOpts  []rewrite.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger passed to every component. A nil logger is
// ignored.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithResolverOptions adds resolver options. They are applied after the
// configuration and the type system's own options.
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(e *Engine) {
		e.resolverOpts = append(e.resolverOpts, opts...)
	}
}

// WithRewriteOptions adds rewriter options.
func WithRewriteOptions(opts ...rewrite.Option) Option {
	return func(e *Engine) {
		e.rewriteOpts = append(e.rewriteOpts, opts...)
	}
}

// WithRegistry uses reg instead of a new registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.reg = reg
	}
}

// WithDiscovery sets the options for LoadAndApply.
func WithDiscovery(opts discovery.Options) Option {
	return func(e *Engine) {
		e.discovery = opts
	}
}

// WithConfig configures the engine from cfg. The logger comes from cfg
// unless WithLogger is also given. A type system's own naming options take
// precedence over cfg's resolver section.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// New creates an Engine resolving types with ts and patching with inst.
// inst may be nil, in which case Apply only registers translations.
func New(ts apis.TypeSystem, inst Installer, opts ...Option) *Engine {
	e := &Engine{
		ts:        ts,
		inst:      inst,
		discovery: discovery.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}

	var resolverOpts []resolver.Option
	var rewriteOpts []rewrite.Option
	if e.cfg != nil {
		if e.log == nil {
			e.log = e.cfg.Logger()
		}
		resolverOpts = e.cfg.ResolverOptions(e.log)
		rewriteOpts = e.cfg.RewriteOptions(e.log)
		e.discovery = e.cfg.DiscoveryOptions(e.log)
	}
	if e.log == nil {
		e.log = slog.New(slog.DiscardHandler)
	}
	if ro, ok := ts.(resolverOptioner); ok {
		resolverOpts = append(resolverOpts, ro.ResolverOptions()...)
	}
	resolverOpts = append(resolverOpts, resolver.WithLogger(e.log))
	resolverOpts = append(resolverOpts, e.resolverOpts...)

	rewriteOpts = append(rewriteOpts, rewrite.WithLogger(e.log))
	rewriteOpts = append(rewriteOpts, e.rewriteOpts...)

	if e.discovery.Logger == nil {
		e.discovery.Logger = e.log
	}
	if e.reg == nil {
		e.reg = registry.New(registry.WithLogger(e.log))
	}

	e.res = resolver.New(ts, resolverOpts...)
	e.rw = rewrite.New(e.reg, rewriteOpts...)
	e.matcher = pattern.NewMatcher(e.reg)
	return e
}

func (e *Engine) Registry() *registry.Registry { return e.reg }
func (e *Engine) Resolver() *resolver.Resolver { return e.res }
func (e *Engine) Rewriter() *rewrite.Rewriter  { return e.rw }

// Report summarizes one batch.
type Report struct {
	// Targets is the number of declared (type, method) targets.
	Targets  int
	Resolved int
	NotFound int
	// Degraded counts targets patched on the declared method because no
	// synthesized unit was found.
	Degraded int

	// Units is the number of distinct units translations were registered
	// for. Several targets may resolve to the same unit.
	Units   int
	Entries int

	Installed       int
	InstallFailures int

	// Files and Malformed are only set by LoadAndApply.
	Files     int
	Malformed int

	Errs []error
}

// Err joins the errors of the batch.
func (r Report) Err() error {
	return errors.Join(r.Errs...)
}

func (r Report) logAttrs() []any {
	return []any{
		"targets", r.Targets,
		"resolved", r.Resolved,
		"not_found", r.NotFound,
		"degraded", r.Degraded,
		"units", r.Units,
		"entries", r.Entries,
		"installed", r.Installed,
		"install_failures", r.InstallFailures,
		"files", r.Files,
		"malformed", r.Malformed,
	}
}

// pendingUnit collects the entries of every target that resolved to one
// unit.
type pendingUnit struct {
	unit     *apis.ResolvedUnit
	exact    map[string]string
	patterns []apis.TranslationEntry
}

func (p *pendingUnit) add(entries []apis.TranslationEntry) {
	for _, entry := range entries {
		if entry.Exact() {
			p.exact[entry.Original] = entry.Translated
			continue
		}
		p.patterns = append(p.patterns, entry)
		// A template can also show up verbatim, placeholders included.
		if entry.IsTemplate {
			if _, ok := p.exact[entry.Original]; !ok {
				p.exact[entry.Original] = entry.Translated
			}
		}
	}
}

// Apply resolves every patch, registers the translations of every unit
// and then installs the rewriter on each unit. Targets that cannot be
// resolved or installed are counted and skipped.
func (e *Engine) Apply(ctx context.Context, patches []descriptor.Patch) Report {
	var rep Report
	e.apply(ctx, patches, &rep)
	e.log.Info("Applied translation patches.", rep.logAttrs()...)
	return rep
}

// LoadAndApply discovers the descriptors under roots and applies them. The
// error is for roots that cannot be scanned; everything else is in the
// Report.
func (e *Engine) LoadAndApply(ctx context.Context, roots ...string) (Report, error) {
	var rep Report

	result, err := discovery.Scan(ctx, roots, e.discovery)
	if err != nil {
		return rep, err
	}
	rep.Files = len(result.Files)
	for _, f := range result.Files {
		for _, w := range f.Warnings {
			e.log.Warn("Descriptor warning.", "file", f.Path, "warning", w)
		}
	}
	malformed := result.Malformed()
	rep.Malformed = len(malformed)
	for _, err := range malformed {
		e.log.Warn("Skipped malformed descriptor.", "error", err)
	}
	rep.Errs = append(rep.Errs, malformed...)
	rep.Errs = append(rep.Errs, result.Errs...)

	e.apply(ctx, result.Patches(), &rep)
	e.log.Info("Applied translation patches.", rep.logAttrs()...)
	return rep, nil
}

// group is the patches declared for one type.
type group struct {
	module, typeName string
	patches          []descriptor.Patch
}

func groupByType(patches []descriptor.Patch) []*group {
	type key struct{ module, typeName string }

	var groups []*group
	byKey := map[key]*group{}
	for _, p := range patches {
		k := key{p.Module, p.Type}
		g, ok := byKey[k]
		if !ok {
			g = &group{module: p.Module, typeName: p.Type}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.patches = append(g.patches, p)
	}
	return groups
}

func (e *Engine) apply(ctx context.Context, patches []descriptor.Patch, rep *Report) {
	var order []apis.UnitID
	pending := map[apis.UnitID]*pendingUnit{}

	for _, g := range groupByType(patches) {
		if err := ctx.Err(); err != nil {
			rep.Errs = append(rep.Errs, err)
			return
		}

		for _, p := range g.patches {
			rep.Targets++

			unit, err := e.res.Resolve(g.typeName, p.Method, g.module)
			if err != nil {
				rep.NotFound++
				rep.Errs = append(rep.Errs, err)
				e.log.Warn("Skipped unresolved target.", "target", p.Target(), "module", g.module, "error", err)
				continue
			}
			rep.Resolved++
			if unit.Degraded {
				rep.Degraded++
			}

			id := unit.ID()
			pu, ok := pending[id]
			if !ok {
				pu = &pendingUnit{unit: unit, exact: map[string]string{}}
				pending[id] = pu
				order = append(order, id)
			}
			pu.add(p.Entries)
			rep.Entries += len(p.Entries)
		}
	}

	// Every unit is registered before any is installed, so the rewriter
	// never runs against a partially populated registry.
	for _, id := range order {
		pu := pending[id]
		e.reg.Register(id, pu.exact)
		// Replaces the whole list, so a unit reapplied without templates
		// loses the old ones.
		if err := e.reg.RegisterPatterns(id, pu.patterns); err != nil {
			rep.Errs = append(rep.Errs, err)
		}
	}
	rep.Units = len(order)

	if e.inst == nil {
		return
	}
	for _, id := range order {
		if err := e.inst.Install(pending[id].unit, e.rw.Func(id)); err != nil {
			rep.InstallFailures++
			rep.Errs = append(rep.Errs, err)
			e.log.Warn("Unable to install rewrite.", "unit", id, "error", err)
			continue
		}
		rep.Installed++
	}
}

// Match translates s the way the rewriter would for a string constant in
// the unit: exact entries first, then patterns in order.
func (e *Engine) Match(id apis.UnitID, s string) (string, bool) {
	if t, ok := e.reg.Lookup(id); ok {
		if v, ok := t.Get(s); ok {
			return v, true
		}
	}
	return e.matcher.Match(id, s)
}

// Clear drops every registered translation and resolved unit. Installed
// rewrites stay installed and see an empty registry.
func (e *Engine) Clear() {
	e.reg.Clear()
	e.res.Clear()
}

func (e *Engine) String() string {
	return fmt.Sprintf("engine(units=%d, resolved=%d, mode=%s)", e.reg.Len(), e.res.Len(), e.rw.Mode())
}

var (
	defaultOnce   sync.Once
	defaultHost   *GoHost
	defaultEngine *Engine
)

func initDefault() {
	defaultOnce.Do(func() {
		defaultHost = NewGoHost()
		defaultEngine = New(defaultHost, defaultHost)
	})
}

// Default returns the process-wide engine over DefaultHost. It is created
// on first use.
func Default() *Engine {
	initDefault()
	return defaultEngine
}

// DefaultHost returns the GoHost used by Default. Types must be registered
// with it before their patches are applied.
func DefaultHost() *GoHost {
	initDefault()
	return defaultHost
}

// Clear resets the process-wide engine.
func Clear() {
	Default().Clear()
}
